package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"vaultx/internal/domain"
)

// FileStore writes artifacts below a root directory and hands out URLs under
// a public prefix. It is meant for local runs where no object storage exists.
type FileStore struct {
	basePath  string
	urlPrefix string
}

// NewFileStore initializes a FileStore rooted at basePath. urlPrefix is
// prepended to the object key to form the returned locator.
func NewFileStore(basePath, urlPrefix string) (*FileStore, error) {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, errors.New("media: base path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("media: ensure base path: %w", err)
	}
	return &FileStore{basePath: basePath, urlPrefix: strings.TrimRight(urlPrefix, "/")}, nil
}

// BasePath returns the configured root directory.
func (s *FileStore) BasePath() string {
	if s == nil {
		return ""
	}
	return s.basePath
}

func (s *FileStore) Save(ctx context.Context, key string, m domain.Media) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	cleanKey, err := SanitizeKey(key)
	if err != nil {
		return "", err
	}
	fullPath := filepath.Join(s.basePath, filepath.FromSlash(cleanKey))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return "", fmt.Errorf("media: ensure directory: %w", err)
	}
	if err := os.WriteFile(fullPath, m.Data, 0o644); err != nil {
		return "", fmt.Errorf("media: write file: %w", err)
	}
	return s.urlPrefix + "/" + cleanKey, nil
}

// Load reads a file back from a locator under the store's URL prefix.
func (s *FileStore) Load(ctx context.Context, locator string) (domain.Media, error) {
	if err := ctx.Err(); err != nil {
		return domain.Media{}, err
	}
	key, ok := strings.CutPrefix(locator, s.urlPrefix+"/")
	if !ok {
		return domain.Media{}, fmt.Errorf("%w: %s", ErrNotLoadable, locator)
	}
	cleanKey, err := SanitizeKey(key)
	if err != nil {
		return domain.Media{}, err
	}
	data, err := os.ReadFile(filepath.Join(s.basePath, filepath.FromSlash(cleanKey)))
	if err != nil {
		return domain.Media{}, fmt.Errorf("media: read file: %w", err)
	}
	return domain.Media{MIMEType: mimeForKey(cleanKey), Data: data}, nil
}

// SanitizeKey normalizes a key and prevents escaping the storage root.
func SanitizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("media: key is required")
	}
	key = strings.ReplaceAll(key, "\\", "/")
	key = strings.TrimPrefix(key, "./")
	key = strings.TrimLeft(key, "/")
	cleaned := filepath.ToSlash(filepath.Clean(key))
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", errors.New("media: invalid key")
	}
	return cleaned, nil
}

var (
	_ Store  = (*FileStore)(nil)
	_ Loader = (*FileStore)(nil)
)
