// Package media materialises generated artifacts into locators the
// presentation layer can display.
package media

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path"
	"strings"

	"vaultx/internal/domain"
)

// Store persists an artifact under key and returns its locator.
type Store interface {
	Save(ctx context.Context, key string, m domain.Media) (string, error)
}

// Loader reads back an artifact from a locator previously returned by Save.
type Loader interface {
	Load(ctx context.Context, locator string) (domain.Media, error)
}

// ErrNotLoadable is returned when a locator cannot be read back by the store.
var ErrNotLoadable = errors.New("media: locator cannot be loaded")

// Load resolves locator through store. Data URLs are decoded regardless of
// the store so that history written under another configuration stays usable.
func Load(ctx context.Context, store Store, locator string) (domain.Media, error) {
	if strings.HasPrefix(locator, "data:") {
		return Inline{}.Load(ctx, locator)
	}
	loader, ok := store.(Loader)
	if !ok {
		return domain.Media{}, fmt.Errorf("%w: %s", ErrNotLoadable, locator)
	}
	return loader.Load(ctx, locator)
}

// Inline keeps artifacts in memory by encoding them as data URLs.
type Inline struct{}

func (Inline) Save(ctx context.Context, _ string, m domain.Media) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return m.DataURL(), nil
}

func (Inline) Load(ctx context.Context, locator string) (domain.Media, error) {
	if err := ctx.Err(); err != nil {
		return domain.Media{}, err
	}
	m, err := domain.ParseDataURL(locator)
	if err != nil {
		return domain.Media{}, fmt.Errorf("%w: %v", ErrNotLoadable, err)
	}
	return m, nil
}

// ObjectKey derives a stable object name for an artifact id and MIME type.
func ObjectKey(id, mimeType string) string {
	ext := ".bin"
	switch strings.ToLower(mimeType) {
	case "image/jpeg":
		ext = ".jpg"
	case "image/png":
		ext = ".png"
	case "video/mp4":
		ext = ".mp4"
	default:
		if exts, err := mime.ExtensionsByType(mimeType); err == nil && len(exts) > 0 {
			ext = exts[0]
		}
	}
	return id + ext
}

// mimeForKey is the inverse of ObjectKey.
func mimeForKey(key string) string {
	ext := strings.ToLower(path.Ext(key))
	switch ext {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".mp4":
		return "video/mp4"
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}

var (
	_ Store  = Inline{}
	_ Loader = Inline{}
)
