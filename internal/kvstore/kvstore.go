// Package kvstore persists small text values such as the history blob, the
// theme preference and stored credentials.
package kvstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"vaultx/internal/infra"
)

// Store is a string key-value store. Get reports ok=false for absent keys.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Close() error
}

// Open selects a backend by URL scheme: memory://, file://<dir>,
// sqlite://<path> or postgres://... (postgresql:// is accepted too).
func Open(ctx context.Context, rawURL string, logger *infra.Logger) (Store, error) {
	rawURL = strings.TrimSpace(rawURL)
	scheme, rest, ok := strings.Cut(rawURL, "://")
	if !ok {
		return nil, fmt.Errorf("kvstore: %q is not a store url", rawURL)
	}
	switch strings.ToLower(scheme) {
	case "memory", "mem":
		return NewMemory(), nil
	case "file":
		return NewFile(localPath(rest))
	case "sqlite":
		return OpenSQLite(ctx, localPath(rest))
	case "postgres", "postgresql":
		pool, err := infra.NewDBPool(ctx, rawURL)
		if err != nil {
			return nil, fmt.Errorf("kvstore: %w", err)
		}
		l := infra.LoggerOrDiscard(logger)
		store, err := NewPostgres(ctx, infra.NewSQLRunner(pool, *l))
		if err != nil {
			pool.Close()
			return nil, err
		}
		store.closer = pool.Close
		return store, nil
	default:
		return nil, fmt.Errorf("kvstore: unsupported scheme %q", scheme)
	}
}

// localPath turns the remainder of file:///abs or file://./rel into a path.
func localPath(rest string) string {
	if u, err := url.PathUnescape(rest); err == nil {
		rest = u
	}
	if rest == "" {
		return "."
	}
	return rest
}

// Memory is a process-local store.
type Memory struct {
	mu   sync.RWMutex
	data map[string]string
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string]string)}
}

func (m *Memory) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *Memory) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *Memory) Close() error { return nil }

var _ Store = (*Memory)(nil)
