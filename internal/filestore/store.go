package filestore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/xxxsen/docfinder/internal/config"
)

// Store keeps uploaded source documents. Keys are flat names without directories.
type Store interface {
	Save(ctx context.Context, key string, r ReadSeekCloser, size int64) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// List returns the keys starting with prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
}

// ReadSeekCloser is what an upload hands to Save; s3 needs Seek to retry a put.
type ReadSeekCloser = io.ReadSeekCloser

// Factory builds a store from the file_store.data block.
type Factory func(args interface{}) (Store, error)

var (
	backendsMu sync.RWMutex
	backends   = map[string]Factory{}
)

func storeType(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Register makes a backend selectable as file_store.type. Backends call it from init.
func Register(name string, factory Factory) {
	typ := storeType(name)
	if typ == "" || factory == nil {
		return
	}
	backendsMu.Lock()
	defer backendsMu.Unlock()
	backends[typ] = factory
}

// Types lists the registered backends, sorted.
func Types() []string {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	out := make([]string, 0, len(backends))
	for typ := range backends {
		out = append(out, typ)
	}
	sort.Strings(out)
	return out
}

func New(cfg config.FileStoreConfig) (Store, error) {
	typ := storeType(cfg.Type)
	if typ == "" {
		return nil, fmt.Errorf("file_store.type is required")
	}
	backendsMu.RLock()
	factory, ok := backends[typ]
	backendsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("file_store.type %q is not one of %s", cfg.Type, strings.Join(Types(), ", "))
	}
	return factory(cfg.Data)
}

func validKey(key string) bool {
	if key == "" || key == "." || key == ".." {
		return false
	}
	return !strings.ContainsAny(key, `/\`)
}

// decodeConfig maps the loosely typed data block onto a backend config struct.
func decodeConfig(args interface{}, dst interface{}) error {
	if args == nil {
		return fmt.Errorf("file_store.data is required")
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode file_store.data: %w", err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode file_store.data: %w", err)
	}
	return nil
}
