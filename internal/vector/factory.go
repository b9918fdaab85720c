package vector

import (
	"context"
	"fmt"
	"strings"
)

// StoreKind names the datastore family a descriptor points at.
type StoreKind string

const (
	// StoreKindMemory keeps records in process. Good for tests and small experiments.
	StoreKindMemory StoreKind = "memory"
	// StoreKindSQLite persists to a local file and ranks by scanning.
	StoreKindSQLite StoreKind = "sqlite"
	// StoreKindPostgres uses pgvector when the extension is installed and scans otherwise.
	StoreKindPostgres StoreKind = "postgres"
	// StoreKindQdrant delegates ranking to a Qdrant collection.
	StoreKindQdrant StoreKind = "qdrant"
)

// ParseDescriptor returns the datastore kind and the backend-specific target
// (file path for sqlite, the original DSN otherwise).
//
// Accepted forms: memory://, sqlite://path, file:path, postgres://..., postgresql://...,
// qdrant://host:port/collection, or a bare file path.
func ParseDescriptor(dsn string) (StoreKind, string, error) {
	switch {
	case dsn == "":
		return "", "", fmt.Errorf("store descriptor is empty")
	case dsn == "memory" || strings.HasPrefix(dsn, "memory://"):
		return StoreKindMemory, "", nil
	case strings.HasPrefix(dsn, "sqlite://"):
		path := strings.TrimPrefix(dsn, "sqlite://")
		if path == "" {
			return "", "", fmt.Errorf("sqlite descriptor has no path: %s", dsn)
		}
		return StoreKindSQLite, path, nil
	case strings.HasPrefix(dsn, "file:"):
		return StoreKindSQLite, strings.TrimPrefix(dsn, "file:"), nil
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return StoreKindPostgres, dsn, nil
	case strings.HasPrefix(dsn, "qdrant://"):
		return StoreKindQdrant, dsn, nil
	case strings.Contains(dsn, "://"):
		return "", "", fmt.Errorf("unknown store descriptor: %s (supported: memory, sqlite, postgres, qdrant)", dsn)
	default:
		return StoreKindSQLite, dsn, nil
	}
}

// Open selects and connects the backend for dsn. The choice is made once here;
// callers never branch on the datastore afterwards. cache may be nil, in which case
// every Open probes the datastore.
func Open(ctx context.Context, dsn string, dimensions int, cache *CapabilityCache) (Backend, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	kind, target, err := ParseDescriptor(dsn)
	if err != nil {
		return nil, err
	}
	switch kind {
	case StoreKindMemory:
		return NewMemoryBackend(dimensions)
	case StoreKindSQLite:
		return NewSQLiteBackend(target, dimensions)
	case StoreKindPostgres:
		return openPostgres(ctx, target, dimensions, cache)
	case StoreKindQdrant:
		return openQdrant(ctx, target, dimensions, cache)
	default:
		return nil, fmt.Errorf("unsupported store kind: %s", kind)
	}
}
