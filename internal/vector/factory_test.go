package vector

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDescriptor(t *testing.T) {
	tests := []struct {
		dsn     string
		kind    StoreKind
		target  string
		wantErr bool
	}{
		{dsn: "memory://", kind: StoreKindMemory},
		{dsn: "memory", kind: StoreKindMemory},
		{dsn: "sqlite:///var/lib/kioku/store.db", kind: StoreKindSQLite, target: "/var/lib/kioku/store.db"},
		{dsn: "sqlite://data/store.db", kind: StoreKindSQLite, target: "data/store.db"},
		{dsn: "file:store.db", kind: StoreKindSQLite, target: "store.db"},
		{dsn: "./store.db", kind: StoreKindSQLite, target: "./store.db"},
		{dsn: "postgres://u:p@localhost:5432/kioku", kind: StoreKindPostgres, target: "postgres://u:p@localhost:5432/kioku"},
		{dsn: "postgresql://localhost/kioku", kind: StoreKindPostgres, target: "postgresql://localhost/kioku"},
		{dsn: "qdrant://localhost:6334/notes", kind: StoreKindQdrant, target: "qdrant://localhost:6334/notes"},
		{dsn: "", wantErr: true},
		{dsn: "sqlite://", wantErr: true},
		{dsn: "mongodb://localhost", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.dsn, func(t *testing.T) {
			kind, target, err := ParseDescriptor(tt.dsn)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.kind, kind)
			assert.Equal(t, tt.target, target)
		})
	}
}

func TestParseQdrantDSN(t *testing.T) {
	cfg, err := ParseQdrantDSN("qdrant://qdrant.internal:7334/notes?api_key=secret&tls=true")
	require.NoError(t, err)
	assert.Equal(t, "qdrant.internal", cfg.Host)
	assert.Equal(t, 7334, cfg.Port)
	assert.Equal(t, "notes", cfg.Collection)
	assert.Equal(t, "secret", cfg.APIKey)
	assert.True(t, cfg.UseTLS)

	cfg, err = ParseQdrantDSN("qdrant://")
	require.NoError(t, err)
	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, 6334, cfg.Port)
	assert.Equal(t, "content_embeddings", cfg.Collection)
}

func TestOpen_Memory(t *testing.T) {
	b, err := Open(context.Background(), "memory://", 3, NewCapabilityCache())
	require.NoError(t, err)
	defer b.Close()
	assert.Equal(t, BackendInfo{Name: "memory", Native: false, IndexKind: IndexKindScan}, b.Info())
}

func TestOpen_SQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "store.db")
	b, err := Open(context.Background(), "sqlite://"+path, 3, nil)
	require.NoError(t, err)
	defer b.Close()
	assert.Equal(t, "sqlite", b.Info().Name)
	assert.FileExists(t, path)
}

func TestOpen_Errors(t *testing.T) {
	_, err := Open(context.Background(), "memory://", 0, nil)
	assert.Error(t, err)

	_, err = Open(context.Background(), "redis://localhost", 3, nil)
	assert.Error(t, err)
}
