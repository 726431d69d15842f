package backend

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradevera/config"
	"tradevera/internal/storage/memory"
	"tradevera/internal/storage/sqlite"
)

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, config.DatabaseConfig{Backend: config.BackendMemory}, false)
	require.NoError(t, err)
	assert.IsType(t, &memory.Store{}, s)

	s, err = Open(ctx, config.DatabaseConfig{
		Backend:    config.BackendSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "open.db"),
	}, true)
	require.NoError(t, err)
	defer s.Close()
	assert.IsType(t, &sqlite.Store{}, s)
	assert.NoError(t, s.HealthCheck(ctx))

	_, err = Open(ctx, config.DatabaseConfig{Backend: "mongo"}, false)
	assert.Error(t, err)
}
