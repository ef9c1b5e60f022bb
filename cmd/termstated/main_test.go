package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entl/termstate/internal/config"
	"github.com/entl/termstate/internal/logfile"
	"github.com/entl/termstate/internal/logging"
	"github.com/entl/termstate/internal/storage"
)

func TestRunReapsAndSaves(t *testing.T) {
	for _, backend := range []string{"sqlite", "file"} {
		t.Run(backend, func(t *testing.T) {
			cfg := config.Default()
			cfg.Storage.DataDir = t.TempDir()
			cfg.Storage.LogDir = filepath.Join(cfg.Storage.DataDir, "logs")
			cfg.Storage.Backend = backend

			logs := logfile.NewStore(cfg.Storage.LogDir)
			require.NoError(t, logs.Append("orphan", "left over"))

			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()
			require.NoError(t, run(ctx, cfg, logging.Nop()))

			exists, err := logs.Exists("orphan")
			require.NoError(t, err)
			assert.False(t, exists)

			var store storage.MetadataStore
			if backend == "file" {
				store = storage.NewFileStore(cfg.MetadataPath())
			} else {
				db, err := storage.NewDB(cfg.MetadataPath())
				require.NoError(t, err)
				defer db.Close()
				store = db.Store(cfg.Storage.Scope)
			}
			data, err := store.Load(context.Background())
			require.NoError(t, err)
			assert.JSONEq(t, `[]`, string(data))
		})
	}
}

func TestRunKeepsLogsWhenMetadataIsUnreadable(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.DataDir = t.TempDir()
	cfg.Storage.LogDir = filepath.Join(cfg.Storage.DataDir, "logs")
	cfg.Storage.Backend = "file"

	garbage := []byte("once upon a time")
	require.NoError(t, os.WriteFile(cfg.MetadataPath(), garbage, 0o600))
	logs := logfile.NewStore(cfg.Storage.LogDir)
	require.NoError(t, logs.Append("precious", "do not reap"))

	for i := 0; i < 2; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		require.NoError(t, run(ctx, cfg, logging.Nop()))
		cancel()

		data, err := os.ReadFile(cfg.MetadataPath())
		require.NoError(t, err)
		assert.Equal(t, garbage, data)

		exists, err := logs.Exists("precious")
		require.NoError(t, err)
		assert.True(t, exists, "start %d", i)
	}
}

func TestRunRejectsUnknownHandleFormat(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.DataDir = t.TempDir()
	cfg.Storage.LogDir = filepath.Join(cfg.Storage.DataDir, "logs")
	cfg.Console.HandleFormat = "counter"

	assert.Error(t, run(context.Background(), cfg, logging.Nop()))
}
