package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/atlas")
	t.Setenv("DATA_DIR", "")
	t.Setenv("BATCH_SIZE", "")
	t.Setenv("OSM_INDEX_MODE", "")
	t.Setenv("DOWNLOAD_TIMEOUT", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres://localhost/atlas", cfg.DatabaseURL)
	assert.Equal(t, "data", cfg.DataDir)
	assert.Equal(t, 2000, cfg.BatchSize)
	assert.Equal(t, IndexSparseFile, cfg.OSMIndexMode)
	assert.Equal(t, time.Hour, cfg.DownloadTimeout)
	assert.NotEmpty(t, cfg.CodePointURL)
	assert.NotEmpty(t, cfg.NSPLURL)
	assert.NotEmpty(t, cfg.OSMURL)
}

func TestLoadRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/atlas")
	t.Setenv("DATA_DIR", "/var/lib/atlas")
	t.Setenv("BATCH_SIZE", "500")
	t.Setenv("OSM_INDEX_MODE", "memory")
	t.Setenv("DOWNLOAD_TIMEOUT", "30m")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/atlas", cfg.DataDir)
	assert.Equal(t, 500, cfg.BatchSize)
	assert.Equal(t, IndexMemory, cfg.OSMIndexMode)
	assert.Equal(t, 30*time.Minute, cfg.DownloadTimeout)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name, key, value string
	}{
		{"non-numeric batch size", "BATCH_SIZE", "lots"},
		{"zero batch size", "BATCH_SIZE", "0"},
		{"negative batch size", "BATCH_SIZE", "-5"},
		{"unknown index mode", "OSM_INDEX_MODE", "redis"},
		{"bad timeout", "DOWNLOAD_TIMEOUT", "soon"},
		{"negative timeout", "DOWNLOAD_TIMEOUT", "-1h"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DATABASE_URL", "postgres://localhost/atlas")
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestFilePaths(t *testing.T) {
	cfg := Config{DataDir: "/srv/data"}
	assert.Equal(t, filepath.Join("/srv/data", "codepoint-open.zip"), cfg.CodePointFile())
	assert.Equal(t, filepath.Join("/srv/data", "nspl.zip"), cfg.NSPLFile())
	assert.Equal(t, filepath.Join("/srv/data", "great-britain-latest.osm.pbf"), cfg.OSMFile())
}
