package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_FileOverridesSelectedFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dtfd.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"port": 9999, "autoflush": true}`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Port)
	assert.True(t, cfg.Autoflush)
	assert.Equal(t, Default().FlushInterval, cfg.FlushInterval, "fields absent from the file keep their default")
}

func TestSave_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dtfd.json")

	cfg := Default()
	cfg.Port = 1234
	require.NoError(t, cfg.Save(path))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}
