package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/noise-cli/internal/config"
	"github.com/sells-group/noise-cli/internal/registry"
)

func testRegistry(t *testing.T) *registry.DeviceRegistry {
	t.Helper()
	reg, err := registry.Default("Asia/Singapore")
	require.NoError(t, err)
	return reg
}

func TestInitStore_SQLite(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "test.db")

	cfg = &config.Config{
		Store: config.StoreConfig{Driver: "sqlite", DatabaseURL: dsn, Table: "meter_readings", View: "wide_view"},
	}

	reg := testRegistry(t)
	st, err := initStore(context.Background(), reg, reg.All()[0].Location)
	require.NoError(t, err)
	require.NotNil(t, st)
	defer st.Close() //nolint:errcheck

	require.NoError(t, st.Migrate(context.Background()))
	assert.NoError(t, st.Ping(context.Background()))
}

func TestInitStore_SQLiteDefaultDSN(t *testing.T) {
	tmpDir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(tmpDir))
	defer os.Chdir(origDir) //nolint:errcheck

	cfg = &config.Config{Store: config.StoreConfig{Driver: "sqlite"}}

	reg := testRegistry(t)
	st, err := initStore(context.Background(), reg, nil)
	require.NoError(t, err)
	require.NotNil(t, st)
	defer st.Close() //nolint:errcheck

	_, statErr := os.Stat(filepath.Join(tmpDir, "noise.db"))
	assert.NoError(t, statErr)
}

func TestInitStore_PostgresBadDSN(t *testing.T) {
	cfg = &config.Config{Store: config.StoreConfig{Driver: "postgres", DatabaseURL: "://not a dsn"}}

	_, err := initStore(context.Background(), testRegistry(t), nil)
	require.Error(t, err)
}

func TestInitStore_UnsupportedDriver(t *testing.T) {
	cfg = &config.Config{Store: config.StoreConfig{Driver: "mysql"}}

	_, err := initStore(context.Background(), testRegistry(t), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store driver: mysql")
}
