package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points HOME and the config search path at an empty directory.
func isolate(t *testing.T) (dir string, opts Options) {
	t.Helper()
	dir = t.TempDir()
	homedir.DisableCache = true
	t.Setenv("HOME", dir)
	t.Setenv("BELLS_CONFIG_PATH", dir)
	return dir, Options{DotEnv: filepath.Join(dir, ".env")}
}

func TestLoad_Defaults(t *testing.T) {
	dir, opts := isolate(t)
	cfg, err := Load(opts)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, ".alraed-bells"), cfg.DataDir)
	assert.Equal(t, filepath.Join(dir, ".alraed-bells", "state.json"), cfg.StateFile)
	assert.Equal(t, filepath.Join(dir, ".alraed-bells", "cache"), cfg.CacheDir())
	assert.Equal(t, BackendPreferences, cfg.StateBackend)
	assert.Equal(t, 2*time.Second, cfg.RemoteDebounce)
	assert.Equal(t, "127.0.0.1:8737", cfg.APIListen)
	assert.False(t, cfg.Headless)
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir, opts := isolate(t)
	yaml := []byte("state:\n  backend: file\nremote:\n  url: https://bells.example.edu/api/\n  debounce: 5s\nheadless: true\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigName+".yaml"), yaml, 0o644))
	t.Setenv("BELLS_REMOTE_DEBOUNCE", "3s")
	t.Setenv("BELLS_DATA_DIR", "~/bells")

	cfg, err := Load(opts)
	require.NoError(t, err)
	assert.Equal(t, BackendFile, cfg.StateBackend)
	assert.Equal(t, "https://bells.example.edu/api", cfg.RemoteURL)
	assert.Equal(t, 3*time.Second, cfg.RemoteDebounce)
	assert.Equal(t, filepath.Join(dir, "bells"), cfg.DataDir)
	assert.True(t, cfg.Headless)
}

func TestLoad_DotEnv(t *testing.T) {
	_, opts := isolate(t)
	t.Setenv("BELLS_REMOTE_TOKEN", "")
	require.NoError(t, os.Unsetenv("BELLS_REMOTE_TOKEN"))
	require.NoError(t, os.WriteFile(opts.DotEnv, []byte("BELLS_REMOTE_TOKEN=s3cret\n"), 0o600))

	cfg, err := Load(opts)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.RemoteToken)
}

func TestLoad_FlagsWin(t *testing.T) {
	_, opts := isolate(t)
	t.Setenv("BELLS_API_LISTEN", ":9000")

	fs := pflag.NewFlagSet("run", pflag.ContinueOnError)
	fs.String("listen", "", "")
	fs.Bool("headless", false, "")
	require.NoError(t, fs.Parse([]string{"--listen", ":9100", "--headless"}))
	opts.Flags = fs

	cfg, err := Load(opts)
	require.NoError(t, err)
	assert.Equal(t, ":9100", cfg.APIListen)
	assert.True(t, cfg.Headless)
}

func TestLoad_Invalid(t *testing.T) {
	_, opts := isolate(t)
	t.Setenv("BELLS_STATE_BACKEND", "registry")
	_, err := Load(opts)
	assert.Error(t, err)

	_, opts = isolate(t)
	t.Setenv("BELLS_STATE_BACKEND", "")
	t.Setenv("BELLS_REMOTE_URL", "not a url")
	_, err = Load(opts)
	assert.Error(t, err)
}

func TestLoad_ExplicitFileMustExist(t *testing.T) {
	dir, opts := isolate(t)
	opts.ConfigFile = filepath.Join(dir, "missing.yaml")
	_, err := Load(opts)
	assert.Error(t, err)
}
