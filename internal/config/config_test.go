package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/flightdeals/dealsindex/internal/config"
)

// yamlFixture is marshaled directly with gopkg.in/yaml.v3 rather than
// written as a literal string, so the fixture's shape is guaranteed to
// track config.Config's mapstructure tags (which double as yaml keys, the
// same dual-tag convention viper relies on) instead of drifting from them.
type yamlFixture struct {
	ListenAddr    string `yaml:"listen_addr"`
	LowMemPercent int    `yaml:"low_mem_percent"`
	ShmDir        string `yaml:"shm_dir"`
	DealsInfo     struct {
		MaxPages            int   `yaml:"max_pages"`
		ElementsPerPage     int   `yaml:"elements_per_page"`
		RecordExpireSeconds int64 `yaml:"record_expire_seconds"`
	} `yaml:"deals_info"`
}

func writeFixture(t *testing.T, f yamlFixture) string {
	t.Helper()
	out, err := yaml.Marshal(f)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, out, 0o644))
	return path
}

func TestLoadReadsYAMLFixture(t *testing.T) {
	var f yamlFixture
	f.ListenAddr = ":9999"
	f.LowMemPercent = 5
	f.ShmDir = "/tmp/fixture-shm"
	f.DealsInfo.MaxPages = 42
	f.DealsInfo.ElementsPerPage = 7
	f.DealsInfo.RecordExpireSeconds = 120
	path := writeFixture(t, f)

	loader, err := config.Load(path, nil)
	require.NoError(t, err)

	cur := loader.Current()
	require.Equal(t, ":9999", cur.ListenAddr)
	require.Equal(t, 5, cur.LowMemPercent)
	require.Equal(t, "/tmp/fixture-shm", cur.ShmDir)
	require.Equal(t, 42, cur.DealsInfo.MaxPages)
	require.EqualValues(t, 120, cur.DealsInfo.RecordExpireSeconds)
}

func TestLoadFallsBackToDefaultsWhenFileMissing(t *testing.T) {
	loader, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	require.NoError(t, err)
	cur := loader.Current()
	require.Equal(t, ":8080", cur.ListenAddr)
	require.Equal(t, 5000, cur.DealsInfo.MaxPages)
}

func TestWatchReloadsOnWrite(t *testing.T) {
	var f yamlFixture
	f.ListenAddr = ":8080"
	f.LowMemPercent = 10
	f.ShmDir = "/tmp/fixture-shm"
	f.DealsInfo.MaxPages = 10
	path := writeFixture(t, f)

	loader, err := config.Load(path, nil)
	require.NoError(t, err)

	reloaded := make(chan config.Config, 1)
	watcher, err := loader.Watch(func(c config.Config) { reloaded <- c })
	require.NoError(t, err)
	defer watcher.Close()

	f.DealsInfo.MaxPages = 99
	out, err := yaml.Marshal(f)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, out, 0o644))

	select {
	case c := <-reloaded:
		require.Equal(t, 99, c.DealsInfo.MaxPages)
	case <-time.After(2 * time.Second):
		t.Fatal("config change was not observed within 2s")
	}
	require.Equal(t, 99, loader.Current().DealsInfo.MaxPages)
}
