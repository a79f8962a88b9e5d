package mainboilerplate

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.registries.dev/core/storage"
	"go.registries.dev/core/storage/cache"
	"go.registries.dev/core/storage/sqlstore"
)

func TestStorageConfigValidation(t *testing.T) {
	var valid = StorageConfig{Dialect: "postgres", DSN: "postgres://localhost/registry", LockPollInterval: time.Second}
	assert.NoError(t, valid.Validate())

	var cases = []func(*StorageConfig){
		func(c *StorageConfig) { c.Dialect = "oracle" },
		func(c *StorageConfig) { c.DSN = "" },
		func(c *StorageConfig) { c.LockPollInterval = 0 },
		func(c *StorageConfig) { c.MaxIdleConns = -1 },
	}
	for _, fn := range cases {
		var cfg = valid
		fn(&cfg)
		assert.True(t, storage.IsInvalidArgument(cfg.Validate()), "%#v", cfg)
	}
}

func TestStorageConfigOpensSQLite(t *testing.T) {
	var cfg = StorageConfig{
		Dialect:          "sqlite",
		DSN:              filepath.Join(t.TempDir(), "registry.db"),
		MaxOpenConns:     2,
		LockPollInterval: time.Millisecond,
	}
	var db, dialect, err = cfg.Open(context.Background())
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, sqlstore.SQLite{}, dialect)
	assert.NoError(t, db.Ping())

	cfg.Dialect = "nope"
	_, _, err = cfg.Open(context.Background())
	assert.True(t, storage.IsInvalidArgument(err))
}

func TestCacheAndOutboxConfigs(t *testing.T) {
	var c = CacheConfig{MaxSize: 10, ExpireAfterAccess: time.Minute}
	assert.Equal(t, cache.ExpiryPolicy{MaxSize: 10, ExpireAfterAccess: time.Minute}, c.ExpiryPolicy())
	assert.NoError(t, c.ExpiryPolicy().Validate())

	var o = OutboxConfig{Enabled: true, WarmUp: time.Second, Interval: 2 * time.Second, LinkTopics: true}
	var cfg = o.Config()
	assert.Equal(t, time.Second, cfg.WarmUp)
	assert.Equal(t, 2*time.Second, cfg.Interval)
	assert.True(t, cfg.LinkTopics)
	assert.NoError(t, cfg.Validate())
}

type nopCmd struct{}

func (nopCmd) Execute([]string) error { return nil }

func TestCommandRegistryBuildsTree(t *testing.T) {
	var parser = flags.NewParser(nil, flags.None)
	var registry = NewCommandRegistry()

	registry.AddCommand("", "events", "Events", "", &nopCmd{})
	registry.AddCommand("events", "list", "List events", "", &nopCmd{})
	registry.AddCommand("events.list", "failed", "List failed events", "", &nopCmd{})
	registry.AddCommand("", "get", "Get", "", &nopCmd{})

	require.NoError(t, registry.AddCommands("", parser.Command, true))

	var events = parser.Find("events")
	require.NotNil(t, events)
	require.NotNil(t, parser.Find("get"))
	var list = events.Find("list")
	require.NotNil(t, list)
	assert.NotNil(t, list.Find("failed"))

	// Without recursion, only root commands are added.
	parser = flags.NewParser(nil, flags.None)
	require.NoError(t, registry.AddCommands("", parser.Command, false))
	assert.Nil(t, parser.Find("events").Find("list"))
}

func TestConfigSearchPaths(t *testing.T) {
	t.Setenv("HOME", "/home/alice")
	t.Setenv("UserProfile", "")
	t.Setenv(ConfigRootEnv, "/etc/registries")

	assert.Equal(t, []string{
		"catalogd.ini",
		"/home/alice/.config/registries/catalogd.ini",
		"/etc/registries/catalogd.ini",
	}, configSearchPaths("catalogd.ini"))
}

func TestDiagnosticsReadiness(t *testing.T) {
	InitDiagnosticsAndRecover(DiagnosticsConfig{})

	var probe = func() int {
		var w = httptest.NewRecorder()
		http.DefaultServeMux.ServeHTTP(w, httptest.NewRequest("GET", "/debug/ready", nil))
		return w.Code
	}
	assert.Equal(t, http.StatusOK, probe())
	SetReady(false)
	assert.Equal(t, http.StatusServiceUnavailable, probe())
	SetReady(true)
	assert.Equal(t, http.StatusOK, probe())

	assert.Nil(t, DiagnosticsConfig{}.DiagnosticsServer())
	assert.Equal(t, ":8080", DiagnosticsConfig{Port: "8080"}.DiagnosticsServer().Addr)
}

func TestMustPanicsOnError(t *testing.T) {
	assert.NotPanics(t, func() { Must(nil, "ok") })
	assert.Panics(t, func() { Must(storage.ErrUnsupported, "failed", "key", "value") })
}
