package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jessevdk/go-flags"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"go.registries.dev/core/catalog"
	mbp "go.registries.dev/core/mainboilerplate"
	"go.registries.dev/core/metrics"
	"go.registries.dev/core/outbox"
	"go.registries.dev/core/storage"
	"go.registries.dev/core/storage/cache"
	"go.registries.dev/core/storage/cachedstore"
	"go.registries.dev/core/storage/sqlstore"
	"go.registries.dev/core/task"
)

const iniFilename = "catalogd.ini"

// Config is the top-level configuration object of catalogd.
var Config = new(struct {
	Storage     mbp.StorageConfig     `group:"Storage" namespace:"storage" env-namespace:"STORAGE"`
	Cache       mbp.CacheConfig       `group:"Cache" namespace:"cache" env-namespace:"CACHE"`
	Outbox      mbp.OutboxConfig      `group:"Outbox" namespace:"outbox" env-namespace:"OUTBOX"`
	Log         mbp.LogConfig         `group:"Logging" namespace:"log" env-namespace:"LOG"`
	Diagnostics mbp.DiagnosticsConfig `group:"Debug" namespace:"debug" env-namespace:"DEBUG"`
})

type serveCatalog struct{}

func (serveCatalog) Execute(args []string) error {
	defer mbp.InitDiagnosticsAndRecover(Config.Diagnostics)()
	mbp.SetReady(false)
	mbp.InitLog(Config.Log)

	log.WithFields(log.Fields{
		"config":    Config,
		"version":   mbp.Version,
		"buildDate": mbp.BuildDate,
	}).Info("starting catalogd")
	prometheus.MustRegister(metrics.RegistryCollectors()...)

	// Validate all configuration before any I/O.
	var policy = Config.Cache.ExpiryPolicy()
	mbp.Must(policy.Validate(), "invalid cache configuration")
	mbp.Must(Config.Storage.Validate(), "invalid storage configuration")
	if Config.Outbox.Enabled {
		mbp.Must(Config.Outbox.Config().Validate(), "invalid outbox configuration")
	}

	var tasks = task.NewGroup(context.Background())
	var db, dialect = Config.Storage.MustOpen(tasks.Context())
	defer db.Close()

	if Config.Storage.Bootstrap {
		for _, ddl := range catalog.DDL(dialect) {
			var _, err = db.ExecContext(tasks.Context(), ddl)
			mbp.Must(err, "failed to bootstrap catalog table", "ddl", ddl)
		}
	}

	var registry = catalog.NewRegistry()
	var dbManager = sqlstore.NewManager(sqlstore.NewExecutor(db, dialect, registry))
	dbManager.LockPollInterval = Config.Storage.LockPollInterval

	var lru, err = cache.NewLRU(policy)
	mbp.Must(err, "building cache")
	var manager = cachedstore.NewManager(lru, dbManager)

	http.Handle("/catalog/", &catalogHandler{manager: manager, registry: registry})

	if Config.Outbox.Enabled {
		if _, ok := dialect.(sqlstore.SQLite); ok {
			mbp.Must(storage.ErrUnsupported, "the outbox processor requires row locks, which sqlite doesn't provide")
		}
		processor, err := outbox.NewProcessor(Config.Outbox.Config(), dbManager, outbox.LogSink{})
		mbp.Must(err, "building outbox processor")

		tasks.Queue("outbox.Serve", processor.Serve)
	}

	if srv := Config.Diagnostics.DiagnosticsServer(); srv != nil {
		tasks.Queue("diagnostics.ListenAndServe", func(ctx context.Context) error {
			go func() {
				<-ctx.Done()
				_ = srv.Close()
			}()
			if err := srv.ListenAndServe(); err != http.ErrServerClosed {
				return err
			}
			return nil
		})
	}

	var signalCh = make(chan os.Signal, 1)
	tasks.Queue("watch signals", func(ctx context.Context) error {
		select {
		case sig := <-signalCh:
			log.WithField("signal", sig).Info("caught signal")
			mbp.SetReady(false)
			tasks.Cancel()
		case <-ctx.Done():
		}
		return nil
	})

	// Install signal handler & start tasks.
	signal.Notify(signalCh, syscall.SIGTERM, syscall.SIGINT)
	tasks.GoRun()
	mbp.SetReady(true)

	// Block until all tasks complete. Assert none returned an error.
	mbp.Must(tasks.Wait(), "catalogd task failed")
	mbp.Must(manager.Cleanup(context.Background()), "cleaning up storage")

	log.WithField("cache", lru.Stats()).Info("goodbye")
	return nil
}

func main() {
	var parser = flags.NewParser(Config, flags.Default)

	_, _ = parser.AddCommand("serve", "Serve the schema catalog", `
Serve the schema catalog with the provided configuration, until signaled to
exit (via SIGTERM or SIGINT). When the outbox is enabled, pending catalog
events are replayed into the external metadata sink. Metrics and debug
handlers are served on the diagnostics port, as is a read-only view of
catalog namespaces under /catalog/.
`, &serveCatalog{})

	mbp.AddPrintConfigCmd(parser, iniFilename)
	mbp.MustParseConfig(parser, iniFilename)
}
