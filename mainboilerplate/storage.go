package mainboilerplate

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/go-sql-driver/mysql" // Register "mysql" driver.
	_ "github.com/lib/pq"              // Register "postgres" driver.
	_ "github.com/mattn/go-sqlite3"    // Register "sqlite3" driver.
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"go.registries.dev/core/outbox"
	"go.registries.dev/core/storage"
	"go.registries.dev/core/storage/cache"
	"go.registries.dev/core/storage/sqlstore"
)

// StorageConfig configures the database of the storage core.
type StorageConfig struct {
	Dialect          string        `long:"dialect" env:"DIALECT" default:"sqlite" choice:"mysql" choice:"postgres" choice:"sqlite" description:"SQL dialect of the database"`
	DSN              string        `long:"dsn" env:"DSN" default:"registry.db" description:"Data source name (connection string) of the database"`
	MaxOpenConns     int           `long:"max-open-conns" env:"MAX_OPEN_CONNS" default:"16" description:"Maximum number of open database connections"`
	MaxIdleConns     int           `long:"max-idle-conns" env:"MAX_IDLE_CONNS" default:"4" description:"Maximum number of idle database connections"`
	ConnMaxLifetime  time.Duration `long:"conn-max-lifetime" env:"CONN_MAX_LIFETIME" default:"30m" description:"Maximum lifetime of a database connection"`
	LockPollInterval time.Duration `long:"lock-poll-interval" env:"LOCK_POLL_INTERVAL" default:"500ms" description:"Interval between attempts to obtain a row lock"`
	Bootstrap        bool          `long:"bootstrap" env:"BOOTSTRAP" description:"Create catalog tables which don't exist"`
}

// Validate returns an InvalidArgument error if the StorageConfig is malformed.
func (cfg StorageConfig) Validate() error {
	if _, err := sqlstore.DialectFor(cfg.Dialect); err != nil {
		return err
	} else if cfg.DSN == "" {
		return storage.NewInvalidArgumentError("dsn", "expected a data source name")
	} else if cfg.LockPollInterval <= 0 {
		return storage.NewInvalidArgumentError("lockPollInterval", "expected > 0, not %s", cfg.LockPollInterval)
	} else if cfg.MaxOpenConns < 0 || cfg.MaxIdleConns < 0 {
		return storage.NewInvalidArgumentError("maxConns", "expected >= 0")
	}
	return nil
}

// Open the configured database, returning it with its QueryDialect.
func (cfg StorageConfig) Open(ctx context.Context) (*sql.DB, sqlstore.QueryDialect, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	var dialect, _ = sqlstore.DialectFor(cfg.Dialect)

	var db, err = sql.Open(dialect.DriverName(), cfg.DSN)
	if err != nil {
		return nil, nil, errors.WithMessagef(err, "opening %s database", cfg.Dialect)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, errors.WithMessagef(err, "connecting to %s database", cfg.Dialect)
	}
	log.WithField("dialect", dialect.Name()).Info("opened database")
	return db, dialect, nil
}

// MustOpen opens the configured database, or panics.
func (cfg StorageConfig) MustOpen(ctx context.Context) (*sql.DB, sqlstore.QueryDialect) {
	var db, dialect, err = cfg.Open(ctx)
	Must(err, "failed to open database", "dialect", cfg.Dialect)
	return db, dialect
}

// CacheConfig configures the Storable cache.
type CacheConfig struct {
	MaxSize           int           `long:"max-size" env:"MAX_SIZE" default:"1000" description:"Maximum number of cached entries"`
	ExpireAfterAccess time.Duration `long:"expire-after-access" env:"EXPIRE_AFTER_ACCESS" default:"5m" description:"Duration after which an unread entry is evicted. Zero disables expiry"`
}

// ExpiryPolicy of the CacheConfig.
func (cfg CacheConfig) ExpiryPolicy() cache.ExpiryPolicy {
	return cache.ExpiryPolicy{MaxSize: cfg.MaxSize, ExpireAfterAccess: cfg.ExpireAfterAccess}
}

// OutboxConfig configures the outbox event processor.
type OutboxConfig struct {
	Enabled    bool          `long:"enabled" env:"ENABLED" description:"Run the outbox event processor"`
	WarmUp     time.Duration `long:"warm-up" env:"WARM_UP" default:"5s" description:"Delay before the first processing cycle"`
	Interval   time.Duration `long:"interval" env:"INTERVAL" default:"15s" description:"Wait between processing cycles"`
	LinkTopics bool          `long:"link-topics" env:"LINK_TOPICS" description:"Link created schema entities with topics of the same name"`
}

// Config returns the outbox.Config of the OutboxConfig.
func (cfg OutboxConfig) Config() outbox.Config {
	return outbox.Config{WarmUp: cfg.WarmUp, Interval: cfg.Interval, LinkTopics: cfg.LinkTopics}
}
