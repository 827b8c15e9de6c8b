package datastore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/automatable/automatable-website/internal/log"
	"github.com/automatable/automatable-website/internal/xerrors"
)

// DefaultURL is used when no database URL is configured.
const DefaultURL = "sqlite://db.sqlite3"

type Driver string

const (
	DriverPostgres Driver = "postgres"
	DriverSQLite   Driver = "sqlite"
)

// ErrClosed is returned by Ping after Close.
var ErrClosed = errors.New("datastore closed")

type Options struct {
	URL string

	// ConnectTimeout bounds the whole connect-with-retry loop.
	ConnectTimeout time.Duration
	RetryInterval  time.Duration

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	Logger log.Logger
}

func (o *Options) applyDefaults() {
	if o.URL == "" {
		o.URL = DefaultURL
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 60 * time.Second
	}
	if o.RetryInterval <= 0 {
		o.RetryInterval = 3 * time.Second
	}
	if o.MaxOpenConns <= 0 {
		o.MaxOpenConns = 10
	}
	if o.MaxIdleConns <= 0 {
		o.MaxIdleConns = 2
	}
	if o.ConnMaxLifetime <= 0 {
		o.ConnMaxLifetime = 30 * time.Minute
	}
	if o.ConnMaxIdleTime <= 0 {
		o.ConnMaxIdleTime = 5 * time.Minute
	}
	if o.Logger == nil {
		o.Logger = log.Nop()
	}
}

// Store wraps a gorm handle.
type Store struct {
	db     *gorm.DB
	sqlDB  *sql.DB
	driver Driver
	desc   string
}

// Opener opens a gorm handle for a DSN. Tests swap it for a fake.
type Opener func(dsn string) (*gorm.DB, error)

// Open resolves the driver from opts.URL, connects with retry and tunes the
// connection pool.
func Open(ctx context.Context, opts Options) (*Store, error) {
	opts.applyDefaults()

	driver, dsn, err := ParseURL(opts.URL)
	if err != nil {
		return nil, err
	}
	desc := Describe(opts.URL)

	gcfg := &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)}
	var opener Opener
	switch driver {
	case DriverPostgres:
		opener = func(dsn string) (*gorm.DB, error) { return gorm.Open(postgres.Open(dsn), gcfg) }
	case DriverSQLite:
		opener = func(dsn string) (*gorm.DB, error) { return gorm.Open(sqlite.Open(dsn), gcfg) }
	}

	db, err := ConnectWithRetry(ctx, dsn, opts.ConnectTimeout, opts.RetryInterval, opener, func(attempt int, err error) {
		opts.Logger.Warn(ctx, "database connect failed, retrying",
			"attempt", attempt,
			"database", desc,
			"err", err.Error(),
		)
	})
	if err != nil {
		return nil, xerrors.Wrapf(err, "connect %s", desc)
	}

	s, err := newStore(db, driver, desc)
	if err != nil {
		return nil, err
	}
	s.sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	s.sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	s.sqlDB.SetConnMaxLifetime(opts.ConnMaxLifetime)
	s.sqlDB.SetConnMaxIdleTime(opts.ConnMaxIdleTime)

	opts.Logger.Info(ctx, "database opened", "driver", string(driver), "database", desc)
	return s, nil
}

// FromGorm wraps an already open handle, e.g. an in-memory sqlite in tests.
func FromGorm(db *gorm.DB) (*Store, error) {
	return newStore(db, Driver(db.Dialector.Name()), db.Dialector.Name())
}

func newStore(db *gorm.DB, driver Driver, desc string) (*Store, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, xerrors.Wrap(err, "unwrap sql.DB")
	}
	return &Store{db: db, sqlDB: sqlDB, driver: driver, desc: desc}, nil
}

// ConnectWithRetry calls open until it succeeds, ctx is done or timeout
// elapses. onRetry, if set, sees each failure before the next attempt.
func ConnectWithRetry(ctx context.Context, dsn string, timeout, interval time.Duration, open Opener, onRetry func(attempt int, err error)) (*gorm.DB, error) {
	deadline := time.Now().Add(timeout)
	for attempt := 1; ; attempt++ {
		db, err := open(dsn)
		if err == nil {
			return db, nil
		}
		if !time.Now().Add(interval).Before(deadline) {
			return nil, fmt.Errorf("gave up after %d attempts in %s: %w", attempt, timeout, err)
		}
		if onRetry != nil {
			onRetry(attempt, err)
		}

		t := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, errors.Join(ctx.Err(), err)
		case <-t.C:
		}
	}
}

// Driver reports which backend the store talks to.
func (s *Store) Driver() Driver { return s.driver }

// DB exposes the gorm handle.
func (s *Store) DB() *gorm.DB { return s.db }

// String is the password-free description used in logs.
func (s *Store) String() string { return s.desc }

// Ping runs SELECT 1. The driver error is returned unwrapped so health
// output carries it verbatim.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	var one int
	return s.db.WithContext(ctx).Raw("SELECT 1").Scan(&one).Error
}

// Stats exposes pool statistics.
func (s *Store) Stats() sql.DBStats { return s.sqlDB.Stats() }

// SQLDB exposes the pool for collectors that read sql.DBStats.
func (s *Store) SQLDB() *sql.DB { return s.sqlDB }

func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// ParseURL maps a database URL to a driver and the DSN that driver expects.
// postgres:// and postgresql:// go to postgres unchanged. sqlite://path,
// sqlite::memory: and bare file paths go to sqlite.
func ParseURL(raw string) (Driver, string, error) {
	raw = strings.TrimSpace(raw)
	switch {
	case raw == "":
		return "", "", xerrors.New("empty database url")
	case strings.HasPrefix(raw, "postgres://"), strings.HasPrefix(raw, "postgresql://"):
		return DriverPostgres, raw, nil
	case raw == "sqlite::memory:", raw == "sqlite://:memory:":
		return DriverSQLite, ":memory:", nil
	case strings.HasPrefix(raw, "sqlite://"):
		p := strings.TrimPrefix(raw, "sqlite://")
		if p == "" {
			return "", "", xerrors.Newf("sqlite url %q has no path", raw)
		}
		return DriverSQLite, p, nil
	case strings.Contains(raw, "://"):
		scheme, _, _ := strings.Cut(raw, "://")
		return "", "", xerrors.Newf("unsupported database scheme %q", scheme)
	default:
		return DriverSQLite, raw, nil
	}
}

// Describe renders a database URL without credentials. Unparseable postgres
// URLs collapse to "postgres" so a malformed secret never reaches logs.
func Describe(raw string) string {
	driver, dsn, err := ParseURL(raw)
	if err != nil {
		return "invalid"
	}
	if driver == DriverSQLite {
		return "sqlite:" + dsn
	}

	pc, err := pgconn.ParseConfig(dsn)
	if err != nil {
		return "postgres"
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", pc.Host, pc.Port),
		Path:   "/" + pc.Database,
	}
	// pgconn falls back to the OS user; only show one the URL names
	if parsed, err := url.Parse(dsn); err == nil && parsed.User != nil && pc.User != "" {
		u.User = url.User(pc.User)
	}
	return u.String()
}
