package database

import (
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Options struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	LogLevel        gormLogger.LogLevel
}

type Option func(*Options)

func WithDriver(driver string) Option {
	return func(o *Options) { o.Driver = strings.ToLower(strings.TrimSpace(driver)) }
}

func WithDSN(dsn string) Option {
	return func(o *Options) { o.DSN = dsn }
}

func WithPool(maxOpen, maxIdle int, maxLifetime time.Duration) Option {
	return func(o *Options) {
		o.MaxOpenConns, o.MaxIdleConns, o.ConnMaxLifetime = maxOpen, maxIdle, maxLifetime
	}
}

func WithLogLevel(level string) Option {
	return func(o *Options) {
		switch strings.ToLower(level) {
		case "info":
			o.LogLevel = gormLogger.Info
		case "warn":
			o.LogLevel = gormLogger.Warn
		case "error":
			o.LogLevel = gormLogger.Error
		default:
			o.LogLevel = gormLogger.Silent
		}
	}
}

func defaultOptions() Options {
	return Options{
		Driver:   DriverSQLite,
		LogLevel: gormLogger.Silent,
	}
}

var (
	once   sync.Once
	client *gorm.DB
)

// NewDatabaseClient opens the process-wide database handle. The first call
// fixes the configuration.
func NewDatabaseClient(opts ...Option) error {
	var initErr error
	once.Do(func() {
		client, initErr = Open(opts...)
	})
	return initErr
}

// Open returns an independent handle. Tests use it directly.
func Open(opts ...Option) (*gorm.DB, error) {
	conf := defaultOptions()
	for _, fn := range opts {
		fn(&conf)
	}
	if conf.DSN == "" {
		return nil, errors.New("database dsn is empty")
	}

	var dialector gorm.Dialector
	switch conf.Driver {
	case DriverPostgres:
		dialector = postgres.Open(conf.DSN)
	case DriverSQLite:
		dialector = sqlite.Open(conf.DSN)
	default:
		return nil, errors.Errorf("unsupported database driver %q", conf.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError:                           true,
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormLogger.Default.LogMode(conf.LogLevel),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s database", conf.Driver)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get sql handle")
	}
	if conf.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(conf.MaxOpenConns)
	}
	if conf.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(conf.MaxIdleConns)
	}
	if conf.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(conf.ConnMaxLifetime)
	}
	return db, nil
}

func Client() *gorm.DB {
	if client == nil {
		panic("database client not initialized; call NewDatabaseClient first")
	}
	return client
}

// Close releases the process-wide handle.
func Close() error {
	if client == nil {
		return nil
	}
	sqlDB, err := client.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
