package database

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"arxiv_rag_go_backend/cmd/api/config"
	"arxiv_rag_go_backend/internal/models"

	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var ErrNotStarted = errors.New("database is not started")

// Database owns the connection pool and hands out transactional sessions.
type Database struct {
	cfg       config.PostgresConfig
	dialector gorm.Dialector
	logger    zerolog.Logger
	models    []interface{}

	mu   sync.RWMutex
	db   *gorm.DB
	done bool
}

// NewPostgresDatabase returns a Database for the configured PostgreSQL URL.
// Nothing is opened until Startup.
func NewPostgresDatabase(cfg config.PostgresConfig, logger zerolog.Logger) *Database {
	return New(postgres.Open(cfg.DatabaseURL), cfg, logger)
}

// New returns a Database backed by an arbitrary gorm dialector.
func New(dialector gorm.Dialector, cfg config.PostgresConfig, logger zerolog.Logger) *Database {
	return &Database{
		cfg:       cfg,
		dialector: dialector,
		logger:    logger,
		models:    []interface{}{&models.Paper{}},
	}
}

// Startup opens the pool, checks connectivity with a trivial query and creates
// any missing tables.
func (d *Database) Startup(ctx context.Context) error {
	d.logger.Info().Str("host", d.cfg.PostgresHost()).Msg("Attempting to connect to PostgreSQL")

	db, err := gorm.Open(d.dialector, &gorm.Config{Logger: d.gormLogger()})
	if err != nil {
		d.logger.Error().Err(err).Msg("Failed to connect to PostgreSQL database")
		return fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(d.cfg.PoolSize)
	sqlDB.SetMaxOpenConns(d.cfg.PoolSize + d.cfg.MaxOverflow)
	sqlDB.SetConnMaxIdleTime(30 * time.Minute)

	if err := db.WithContext(ctx).Exec("SELECT 1").Error; err != nil {
		sqlDB.Close()
		d.logger.Error().Err(err).Msg("Failed to connect to PostgreSQL database")
		return fmt.Errorf("connection test: %w", err)
	}
	d.logger.Info().Msg("Database connection test successful")

	existing, err := db.WithContext(ctx).Migrator().GetTables()
	if err != nil {
		sqlDB.Close()
		return fmt.Errorf("list tables: %w", err)
	}
	if err := db.WithContext(ctx).AutoMigrate(d.models...); err != nil {
		sqlDB.Close()
		return fmt.Errorf("auto migrate: %w", err)
	}
	updated, err := db.WithContext(ctx).Migrator().GetTables()
	if err != nil {
		sqlDB.Close()
		return fmt.Errorf("list tables: %w", err)
	}

	if created := newTables(existing, updated); len(created) > 0 {
		d.logger.Info().Strs("tables", created).Msg("Created new tables")
	} else {
		d.logger.Info().Msg("All tables already exist. No new tables were created")
	}
	d.logger.Info().Str("tables", strings.Join(updated, ", ")).Msg("PostgreSQL database initialized successfully")

	d.mu.Lock()
	d.db = db
	d.done = false
	d.mu.Unlock()
	return nil
}

// Shutdown releases every pooled connection. Calling it more than once is a no-op.
func (d *Database) Shutdown() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.db == nil || d.done {
		return nil
	}
	d.done = true

	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.Close(); err != nil {
		return err
	}
	d.logger.Info().Msg("PostgreSQL database connection closed")
	return nil
}

// DB returns the pooled handle for non-transactional use.
func (d *Database) DB() (*gorm.DB, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.db == nil || d.done {
		return nil, ErrNotStarted
	}
	return d.db, nil
}

// Ping checks that the pool can still reach the server.
func (d *Database) Ping(ctx context.Context) error {
	db, err := d.DB()
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// WithSession runs fn inside a transaction. The transaction is committed when
// fn returns nil and rolled back when it returns an error or panics; the
// session is released on every path.
func (d *Database) WithSession(ctx context.Context, fn func(tx *gorm.DB) error) (err error) {
	db, err := d.DB()
	if err != nil {
		return err
	}

	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return fmt.Errorf("begin session: %w", tx.Error)
	}

	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			d.logger.Error().Interface("panic", r).Msg("Session rollback due to panic")
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback().Error; rbErr != nil {
			d.logger.Error().Err(rbErr).Msg("Session rollback failed")
		}
		d.logger.Error().Err(err).Msg("Session rollback due to error")
		return err
	}

	if err := tx.Commit().Error; err != nil {
		return fmt.Errorf("commit session: %w", err)
	}
	return nil
}

func (d *Database) gormLogger() gormlogger.Interface {
	level := gormlogger.Silent
	if d.cfg.EchoSQL {
		level = gormlogger.Info
	}
	return gormlogger.New(zerologWriter{d.logger}, gormlogger.Config{
		SlowThreshold:             time.Second,
		LogLevel:                  level,
		IgnoreRecordNotFoundError: true,
	})
}

// zerologWriter adapts zerolog to the gorm logger writer interface.
type zerologWriter struct {
	logger zerolog.Logger
}

func (w zerologWriter) Printf(format string, args ...interface{}) {
	w.logger.Debug().Msgf(format, args...)
}

func newTables(before, after []string) []string {
	seen := make(map[string]bool, len(before))
	for _, t := range before {
		seen[t] = true
	}
	var created []string
	for _, t := range after {
		if !seen[t] {
			created = append(created, t)
		}
	}
	sort.Strings(created)
	return created
}
