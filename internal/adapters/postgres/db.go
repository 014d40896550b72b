package postgres

import (
	"context"
	"embed"
	"fmt"
	"sort"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

type ConnectOptions struct {
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	LogQueries      bool
}

func Connect(ctx context.Context, dsn string, opts ConnectOptions) (*gorm.DB, error) {
	level := logger.Silent
	if opts.LogQueries {
		level = logger.Info
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		PrepareStmt:    true,
		TranslateError: true,
		Logger:         logger.Default.LogMode(level),
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("gorm sql db: %w", err)
	}
	if opts.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
		sqlDB.SetMaxIdleConns(opts.MaxOpenConns / 2)
	}
	lifetime := opts.ConnMaxLifetime
	if lifetime <= 0 {
		lifetime = time.Hour
	}
	sqlDB.SetConnMaxIdleTime(15 * time.Minute)
	sqlDB.SetConnMaxLifetime(lifetime)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// RunMigrations applies embedded migrations in name order. Applied names are
// recorded in schema_migrations so each file runs once.
func RunMigrations(ctx context.Context, db *gorm.DB) ([]string, error) {
	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	conn := db.WithContext(ctx)
	if err := conn.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		name TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`).Error; err != nil {
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}
	var done []string
	if err := conn.Table("schema_migrations").Pluck("name", &done).Error; err != nil {
		return nil, fmt.Errorf("list applied migrations: %w", err)
	}
	seen := make(map[string]struct{}, len(done))
	for _, name := range done {
		seen[name] = struct{}{}
	}

	var applied []string
	for _, name := range names {
		if _, ok := seen[name]; ok {
			continue
		}
		raw, readErr := migrationFS.ReadFile("migrations/" + name)
		if readErr != nil {
			return applied, fmt.Errorf("read migration %s: %w", name, readErr)
		}
		execErr := conn.Transaction(func(tx *gorm.DB) error {
			if err := tx.Exec(string(raw)).Error; err != nil {
				return err
			}
			return tx.Exec("INSERT INTO schema_migrations (name) VALUES (?)", name).Error
		})
		if execErr != nil {
			return applied, fmt.Errorf("exec migration %s: %w", name, execErr)
		}
		applied = append(applied, name)
	}
	return applied, nil
}
