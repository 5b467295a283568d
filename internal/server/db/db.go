package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/looplj/lifeline/internal/log"
	"github.com/looplj/lifeline/internal/pkg/db"
)

type Config struct {
	Dialect string `conf:"dialect" yaml:"dialect" json:"dialect"`
	DSN     string `conf:"dsn" yaml:"dsn" json:"dsn"`
	Debug   bool   `conf:"debug" yaml:"debug" json:"debug"`
}

// Open connects to the configured database and verifies it answers.
func Open(ctx context.Context, cfg Config) (*sql.DB, db.Dialect, error) {
	dialect, err := db.ParseDialect(cfg.Dialect)
	if err != nil {
		return nil, "", err
	}

	dsn := cfg.DSN
	if dialect == db.DialectSQLite && dsn == "" {
		dsn = "file:lifeline.db?_pragma=busy_timeout(5000)"
	}

	sqlDB, err := sql.Open(dialect.DriverName(), dsn)
	if err != nil {
		return nil, "", fmt.Errorf("open %s: %w", dialect, err)
	}

	// An in-memory sqlite database only exists on the connection that created it.
	if dialect == db.DialectSQLite && strings.Contains(dsn, ":memory:") {
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetConnMaxLifetime(0)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, "", fmt.Errorf("ping %s: %w", dialect, err)
	}

	if cfg.Debug {
		log.Info(ctx, "database opened", log.String("dialect", string(dialect)))
	}

	return sqlDB, dialect, nil
}
