package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"memebot/internal/media"
	logx "memebot/pkg/logx"

	"github.com/lib/pq"
)

//go:embed schema_postgres.sql
var postgresSchema string

var postgresDialect = dialect{
	name:              "postgres",
	schema:            postgresSchema,
	rebind:            rebindDollar,
	isUniqueViolation: postgresUniqueViolation,
	claimLock:         `SELECT pg_advisory_xact_lock($1)`,
}

const pqUniqueViolation = pq.ErrorCode("23505")

func openPostgres(ctx context.Context, cfg Config, log logx.Logger) (*Store, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, errors.New("postgres dsn is required")
	}
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %w", media.ErrStoreUnavailable, err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	st := newStore(db, postgresDialect, log)
	if err := st.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Info("postgres store opened",
		logx.Int("max_open_conns", cfg.MaxOpenConns),
		logx.Int("max_idle_conns", cfg.MaxIdleConns),
		logx.Duration("conn_max_lifetime", cfg.ConnMaxLifetime),
	)
	return st, nil
}

// newPostgresStore wraps an already opened handle. Tests use it with sqlmock.
func newPostgresStore(db *sql.DB, log logx.Logger) *Store {
	return newStore(db, postgresDialect, log)
}

func postgresUniqueViolation(err error) bool {
	var pe *pq.Error
	return errors.As(err, &pe) && pe.Code == pqUniqueViolation
}
