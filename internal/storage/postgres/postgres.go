// Package postgres opens the lib/pq-backed storage used when DB_DRIVER is
// set to postgres. The schema in sql/schema_postgres.sql applies through
// Migrate; the query layer is written against the sqlite dialect, so this
// backend currently covers storage and migration parity only.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

type Postgres struct {
	Db *sql.DB
}

func New(dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return &Postgres{Db: db}, nil
}

func (s *Postgres) Ping(ctx context.Context) error {
	return s.Db.PingContext(ctx)
}
