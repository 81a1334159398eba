package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

const createHistoriesTable = `
	CREATE TABLE IF NOT EXISTS chat_histories (
		session_key TEXT PRIMARY KEY,
		history     TEXT NOT NULL,
		updated_at  TIMESTAMP NOT NULL
	)`

// SQLStore is a KVStore over a single chat_histories table. It backs both the
// postgres and sqlite backends; only the placeholder syntax differs.
type SQLStore struct {
	db     *sql.DB
	upsert string
	get    string
}

// NewPostgresStore opens a postgres connection via lib/pq and creates the
// table when missing.
func NewPostgresStore(ctx context.Context, postgresURI string) (*SQLStore, error) {
	connStr := postgresURI
	if !strings.Contains(postgresURI, "sslmode=") {
		if strings.Contains(postgresURI, "?") {
			connStr += "&sslmode=disable"
		} else if strings.Contains(postgresURI, "://") {
			connStr += "?sslmode=disable"
		} else {
			connStr += " sslmode=disable"
		}
	}

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	return newSQLStore(ctx, db,
		`SELECT history FROM chat_histories WHERE session_key = $1`,
		`INSERT INTO chat_histories (session_key, history, updated_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (session_key)
		 DO UPDATE SET history = EXCLUDED.history, updated_at = EXCLUDED.updated_at`,
	)
}

func newSQLStore(ctx context.Context, db *sql.DB, get, upsert string) (*SQLStore, error) {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, createHistoriesTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("create chat_histories: %w", err)
	}

	return &SQLStore{db: db, get: get, upsert: upsert}, nil
}

func (s *SQLStore) Get(ctx context.Context, key string) (string, bool, error) {
	var history string
	err := s.db.QueryRowContext(ctx, s.get, key).Scan(&history)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return history, true, nil
}

func (s *SQLStore) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, s.upsert, key, value, time.Now().UTC())
	return err
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
