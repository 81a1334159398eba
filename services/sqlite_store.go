package services

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// NewSQLiteStore opens (or creates) the sqlite database at path.
func NewSQLiteStore(ctx context.Context, path string) (*SQLStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// sqlite serializes writers anyway; one connection also keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)

	return newSQLStore(ctx, db,
		`SELECT history FROM chat_histories WHERE session_key = ?`,
		`INSERT INTO chat_histories (session_key, history, updated_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT (session_key)
		 DO UPDATE SET history = excluded.history, updated_at = excluded.updated_at`,
	)
}
