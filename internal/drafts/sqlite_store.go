package drafts

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS drafts (
    user_id TEXT NOT NULL,
    form_type TEXT NOT NULL,
    payload BLOB NOT NULL,
    updated_at_ms INTEGER NOT NULL,
    PRIMARY KEY (user_id, form_type)
);`

// SQLiteStore keeps drafts in a single SQLite table, for single-node setups.
type SQLiteStore struct {
	conn   *sql.DB
	logger zerolog.Logger
}

// OpenSQLiteStore opens (or creates) the database at path and ensures the
// drafts table exists.
func OpenSQLiteStore(path string, logger zerolog.Logger) (*SQLiteStore, error) {
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// database/sql pools connections; sqlite only tolerates one writer.
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec(sqliteSchema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("init drafts table: %w", err)
	}
	logger.Info().Str("path", path).Msg("sqlite draft store initialized")
	return &SQLiteStore{conn: conn, logger: logger}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, key Key) (*Record, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	var (
		raw []byte
		ms  int64
	)
	err := s.conn.QueryRowContext(ctx,
		`SELECT payload, updated_at_ms FROM drafts WHERE user_id = ? AND form_type = ?`,
		key.UserID, key.FormType,
	).Scan(&raw, &ms)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select draft: %w", err)
	}
	var payload Payload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("unmarshal draft: %w", err)
	}
	rec := newRecord(key, payload, time.UnixMilli(ms), 0)
	return &rec, nil
}

func (s *SQLiteStore) Upsert(ctx context.Context, key Key, payload Payload, updatedAt time.Time) error {
	if err := key.Validate(); err != nil {
		return err
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal draft: %w", err)
	}
	s.logger.Debug().Str("user_id", key.UserID).Str("form_type", key.FormType).Msg("sqlite upsert")
	_, err = s.conn.ExecContext(ctx, `
INSERT INTO drafts (user_id, form_type, payload, updated_at_ms) VALUES (?, ?, ?, ?)
ON CONFLICT(user_id, form_type) DO UPDATE SET payload = excluded.payload, updated_at_ms = excluded.updated_at_ms`,
		key.UserID, key.FormType, raw, updatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("upsert draft: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, key Key) error {
	if err := key.Validate(); err != nil {
		return err
	}
	s.logger.Debug().Str("user_id", key.UserID).Str("form_type", key.FormType).Msg("sqlite delete")
	if _, err := s.conn.ExecContext(ctx,
		`DELETE FROM drafts WHERE user_id = ? AND form_type = ?`,
		key.UserID, key.FormType,
	); err != nil {
		return fmt.Errorf("delete draft: %w", err)
	}
	return nil
}

// Close releases the underlying connection.
func (s *SQLiteStore) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
