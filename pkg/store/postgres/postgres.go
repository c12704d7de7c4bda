// Package postgres persists per-user state in Postgres. Each user owns a
// small set of keyed JSON documents (session list, settings), matching the
// document shape the client keeps locally when running unauthenticated.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/alpha-ultimate/yusra/pkg/chat"
	"github.com/alpha-ultimate/yusra/pkg/settings"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Storage keys under which documents live. They carry the client's
// localStorage names so a future import path can move documents verbatim.
const (
	keySessions = "yusra_chat_sessions"
	keySettings = "yusra_app_settings"
)

// NewPool opens and pings a pgx connection pool.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	config.MaxConns = 20
	config.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// Migrate applies the embedded schema migrations.
func Migrate(ctx context.Context, databaseURL string) error {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}
	defer db.Close()

	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set migration dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// Store implements chat.Store and settings.Store over a user_state table.
type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) LoadSessions(ctx context.Context, userID string) ([]*chat.ChatSession, error) {
	var out []*chat.ChatSession
	ok, err := s.loadDoc(ctx, userID, keySessions, &out)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return out, nil
}

func (s *Store) SaveSessions(ctx context.Context, userID string, sessions []*chat.ChatSession) error {
	return s.saveDoc(ctx, userID, keySessions, sessions)
}

func (s *Store) LoadSettings(ctx context.Context, userID string) (settings.Settings, error) {
	out := settings.Defaults()
	if _, err := s.loadDoc(ctx, userID, keySettings, &out); err != nil {
		return settings.Defaults(), err
	}
	return out, nil
}

func (s *Store) SaveSettings(ctx context.Context, userID string, prefs settings.Settings) error {
	return s.saveDoc(ctx, userID, keySettings, prefs)
}

func (s *Store) loadDoc(ctx context.Context, userID, key string, dst any) (bool, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT value FROM user_state WHERE user_id = $1 AND key = $2`,
		userID, key,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (s *Store) saveDoc(ctx context.Context, userID, key string, doc any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO user_state (user_id, key, value, updated_at)
		 VALUES ($1, $2, $3::jsonb, now())
		 ON CONFLICT (user_id, key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		userID, key, string(raw),
	)
	if err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}
