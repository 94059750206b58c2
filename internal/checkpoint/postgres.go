package checkpoint

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps snapshots in a shared PostgreSQL table so runs can be
// resumed from another machine.
type PostgresStore struct {
	pool *pgxpool.Pool
	name string
}

// OpenPostgres connects to databaseURL and creates the checkpoint table if needed.
func OpenPostgres(ctx context.Context, databaseURL, name string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s := &PostgresStore{pool: pool, name: name}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
	CREATE TABLE IF NOT EXISTS doc_summarizer_checkpoints (
		name        TEXT PRIMARY KEY,
		snapshot    JSONB NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`)
	return err
}

func (s *PostgresStore) Location() string { return "postgres#" + s.name }

func (s *PostgresStore) Save(ctx context.Context, data []byte) error {
	query := `
		INSERT INTO doc_summarizer_checkpoints (name, snapshot)
		VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET snapshot = EXCLUDED.snapshot, updated_at = NOW()
	`
	if _, err := s.pool.Exec(ctx, query, s.name, data); err != nil {
		return fmt.Errorf("save checkpoint %s: %w", s.name, err)
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context) ([]byte, error) {
	var snapshot []byte
	err := s.pool.QueryRow(ctx,
		"SELECT snapshot FROM doc_summarizer_checkpoints WHERE name = $1", s.name,
	).Scan(&snapshot)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, s.Location())
	}
	if err != nil {
		return nil, fmt.Errorf("load checkpoint %s: %w", s.name, err)
	}
	return snapshot, nil
}

// Delete removes the snapshot row.
func (s *PostgresStore) Delete(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "DELETE FROM doc_summarizer_checkpoints WHERE name = $1", s.name)
	return err
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
