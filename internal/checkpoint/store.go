// Package checkpoint persists pipeline snapshots. A Store holds exactly one
// opaque blob per run; each Save overwrites the previous one.
package checkpoint

import (
	"context"
	"errors"
	"strings"
)

// ErrNotFound is returned by Load when nothing has been saved yet.
var ErrNotFound = errors.New("checkpoint not found")

// DefaultName keys the snapshot row in database backed stores.
const DefaultName = "default"

// Store saves and loads one snapshot blob.
type Store interface {
	Save(ctx context.Context, data []byte) error
	Load(ctx context.Context) ([]byte, error)
	// Location describes where the snapshot lives, for logs.
	Location() string
	Close() error
}

// Open picks a backend from location:
//   - postgres:// or postgresql:// URLs use PostgreSQL
//   - sqlite:// URLs and *.db / *.sqlite paths use SQLite
//   - anything else is a plain JSON file
//
// name keys the snapshot inside database backends and is ignored by files.
func Open(ctx context.Context, location, name string) (Store, error) {
	if name == "" {
		name = DefaultName
	}
	switch {
	case strings.HasPrefix(location, "postgres://"), strings.HasPrefix(location, "postgresql://"):
		return OpenPostgres(ctx, location, name)
	case strings.HasPrefix(location, "sqlite://"):
		return OpenSQLite(ctx, strings.TrimPrefix(location, "sqlite://"), name)
	case strings.HasSuffix(location, ".db"), strings.HasSuffix(location, ".sqlite"):
		return OpenSQLite(ctx, location, name)
	default:
		return NewFileStore(location), nil
	}
}
