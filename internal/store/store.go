// package store persists owner-partitioned JSON documents.
//
// Every backend replaces a whole document per write. Readers never observe a partially
// written document: the file backend writes to a temporary file and renames it, the SQLite
// backend upserts inside a transaction, and the Redis backend uses MULTI/EXEC.
package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/desertthunder/smartsync/internal/shared"
)

// DocumentStore reads and writes whole documents addressed by owner and key.
//
// Read returns nil, nil when the document does not exist.
type DocumentStore interface {
	Read(ctx context.Context, ownerID, key string) ([]byte, error)
	WriteAtomic(ctx context.Context, ownerID, key string, data []byte) error
	Delete(ctx context.Context, ownerID, key string) error
	// Keys lists the document keys an owner holds.
	Keys(ctx context.Context, ownerID string) ([]string, error)
	// Owners lists owners holding at least one document.
	Owners(ctx context.Context) ([]string, error)
	Close() error
}

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// ValidKey reports whether key can be used as a document key on every backend.
func ValidKey(key string) bool {
	return keyPattern.MatchString(key)
}

func checkAddress(ownerID, key string) error {
	if !shared.ValidID(ownerID) {
		return fmt.Errorf("%w: owner id %q", shared.ErrInvalidInput, ownerID)
	}
	if !ValidKey(key) {
		return fmt.Errorf("%w: document key %q", shared.ErrInvalidInput, key)
	}
	return nil
}

// EncodeJSON marshals v with two-space indentation and a trailing newline.
func EncodeJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Open creates the backend selected by cfg.Storage.Backend. The sqlite backend shares db,
// which must already be migrated.
func Open(cfg *shared.Config, db *sql.DB) (DocumentStore, error) {
	switch cfg.Storage.Backend {
	case "", "file":
		return NewFileStore(cfg.Storage.DataDir)
	case "sqlite":
		if db == nil {
			return nil, fmt.Errorf("%w: sqlite storage requires a database", shared.ErrMissingConfig)
		}
		return NewSQLiteStore(db), nil
	case "redis":
		return DialRedis(cfg.Storage)
	default:
		return nil, fmt.Errorf("%w: unknown storage backend %q", shared.ErrInvalidConfig, cfg.Storage.Backend)
	}
}
