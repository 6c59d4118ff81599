// Package backends persists the rtmp-auth state.
//
// # Overview
//
// A Backend stores one models.State value. Implementations exist for an
// in-process memory store, a local protobuf file, a SQL table (PostgreSQL
// via pgx or SQLite), an S3 object and an etcd key. All of them share the
// protobuf wire encoding from codec.go.
//
// # Concurrency
//
// Backends that can be shared between several rtmp-auth processes (sql, s3,
// etcd) remember the version they last read. Write fails with
// common.ErrConflict when the stored version moved on in between, and the
// caller is expected to Read again and retry.
package backends

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/rtmp-auth/internal/common"
	"github.com/dmitrijs2005/rtmp-auth/internal/logging"
	"github.com/dmitrijs2005/rtmp-auth/internal/server/models"
)

// Backend reads and writes the whole state.
type Backend interface {
	// Read returns a copy of the current state. A backend without stored
	// state returns an empty State.
	Read(ctx context.Context) (*models.State, error)

	// Write replaces the stored state.
	Write(ctx context.Context, state *models.State) error

	// Close releases connections and background watchers.
	Close() error
}

// Backend names accepted in Config.Backend.
const (
	KindMemory = "memory"
	KindFile   = "file"
	KindSQL    = "sql"
	KindS3     = "s3"
	KindEtcd   = "etcd"
)

// Config selects and configures a backend.
type Config struct {
	Backend string     `toml:"backend" env:"BACKEND" validate:"required,oneof=memory file sql s3 etcd"`
	File    FileConfig `toml:"file" envPrefix:"FILE_"`
	SQL     SQLConfig  `toml:"sql" envPrefix:"SQL_"`
	S3      S3Config   `toml:"s3" envPrefix:"S3_"`
	Etcd    EtcdConfig `toml:"etcd" envPrefix:"ETCD_"`
}

// Validate checks the settings of the selected backend.
func (c Config) Validate() error {
	var missing string
	switch c.Backend {
	case KindMemory:
	case KindFile:
		if c.File.Path == "" {
			missing = "store.file.path"
		}
	case KindSQL:
		if c.SQL.DSN == "" {
			missing = "store.sql.dsn"
		} else if _, err := sqlDialect(c.SQL.Driver); err != nil {
			return err
		}
	case KindS3:
		if c.S3.Bucket == "" {
			missing = "store.s3.bucket"
		}
	case KindEtcd:
		if len(c.Etcd.Endpoints) == 0 {
			missing = "store.etcd.endpoints"
		}
	default:
		return fmt.Errorf("%w: unknown store backend %q", common.ErrValidation, c.Backend)
	}
	if missing != "" {
		return fmt.Errorf("%w: %s must be set for the %s backend", common.ErrValidation, missing, c.Backend)
	}
	return nil
}

// Open creates the backend selected by cfg.
func Open(ctx context.Context, cfg Config, logger logging.Logger) (Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Backend {
	case KindMemory:
		return NewMemoryBackend(), nil
	case KindFile:
		return NewFileBackend(cfg.File)
	case KindSQL:
		return OpenSQL(ctx, cfg.SQL)
	case KindS3:
		return OpenS3(ctx, cfg.S3)
	default:
		return OpenEtcd(ctx, cfg.Etcd, logger)
	}
}
