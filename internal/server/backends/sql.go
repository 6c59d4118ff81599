package backends

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/rtmp-auth/internal/common"
	"github.com/dmitrijs2005/rtmp-auth/internal/dbx"
	"github.com/dmitrijs2005/rtmp-auth/internal/server/backends/migrations"
	"github.com/dmitrijs2005/rtmp-auth/internal/server/models"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

// SQLConfig configures the SQL backend. Driver is "postgres" (pgx) or
// "sqlite".
type SQLConfig struct {
	Driver string `toml:"driver" env:"DRIVER"`
	DSN    string `toml:"dsn" env:"DSN"`
}

// stateRowID is the primary key of the single state row.
const stateRowID = 1

type dialect struct {
	driver      string
	goose       string
	dir         string
	placeholder int
}

func sqlDialect(driver string) (dialect, error) {
	switch driver {
	case "", "postgres", "pgx":
		return dialect{driver: "pgx", goose: "postgres", dir: "postgres", placeholder: dbx.Dollar}, nil
	case "sqlite", "sqlite3":
		return dialect{driver: "sqlite", goose: "sqlite3", dir: "sqlite", placeholder: dbx.Question}, nil
	default:
		return dialect{}, fmt.Errorf("%w: unsupported sql driver %q", common.ErrValidation, driver)
	}
}

// SQLBackend stores the encoded state in one row of rtmp_auth_state and
// uses the version column for optimistic locking.
type SQLBackend struct {
	db      *sql.DB
	dialect dialect
	mu      sync.Mutex
	version int64
}

// OpenSQL opens the database from cfg and prepares the schema.
func OpenSQL(ctx context.Context, cfg SQLConfig) (*SQLBackend, error) {
	d, err := sqlDialect(cfg.Driver)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(d.driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	if d.driver == "sqlite" {
		db.SetMaxOpenConns(1)
	}

	b, err := NewSQLBackend(ctx, db, cfg.Driver)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return b, nil
}

// NewSQLBackend runs the migrations on db and returns the backend.
func NewSQLBackend(ctx context.Context, db *sql.DB, driver string) (*SQLBackend, error) {
	d, err := sqlDialect(driver)
	if err != nil {
		return nil, err
	}

	b := &SQLBackend{db: db, dialect: d}
	if err := b.runMigrations(ctx); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}
	return b, nil
}

func (b *SQLBackend) runMigrations(ctx context.Context) error {
	goose.SetBaseFS(migrations.FS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect(b.dialect.goose); err != nil {
		return err
	}
	return goose.UpContext(ctx, b.db, b.dialect.dir)
}

func (b *SQLBackend) q(query string) string {
	return dbx.Rebind(b.dialect.placeholder, query)
}

func (b *SQLBackend) Read(ctx context.Context) (*models.State, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var (
		version int64
		data    []byte
	)
	row := b.db.QueryRowContext(ctx, b.q(`SELECT version, data FROM rtmp_auth_state WHERE id = ?`), stateRowID)
	if err := row.Scan(&version, &data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			b.version = 0
			return &models.State{}, nil
		}
		return nil, fmt.Errorf("failed to select state: %w", err)
	}

	state, err := DecodeState(data)
	if err != nil {
		return nil, err
	}
	b.version = version
	return state, nil
}

func (b *SQLBackend) Write(ctx context.Context, state *models.State) error {
	if state == nil {
		return errors.New("state should not be nil")
	}
	data := EncodeState(state)

	b.mu.Lock()
	defer b.mu.Unlock()

	err := dbx.WithTx(ctx, b.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var (
			res sql.Result
			err error
		)
		if b.version == 0 {
			res, err = tx.ExecContext(ctx,
				b.q(`INSERT INTO rtmp_auth_state (id, version, data) VALUES (?, 1, ?) ON CONFLICT (id) DO NOTHING`),
				stateRowID, data)
		} else {
			res, err = tx.ExecContext(ctx,
				b.q(`UPDATE rtmp_auth_state SET version = version + 1, data = ? WHERE id = ? AND version = ?`),
				data, stateRowID, b.version)
		}
		if err != nil {
			return fmt.Errorf("failed to write state: %w", err)
		}

		ra, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if ra != 1 {
			return common.ErrConflict
		}
		return nil
	})
	if err != nil {
		return err
	}

	b.version++
	return nil
}

func (b *SQLBackend) Close() error {
	return b.db.Close()
}
