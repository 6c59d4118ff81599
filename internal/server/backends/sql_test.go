package backends

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/rtmp-auth/internal/common"
)

func newSQLiteBackend(t *testing.T) (*SQLBackend, *sql.DB) {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	b, err := NewSQLBackend(context.Background(), db, "sqlite")
	require.NoError(t, err)
	return b, db
}

func TestSQLBackend_EmptyThenWrite(t *testing.T) {
	ctx := context.Background()
	b, _ := newSQLiteBackend(t)

	st, err := b.Read(ctx)
	require.NoError(t, err)
	assert.Empty(t, st.Streams)

	require.NoError(t, b.Write(ctx, sampleState()))

	st, err = b.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, sampleState(), st)

	st.Streams = st.Streams[:1]
	require.NoError(t, b.Write(ctx, st))

	st, err = b.Read(ctx)
	require.NoError(t, err)
	assert.Len(t, st.Streams, 1)
}

func TestSQLBackend_ConcurrentWriters(t *testing.T) {
	ctx := context.Background()
	a, db := newSQLiteBackend(t)

	b, err := NewSQLBackend(ctx, db, "sqlite")
	require.NoError(t, err)

	_, err = a.Read(ctx)
	require.NoError(t, err)
	_, err = b.Read(ctx)
	require.NoError(t, err)

	require.NoError(t, a.Write(ctx, sampleState()))
	assert.ErrorIs(t, b.Write(ctx, sampleState()), common.ErrConflict)

	// after a fresh read the second writer wins
	_, err = b.Read(ctx)
	require.NoError(t, err)
	require.NoError(t, b.Write(ctx, sampleState()))
	assert.ErrorIs(t, a.Write(ctx, sampleState()), common.ErrConflict)
}

func TestSQLBackend_PostgresPlaceholders(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	d, err := sqlDialect("postgres")
	require.NoError(t, err)
	b := &SQLBackend{db: db, dialect: d}

	data := EncodeState(sampleState())
	mock.ExpectQuery(`^SELECT version, data FROM rtmp_auth_state WHERE id = \$1$`).
		WithArgs(stateRowID).
		WillReturnRows(sqlmock.NewRows([]string{"version", "data"}).AddRow(int64(7), data))

	mock.ExpectBegin()
	mock.ExpectExec(`^UPDATE rtmp_auth_state SET version = version \+ 1, data = \$1 WHERE id = \$2 AND version = \$3$`).
		WithArgs(sqlmock.AnyArg(), stateRowID, int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	ctx := context.Background()
	st, err := b.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, sampleState(), st)

	assert.ErrorIs(t, b.Write(ctx, st), common.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLDialect(t *testing.T) {
	for _, driver := range []string{"", "postgres", "pgx"} {
		d, err := sqlDialect(driver)
		require.NoError(t, err)
		assert.Equal(t, "pgx", d.driver)
	}

	d, err := sqlDialect("sqlite3")
	require.NoError(t, err)
	assert.Equal(t, "sqlite", d.driver)

	_, err = sqlDialect("mysql")
	assert.ErrorIs(t, err, common.ErrValidation)
}
