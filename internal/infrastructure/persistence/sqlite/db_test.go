package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/haulmark/invoice-audit/pkg/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestManager(t *testing.T) (*TxManager, *sql.DB) {
	t.Helper()
	db, err := database.New(database.Config{Path: filepath.Join(t.TempDir(), "tx.db")}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`CREATE TABLE notes (body TEXT NOT NULL)`)
	require.NoError(t, err)
	return NewTxManager(db.DB, zap.NewNop()), db.DB
}

func countNotes(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM notes`).Scan(&n))
	return n
}

func insertNote(ctx context.Context, db *sql.DB, body string) error {
	_, err := ExecutorFor(ctx, db).ExecContext(ctx, `INSERT INTO notes (body) VALUES (?)`, body)
	return err
}

func TestTxManager_WithTransaction(t *testing.T) {
	ctx := context.Background()

	t.Run("commits on success", func(t *testing.T) {
		m, db := newTestManager(t)
		err := m.WithTransaction(ctx, func(txCtx context.Context) error {
			assert.NotNil(t, TxFromContext(txCtx))
			return insertNote(txCtx, db, "a")
		})
		require.NoError(t, err)
		assert.Equal(t, 1, countNotes(t, db))
	})

	t.Run("rolls back on error", func(t *testing.T) {
		m, db := newTestManager(t)
		boom := errors.New("boom")
		err := m.WithTransaction(ctx, func(txCtx context.Context) error {
			require.NoError(t, insertNote(txCtx, db, "a"))
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 0, countNotes(t, db))
	})

	t.Run("nested call joins outer transaction", func(t *testing.T) {
		m, db := newTestManager(t)
		err := m.WithTransaction(ctx, func(outer context.Context) error {
			require.NoError(t, m.WithTransaction(outer, func(inner context.Context) error {
				assert.Same(t, TxFromContext(outer), TxFromContext(inner))
				return insertNote(inner, db, "inner")
			}))
			return errors.New("outer fails")
		})
		assert.Error(t, err)
		assert.Equal(t, 0, countNotes(t, db))
	})

	t.Run("rolls back and repanics", func(t *testing.T) {
		m, db := newTestManager(t)
		assert.PanicsWithValue(t, "kaboom", func() {
			_ = m.WithTransaction(ctx, func(txCtx context.Context) error {
				require.NoError(t, insertNote(txCtx, db, "a"))
				panic("kaboom")
			})
		})
		assert.Equal(t, 0, countNotes(t, db))
	})
}

func TestExecutorFor_OutsideTransaction(t *testing.T) {
	_, db := newTestManager(t)
	assert.Nil(t, TxFromContext(context.Background()))
	assert.Equal(t, Executor(db), ExecutorFor(context.Background(), db))
}
