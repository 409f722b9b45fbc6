package postgres

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bomdb/bomdb/internal/model"
)

// recordingTx is a pgx.Tx stub that records executed SQL so transaction
// routing can be verified without a live database. Query paths are not
// exercised through it.
type recordingTx struct {
	execSQL    []string
	committed  bool
	rolledBack bool
}

func (tx *recordingTx) Begin(context.Context) (pgx.Tx, error) { return tx, nil }

func (tx *recordingTx) Commit(context.Context) error {
	tx.committed = true
	return nil
}

func (tx *recordingTx) Rollback(context.Context) error {
	tx.rolledBack = true
	return nil
}

func (tx *recordingTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, nil
}

func (tx *recordingTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }

func (tx *recordingTx) LargeObjects() pgx.LargeObjects { return pgx.LargeObjects{} }

func (tx *recordingTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return nil, nil
}

func (tx *recordingTx) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	tx.execSQL = append(tx.execSQL, sql)
	return pgconn.CommandTag{}, nil
}

func (tx *recordingTx) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, pgx.ErrNoRows
}

func (tx *recordingTx) QueryRow(context.Context, string, ...any) pgx.Row { return nil }

func (tx *recordingTx) Conn() *pgx.Conn { return nil }

// ============================================================================
// WithTx Tests
// ============================================================================

func TestWithTx_RoutesStatementsThroughTransaction(t *testing.T) {
	tx := &recordingTx{}
	st := New(nil).WithTx(tx)

	require.NoError(t, st.EnsureSchema(context.Background()))

	require.Len(t, tx.execSQL, 1)
	assert.Contains(t, tx.execSQL[0], "CREATE TABLE IF NOT EXISTS parts")
}

func TestWithTx_DomainWritesUseTransaction(t *testing.T) {
	tx := &recordingTx{}
	st := New(nil).WithTx(tx)

	err := st.InsertTestOverride(context.Background(), model.TestOverride{
		BOMItemID: 7,
		PowerMode: model.ModePowered,
		Kind:      model.MethodQuickTest,
		Detail:    "check LED",
	})
	require.NoError(t, err)

	require.Len(t, tx.execSQL, 1)
	assert.Contains(t, tx.execSQL[0], "INSERT INTO bom_item_test_overrides")
	assert.False(t, tx.committed, "store methods never commit the shared transaction")
	assert.False(t, tx.rolledBack)
}
