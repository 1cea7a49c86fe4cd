package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
)

type fakeTx struct {
	pgx.Tx
	rollbacks int
}

func (f *fakeTx) Rollback(context.Context) error {
	f.rollbacks++
	return nil
}

func TestExecuteWithRollbackProtection(t *testing.T) {
	m := &TxManager{}

	t.Run("success leaves the transaction open", func(t *testing.T) {
		tx := &fakeTx{}
		err := m.executeWithRollbackProtection(context.Background(), tx, func(context.Context) error { return nil })
		assert.NoError(t, err)
		assert.Zero(t, tx.rollbacks)
	})

	t.Run("error rolls back", func(t *testing.T) {
		boom := errors.New("boom")
		tx := &fakeTx{}
		err := m.executeWithRollbackProtection(context.Background(), tx, func(context.Context) error { return boom })
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 1, tx.rollbacks)
	})

	t.Run("panic rolls back and propagates", func(t *testing.T) {
		tx := &fakeTx{}
		assert.PanicsWithValue(t, "kaboom", func() {
			_ = m.executeWithRollbackProtection(context.Background(), tx, func(context.Context) error {
				panic("kaboom")
			})
		})
		assert.Equal(t, 1, tx.rollbacks)
	})
}
