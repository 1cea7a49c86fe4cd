package postgres

import (
	"errors"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		code string
		want error
	}{
		{pgerrcode.InsufficientPrivilege, ErrPolicyViolation},
		{pgerrcode.UniqueViolation, ErrUniqueViolation},
		{pgerrcode.ForeignKeyViolation, ErrForeignKeyViolation},
		{pgerrcode.AdminShutdown, ErrUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			src := &pgconn.PgError{Code: tt.code, Message: "boom"}
			err := MapError(src)
			assert.ErrorIs(t, err, tt.want)

			var pgErr *pgconn.PgError
			assert.True(t, errors.As(err, &pgErr), "original error stays in the chain")
		})
	}

	assert.NoError(t, MapError(nil))

	plain := errors.New("plain")
	assert.Same(t, plain, MapError(plain))

	other := &pgconn.PgError{Code: pgerrcode.DivisionByZero}
	assert.Equal(t, error(other), MapError(other))
}

func TestIsUndefinedObject(t *testing.T) {
	assert.True(t, IsUndefinedObject(&pgconn.PgError{Code: pgerrcode.UndefinedTable}))
	assert.True(t, IsUndefinedObject(&pgconn.PgError{Code: pgerrcode.UndefinedObject}))
	assert.False(t, IsUndefinedObject(&pgconn.PgError{Code: pgerrcode.SyntaxError}))
	assert.False(t, IsUndefinedObject(errors.New("x")))
}
