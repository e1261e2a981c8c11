package database

import (
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestIsForeignKeyViolation(t *testing.T) {
	fkErr := &pgconn.PgError{Code: "23503", ConstraintName: "comments_user_address_fkey"}

	assert.True(t, isForeignKeyViolation(fkErr))
	assert.True(t, isForeignKeyViolation(fmt.Errorf("failed to insert comment: %w", fkErr)))

	assert.False(t, isForeignKeyViolation(nil))
	assert.False(t, isForeignKeyViolation(assert.AnError))
	// A unique violation is a different SQLSTATE and must not match.
	assert.False(t, isForeignKeyViolation(&pgconn.PgError{Code: "23505"}))
}
