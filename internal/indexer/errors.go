package indexer

import (
	"errors"
	"fmt"

	"github.com/harmony-one/pumpfun-indexer/internal/database"
)

// UnknownTokenError is raised when a trade references a token that exists
// neither in the store nor earlier in the same batch. Dropping the trade
// would silently corrupt aggregate volume figures, so the whole batch is
// rejected and the error is treated as fatal.
type UnknownTokenError struct {
	Token   string
	TxnHash string
}

func (e *UnknownTokenError) Error() string {
	return fmt.Sprintf("trade in %s references unknown token %s", e.TxnHash, e.Token)
}

// IsFatal reports whether an iteration error means the loop must stop and
// hand control back to the supervisor instead of retrying the range.
func IsFatal(err error) bool {
	var unknownToken *UnknownTokenError
	if errors.As(err, &unknownToken) {
		return true
	}
	return errors.Is(err, database.ErrCheckpointLost) || errors.Is(err, database.ErrTokenMissing)
}
