package indexer

import (
	"context"
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harmony-one/pumpfun-indexer/internal/database"
)

func TestIsFatal(t *testing.T) {
	cases := []struct {
		name  string
		err   error
		fatal bool
	}{
		{"unknown token", &UnknownTokenError{Token: "0xabc", TxnHash: "0xdef"}, true},
		{"wrapped unknown token", fmt.Errorf("iteration: %w", &UnknownTokenError{Token: "0xabc"}), true},
		{"checkpoint lost", database.ErrCheckpointLost, true},
		{"wrapped checkpoint lost", fmt.Errorf("batch: %w", database.ErrCheckpointLost), true},
		{"token missing in batch", database.ErrTokenMissing, true},
		{"plain error", assert.AnError, false},
		{"context canceled", context.Canceled, false},
		{"nil", nil, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.fatal, IsFatal(tc.err))
		})
	}
}

func TestRunReturnsWhenCheckpointLost(t *testing.T) {
	ledger := &fakeLedger{tip: 150, logs: map[common.Hash][]types.Log{}}
	store := newFakeStore(100)
	store.applyErr = database.ErrCheckpointLost
	ix := testIndexer(t, ledger, store, 1000)

	// A lost checkpoint row must stop the loop, not schedule a retry.
	err := ix.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, database.ErrCheckpointLost)
	assert.Equal(t, uint64(100), store.height)
}
