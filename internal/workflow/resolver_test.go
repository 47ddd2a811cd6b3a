package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(seq int, userID string, status EntryStatus) ChainEntry {
	return ChainEntry{
		ID:            userID + "-entry",
		EntityID:      "entity-1",
		SequenceOrder: seq,
		Stage:         StageApproval,
		UserID:        userID,
		Status:        status,
	}
}

func TestNextPendingReturnsLowestSequence(t *testing.T) {
	chain, err := NewChain([]ChainEntry{
		entry(2, "carol", EntryPending),
		entry(0, "alice", EntryApproved),
		entry(1, "bob", EntryPending),
	})
	require.NoError(t, err)

	next := chain.NextPending()
	require.NotNil(t, next)
	assert.Equal(t, 1, next.SequenceOrder)
	assert.Equal(t, "bob", next.UserID)

	actor := chain.ActiveActor()
	require.NotNil(t, actor)
	assert.Equal(t, "bob", *actor)
}

func TestNextPendingSkipsSkippedEntries(t *testing.T) {
	chain, err := NewChain([]ChainEntry{
		entry(0, "alice", EntryApproved),
		entry(1, "bob", EntrySkipped),
		entry(2, "carol", EntryPending),
	})
	require.NoError(t, err)

	next := chain.NextPending()
	require.NotNil(t, next)
	assert.Equal(t, "carol", next.UserID)
}

func TestNextPendingIgnoresReassignedEntries(t *testing.T) {
	retired := entry(1, "bob", EntryReassigned)
	replacement := entry(1, "dave", EntryPending)
	replacement.ReassignedFromUserID = &retired.UserID

	chain, err := NewChain([]ChainEntry{
		entry(0, "alice", EntryApproved),
		retired,
		replacement,
	})
	require.NoError(t, err)

	next := chain.NextPending()
	require.NotNil(t, next)
	assert.Equal(t, "dave", next.UserID)
}

func TestIsExhausted(t *testing.T) {
	tests := []struct {
		name      string
		entries   []ChainEntry
		exhausted bool
	}{
		{
			name:      "all approved",
			entries:   []ChainEntry{entry(0, "alice", EntryApproved), entry(1, "bob", EntryApproved)},
			exhausted: true,
		},
		{
			name:      "approved and skipped",
			entries:   []ChainEntry{entry(0, "alice", EntryApproved), entry(1, "bob", EntrySkipped)},
			exhausted: true,
		},
		{
			name:      "pending remains",
			entries:   []ChainEntry{entry(0, "alice", EntryApproved), entry(1, "bob", EntryPending)},
			exhausted: false,
		},
		{
			name:      "rejected is not exhaustion",
			entries:   []ChainEntry{entry(0, "alice", EntryRejected), entry(1, "bob", EntryPending)},
			exhausted: false,
		},
		{
			name:      "retired entries do not count",
			entries:   []ChainEntry{entry(0, "alice", EntryApproved), entry(1, "bob", EntryReassigned), entry(1, "dave", EntryApproved)},
			exhausted: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chain, err := NewChain(tt.entries)
			require.NoError(t, err)
			assert.Equal(t, tt.exhausted, chain.IsExhausted())
		})
	}
}

func TestDuplicateSequenceOrderIsCorrupt(t *testing.T) {
	_, err := NewChain([]ChainEntry{
		entry(0, "alice", EntryPending),
		entry(0, "bob", EntryPending),
	})
	require.Error(t, err)
}

func TestDuplicateSequenceAllowedWhenOneIsRetired(t *testing.T) {
	_, err := NewChain([]ChainEntry{
		entry(0, "alice", EntryReassigned),
		entry(0, "bob", EntryPending),
	})
	require.NoError(t, err)
}

func TestNewChainDoesNotMutateInput(t *testing.T) {
	input := []ChainEntry{
		entry(1, "bob", EntryPending),
		entry(0, "alice", EntryPending),
	}
	chain, err := NewChain(input)
	require.NoError(t, err)

	next := chain.NextPending()
	now := time.Now()
	next.Status = EntryApproved
	next.ActedAt = &now

	assert.Equal(t, EntryPending, input[0].Status)
	assert.Equal(t, EntryPending, input[1].Status)
}

func TestActiveActorNilWhenExhausted(t *testing.T) {
	chain, err := NewChain([]ChainEntry{entry(0, "alice", EntryApproved)})
	require.NoError(t, err)

	assert.Nil(t, chain.ActiveActor())
	assert.Nil(t, chain.NextPending())
}
