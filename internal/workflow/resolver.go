package workflow

import (
	"sort"

	"github.com/pesio-ai/be-dms-workflow/internal/platform/errors"
)

// Chain is a validated, ordered view over an entity's chain entries.
// Retired (reassigned) entries are kept for history but excluded from
// resolution; skipped entries count as already passed.
type Chain struct {
	entries []ChainEntry // all entries, live ones sorted first by sequence
}

// NewChain validates entries and returns a resolver over them. Duplicate
// sequence orders among live entries are a stored-data defect and surface as
// CORRUPT_CHAIN rather than being resolved by guesswork.
func NewChain(entries []ChainEntry) (*Chain, error) {
	sorted := make([]ChainEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].SequenceOrder != sorted[j].SequenceOrder {
			return sorted[i].SequenceOrder < sorted[j].SequenceOrder
		}
		// Retired entries sort after the live entry they were replaced by.
		return sorted[i].Live() && !sorted[j].Live()
	})

	seen := make(map[int]bool, len(sorted))
	for _, e := range sorted {
		if !e.Live() {
			continue
		}
		if seen[e.SequenceOrder] {
			return nil, errors.Newf(errors.ErrCodeCorruptChain,
				"duplicate sequence order %d in chain for entity %s", e.SequenceOrder, e.EntityID)
		}
		seen[e.SequenceOrder] = true
	}

	return &Chain{entries: sorted}, nil
}

// Entries returns all entries, live ones in sequence order.
func (c *Chain) Entries() []ChainEntry {
	return c.entries
}

// LiveLen returns the number of live entries.
func (c *Chain) LiveLen() int {
	n := 0
	for _, e := range c.entries {
		if e.Live() {
			n++
		}
	}
	return n
}

// NextPending returns the live entry with the lowest sequence order among
// those still pending, or nil when the chain is exhausted.
func (c *Chain) NextPending() *ChainEntry {
	for i := range c.entries {
		e := &c.entries[i]
		if e.Live() && e.Status == EntryPending {
			return e
		}
	}
	return nil
}

// IsExhausted reports whether every live entry is approved or skipped.
// A rejected entry means exhausted-by-rejection, which is a distinct outcome
// decided by the transition function, not here.
func (c *Chain) IsExhausted() bool {
	for _, e := range c.entries {
		if !e.Live() {
			continue
		}
		if e.Status != EntryApproved && e.Status != EntrySkipped {
			return false
		}
	}
	return true
}

// ActiveActor returns the user responsible for the next action, or nil.
func (c *Chain) ActiveActor() *string {
	if next := c.NextPending(); next != nil {
		return &next.UserID
	}
	return nil
}
