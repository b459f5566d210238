package routine

import "sort"

// =============================================================================
// CHECKPOINT - Memoized fold state
// =============================================================================

// Checkpoint captures the fold accumulator after day Through.
// Used for:
//   - Resuming a fold without replaying from creation
//   - Keeping repeated snapshots of recent ranges O(range) instead of O(history)
//
// A checkpoint is only taken at a unit boundary (no quota window open) and
// strictly before the Today it was computed with, so every status behind
// it is final. It is a recomputable optimization, never a source of truth.
type Checkpoint struct {
	Through LogicalDay
	Run     int
	Best    int

	// Checkpoints computed under one skip policy are useless under the other.
	SkipCountsTowardQuota bool
}

const maxCheckpoints = 64

// CheckpointCache holds checkpoints sorted by Through.
// Not safe for concurrent use; the owning Routine serializes access.
type CheckpointCache struct {
	entries []Checkpoint
}

// Store inserts checkpoints, replacing any with the same day and policy.
func (c *CheckpointCache) Store(cps ...Checkpoint) {
	for _, cp := range cps {
		i := sort.Search(len(c.entries), func(i int) bool {
			return c.entries[i].Through >= cp.Through
		})
		replaced := false
		for j := i; j < len(c.entries) && c.entries[j].Through == cp.Through; j++ {
			if c.entries[j].SkipCountsTowardQuota == cp.SkipCountsTowardQuota {
				c.entries[j] = cp
				replaced = true
				break
			}
		}
		if replaced {
			continue
		}
		c.entries = append(c.entries, Checkpoint{})
		copy(c.entries[i+1:], c.entries[i:])
		c.entries[i] = cp
	}
	if n := len(c.entries); n > maxCheckpoints {
		// Drop the oldest; recent ranges are queried far more often.
		c.entries = append(c.entries[:0], c.entries[n-maxCheckpoints:]...)
	}
}

// Nearest returns the latest checkpoint with Through < before for the policy.
func (c *CheckpointCache) Nearest(before LogicalDay, skipCountsTowardQuota bool) (Checkpoint, bool) {
	i := sort.Search(len(c.entries), func(i int) bool {
		return c.entries[i].Through >= before
	})
	for j := i - 1; j >= 0; j-- {
		if c.entries[j].SkipCountsTowardQuota == skipCountsTowardQuota {
			return c.entries[j], true
		}
	}
	return Checkpoint{}, false
}

// InvalidateFrom drops every checkpoint at or after day.
func (c *CheckpointCache) InvalidateFrom(day LogicalDay) {
	i := sort.Search(len(c.entries), func(i int) bool {
		return c.entries[i].Through >= day
	})
	c.entries = c.entries[:i]
}

func (c *CheckpointCache) Len() int { return len(c.entries) }
