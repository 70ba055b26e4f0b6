// Package chain implements the per-session hash chain (C5): a live,
// mutex-guarded append used by the Event Builder, and a reconstruction
// check used by the offline verifier to validate a chain recovered from
// storage.
package chain

import (
	"fmt"
	"sync"

	"github.com/facto-ai/facto/pkg/crypto"
)

// Chain is the live per-session chain state. It holds exactly one piece of
// state, last_hash, and grants exclusive ownership of it for the duration
// of one Append call — the same lock a concurrent recorder path relies on
// to keep invariants 3 and 5 (prev_hash linkage, total order) intact when
// multiple callers share a session.
type Chain struct {
	mu       sync.Mutex
	lastHash string
	length   int
}

// New returns an empty chain, whose next append must use crypto.ZeroHash
// as prev_hash.
func New() *Chain {
	return &Chain{lastHash: crypto.ZeroHash}
}

// LastHash returns the chain's current head hash.
func (c *Chain) LastHash() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastHash
}

// Len returns the number of events appended so far.
func (c *Chain) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.length
}

// Append acquires the chain's exclusive lock, calls build with the current
// head hash as prev_hash, and — only if build succeeds — advances the
// chain to the returned event_hash. build is expected to canonicalize,
// hash, and sign the new event using prevHash, so that prev_hash
// assignment and the chain's advance to the new head happen atomically
// with respect to any other recorder on the same session.
func (c *Chain) Append(build func(prevHash string) (eventHash string, err error)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	eventHash, err := build(c.lastHash)
	if err != nil {
		return err
	}
	c.lastHash = eventHash
	c.length++
	return nil
}

// LinkEntry is the minimal information ValidateOrder needs from an event
// recovered from storage or an evidence bundle.
type LinkEntry struct {
	EventHash   string
	PrevHash    string
	CompletedAt int64
}

// ValidateOrder implements the verifier's chain-reconstruction rule
// (spec §4.5's ordering rule): rather than sort by completed_at and hope
// ties resolve correctly, it follows prev_hash -> event_hash linkage
// starting from the zero hash. This directly validates invariants 3 and 5
// together: two events sharing a completed_at timestamp are accepted as
// long as prev_hash/event_hash links them in sequence, and any event not
// reachable from the zero hash — whether from a broken link or a second,
// disjoint chain smuggled into the same session — is reported as invalid.
func ValidateOrder(entries []LinkEntry) error {
	if len(entries) == 0 {
		return nil
	}

	byPrev := make(map[string]LinkEntry, len(entries))
	for _, e := range entries {
		if _, exists := byPrev[e.PrevHash]; exists {
			return fmt.Errorf("chain: two events share prev_hash %q: disjoint chain", e.PrevHash)
		}
		byPrev[e.PrevHash] = e
	}

	expected := crypto.ZeroHash
	lastCompletedAt := int64(0)
	for i := 0; i < len(entries); i++ {
		e, ok := byPrev[expected]
		if !ok {
			return fmt.Errorf("chain: no event links from hash %q at chain position %d", expected, i)
		}
		if i > 0 && e.CompletedAt < lastCompletedAt {
			return fmt.Errorf("chain: event %q completed_at is not monotonic with chain order", e.EventHash)
		}
		lastCompletedAt = e.CompletedAt
		delete(byPrev, expected)
		expected = e.EventHash
	}

	if len(byPrev) != 0 {
		return fmt.Errorf("chain: %d event(s) form a disjoint chain not reachable from the session start", len(byPrev))
	}
	return nil
}
