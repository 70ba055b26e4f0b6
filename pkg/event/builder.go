package event

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/facto-ai/facto/pkg/chain"
	"github.com/facto-ai/facto/pkg/crypto"
	"github.com/facto-ai/facto/pkg/factoerr"
)

// Builder is the Event Builder (C4): it populates a FactoEvent from caller
// input and invokes the canonicalizer, hasher, and signer, committing the
// result to the session's chain. One Builder owns exactly one session's
// agent_id, signing key, and chain.
type Builder struct {
	AgentID   string
	SessionID string
	Signer    *crypto.Signer
	Chain     *chain.Chain

	// Now returns the current time in nanoseconds since the Unix epoch.
	// Defaults to time.Now().UnixNano; overridable so tests can fix
	// timestamps exactly as spec.md §8 scenario 1 requires.
	Now func() int64
}

// NewBuilder constructs a Builder with a fresh chain and the real clock.
func NewBuilder(agentID, sessionID string, signer *crypto.Signer) *Builder {
	return &Builder{
		AgentID:   agentID,
		SessionID: sessionID,
		Signer:    signer,
		Chain:     chain.New(),
		Now:       func() int64 { return time.Now().UnixNano() },
	}
}

// Input is the caller-supplied half of a FactoEvent; everything else
// (facto_id, prev_hash, the proof) is the Builder's responsibility.
type Input struct {
	ActionType    string
	InputData     map[string]interface{}
	OutputData    map[string]interface{}
	ExecutionMeta *ExecutionMeta
	ParentFactoID *string

	// Status defaults to StatusSuccess when empty.
	Status Status
	// StartedAt/CompletedAt default to Now() when zero.
	StartedAt   int64
	CompletedAt int64
}

// Build assigns a facto_id, fills defaults, sets proof.prev_hash from the
// session chain, canonicalizes, hashes, signs, and commits the event to
// the chain — all under the chain's single lock, so the prev_hash read and
// the chain's advance to this event's hash are atomic with respect to any
// concurrent Build call sharing the same session.
func (b *Builder) Build(in Input) (*FactoEvent, error) {
	now := b.Now
	if now == nil {
		now = func() int64 { return time.Now().UnixNano() }
	}

	started := in.StartedAt
	completed := in.CompletedAt
	if started == 0 {
		started = now()
	}
	if completed == 0 {
		completed = now()
	}
	if completed < started {
		return nil, fmt.Errorf("%w: completed_at=%d started_at=%d", factoerr.ErrInvalidTimestamps, completed, started)
	}

	status := in.Status
	if status == "" {
		status = StatusSuccess
	}
	switch status {
	case StatusSuccess, StatusFailure, StatusInProgress:
	default:
		return nil, fmt.Errorf("%w: %q", factoerr.ErrInvalidStatus, status)
	}

	ev := &FactoEvent{
		FactoID:       "ft-" + uuid.New().String(),
		AgentID:       b.AgentID,
		SessionID:     b.SessionID,
		ParentFactoID: in.ParentFactoID,
		ActionType:    in.ActionType,
		Status:        status,
		InputData:     in.InputData,
		OutputData:    in.OutputData,
		ExecutionMeta: in.ExecutionMeta,
		StartedAt:     started,
		CompletedAt:   completed,
	}

	err := b.Chain.Append(func(prevHash string) (string, error) {
		ev.Proof.PrevHash = prevHash

		canonical, err := ev.CanonicalBytes()
		if err != nil {
			return "", fmt.Errorf("%w: %v", factoerr.ErrNotJSONRepresentable, err)
		}

		eventHash := crypto.HashHex(canonical)
		ev.Proof.EventHash = eventHash
		ev.Proof.Signature = b.Signer.Sign(canonical)
		ev.Proof.PublicKey = b.Signer.PublicKeyBase64()
		return eventHash, nil
	})
	if err != nil {
		return nil, err
	}

	return ev, nil
}
