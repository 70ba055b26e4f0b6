// Package event implements the facto event type and the Event Builder
// (C4): the operation that turns caller-supplied action data into a fully
// canonicalized, hashed, signed, and chain-linked FactoEvent.
package event

import "github.com/facto-ai/facto/pkg/crypto"

// Status is the terminal state of a facto event.
type Status string

const (
	StatusSuccess    Status = "success"
	StatusFailure    Status = "failure"
	StatusInProgress Status = "in_progress"
)

// ExecutionMeta is the full execution_meta record a caller may attach to
// an event. Only ModelID, Seed, SDKVersion, Temperature, and ToolCalls
// participate in the canonical form (see pkg/crypto.ExecutionMeta);
// ModelHash, MaxTokens, SDKLanguage, and Tags round-trip on the wire but
// never affect event_hash or signature — they are semantically
// non-binding and may change without invalidating the proof.
type ExecutionMeta struct {
	ModelID     *string                  `json:"model_id"`
	ModelHash   *string                  `json:"model_hash,omitempty"`
	Temperature *float64                 `json:"temperature"`
	Seed        *int64                   `json:"seed"`
	MaxTokens   *int64                   `json:"max_tokens,omitempty"`
	ToolCalls   []map[string]interface{} `json:"tool_calls"`
	SDKVersion  *string                  `json:"sdk_version"`
	SDKLanguage *string                  `json:"sdk_language,omitempty"`
	Tags        map[string]string        `json:"tags,omitempty"`
}

func (m *ExecutionMeta) canonical() *crypto.ExecutionMeta {
	if m == nil {
		return nil
	}
	return &crypto.ExecutionMeta{
		ModelID:     m.ModelID,
		Seed:        m.Seed,
		SDKVersion:  m.SDKVersion,
		Temperature: m.Temperature,
		ToolCalls:   m.ToolCalls,
	}
}

// Proof is the cryptographic commitment attached to a built event.
type Proof struct {
	PrevHash  string `json:"prev_hash"`
	EventHash string `json:"event_hash"`
	Signature string `json:"signature"`
	PublicKey string `json:"public_key"`
}

// FactoEvent is the atomic, immutable-after-signing unit of an audit
// trail: one agent action, canonicalized, hashed, signed, and linked to
// its predecessor in the same session.
type FactoEvent struct {
	FactoID       string                 `json:"facto_id"`
	AgentID       string                 `json:"agent_id"`
	SessionID     string                 `json:"session_id"`
	ParentFactoID *string                `json:"parent_facto_id"`
	ActionType    string                 `json:"action_type"`
	Status        Status                 `json:"status"`
	InputData     map[string]interface{} `json:"input_data"`
	OutputData    map[string]interface{} `json:"output_data"`
	ExecutionMeta *ExecutionMeta         `json:"execution_meta"`
	StartedAt     int64                  `json:"started_at"`
	CompletedAt   int64                  `json:"completed_at"`
	Proof         Proof                  `json:"proof"`
}

// CanonicalEvent projects this event onto the fixed field subset that
// participates in canonical_bytes. prev_hash is read from Proof.PrevHash;
// Proof.EventHash/Signature/PublicKey are never part of canonical form —
// they commit to it, they don't describe it.
func (e *FactoEvent) CanonicalEvent() crypto.CanonicalEvent {
	return crypto.CanonicalEvent{
		ActionType:    e.ActionType,
		AgentID:       e.AgentID,
		CompletedAt:   e.CompletedAt,
		ExecutionMeta: e.ExecutionMeta.canonical(),
		FactoID:       e.FactoID,
		InputData:     e.InputData,
		OutputData:    e.OutputData,
		ParentFactoID: e.ParentFactoID,
		PrevHash:      e.Proof.PrevHash,
		SessionID:     e.SessionID,
		StartedAt:     e.StartedAt,
		Status:        string(e.Status),
	}
}

// CanonicalBytes returns this event's canonical byte serialization.
func (e *FactoEvent) CanonicalBytes() ([]byte, error) {
	return crypto.CanonicalBytes(e.CanonicalEvent())
}
