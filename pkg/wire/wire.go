// Package wire defines the external, non-goal wire contracts this repo's
// proof layer is a collaborator to: the ingestion batch request/response
// shape and the evidence-bundle document the verifier reads. No HTTP
// routing or storage lives here — just the shapes.
package wire

import (
	"github.com/facto-ai/facto/pkg/crypto"
	"github.com/facto-ai/facto/pkg/event"
)

// IngestBatchRequest is the body of POST /v1/ingest/batch.
type IngestBatchRequest struct {
	Events []event.FactoEvent `json:"events"`
}

// IngestBatchResponse is returned on HTTP 202 acceptance. Any other status
// is treated as a batch failure by the batcher.
type IngestBatchResponse struct {
	AcceptedCount int `json:"accepted_count"`
	RejectedCount int `json:"rejected_count"`
}

// ProofStep is one level of a Merkle inclusion proof on the wire.
type ProofStep struct {
	Hash string `json:"hash"`
	Side string `json:"side"`
}

// MerkleProofEntry binds one event_hash to an inclusion proof against a
// claimed root.
type MerkleProofEntry struct {
	FactoID   string      `json:"facto_id"`
	EventHash string      `json:"event_hash"`
	Root      string      `json:"root"`
	Proof     []ProofStep `json:"proof"`
}

// EvidenceBundle is the verifier's input document: an ordered sequence of
// events for one or more sessions, plus an optional set of Merkle proofs.
type EvidenceBundle struct {
	Events       []event.FactoEvent `json:"events"`
	MerkleProofs []MerkleProofEntry `json:"merkle_proofs,omitempty"`
}

// DecodeEvidenceBundle parses an evidence bundle document the way the
// verifier must: every embedded JSON number (including ones nested inside
// input_data/output_data) decodes to json.Number rather than float64, so
// recomputing canonical bytes from the parsed event reproduces the exact
// bytes the original signer produced.
func DecodeEvidenceBundle(data []byte) (*EvidenceBundle, error) {
	var b EvidenceBundle
	if err := crypto.DecodeJSONPreservingNumbers(data, &b); err != nil {
		return nil, err
	}
	return &b, nil
}
