// Package factoerr defines the error taxonomy shared by every facto
// component, grouped by the classes in the record/verify error design.
package factoerr

import "errors"

// Validation errors are fatal at the record site; callers must not retry.
var (
	ErrInvalidTimestamps = errors.New("facto: started_at must be <= completed_at")
	ErrInvalidStatus     = errors.New("facto: status must be success, failure, or in_progress")
	ErrMalformedKey      = errors.New("facto: public key must be 32 raw bytes")
	ErrMalformedSignature = errors.New("facto: signature must be 64 raw bytes")
)

// Canonicalization errors are fatal at the record site.
var ErrNotJSONRepresentable = errors.New("facto: value is not JSON-representable")

// Integrity errors are verifier-only and are always accumulated, never
// fail-fast, so a full forensic report can be produced from one bundle read.
var (
	ErrHashMismatch    = errors.New("facto: event_hash does not match recomputed canonical hash")
	ErrSignatureInvalid = errors.New("facto: signature does not verify against public_key")
	ErrChainBroken     = errors.New("facto: prev_hash chain linkage is broken")
	ErrMerkleInvalid   = errors.New("facto: merkle inclusion proof does not fold to the claimed root")
)

// Transport errors are retried by the batcher with backoff, then escalated.
var (
	ErrSendFailed   = errors.New("facto: batch send failed")
	ErrSendRejected = errors.New("facto: batch send rejected by collaborator")
	ErrSendTimeout  = errors.New("facto: batch send timed out")
	ErrBatchDropped = errors.New("facto: batch dropped after exhausting retries")
)

// Lifecycle errors are reported to the caller: ErrClosed by Append after
// Close, ErrCloseTimeout by Close.
var (
	ErrClosed       = errors.New("facto: client is closed")
	ErrCloseTimeout = errors.New("facto: close timed out with events unflushed")
)
