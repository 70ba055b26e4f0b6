// Package verify implements the offline Verifier (C9): given an evidence
// bundle, it replays the canonicalizer, hasher, signer, session chain, and
// Merkle engine over the received bytes without trusting anything else.
//
// Trust model: the verifier trusts only the cryptographic primitives
// (SHA3-256, Ed25519) and the canonical form defined in pkg/crypto. It
// does not trust the ingestion collaborator, storage layer, or any
// network service — every check here is a local recomputation.
package verify

import (
	"fmt"
	"time"

	"github.com/facto-ai/facto/pkg/chain"
	"github.com/facto-ai/facto/pkg/crypto"
	"github.com/facto-ai/facto/pkg/event"
	"github.com/facto-ai/facto/pkg/merkle"
	"github.com/facto-ai/facto/pkg/wire"
)

// Version is the verifier's own version, surfaced in every report so a
// report can be matched back to the verifier logic that produced it.
const Version = "1.0.0"

// CountResult is a per-class pass/fail tally.
type CountResult struct {
	Valid   int `json:"valid"`
	Invalid int `json:"invalid"`
}

// ChainResult is the per-session and aggregate chain-linkage verdict.
type ChainResult struct {
	Valid    bool            `json:"valid"`
	Sessions map[string]bool `json:"sessions,omitempty"`
}

// MerkleResult tallies the supplied Merkle proofs. It deliberately does
// not penalize the absence of proofs — see Report.Issues and Options.Strict.
type MerkleResult struct {
	Valid int `json:"valid"`
	Total int `json:"total"`
}

// Issue is one human-readable finding attached to the report, additive to
// the pass/fail counts — the verifier always records a reason alongside a
// failed check.
type Issue struct {
	Kind      string `json:"kind"`
	FactoID   string `json:"facto_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Detail    string `json:"detail"`
}

// Report is the verifier's structured output.
type Report struct {
	IsValid         bool        `json:"is_valid"`
	Timestamp       time.Time  `json:"timestamp"`
	Hashes          CountResult `json:"hashes"`
	Signatures      CountResult `json:"signatures"`
	Chain           ChainResult `json:"chain"`
	Merkle          MerkleResult `json:"merkle"`
	Issues          []Issue     `json:"issues,omitempty"`
	VerifierVersion string      `json:"verifier_version"`
}

func (r *Report) issue(kind, factoID, sessionID, format string, args ...interface{}) {
	r.Issues = append(r.Issues, Issue{
		Kind:      kind,
		FactoID:   factoID,
		SessionID: sessionID,
		Detail:    fmt.Sprintf(format, args...),
	})
}

// Options configures a verification run.
type Options struct {
	// Strict implements spec.md §9's suggested truncation-resistance
	// option (a): fail is_valid if any event in the bundle has no
	// covering Merkle proof. Off by default, matching the base design
	// ("the verifier reports, but does NOT fail on, the absence of
	// Merkle proofs").
	Strict bool
}

// VerifyBundle runs the full C9 algorithm against an in-memory evidence
// bundle and returns a report. It never fails fast: every event, every
// session, and every supplied Merkle proof is checked and recorded, so a
// single call produces a complete forensic report.
func VerifyBundle(bundle *wire.EvidenceBundle, opts Options) *Report {
	report := &Report{
		Timestamp:       time.Now().UTC(),
		Chain:           ChainResult{Sessions: map[string]bool{}},
		VerifierVersion: Version,
	}

	sessionEvents := map[string][]event.FactoEvent{}

	// recomputedHash holds, per facto_id, the hash actually recomputed from
	// canonical bytes in this step — never the event's self-reported
	// proof.event_hash. Step 2's chain linkage must be built from this map,
	// not from proof.event_hash: a mutation that leaves an event's proof
	// untouched (spec.md §8 scenario 2) only breaks the chain if the next
	// event's prev_hash is checked against what e2 actually hashes to now,
	// not against what e2 claims it hashes to.
	recomputedHash := map[string]string{}

	// Step 1: per-event hash and signature recomputation.
	for i := range bundle.Events {
		ev := &bundle.Events[i]
		sessionEvents[ev.SessionID] = append(sessionEvents[ev.SessionID], *ev)

		canonical, err := ev.CanonicalBytes()
		if err != nil {
			report.Hashes.Invalid++
			report.Signatures.Invalid++
			report.issue("hash-mismatch", ev.FactoID, ev.SessionID, "canonicalization failed: %v", err)
			// No recomputed hash is available; fall back to the
			// self-reported one so chain linkage still has something to
			// key off, rather than leaving a blank link.
			recomputedHash[ev.FactoID] = ev.Proof.EventHash
			continue
		}

		hashHex := crypto.HashHex(canonical)
		recomputedHash[ev.FactoID] = hashHex

		if hashHex == ev.Proof.EventHash {
			report.Hashes.Valid++
		} else {
			report.Hashes.Invalid++
			report.issue("hash-mismatch", ev.FactoID, ev.SessionID, "event_hash does not match recomputed canonical hash")
		}

		ok, err := crypto.Verify(ev.Proof.PublicKey, ev.Proof.Signature, canonical)
		if err != nil {
			report.Signatures.Invalid++
			report.issue("signature-invalid", ev.FactoID, ev.SessionID, "%v", err)
		} else if ok {
			report.Signatures.Valid++
		} else {
			report.Signatures.Invalid++
			report.issue("signature-invalid", ev.FactoID, ev.SessionID, "signature does not verify against public_key")
		}
	}

	// Step 2: group by session, validate chain linkage per session.
	allChainsValid := true
	for sessionID, events := range sessionEvents {
		entries := make([]chain.LinkEntry, len(events))
		pubKey := ""
		keyStable := true
		for i, ev := range events {
			entries[i] = chain.LinkEntry{
				EventHash:   recomputedHash[ev.FactoID],
				PrevHash:    ev.Proof.PrevHash,
				CompletedAt: ev.CompletedAt,
			}
			if pubKey == "" {
				pubKey = ev.Proof.PublicKey
			} else if ev.Proof.PublicKey != pubKey {
				keyStable = false
			}
		}

		valid := true
		if err := chain.ValidateOrder(entries); err != nil {
			valid = false
			report.issue("chain-broken", "", sessionID, "%v", err)
		}
		if !keyStable {
			valid = false
			report.issue("chain-broken", "", sessionID, "public_key changed within a single session")
		}

		report.Chain.Sessions[sessionID] = valid
		if !valid {
			allChainsValid = false
		}
	}
	report.Chain.Valid = allChainsValid

	// Step 3 & 4: verify each supplied Merkle proof and cross-check it
	// against the bundle (every referenced event must be present, and a
	// session's proofs must agree on one root).
	eventByFactoID := map[string]*event.FactoEvent{}
	for i := range bundle.Events {
		eventByFactoID[bundle.Events[i].FactoID] = &bundle.Events[i]
	}
	rootBySession := map[string]string{}
	provenBySession := map[string]map[string]bool{}

	for _, entry := range bundle.MerkleProofs {
		report.Merkle.Total++

		ev, present := eventByFactoID[entry.FactoID]
		if !present {
			report.issue("merkle-invalid", entry.FactoID, "", "proof references facto_id not present in events")
			continue
		}
		if ev.Proof.EventHash != entry.EventHash {
			report.issue("merkle-invalid", entry.FactoID, ev.SessionID, "proof event_hash does not match the event's event_hash")
			continue
		}

		if existing, ok := rootBySession[ev.SessionID]; ok && existing != entry.Root {
			report.issue("merkle-invalid", entry.FactoID, ev.SessionID, "session has inconsistent Merkle roots across its proofs")
			continue
		}
		rootBySession[ev.SessionID] = entry.Root

		steps := make([]merkle.Step, len(entry.Proof))
		for i, s := range entry.Proof {
			steps[i] = merkle.Step{Hash: s.Hash, Side: merkle.Side(s.Side)}
		}
		proof := merkle.Proof{LeafHash: entry.EventHash, Root: entry.Root, Steps: steps}

		if merkle.VerifyProof(proof) {
			report.Merkle.Valid++
			if provenBySession[ev.SessionID] == nil {
				provenBySession[ev.SessionID] = map[string]bool{}
			}
			provenBySession[ev.SessionID][ev.FactoID] = true
		} else {
			report.issue("merkle-invalid", entry.FactoID, ev.SessionID, "inclusion proof does not fold to the claimed root")
		}
	}

	// Step 5: aggregate. Strict mode additionally requires every event to
	// carry a covering, valid Merkle proof — the documented mitigation
	// for tail-truncation when proofs are omitted or dropped.
	merkleAllValid := report.Merkle.Valid == report.Merkle.Total
	report.IsValid = report.Hashes.Invalid == 0 &&
		report.Signatures.Invalid == 0 &&
		report.Chain.Valid &&
		merkleAllValid

	if opts.Strict {
		for _, ev := range bundle.Events {
			if !provenBySession[ev.SessionID][ev.FactoID] {
				report.IsValid = false
				report.issue("merkle-invalid", ev.FactoID, ev.SessionID, "strict mode: event has no covering Merkle proof")
			}
		}
	}

	return report
}
