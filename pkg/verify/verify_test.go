package verify

import (
	"testing"

	"github.com/facto-ai/facto/pkg/crypto"
	"github.com/facto-ai/facto/pkg/event"
	"github.com/facto-ai/facto/pkg/merkle"
	"github.com/facto-ai/facto/pkg/wire"
)

func buildSession(t *testing.T, signer *crypto.Signer, sessionID string, n int) []event.FactoEvent {
	t.Helper()
	b := event.NewBuilder("agent-1", sessionID, signer)
	var clock int64 = 1700000000000000000
	b.Now = func() int64 { clock++; return clock }

	events := make([]event.FactoEvent, n)
	for i := 0; i < n; i++ {
		ev, err := b.Build(event.Input{
			ActionType: "llm_call",
			InputData:  map[string]interface{}{"i": i},
			OutputData: map[string]interface{}{"ok": true},
		})
		if err != nil {
			t.Fatalf("Build: %v", err)
		}
		events[i] = *ev
	}
	return events
}

func merkleProofsFor(t *testing.T, events []event.FactoEvent) []wire.MerkleProofEntry {
	t.Helper()
	leaves := make([]string, len(events))
	for i, ev := range events {
		leaves[i] = ev.Proof.EventHash
	}
	tree, err := merkle.BuildTree(leaves)
	if err != nil {
		t.Fatalf("BuildTree: %v", err)
	}
	entries := make([]wire.MerkleProofEntry, len(events))
	for i, ev := range events {
		proof, err := tree.InclusionProof(i)
		if err != nil {
			t.Fatalf("InclusionProof: %v", err)
		}
		steps := make([]wire.ProofStep, len(proof.Steps))
		for j, s := range proof.Steps {
			steps[j] = wire.ProofStep{Hash: s.Hash, Side: string(s.Side)}
		}
		entries[i] = wire.MerkleProofEntry{
			FactoID:   ev.FactoID,
			EventHash: ev.Proof.EventHash,
			Root:      tree.Root,
			Proof:     steps,
		}
	}
	return entries
}

func TestVerifyBundle_HappyPathSingleEvent(t *testing.T) {
	signer, _ := crypto.NewSigner()
	events := buildSession(t, signer, "session-1", 1)
	bundle := &wire.EvidenceBundle{Events: events, MerkleProofs: merkleProofsFor(t, events)}

	report := VerifyBundle(bundle, Options{})
	if !report.IsValid {
		t.Fatalf("expected valid, got issues: %+v", report.Issues)
	}
	if report.Hashes != (CountResult{Valid: 1}) {
		t.Errorf("hashes = %+v", report.Hashes)
	}
	if report.Signatures != (CountResult{Valid: 1}) {
		t.Errorf("signatures = %+v", report.Signatures)
	}
	if !report.Chain.Valid {
		t.Error("chain should be valid")
	}
	if report.Merkle.Valid != 1 || report.Merkle.Total != 1 {
		t.Errorf("merkle = %+v", report.Merkle)
	}
}

func TestVerifyBundle_MultiEventChain(t *testing.T) {
	signer, _ := crypto.NewSigner()
	events := buildSession(t, signer, "session-1", 5)
	bundle := &wire.EvidenceBundle{Events: events, MerkleProofs: merkleProofsFor(t, events)}

	report := VerifyBundle(bundle, Options{})
	if !report.IsValid {
		t.Fatalf("expected valid, got issues: %+v", report.Issues)
	}
	if report.Hashes.Valid != 5 || report.Signatures.Valid != 5 {
		t.Errorf("expected 5 valid hashes/signatures, got %+v / %+v", report.Hashes, report.Signatures)
	}
}

// Scenario: mutated output_data after signing must break the hash check
// without the verifier crashing or short-circuiting other checks.
func TestVerifyBundle_MutatedOutputData(t *testing.T) {
	signer, _ := crypto.NewSigner()
	events := buildSession(t, signer, "session-1", 1)
	events[0].OutputData["ok"] = false

	bundle := &wire.EvidenceBundle{Events: events}
	report := VerifyBundle(bundle, Options{})

	if report.IsValid {
		t.Fatal("expected invalid after output_data mutation")
	}
	if report.Hashes.Invalid != 1 {
		t.Errorf("hashes = %+v, want 1 invalid", report.Hashes)
	}
	if report.Signatures.Invalid != 1 {
		t.Errorf("signatures = %+v, want 1 invalid (signed over stale canonical bytes)", report.Signatures)
	}
}

// Scenario: mutating the middle event of a 3-event chain's output_data
// while leaving its proof untouched must break chain linkage too, not just
// that event's own hash/signature check — e3.prev_hash still equals e2's
// stale, self-reported event_hash, but once e2 is recomputed it no longer
// matches, so the chain can no longer be walked from the zero hash through
// to e3.
func TestVerifyBundle_MutatedMiddleEventBreaksChainLinkage(t *testing.T) {
	signer, _ := crypto.NewSigner()
	events := buildSession(t, signer, "session-1", 3)
	events[1].OutputData["ok"] = "tampered"

	bundle := &wire.EvidenceBundle{Events: events}
	report := VerifyBundle(bundle, Options{})

	if report.IsValid {
		t.Fatal("expected invalid after mutating the middle event")
	}
	if report.Hashes.Invalid != 1 {
		t.Errorf("hashes = %+v, want 1 invalid", report.Hashes)
	}
	if report.Signatures.Invalid != 1 {
		t.Errorf("signatures = %+v, want 1 invalid", report.Signatures)
	}
	if report.Chain.Valid {
		t.Fatal("expected chain invalid: e3.prev_hash no longer matches e2 once e2 is recomputed")
	}
	if report.Chain.Sessions["session-1"] {
		t.Error("session-1 chain should be reported invalid")
	}
}

// Scenario: bit-flipping one hash in a supplied Merkle proof must fail
// only the Merkle check, not hashes/signatures/chain.
func TestVerifyBundle_MerkleProofBitFlip(t *testing.T) {
	signer, _ := crypto.NewSigner()
	events := buildSession(t, signer, "session-1", 4)
	proofs := merkleProofsFor(t, events)
	proofs[2].Proof[0].Hash = crypto.ZeroHash

	bundle := &wire.EvidenceBundle{Events: events, MerkleProofs: proofs}
	report := VerifyBundle(bundle, Options{})

	if report.IsValid {
		t.Fatal("expected invalid after Merkle proof tamper")
	}
	if report.Hashes.Invalid != 0 || report.Signatures.Invalid != 0 {
		t.Errorf("tampering the proof should not affect hashes/signatures: %+v / %+v", report.Hashes, report.Signatures)
	}
	if report.Merkle.Valid != 3 || report.Merkle.Total != 4 {
		t.Errorf("merkle = %+v, want 3/4 valid", report.Merkle)
	}
}

// Scenario: substituting a signature from a different event must fail the
// signature check even though the hash was untouched.
func TestVerifyBundle_SignatureSubstitution(t *testing.T) {
	signer, _ := crypto.NewSigner()
	events := buildSession(t, signer, "session-1", 2)
	events[0].Proof.Signature = events[1].Proof.Signature

	bundle := &wire.EvidenceBundle{Events: events}
	report := VerifyBundle(bundle, Options{})

	if report.IsValid {
		t.Fatal("expected invalid after signature substitution")
	}
	if report.Signatures.Invalid != 1 {
		t.Errorf("signatures = %+v, want 1 invalid", report.Signatures)
	}
	if report.Hashes.Invalid != 0 {
		t.Errorf("hash check should be unaffected: %+v", report.Hashes)
	}
}

// Scenario: re-signing with a substituted keypair and writing that
// keypair's public_key must still fail — the verifier never trusts a supplied key
// it hasn't cross-checked against anything else, but a swapped key with a
// consistent (re-signed) signature is only caught because the chain now
// carries two different public keys in one session.
func TestVerifyBundle_KeySubstitutionBreaksSessionKeyStability(t *testing.T) {
	signer1, _ := crypto.NewSigner()
	events := buildSession(t, signer1, "session-1", 3)

	signer2, _ := crypto.NewSigner()
	canonical, err := events[2].CanonicalBytes()
	if err != nil {
		t.Fatalf("CanonicalBytes: %v", err)
	}
	events[2].Proof.Signature = signer2.Sign(canonical)
	events[2].Proof.PublicKey = signer2.PublicKeyBase64()

	bundle := &wire.EvidenceBundle{Events: events}
	report := VerifyBundle(bundle, Options{})

	// The substituted event's own hash/signature check passes (it was
	// honestly re-signed), but the session-level key-stability check must
	// catch the rotation.
	if report.Chain.Valid {
		t.Fatal("expected chain invalid due to public_key rotation mid-session")
	}
	if report.IsValid {
		t.Fatal("expected overall invalid")
	}
}

// Scenario: truncating the bundle so a Merkle proof references a facto_id
// no longer present must be flagged, even in non-strict mode.
func TestVerifyBundle_TruncationDanglingProof(t *testing.T) {
	signer, _ := crypto.NewSigner()
	events := buildSession(t, signer, "session-1", 3)
	proofs := merkleProofsFor(t, events)

	truncated := events[:2]
	bundle := &wire.EvidenceBundle{Events: truncated, MerkleProofs: proofs}

	report := VerifyBundle(bundle, Options{})
	if report.IsValid {
		t.Fatal("expected invalid: a proof references a truncated-away facto_id")
	}

	found := false
	for _, iss := range report.Issues {
		if iss.Kind == "merkle-invalid" && iss.FactoID == events[2].FactoID {
			found = true
		}
	}
	if !found {
		t.Error("expected a merkle-invalid issue for the dangling proof")
	}
}

func TestVerifyBundle_StrictModeRequiresCoverage(t *testing.T) {
	signer, _ := crypto.NewSigner()
	events := buildSession(t, signer, "session-1", 2)
	// Only event 0 gets a proof.
	allProofs := merkleProofsFor(t, events)
	bundle := &wire.EvidenceBundle{Events: events, MerkleProofs: allProofs[:1]}

	loose := VerifyBundle(bundle, Options{Strict: false})
	if !loose.IsValid {
		t.Fatalf("non-strict mode should not fail on partial coverage: %+v", loose.Issues)
	}

	strict := VerifyBundle(bundle, Options{Strict: true})
	if strict.IsValid {
		t.Fatal("strict mode should fail when an event has no covering proof")
	}
}

// Scenario: the verifier must never consult an "alg" field or otherwise
// negotiate algorithm choice — a forged public_key of the wrong length is
// rejected outright rather than silently accepted under a weaker scheme.
func TestVerifyBundle_RejectsMalformedKeyNoAlgorithmAgility(t *testing.T) {
	signer, _ := crypto.NewSigner()
	events := buildSession(t, signer, "session-1", 1)
	events[0].Proof.PublicKey = "dG9vLXNob3J0" // base64("too-short"), wrong length

	bundle := &wire.EvidenceBundle{Events: events}
	report := VerifyBundle(bundle, Options{})

	if report.IsValid {
		t.Fatal("expected invalid for malformed public key")
	}
	if report.Signatures.Invalid != 1 {
		t.Errorf("signatures = %+v, want 1 invalid", report.Signatures)
	}
}

func TestVerifyBundle_MultipleSessionsIndependentlyEvaluated(t *testing.T) {
	signer, _ := crypto.NewSigner()
	a := buildSession(t, signer, "session-a", 2)
	bEvents := buildSession(t, signer, "session-b", 2)
	bEvents[1].OutputData["ok"] = "tampered"

	all := append(append([]event.FactoEvent{}, a...), bEvents...)
	bundle := &wire.EvidenceBundle{Events: all}
	report := VerifyBundle(bundle, Options{})

	if report.IsValid {
		t.Fatal("expected invalid: session-b has a tampered event")
	}
	if !report.Chain.Sessions["session-a"] {
		t.Error("session-a chain should be valid")
	}
	if report.Hashes.Valid != 3 || report.Hashes.Invalid != 1 {
		t.Errorf("hashes = %+v, want 3 valid / 1 invalid", report.Hashes)
	}
}
