package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/facto-ai/facto/pkg/crypto"
	"github.com/facto-ai/facto/pkg/event"
	"github.com/facto-ai/facto/pkg/wire"
)

func writeBundle(t *testing.T, events []event.FactoEvent) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "bundle.json")
	data, err := json.Marshal(wire.EvidenceBundle{Events: events})
	if err != nil {
		t.Fatalf("marshal bundle: %v", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write bundle: %v", err)
	}
	return path
}

func buildEvents(t *testing.T, n int) []event.FactoEvent {
	t.Helper()
	signer, err := crypto.NewSigner()
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	b := event.NewBuilder("agent-1", "session-1", signer)
	events := make([]event.FactoEvent, n)
	for i := 0; i < n; i++ {
		ev, err := b.Build(event.Input{ActionType: "llm_call", InputData: map[string]interface{}{"i": i}})
		if err != nil {
			t.Fatalf("Build: %v", err)
		}
		events[i] = *ev
	}
	return events
}

func TestRun_VerifyPass(t *testing.T) {
	path := writeBundle(t, buildEvents(t, 3))

	var stdout, stderr bytes.Buffer
	code := Run([]string{"facto", "verify", "--bundle", path}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit code = %d, want 0; stdout=%s stderr=%s", code, stdout.String(), stderr.String())
	}
}

func TestRun_VerifyFailOnTamper(t *testing.T) {
	events := buildEvents(t, 2)
	events[0].OutputData = map[string]interface{}{"tampered": true}
	path := writeBundle(t, events)

	var stdout, stderr bytes.Buffer
	code := Run([]string{"facto", "verify", "--bundle", path}, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
}

func TestRun_VerifyJSONOutput(t *testing.T) {
	path := writeBundle(t, buildEvents(t, 1))

	var stdout, stderr bytes.Buffer
	code := Run([]string{"facto", "verify", "--bundle", path, "--json"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}

	var report struct {
		IsValid bool `json:"is_valid"`
	}
	if err := json.Unmarshal(stdout.Bytes(), &report); err != nil {
		t.Fatalf("output is not valid JSON: %v\n%s", err, stdout.String())
	}
	if !report.IsValid {
		t.Fatal("expected is_valid=true in JSON report")
	}
}

func TestRun_MissingBundleFlag(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := Run([]string{"facto", "verify"}, &stdout, &stderr)
	if code != 2 {
		t.Fatalf("exit code = %d, want 2", code)
	}
}

func TestRun_UnknownCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := Run([]string{"facto", "bogus"}, &stdout, &stderr)
	if code != 2 {
		t.Fatalf("exit code = %d, want 2", code)
	}
}
