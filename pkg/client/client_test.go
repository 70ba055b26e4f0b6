package client_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/facto-ai/facto/pkg/client"
	"github.com/facto-ai/facto/pkg/config"
	"github.com/facto-ai/facto/pkg/wire"
)

func TestClient_RecordAndFlushReachesServer(t *testing.T) {
	received := make(chan wire.IngestBatchRequest, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req wire.IngestBatchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		received <- req
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(wire.IngestBatchResponse{AcceptedCount: len(req.Events)})
	}))
	defer server.Close()

	c, err := client.New(
		config.WithEndpoint(server.URL),
		config.WithAgentID("agent-1"),
		config.WithSessionID("session-1"),
		config.WithBatchSize(1000),
		config.WithFlushInterval(time.Hour),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	id, err := c.Record("llm_call", map[string]interface{}{"prompt": "hi"}, map[string]interface{}{"reply": "hello"}, nil, "")
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if id == "" {
		t.Fatal("expected non-empty facto_id")
	}

	c.Flush()

	select {
	case req := <-received:
		if len(req.Events) != 1 {
			t.Fatalf("server received %d events, want 1", len(req.Events))
		}
		if req.Events[0].FactoID != id {
			t.Error("server-received facto_id mismatch")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server never received the batch")
	}

	if err := c.Close(2 * time.Second); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestClient_GeneratesSessionIDWhenAbsent(t *testing.T) {
	c, err := client.New(config.WithAgentID("agent-1"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close(time.Second)

	if c.SessionID() == "" {
		t.Fatal("expected a generated session_id")
	}
}
