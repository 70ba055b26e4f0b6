// Package client wires the Event Builder (C4), Session Chain (C5),
// Batcher (C6), and Scoped Recorders (C7) into the single object an
// application embeds: one Client per agent session.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/facto-ai/facto/pkg/batch"
	"github.com/facto-ai/facto/pkg/config"
	"github.com/facto-ai/facto/pkg/crypto"
	"github.com/facto-ai/facto/pkg/event"
	"github.com/facto-ai/facto/pkg/recorder"
	"github.com/facto-ai/facto/pkg/wire"
)

// Client is the facto SDK entrypoint: construct one per agent session with
// New, record activity through Record/Scoped/Wrap, and call Close before
// the process exits so the final batch is flushed.
type Client struct {
	cfg     *config.Config
	signer  *crypto.Signer
	builder *event.Builder
	batcher *batch.Batcher
	logger  *slog.Logger
	*recorder.Recorder
}

// New builds a Client from the given options. A signing key is generated
// if WithSigningKeySeed was never supplied; a session_id is generated if
// WithSessionID was never supplied.
func New(opts ...config.Option) (*Client, error) {
	cfg := config.New(opts...)
	logger := cfg.Logger.With("component", "facto")

	signer, err := newSigner(cfg)
	if err != nil {
		return nil, err
	}

	if cfg.SessionID == "" {
		cfg.SessionID = "sess-" + crypto.HashHex([]byte(signer.PublicKeyBase64()+fmt.Sprint(time.Now().UnixNano())))[:16]
	}

	builder := event.NewBuilder(cfg.AgentID, cfg.SessionID, signer)

	sender := newHTTPSender(cfg.Endpoint)
	batcher := batch.New(sender, batch.Options{
		BatchSize:     cfg.BatchSize,
		FlushInterval: cfg.FlushInterval(),
		Logger:        cfg.Logger,
	})

	c := &Client{
		cfg:     cfg,
		signer:  signer,
		builder: builder,
		batcher: batcher,
		logger:  logger,
	}
	c.Recorder = recorder.New(builder, c.sink)
	logger.Info("facto client initialized", "agent_id", cfg.AgentID, "session_id", cfg.SessionID)
	return c, nil
}

func newSigner(cfg *config.Config) (*crypto.Signer, error) {
	if len(cfg.SigningKeySeed) > 0 {
		return crypto.NewSignerFromSeed(cfg.SigningKeySeed)
	}
	return crypto.NewSigner()
}

func (c *Client) sink(ev event.FactoEvent) error {
	return c.batcher.Append(ev)
}

// Flush requests an out-of-band batch flush; see batch.Batcher.Flush.
func (c *Client) Flush() {
	c.batcher.Flush()
}

// Close stops accepting new events and flushes the final batch, waiting up
// to timeout. Unflushed events on timeout are lost (spec.md §4.6).
func (c *Client) Close(timeout time.Duration) error {
	err := c.batcher.Close(timeout)
	c.signer.Zeroize()
	if err != nil {
		c.logger.Error("facto client close timed out with events unflushed", "error", err)
	}
	return err
}

// SessionID returns the session_id every event built by this client shares.
func (c *Client) SessionID() string { return c.cfg.SessionID }

// PublicKeyBase64 returns this client's signing public key, base64-encoded
// exactly as it appears on built events' proof.public_key.
func (c *Client) PublicKeyBase64() string { return c.signer.PublicKeyBase64() }

// httpSender implements batch.Sender over POST {endpoint}.
type httpSender struct {
	endpoint string
	http     *http.Client
}

func newHTTPSender(endpoint string) *httpSender {
	return &httpSender{endpoint: endpoint, http: &http.Client{Timeout: 30 * time.Second}}
}

func (s *httpSender) SendBatch(ctx context.Context, events []event.FactoEvent) error {
	if s.endpoint == "" {
		return fmt.Errorf("facto client: no endpoint configured")
	}

	body, err := json.Marshal(wire.IngestBatchRequest{Events: events})
	if err != nil {
		return fmt.Errorf("facto client: marshal batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("facto client: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("facto client: send batch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("facto client: ingestion returned status %d", resp.StatusCode)
	}

	var out wire.IngestBatchResponse
	_ = json.NewDecoder(resp.Body).Decode(&out)
	if out.RejectedCount > 0 {
		return fmt.Errorf("facto client: ingestion rejected %d/%d events", out.RejectedCount, len(events))
	}
	return nil
}
