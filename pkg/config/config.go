// Package config assembles the recognized options for a facto SDK client:
// endpoint, identity, signing key, and batching parameters. Options are set
// via functional Option values, with a single environment fallback for the
// ingestion endpoint and an optional YAML file form for the rest.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultBatchSize and DefaultFlushInterval match the batcher's own
// zero-value defaults (pkg/batch), repeated here so a Config built with no
// options at all is still usable.
const (
	DefaultBatchSize     = 100
	DefaultFlushInterval = 5 * time.Second
)

// envEndpoint is the one environment variable the core contract
// acknowledges (spec.md §7): "Collaborators may read FACTO_ENDPOINT; this
// is not part of the core contract." Read only as a fallback when Endpoint
// is never set via option or file.
const envEndpoint = "FACTO_ENDPOINT"

// Config holds the recognized SDK client options (spec.md §7).
type Config struct {
	Endpoint              string            `yaml:"endpoint"`
	AgentID               string            `yaml:"agent_id"`
	SessionID             string            `yaml:"session_id"`
	SigningKeySeed        []byte            `yaml:"-"`
	BatchSize             int               `yaml:"batch_size"`
	FlushIntervalSeconds  float64           `yaml:"flush_interval_seconds"`
	Tags                  map[string]string `yaml:"tags"`

	// Logger backs every log line this client's components emit. Defaults
	// to slog.Default(). The client tags its own lines component=facto and
	// the batcher tags its lines component=facto-batcher, matching the
	// teacher's logger.With("component", ...) convention.
	Logger *slog.Logger `yaml:"-"`
}

// Option mutates a Config under construction.
type Option func(*Config)

// WithEndpoint sets the ingestion endpoint URL.
func WithEndpoint(endpoint string) Option {
	return func(c *Config) { c.Endpoint = endpoint }
}

// WithAgentID sets the agent identifier attached to every built event.
func WithAgentID(agentID string) Option {
	return func(c *Config) { c.AgentID = agentID }
}

// WithSessionID pins the session identifier. If never set, New generates
// one, matching spec.md §7's "generated if absent".
func WithSessionID(sessionID string) Option {
	return func(c *Config) { c.SessionID = sessionID }
}

// WithSigningKeySeed pins the Ed25519 seed backing the session's signer. If
// never set, a fresh key is generated, matching spec.md §7's "generated if
// absent".
func WithSigningKeySeed(seed []byte) Option {
	return func(c *Config) { c.SigningKeySeed = seed }
}

// WithBatchSize overrides the batcher's size trigger.
func WithBatchSize(n int) Option {
	return func(c *Config) { c.BatchSize = n }
}

// WithFlushInterval overrides the batcher's age trigger.
func WithFlushInterval(d time.Duration) Option {
	return func(c *Config) { c.FlushIntervalSeconds = d.Seconds() }
}

// WithTags stores a static string->string tag set on the Config. Built
// events do not carry it: pkg/client does not copy Tags into any event.
func WithTags(tags map[string]string) Option {
	return func(c *Config) { c.Tags = tags }
}

// WithLogger overrides the default slog.Default() logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) { c.Logger = logger }
}

// New builds a Config from defaults, the FACTO_ENDPOINT environment
// fallback, and the given options, applied in that order so an explicit
// WithEndpoint always wins over the environment.
func New(opts ...Option) *Config {
	c := &Config{
		BatchSize:            DefaultBatchSize,
		FlushIntervalSeconds: DefaultFlushInterval.Seconds(),
		Logger:               slog.Default(),
	}
	if v := os.Getenv(envEndpoint); v != "" {
		c.Endpoint = v
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FlushInterval returns FlushIntervalSeconds as a time.Duration.
func (c *Config) FlushInterval() time.Duration {
	return time.Duration(c.FlushIntervalSeconds * float64(time.Second))
}

// LoadFile reads a YAML document with the same recognized keys as the
// functional-option form (endpoint, agent_id, session_id, batch_size,
// flush_interval_seconds, tags) and applies the given options on top,
// mirroring the teacher's pkg/config.LoadProfile's
// read-then-yaml.Unmarshal shape.
func LoadFile(path string, opts ...Option) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	c := New()
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}
