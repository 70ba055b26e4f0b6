// Package batch implements the Batcher (C6): a bounded buffer that hands
// off signed events to an ingestion collaborator in batches, triggered by
// size, age, an explicit flush, or close.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/facto-ai/facto/pkg/event"
	"github.com/facto-ai/facto/pkg/factoerr"
)

// Sender hands a batch of events to the ingestion collaborator. A non-nil
// error means the whole batch is retried; the batcher never partitions a
// batch on partial failure.
type Sender interface {
	SendBatch(ctx context.Context, events []event.FactoEvent) error
}

// Options configures a Batcher. Zero values fall back to defaults sized
// for a single-agent SDK client.
type Options struct {
	// BatchSize triggers a flush once the buffer reaches this length.
	BatchSize int
	// FlushInterval triggers a flush once the oldest buffered event's age
	// reaches this duration.
	FlushInterval time.Duration
	// HardCap is the buffered-event count at which Append blocks the
	// caller (backpressure) rather than growing further. Defaults to
	// 10x BatchSize.
	HardCap int
	// MaxAttempts bounds the retry count for one batch send, including
	// the first attempt.
	MaxAttempts int
	// Backoff controls the delay between retry attempts.
	Backoff BackoffPolicy
	// OnError is invoked (from the batcher's single internal goroutine)
	// whenever a batch exhausts its retries. Defaults to a Warn-level
	// Logger.Warn call tagging component=facto-batcher when left nil,
	// rather than swallowing a batch-dropped error silently.
	OnError func(error)
	// Logger backs the default OnError and is tagged component=facto-batcher.
	// Defaults to slog.Default() when nil.
	Logger *slog.Logger
	// SendRateLimit caps outbound SendBatch calls per second, gating sends
	// the same way the teacher's BaseConnector gates outbound emission
	// behind a *rate.Limiter. Zero (the default) means unlimited — the
	// existing size/age/flush triggers are unaffected unless a caller
	// opts in.
	SendRateLimit rate.Limit
	// SendBurst sets the limiter's burst size. Defaults to 1 when
	// SendRateLimit is set and SendBurst is left at zero.
	SendBurst int
}

func (o *Options) setDefaults() {
	if o.BatchSize <= 0 {
		o.BatchSize = 100
	}
	if o.FlushInterval <= 0 {
		o.FlushInterval = 5 * time.Second
	}
	if o.HardCap <= 0 {
		o.HardCap = o.BatchSize * 10
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 5
	}
	if o.Backoff == (BackoffPolicy{}) {
		o.Backoff = DefaultBackoffPolicy()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.OnError == nil {
		logger := o.Logger.With("component", "facto-batcher")
		o.OnError = func(err error) {
			logger.Warn("batch send exhausted retries", "error", err)
		}
	}
}

// Batcher buffers events per spec.md §4.6: size/time/flush/close triggers,
// a single in-flight send at a time (enforced simply by doing all sending
// from the one background goroutine), and never reordering events within
// a session — a failed send's events are put back at the front of the
// buffer ahead of anything appended during the retry.
type Batcher struct {
	opts    Options
	sender  Sender
	limiter *rate.Limiter

	mu       sync.Mutex
	notFull  *sync.Cond
	buf      []event.FactoEvent
	oldestAt time.Time
	closed   bool

	flushNow chan struct{}
	closeCh  chan struct{}
	doneCh   chan struct{}
	closeOne sync.Once
}

// New constructs a Batcher and starts its background flush loop.
func New(sender Sender, opts Options) *Batcher {
	opts.setDefaults()
	b := &Batcher{
		opts:     opts,
		sender:   sender,
		flushNow: make(chan struct{}, 1),
		closeCh:  make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	if opts.SendRateLimit > 0 {
		burst := opts.SendBurst
		if burst <= 0 {
			burst = 1
		}
		b.limiter = rate.NewLimiter(opts.SendRateLimit, burst)
	}
	b.notFull = sync.NewCond(&b.mu)
	go b.loop()
	return b
}

// Append adds an event to the buffer, blocking while the buffer is at its
// hard cap (backpressure) and triggering an async flush once the buffer
// reaches BatchSize.
func (b *Batcher) Append(ev event.FactoEvent) error {
	b.mu.Lock()
	for len(b.buf) >= b.opts.HardCap && !b.closed {
		b.notFull.Wait()
	}
	if b.closed {
		b.mu.Unlock()
		return fmt.Errorf("%w: batcher is closed", factoerr.ErrClosed)
	}
	if len(b.buf) == 0 {
		b.oldestAt = time.Now()
	}
	b.buf = append(b.buf, ev)
	shouldFlush := len(b.buf) >= b.opts.BatchSize
	b.mu.Unlock()

	if shouldFlush {
		b.signalFlush()
	}
	return nil
}

// Flush requests an out-of-band flush of whatever is currently buffered.
// It is asynchronous: it schedules the flush on the background goroutine
// rather than blocking until the send completes.
func (b *Batcher) Flush() {
	b.signalFlush()
}

func (b *Batcher) signalFlush() {
	select {
	case b.flushNow <- struct{}{}:
	default:
	}
}

// Close stops accepting new events, attempts one final flush (including
// its normal retries), and waits up to timeout for that flush to finish.
// If timeout elapses first, any events still buffered are lost — the
// caller is responsible for having drained the batcher earlier.
func (b *Batcher) Close(timeout time.Duration) error {
	b.closeOne.Do(func() {
		b.mu.Lock()
		b.closed = true
		b.mu.Unlock()
		b.notFull.Broadcast()
		close(b.closeCh)
	})

	select {
	case <-b.doneCh:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("%w", factoerr.ErrCloseTimeout)
	}
}

func (b *Batcher) loop() {
	defer close(b.doneCh)

	ticker := time.NewTicker(b.tickInterval())
	defer ticker.Stop()

	for {
		select {
		case <-b.flushNow:
			b.flushOnce(context.Background())
		case <-ticker.C:
			b.flushIfAged(context.Background())
		case <-b.closeCh:
			b.flushOnce(context.Background())
			return
		}
	}
}

func (b *Batcher) tickInterval() time.Duration {
	d := b.opts.FlushInterval / 4
	if d < 25*time.Millisecond {
		d = 25 * time.Millisecond
	}
	return d
}

func (b *Batcher) flushIfAged(ctx context.Context) {
	b.mu.Lock()
	aged := len(b.buf) > 0 && time.Since(b.oldestAt) >= b.opts.FlushInterval
	b.mu.Unlock()
	if aged {
		b.flushOnce(ctx)
	}
}

func (b *Batcher) flushOnce(ctx context.Context) {
	b.mu.Lock()
	if len(b.buf) == 0 {
		b.mu.Unlock()
		return
	}
	batch := b.buf
	b.buf = nil
	b.mu.Unlock()
	b.notFull.Broadcast()

	if err := b.sendWithRetry(ctx, batch); err != nil {
		b.opts.OnError(fmt.Errorf("%w: %v", factoerr.ErrBatchDropped, err))
		b.mu.Lock()
		b.buf = append(batch, b.buf...)
		if b.oldestAt.IsZero() {
			b.oldestAt = time.Now()
		}
		b.mu.Unlock()
	}
}

func (b *Batcher) sendWithRetry(ctx context.Context, batch []event.FactoEvent) error {
	batchKey := ""
	if len(batch) > 0 {
		batchKey = batch[0].FactoID
	}

	var lastErr error
	for attempt := 0; attempt < b.opts.MaxAttempts; attempt++ {
		if b.limiter != nil {
			if err := b.limiter.Wait(ctx); err != nil {
				lastErr = err
				break
			}
		}
		lastErr = b.sender.SendBatch(ctx, batch)
		if lastErr == nil {
			return nil
		}
		if attempt == b.opts.MaxAttempts-1 {
			break
		}
		time.Sleep(computeBackoff(b.opts.Backoff, batchKey, attempt))
	}
	return fmt.Errorf("%w: %v", factoerr.ErrSendFailed, lastErr)
}
