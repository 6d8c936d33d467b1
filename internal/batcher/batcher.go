package batcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rzbill/pulse/internal/metrics"
	"github.com/rzbill/pulse/internal/storage"
	logpkg "github.com/rzbill/pulse/pkg/log"
)

// Options tunes the batcher. Zero values take the defaults below.
type Options struct {
	// BatchSize is the buffer length that triggers a synchronous flush.
	BatchSize int
	// FlushInterval is the timer-driven flush period.
	FlushInterval time.Duration
}

const (
	defaultBatchSize     = 100
	defaultFlushInterval = 5 * time.Second
)

// Batcher is the serialized owner of the pending-event buffer. Events are
// owned by the batcher from Enqueue until a flush storage confirms; a failed
// flush retains them for the next trigger.
type Batcher struct {
	mu     sync.Mutex
	buf    []storage.Event
	closed bool
	timer  *time.Timer

	store    storage.Store
	logger   logpkg.Logger
	size     int
	interval time.Duration
}

// New constructs a batcher and arms the flush timer.
func New(store storage.Store, logger logpkg.Logger, opts Options) *Batcher {
	if logger == nil {
		logger = logpkg.NewLogger()
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = defaultFlushInterval
	}
	b := &Batcher{
		store:    store,
		logger:   logger.WithComponent("batcher"),
		size:     opts.BatchSize,
		interval: opts.FlushInterval,
	}
	b.timer = time.AfterFunc(b.interval, b.timerFlush)
	return b
}

// Enqueue appends the event to the buffer. When the buffer reaches the size
// threshold the flush runs synchronously inside this call, before the next
// message is accepted. Enqueue never fails and applies no backpressure.
func (b *Batcher) Enqueue(ev storage.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.buf = append(b.buf, ev)
	metrics.EventsReceivedTotal.Inc()
	metrics.BatcherBufferSize.Set(float64(len(b.buf)))
	if len(b.buf) >= b.size {
		// size-triggered path; does not touch the timer
		b.flushLocked(context.Background())
	}
}

// EnqueueIdentify bypasses the buffer and upserts the identity link
// synchronously. Identify messages are low-frequency and later events rely
// on the server-tracked user id, so they must be durable immediately.
func (b *Batcher) EnqueueIdentify(ctx context.Context, tenant, anonID, userID, traits string) error {
	if err := b.store.UpsertIdentify(ctx, tenant, anonID, userID, traits); err != nil {
		return fmt.Errorf("identify upsert: %w", err)
	}
	metrics.IdentifiesTotal.Inc()
	return nil
}

// Len returns the number of buffered events.
func (b *Batcher) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buf)
}

// Flush attempts a storage write of the current buffer. Exposed for the
// runtime's shutdown path and tests; the steady-state triggers are the timer
// and the size threshold.
func (b *Batcher) Flush(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.flushLocked(ctx)
}

// timerFlush is the recurring trigger. It re-arms itself after every firing
// regardless of flush outcome; the size-triggered path never re-arms.
func (b *Batcher) timerFlush() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.flushLocked(context.Background())
	b.timer.Reset(b.interval)
}

// flushLocked implements the flush policy. Caller holds b.mu.
//
// The batch counts as persisted when storage confirms at least one row;
// rows storage rejected individually are logged and dropped with the rest
// of the successful batch. Only a zero-persisted outcome retains the buffer,
// so already-succeeded writes are never replayed.
func (b *Batcher) flushLocked(ctx context.Context) {
	if len(b.buf) == 0 {
		return
	}
	batch := b.buf
	persisted, err := b.store.InsertEventsBatch(ctx, batch)
	if err != nil || persisted == 0 {
		metrics.BatchFlushFailuresTotal.Inc()
		b.logger.Warn("flush failed, retaining buffer",
			logpkg.Int("buffered", len(b.buf)),
			logpkg.Err(err))
		return
	}
	if persisted < len(batch) {
		b.logger.Warn("flush persisted partial batch",
			logpkg.Int("persisted", persisted),
			logpkg.Int("failed", len(batch)-persisted))
	}
	metrics.BatchFlushesTotal.Inc()
	metrics.EventsPersistedTotal.Add(float64(persisted))
	b.buf = nil
	metrics.BatcherBufferSize.Set(0)
}

// Close stops the timer and makes a final best-effort flush. Events that
// still fail to persist at this point are lost, which is the accepted
// durability window of this design.
func (b *Batcher) Close(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	b.timer.Stop()
	b.flushLocked(ctx)
}
