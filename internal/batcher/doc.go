// Package batcher absorbs the inbound event stream and commits it to
// storage in bounded-size batches, trading a small durability window for
// throughput.
//
// A flush is triggered by either the buffer reaching its size threshold
// (synchronously, inside Enqueue) or a recurring timer. Failed flushes keep
// the buffer intact and retry on the next trigger; the batch counts as
// persisted when storage confirms at least one row, with individual row
// failures logged rather than failing the batch. A persistently failing
// store therefore grows the buffer without bound; the size is exported as
// a gauge so operators can see it happening.
package batcher
