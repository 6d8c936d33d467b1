// Package flags serves current flag state per tenant and coordinates the
// toggle-then-broadcast path. The cache is the process-wide source of truth
// for what connected clients see; a toggle reaches storage first, then the
// cache, then the wire, strictly in that order, so no client ever observes a
// flag value that was not durably persisted.
package flags
