// Package registry tracks, per tenant, the set of currently open
// connections, and delivers broadcast payloads to all of them. A single
// mutex serializes register/unregister/broadcast so no operation observes a
// torn intermediate state; callers never reach the internal maps directly.
package registry
