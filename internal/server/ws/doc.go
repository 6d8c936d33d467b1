// Package ws implements the per-connection protocol state machine bound to
// one live WebSocket from open to close. Each connection runs one reader
// goroutine that processes inbound messages strictly in arrival order and
// routes them to the batcher, the flag cache, and the session write-through
// path. Writes are serialized with a mutex because both the reader (pong
// replies) and the registry (flag broadcasts) write to the same socket.
package ws
