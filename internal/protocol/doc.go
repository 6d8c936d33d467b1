// Package protocol defines the JSON wire messages exchanged with connected
// clients: event/identify/ping inbound and pong/flags outbound. Parsing is
// deliberately forgiving: missing optional fields take documented defaults
// and extra fields are ignored, so a malformed client never takes down its
// connection.
package protocol
