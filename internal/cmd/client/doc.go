// Package client provides the `pulse` command-line client.
//
// The CLI talks to the Pulse HTTP and WebSocket endpoints to send test
// traffic and manage feature flags from a terminal. It is primarily
// intended for developers and operators.
//
// Installation
//
//	go install github.com/rzbill/pulse/cmd/pulse@latest
//
// # Address configuration
//
// The HTTP base URL is discovered by the application that embeds the
// commands via a BaseURLFunc. When using the standalone binary, it
// defaults to http://127.0.0.1:8080 and can be overridden with the
// PULSE_HTTP environment variable.
//
// Usage
//
//	pulse track --tenant acme --event page_view --props '{"path":"/pricing"}'
//
//	# Reuse a session across commands
//	pulse track --tenant acme --session s-1 --anon a-1 --event signup_click
//
//	pulse identify --tenant acme --session s-1 --anon a-1 \
//	    --user u-42 --traits '{"plan":"pro"}'
//
//	pulse flags list --tenant acme
//	pulse flags toggle --tenant acme --key beta-banner --enabled=true
//	pulse flags refresh
//
// Notes
//
//   - track and identify open a WebSocket to /v1/connect, deliver the
//     message and wait for a ping round trip before closing, so the
//     server has processed the message by the time the command exits.
//   - session and anon ids default to fresh UUIDs when not provided.
//   - flags subcommands use the HTTP admin API exposed by the server.
package client
