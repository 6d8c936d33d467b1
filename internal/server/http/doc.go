// Package httpserver exposes Pulse over HTTP: the /v1/connect WebSocket
// upgrade for SDK clients, a small JSON admin surface for feature flags,
// a health probe and Prometheus metrics.
//
// Example:
//
//	rt, _ := runtime.Open(runtime.Options{Config: config.Default()})
//	s := httpserver.New(rt, logger)
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = s.ListenAndServe(ctx, ":8080")
package httpserver
