// Package runtime wires storage, config, and the three serialized owners
// (connection registry, flag cache, event batcher) into a single-node Pulse
// instance. It exposes Open/Close, a health check, and the admin facade the
// HTTP layer serves.
//
// Example:
//
//	cfg := config.Default()
//	rt, _ := runtime.Open(runtime.Options{Config: cfg, Logger: logger})
//	defer rt.Close()
//	_ = rt.CheckHealth(context.Background())
//	_ = rt.ToggleFlag(context.Background(), "acme", "dark_mode", true)
package runtime
