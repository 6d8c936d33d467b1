// Package config provides loading and environment overlay for Pulse runtime
// configuration. It exposes a Default() baseline, a JSON file loader, and a
// FromEnv overlay driven by PULSE_* variables.
//
// Example:
//
//	cfg := config.Default()
//	if fileCfg, err := config.Load("/etc/pulse.json"); err == nil {
//	    cfg = fileCfg
//	}
//	config.FromEnv(&cfg)
//	rt, _ := runtime.Open(runtime.Options{Config: cfg, Logger: logger})
//	defer rt.Close()
package config
