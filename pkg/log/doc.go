// Package log provides Pulse's structured logging facade.
//
// The package exposes a small Logger interface with leveled methods and a
// Field type for structured context. Internally it is backed by the standard
// library slog via a custom handler that routes records through the package's
// formatter/output pipeline, so slog-aware libraries and our own code produce
// consistent output.
//
// Quick start:
//
//	l := log.NewLogger(
//	    log.WithLevel(log.InfoLevel),
//	    log.WithFormatter(&log.TextFormatter{}),
//	    log.WithOutput(log.NewConsoleOutput()),
//	)
//	l = l.WithComponent("batcher")
//	l.Info("flush complete", log.Int("events", 100))
//
// Use ApplyConfig to build a logger from declarative level/format strings,
// and RedirectStdLog to route stdlib log output (as emitted by third-party
// libraries) through the facade.
package log
