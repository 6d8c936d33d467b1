package serverrun

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	cfgpkg "github.com/rzbill/pulse/internal/config"
	"github.com/rzbill/pulse/internal/metrics"
	"github.com/rzbill/pulse/internal/runtime"
	httpserver "github.com/rzbill/pulse/internal/server/http"
	logpkg "github.com/rzbill/pulse/pkg/log"
)

func getenvDefault(key, def string) string {
	if v := getenv(key); v != "" {
		return v
	}
	return def
}

// small wrapper to allow testing; replaced by os.Getenv at build time
var getenv = func(key string) string { return os.Getenv(key) }

type Options struct {
	HTTPAddr     string
	EnsureSchema bool
	Config       cfgpkg.Config
}

// Run starts the runtime and HTTP server and blocks until ctx is cancelled.
func Run(ctx context.Context, opts Options) error {
	// Be robust to callers that don't pass a signal-aware context
	// or if signal delivery needs to be observed here. We layer a
	// local signal context over the provided one.
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Build process-wide logger using env/ApplyConfig; defaults: level=info, format=text
	cfg := &logpkg.Config{
		Level:  getenvDefault("PULSE_LOG_LEVEL", "info"),
		Format: getenvDefault("PULSE_LOG_FORMAT", "text"),
	}
	procLogger, err := logpkg.ApplyConfig(cfg)
	if err != nil {
		// Fallback to a sane default
		lvl := logpkg.InfoLevel
		if l, e := logpkg.ParseLevel(cfg.Level); e == nil {
			lvl = l
		}
		procLogger = logpkg.NewLogger(logpkg.WithLevel(lvl), logpkg.WithFormatter(&logpkg.TextFormatter{}))
	}

	// Redirect stdlib logs (e.g., net/http) to our logger
	logpkg.RedirectStdLog(procLogger)

	metrics.Register()

	rt, err := runtime.Open(runtime.Options{Config: opts.Config, Logger: procLogger, EnsureSchema: opts.EnsureSchema})
	if err != nil {
		return err
	}
	defer rt.Close()

	procLogger.Info("Starting Pulse server",
		logpkg.Str("http", opts.HTTPAddr),
		logpkg.Str("level", cfg.Level),
		logpkg.Str("format", cfg.Format),
		logpkg.Int("batch_size", opts.Config.BatchSize),
		logpkg.Int("flush_interval_ms", opts.Config.FlushIntervalMs),
	)

	hsrv := httpserver.New(rt, procLogger)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := hsrv.ListenAndServe(sctx, opts.HTTPAddr); err != nil && sctx.Err() == nil {
			procLogger.Error("http server failed", logpkg.Err(err))
		}
	}()

	<-sctx.Done()
	// Initiate graceful shutdown of the server before closing the runtime
	// so in-flight requests don't race a closing store.
	hsrv.Close()
	wg.Wait()
	return nil
}
