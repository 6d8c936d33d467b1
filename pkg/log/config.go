package log

import (
	stdlog "log"
)

// Config declaratively describes a logger: a level name and a format name
// ("text" or "json"). Zero values fall back to info/text.
type Config struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// ApplyConfig builds a Logger from cfg. Unknown level or format names are
// errors; empty strings use the defaults.
func ApplyConfig(cfg *Config) (Logger, error) {
	level := InfoLevel
	if cfg.Level != "" {
		parsed, err := ParseLevel(cfg.Level)
		if err != nil {
			return nil, err
		}
		level = parsed
	}
	var formatter Formatter
	switch cfg.Format {
	case "", "text":
		formatter = &TextFormatter{}
	case "json":
		formatter = &JSONFormatter{}
	default:
		return nil, errUnknownFormat(cfg.Format)
	}
	return NewLogger(WithLevel(level), WithFormatter(formatter)), nil
}

type errUnknownFormat string

func (e errUnknownFormat) Error() string { return "unknown log format " + string(e) }

// RedirectStdLog routes the standard library's global logger through l at
// info level. Third-party libraries that log via the stdlib end up in the
// same pipeline as everything else.
func RedirectStdLog(l Logger) {
	stdlog.SetFlags(0)
	stdlog.SetOutput(stdLogWriter{l: l})
}

type stdLogWriter struct{ l Logger }

func (w stdLogWriter) Write(p []byte) (int, error) {
	msg := string(p)
	if n := len(msg); n > 0 && msg[n-1] == '\n' {
		msg = msg[:n-1]
	}
	w.l.Info(msg)
	return len(p), nil
}
