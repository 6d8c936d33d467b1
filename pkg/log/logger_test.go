package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	if l, err := ParseLevel("WARN"); err != nil || l != WarnLevel {
		t.Fatalf("parse warn: %v %v", l, err)
	}
	if _, err := ParseLevel("verbose"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestLevelGating(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(WithLevel(WarnLevel), WithOutput(NewWriterOutput(&buf)))
	l.Info("hidden")
	l.Warn("shown")
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info should be gated: %q", out)
	}
	if !strings.Contains(out, "shown") {
		t.Fatalf("warn should pass: %q", out)
	}
}

func TestWithFieldsPropagate(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(WithFormatter(&JSONFormatter{}), WithOutput(NewWriterOutput(&buf)))
	l = l.WithComponent("flags").With(Str("tenant", "t1"))
	l.Info("toggled", Bool("enabled", true))

	var obj map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &obj); err != nil {
		t.Fatalf("unmarshal: %v (%q)", err, buf.String())
	}
	if obj["component"] != "flags" || obj["tenant"] != "t1" {
		t.Fatalf("base fields missing: %v", obj)
	}
	if obj["enabled"] != true || obj["msg"] != "toggled" {
		t.Fatalf("call fields missing: %v", obj)
	}
}

func TestSetLevelSharedWithDerived(t *testing.T) {
	var buf bytes.Buffer
	root := NewLogger(WithOutput(NewWriterOutput(&buf)))
	derived := root.With(Str("k", "v"))
	root.SetLevel(ErrorLevel)
	derived.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("derived logger should honor root level: %q", buf.String())
	}
}

func TestApplyConfig(t *testing.T) {
	l, err := ApplyConfig(&Config{Level: "debug", Format: "json"})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if l.GetLevel() != DebugLevel {
		t.Fatalf("level: %v", l.GetLevel())
	}
	if _, err := ApplyConfig(&Config{Format: "xml"}); err == nil {
		t.Fatalf("expected unknown format error")
	}
}
