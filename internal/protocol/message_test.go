package protocol

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseEventDefaults(t *testing.T) {
	m, err := Parse([]byte(`{"type":"event"}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if m.Kind != KindEvent {
		t.Fatalf("kind: %v", m.Kind)
	}
	if m.Event != "" || m.Props != "{}" || m.Ts != 0 {
		t.Fatalf("defaults: %+v", m)
	}
}

func TestParseEventFull(t *testing.T) {
	m, err := Parse([]byte(`{"type":"event","event":"purchase","props":"{\"sku\":\"x\"}","ts":2000}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if m.Event != "purchase" || m.Props != `{"sku":"x"}` || m.Ts != 2000 {
		t.Fatalf("fields: %+v", m)
	}
}

func TestParseIdentify(t *testing.T) {
	m, err := Parse([]byte(`{"type":"identify","userId":"u1"}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if m.Kind != KindIdentify || m.UserID != "u1" || m.Traits != "{}" {
		t.Fatalf("identify: %+v", m)
	}
}

func TestParseIdentifyMissingUserID(t *testing.T) {
	if _, err := Parse([]byte(`{"type":"identify"}`)); !errors.Is(err, ErrBadMessage) {
		t.Fatalf("expected ErrBadMessage, got %v", err)
	}
}

func TestParsePingIgnoresExtraFields(t *testing.T) {
	m, err := Parse([]byte(`{"type":"ping","x":1}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if m.Kind != KindPing {
		t.Fatalf("kind: %v", m.Kind)
	}
}

func TestParseFailures(t *testing.T) {
	cases := []string{
		`not json`,
		`{}`,
		`{"type":123}`,
		`{"type":null}`,
		`"event"`,
		`[1,2]`,
		`null`,
		`{"type":"subscribe"}`,
	}
	for _, raw := range cases {
		if _, err := Parse([]byte(raw)); !errors.Is(err, ErrBadMessage) {
			t.Fatalf("input %q: expected ErrBadMessage, got %v", raw, err)
		}
	}
}

func TestPong(t *testing.T) {
	var obj map[string]any
	if err := json.Unmarshal(Pong(), &obj); err != nil {
		t.Fatalf("pong json: %v", err)
	}
	if obj["type"] != "pong" {
		t.Fatalf("pong: %v", obj)
	}
}

func TestEncodeFlags(t *testing.T) {
	b := EncodeFlags(map[string]bool{"dark_mode": true, "beta": false})
	var obj struct {
		Type  string          `json:"type"`
		Flags map[string]bool `json:"flags"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		t.Fatalf("flags json: %v", err)
	}
	if obj.Type != "flags" || obj.Flags["dark_mode"] != true || obj.Flags["beta"] != false {
		t.Fatalf("flags payload: %s", b)
	}
}

func TestEncodeFlagsEmpty(t *testing.T) {
	b := EncodeFlags(nil)
	var obj struct {
		Flags map[string]bool `json:"flags"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		t.Fatalf("flags json: %v", err)
	}
	if obj.Flags == nil || len(obj.Flags) != 0 {
		t.Fatalf("expected empty object, got %s", b)
	}
}
