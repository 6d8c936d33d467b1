package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rzbill/pulse/internal/batcher"
	"github.com/rzbill/pulse/internal/flags"
	"github.com/rzbill/pulse/internal/registry"
	"github.com/rzbill/pulse/internal/storage"
	"github.com/rzbill/pulse/pkg/id"
	logpkg "github.com/rzbill/pulse/pkg/log"
)

// fakeWire scripts inbound messages through a channel and records writes.
type fakeWire struct {
	in chan []byte

	mu      sync.Mutex
	written [][]byte
	closed  bool
}

func newFakeWire() *fakeWire { return &fakeWire{in: make(chan []byte, 16)} }

func (f *fakeWire) ReadMessage() (int, []byte, error) {
	b, ok := <-f.in
	if !ok {
		return 0, nil, errors.New("use of closed connection")
	}
	return 1, b, nil
}

func (f *fakeWire) WriteMessage(_ int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errors.New("write on closed connection")
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	f.written = append(f.written, cp)
	return nil
}

func (f *fakeWire) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeWire) writes() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.written))
	copy(out, f.written)
	return out
}

type fakeStore struct {
	storage.Store

	mu         sync.Mutex
	batches    [][]storage.Event
	sessions   []string
	touches    int
	userLinks  []string
	identifies []string
}

func (f *fakeStore) InsertEventsBatch(_ context.Context, events []storage.Event) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]storage.Event, len(events))
	copy(cp, events)
	f.batches = append(f.batches, cp)
	return len(events), nil
}

func (f *fakeStore) UpsertIdentify(_ context.Context, tenant, anonID, userID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.identifies = append(f.identifies, tenant+"/"+anonID+"/"+userID)
	return nil
}

func (f *fakeStore) UpsertSession(_ context.Context, tenant, sessionID, anonID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions = append(f.sessions, tenant+"/"+sessionID+"/"+anonID)
	return nil
}

func (f *fakeStore) TouchSession(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touches++
	return nil
}

func (f *fakeStore) SetSessionUser(_ context.Context, sessionID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.userLinks = append(f.userLinks, sessionID+"/"+userID)
	return nil
}

func (f *fakeStore) FlagsGroupedByTenant(context.Context) (map[string][]storage.Flag, error) {
	return map[string][]storage.Flag{
		"T": {{Tenant: "T", Key: "dark_mode", Enabled: true}},
	}, nil
}

func quietLogger() logpkg.Logger {
	return logpkg.NewLogger(logpkg.WithLevel(logpkg.FatalLevel), logpkg.WithOutput(logpkg.NullOutput{}))
}

func newTestConn(t *testing.T, w *fakeWire) (*Conn, *fakeStore, Deps) {
	t.Helper()
	fs := &fakeStore{}
	logger := quietLogger()
	reg := registry.New(logger)
	b := batcher.New(fs, logger, batcher.Options{BatchSize: 100, FlushInterval: time.Hour})
	t.Cleanup(func() { b.Close(context.Background()) })
	fc := flags.New(fs, reg, logger)
	if err := fc.Refresh(context.Background()); err != nil {
		t.Fatalf("flags refresh: %v", err)
	}
	deps := Deps{Batcher: b, Flags: fc, Registry: reg, Store: fs, IDs: id.NewGenerator(), Logger: logger}
	c := NewConn(w, Params{Tenant: "T", SessionID: "S", AnonID: "A"}, deps)
	return c, fs, deps
}

func TestRunEndToEnd(t *testing.T) {
	w := newFakeWire()
	c, fs, deps := newTestConn(t, w)

	w.in <- []byte(`{"type":"event","event":"page_view","props":"{}","ts":1000}`)
	w.in <- []byte(`{"type":"identify","userId":"u1"}`)
	w.in <- []byte(`{"type":"event","event":"purchase","ts":2000}`)
	close(w.in)

	c.Run(context.Background())

	if c.State() != StateClosed {
		t.Fatalf("state after run: %v", c.State())
	}
	if deps.Registry.Len("T") != 0 {
		t.Fatalf("connection still registered after close")
	}
	if len(fs.sessions) != 1 || fs.sessions[0] != "T/S/A" {
		t.Fatalf("session upsert: %v", fs.sessions)
	}
	if fs.touches != 2 {
		t.Fatalf("session touches: %d", fs.touches)
	}
	if len(fs.userLinks) != 1 || fs.userLinks[0] != "S/u1" {
		t.Fatalf("session user link: %v", fs.userLinks)
	}
	if len(fs.identifies) != 1 || fs.identifies[0] != "T/A/u1" {
		t.Fatalf("identify upsert: %v", fs.identifies)
	}

	// the two events sit in the batcher in order; the second carries userId
	deps.Batcher.Flush(context.Background())
	if len(fs.batches) != 1 {
		t.Fatalf("batches: %d", len(fs.batches))
	}
	batch := fs.batches[0]
	if len(batch) != 2 {
		t.Fatalf("batch size: %d", len(batch))
	}
	if batch[0].Name != "page_view" || batch[0].UserID != "" || batch[0].Ts != 1000 {
		t.Fatalf("first event: %+v", batch[0])
	}
	if batch[1].Name != "purchase" || batch[1].UserID != "u1" || batch[1].Ts != 2000 {
		t.Fatalf("second event: %+v", batch[1])
	}
	if batch[1].Props != "{}" {
		t.Fatalf("props default: %q", batch[1].Props)
	}

	// the first write on the socket is the initial flag snapshot
	writes := w.writes()
	if len(writes) == 0 {
		t.Fatalf("no writes")
	}
	var snap struct {
		Type  string          `json:"type"`
		Flags map[string]bool `json:"flags"`
	}
	if err := json.Unmarshal(writes[0], &snap); err != nil {
		t.Fatalf("snapshot json: %v", err)
	}
	if snap.Type != "flags" || snap.Flags["dark_mode"] != true {
		t.Fatalf("snapshot: %s", writes[0])
	}
}

func TestIdentifyTransition(t *testing.T) {
	w := newFakeWire()
	c, _, _ := newTestConn(t, w)
	if c.State() != StateOpen {
		t.Fatalf("initial state: %v", c.State())
	}
	c.handleMessage(context.Background(), []byte(`{"type":"identify","userId":"u9"}`))
	if c.State() != StateIdentified {
		t.Fatalf("state after identify: %v", c.State())
	}
}

func TestPingPong(t *testing.T) {
	w := newFakeWire()
	c, _, _ := newTestConn(t, w)
	c.handleMessage(context.Background(), []byte(`{"type":"ping"}`))
	writes := w.writes()
	if len(writes) != 1 || string(writes[0]) != `{"type":"pong"}` {
		t.Fatalf("pong: %v", writes)
	}
}

func TestUnparseableKeepsConnectionOpen(t *testing.T) {
	w := newFakeWire()
	c, _, deps := newTestConn(t, w)
	c.handleMessage(context.Background(), []byte(`not json`))
	c.handleMessage(context.Background(), []byte(`{"type":"subscribe"}`))
	if c.State() != StateOpen {
		t.Fatalf("state: %v", c.State())
	}
	if len(w.writes()) != 0 {
		t.Fatalf("no reply expected: %v", w.writes())
	}
	if deps.Batcher.Len() != 0 {
		t.Fatalf("nothing should be enqueued")
	}
}

func TestGeneratedConnIDsAreUnique(t *testing.T) {
	w := newFakeWire()
	_, _, deps := newTestConn(t, w)
	a := NewConn(newFakeWire(), Params{Tenant: "T", SessionID: "S1", AnonID: "A1"}, deps)
	b := NewConn(newFakeWire(), Params{Tenant: "T", SessionID: "S2", AnonID: "A2"}, deps)
	if a.ID() == b.ID() || a.ID() == "" {
		t.Fatalf("ids: %q %q", a.ID(), b.ID())
	}
}
