package runtime

import (
	"context"
	"errors"
	"testing"

	cfgpkg "github.com/rzbill/pulse/internal/config"
	"github.com/rzbill/pulse/internal/storage"
	logpkg "github.com/rzbill/pulse/pkg/log"
)

type fakeStore struct {
	storage.Store
	pingErr error
	grouped map[string][]storage.Flag
	closed  bool
}

func (f *fakeStore) Ping(context.Context) error { return f.pingErr }

func (f *fakeStore) FlagsGroupedByTenant(context.Context) (map[string][]storage.Flag, error) {
	return f.grouped, nil
}

func (f *fakeStore) InsertEventsBatch(_ context.Context, events []storage.Event) (int, error) {
	return len(events), nil
}

func (f *fakeStore) SetFlagEnabled(_ context.Context, tenant, key string, enabled bool) (storage.Flag, error) {
	return storage.Flag{Tenant: tenant, Key: key, Enabled: enabled}, nil
}

func (f *fakeStore) Close() error {
	f.closed = true
	return nil
}

func quietLogger() logpkg.Logger {
	return logpkg.NewLogger(logpkg.WithLevel(logpkg.ErrorLevel), logpkg.WithOutput(logpkg.NullOutput{}))
}

func testConfig() cfgpkg.Config {
	cfg := cfgpkg.Default()
	cfg.FlagRefreshIntervalMs = 0 // no background loop in tests
	return cfg
}

func TestOpenHydratesFlagCache(t *testing.T) {
	fs := &fakeStore{grouped: map[string][]storage.Flag{
		"t1": {{Tenant: "t1", Key: "beta", Enabled: true}},
	}}
	rt, err := Open(Options{Config: testConfig(), Logger: quietLogger(), Store: fs})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rt.Close()
	got := rt.Flags("t1")
	if len(got) != 1 || got[0].Key != "beta" {
		t.Fatalf("flags: %v", got)
	}
}

func TestOpenFailsWhenPingFails(t *testing.T) {
	fs := &fakeStore{pingErr: errors.New("no route to host")}
	if _, err := Open(Options{Config: testConfig(), Logger: quietLogger(), Store: fs}); err == nil {
		t.Fatalf("expected open failure")
	}
	if !fs.closed {
		t.Fatalf("store should be closed on failed open")
	}
}

func TestToggleFacade(t *testing.T) {
	fs := &fakeStore{grouped: map[string][]storage.Flag{}}
	rt, err := Open(Options{Config: testConfig(), Logger: quietLogger(), Store: fs})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rt.Close()
	if err := rt.ToggleFlag(context.Background(), "t1", "beta", true); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	got := rt.Flags("t1")
	if len(got) != 1 || !got[0].Enabled {
		t.Fatalf("toggle not visible: %v", got)
	}
}

func TestCloseReleasesStore(t *testing.T) {
	fs := &fakeStore{}
	rt, err := Open(Options{Config: testConfig(), Logger: quietLogger(), Store: fs})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := rt.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !fs.closed {
		t.Fatalf("store not closed")
	}
	// double close is safe
	if err := rt.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}
