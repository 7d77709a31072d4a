package connectivity

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pilebones/go-udev/netlink"

	"fieldsync/internal/config"
)

type switchProber struct {
	mu   sync.Mutex
	down bool
	hits int
}

func (p *switchProber) Health(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hits++
	if p.down {
		return errors.New("dial tcp: connection refused")
	}
	return nil
}

func (p *switchProber) set(down bool) {
	p.mu.Lock()
	p.down = down
	p.mu.Unlock()
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Connectivity.Netlink = false
	cfg.Connectivity.ProbeIntervalSeconds = 60
	return &cfg
}

func TestCheckFiresReconnectOnlyAfterOffline(t *testing.T) {
	prober := &switchProber{}
	m := NewMonitor(testConfig(), prober, nil)
	var fired atomic.Int32
	m.OnReconnect(func() { fired.Add(1) })
	ctx := context.Background()

	if got := m.Check(ctx); got != StateOnline {
		t.Fatalf("expected online, got %s", got)
	}
	if fired.Load() != 0 {
		t.Fatal("unknown to online must not count as a reconnect")
	}

	prober.set(true)
	if got := m.Check(ctx); got != StateOffline {
		t.Fatalf("expected offline, got %s", got)
	}
	if snap := m.Snapshot(); snap.LastError == "" {
		t.Fatal("expected probe error recorded")
	}
	m.Check(ctx)

	prober.set(false)
	m.Check(ctx)
	m.Check(ctx)
	if fired.Load() != 1 {
		t.Fatalf("expected exactly one reconnect, got %d", fired.Load())
	}
}

func TestOnReconnectUnsubscribe(t *testing.T) {
	prober := &switchProber{down: true}
	m := NewMonitor(testConfig(), prober, nil)
	calls := 0
	unsubscribe := m.OnReconnect(func() { calls++ })
	ctx := context.Background()

	m.Check(ctx)
	unsubscribe()
	unsubscribe()
	prober.set(false)
	m.Check(ctx)
	if calls != 0 {
		t.Fatalf("expected no calls after unsubscribe, got %d", calls)
	}
}

func TestNilProberIsAlwaysOnline(t *testing.T) {
	m := NewMonitor(testConfig(), nil, nil)
	if m.State() != StateOnline {
		t.Fatalf("expected online, got %s", m.State())
	}
	if m.Check(context.Background()) != StateOnline {
		t.Fatal("expected online check")
	}
}

func TestStartProbesAndWakeTriggersCheck(t *testing.T) {
	prober := &switchProber{}
	m := NewMonitor(testConfig(), prober, nil)
	m.Start(context.Background())
	m.Start(context.Background())
	defer m.Stop()

	waitFor(t, func() bool { return m.State() == StateOnline })

	prober.set(true)
	m.Wake()
	waitFor(t, func() bool { return m.State() == StateOffline })

	m.Stop()
	m.Stop()
}

func TestBuildMatcherAcceptsNetEvents(t *testing.T) {
	matcher := buildMatcher()
	if matcher == nil {
		t.Fatal("expected non-nil matcher")
	}
	for _, action := range []netlink.KObjAction{netlink.ADD, netlink.CHANGE, netlink.REMOVE} {
		event := netlink.UEvent{Action: action, Env: map[string]string{"SUBSYSTEM": "net", "INTERFACE": "wlan0"}}
		if !matcher.Evaluate(event) {
			t.Errorf("expected %s net event to match", action)
		}
	}
	blockEvent := netlink.UEvent{Action: netlink.ADD, Env: map[string]string{"SUBSYSTEM": "block"}}
	if matcher.Evaluate(blockEvent) {
		t.Error("expected block event to be ignored")
	}
}

func TestNetlinkWatcherNilSafety(t *testing.T) {
	var w *netlinkWatcher
	w.Start(context.Background())
	w.Stop()
	if w.Running() {
		t.Fatal("nil watcher must not report running")
	}

	calls := 0
	w = newNetlinkWatcher(NewMonitor(testConfig(), nil, nil).logger, func() { calls++ })
	w.handleEvent(netlink.UEvent{Action: netlink.ADD, Env: map[string]string{"SUBSYSTEM": "net"}})
	if calls != 1 {
		t.Fatalf("expected onChange call, got %d", calls)
	}
	w.Stop()
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
