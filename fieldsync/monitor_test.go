package fieldsync

import (
	"context"
	"sync"
	"testing"
)

type fakeProber struct {
	mu     sync.Mutex
	online bool
}

func (p *fakeProber) set(online bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.online = online
}

func (p *fakeProber) Probe(context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.online
}

func testMonitor(t *testing.T) (*Monitor, *fakeProber, *fakeReplayer, *Store) {
	t.Helper()
	store := openTestStore(t)
	replayer := newFakeReplayer()
	engine := NewEngine(store, replayer, testLogger())
	prober := &fakeProber{}
	return NewMonitor(engine, prober, testLogger()), prober, replayer, store
}

func TestMonitorSchedulesDrainOnReconnect(t *testing.T) {
	m, prober, _, _ := testMonitor(t)
	ctx := context.Background()

	m.probe(ctx)
	if m.Online() {
		t.Fatal("expected monitor to start offline")
	}

	prober.set(true)
	m.probe(ctx)
	if !m.Online() {
		t.Fatal("expected monitor online after successful probe")
	}
	select {
	case <-m.trigger:
	default:
		t.Fatal("expected reconnect to schedule a drain")
	}
}

func TestMonitorStayingOnlineDoesNotRetrigger(t *testing.T) {
	m, prober, _, _ := testMonitor(t)
	ctx := context.Background()

	prober.set(true)
	m.probe(ctx)
	<-m.trigger

	// Still online: no new trigger.
	m.probe(ctx)
	select {
	case <-m.trigger:
		t.Fatal("expected no drain trigger without an offline-to-online transition")
	default:
	}
}

func TestRequestDrainCoalesces(t *testing.T) {
	m, _, _, _ := testMonitor(t)

	// A burst of requests during a network flap collapses into one pending
	// drain.
	for i := 0; i < 10; i++ {
		m.RequestDrain()
	}

	pending := 0
	for {
		select {
		case <-m.trigger:
			pending++
			continue
		default:
		}
		break
	}
	if pending != 1 {
		t.Fatalf("expected 1 coalesced drain trigger, got %d", pending)
	}
}

func TestMonitorDrainReplaysQueue(t *testing.T) {
	m, _, replayer, store := testMonitor(t)
	enqueueOp(t, store, "payment", "p1")

	m.drain(context.Background())

	if len(replayer.callList()) != 1 {
		t.Fatalf("expected 1 replay, got %d", len(replayer.callList()))
	}
	if ops, _ := store.ListAll(); len(ops) != 0 {
		t.Fatal("expected queue empty after drain")
	}
}
