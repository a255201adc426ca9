package engine

import (
	"context"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ikeswand/ikeswand/internal/crypto"
	"github.com/ikeswand/ikeswand/internal/state"
)

func newTestEngine(t *testing.T, handlers Handlers) (*Engine, *crypto.Pipeline) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	dh := crypto.NewPipeline(ctx, 1)
	t.Cleanup(dh.Close)

	log := logrus.New()
	log.SetOutput(io.Discard)

	e := New(log, dh, func([]byte, *net.UDPAddr) error { return nil }, handlers)
	return e, dh
}

func TestEngineDispatchesPacketsInOrder(t *testing.T) {
	var mu sync.Mutex
	var seen []string

	e, _ := newTestEngine(t, Handlers{
		OnPacket: func(e *Engine, pkt Packet) {
			mu.Lock()
			seen = append(seen, string(pkt.Data))
			mu.Unlock()
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	go e.Run(ctx)

	e.Enqueue(Packet{Data: []byte("first")})
	e.Enqueue(Packet{Data: []byte("second")})

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := len(seen)
		mu.Unlock()
		if n >= 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for both packets to be dispatched")
		}
		time.Sleep(time.Millisecond)
	}
	cancel()

	mu.Lock()
	defer mu.Unlock()
	if seen[0] != "first" || seen[1] != "second" {
		t.Fatalf("got order %v, want [first second]", seen)
	}
}

func TestEngineDropsTimerForDeletedState(t *testing.T) {
	fired := false
	e, _ := newTestEngine(t, Handlers{
		OnTimer: func(e *Engine, st *state.State, kind state.EventKind) {
			fired = true
		},
	})

	s := e.States.New(state.KindIKE)
	handle := e.ScheduleTimer(time.Now().Add(10*time.Millisecond), s.Serial, state.EventRetransmit)
	s.SetEvent(state.EventRetransmit, handle)

	e.States.Delete(s.Serial)

	ctx, cancel := context.WithCancel(context.Background())
	go e.Run(ctx)
	time.Sleep(100 * time.Millisecond)
	cancel()

	if fired {
		t.Fatal("OnTimer fired for a state deleted before the timer expired")
	}
}

func TestEngineFiresTimerForLiveState(t *testing.T) {
	done := make(chan state.EventKind, 1)
	e, _ := newTestEngine(t, Handlers{
		OnTimer: func(e *Engine, st *state.State, kind state.EventKind) {
			done <- kind
		},
	})

	s := e.States.New(state.KindIKE)
	handle := e.ScheduleTimer(time.Now().Add(10*time.Millisecond), s.Serial, state.EventDPD)
	s.SetEvent(state.EventDPD, handle)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Run(ctx)

	select {
	case kind := <-done:
		if kind != state.EventDPD {
			t.Fatalf("fired kind = %v, want EventDPD", kind)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for timer to fire")
	}
}

func TestEngineSubmitDHRoutesCompletionToOwner(t *testing.T) {
	done := make(chan uint64, 1)
	e, _ := newTestEngine(t, Handlers{
		OnDHComplete: func(e *Engine, st *state.State, task *crypto.DHTask) {
			done <- st.Serial
		},
	})

	s := e.States.New(state.KindIKE)
	g := crypto.Curve25519Group()
	_, peerPublic, err := g.GeneratePrivate()
	if err != nil {
		t.Fatalf("GeneratePrivate: %v", err)
	}

	e.SubmitDH(s, g, peerPublic)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Run(ctx)

	select {
	case serial := <-done:
		if serial != s.Serial {
			t.Fatalf("completion routed to serial %d, want %d", serial, s.Serial)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for DH completion")
	}
}
