// Package engine implements the single-threaded cooperative event loop: it
// multiplexes UDP socket reads, the timer queue, and the crypto pipeline's
// completion inbox, and owns the state table and connection list as a
// single mutable value instead of ambient globals.
package engine

import (
	"context"
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ikeswand/ikeswand/internal/config"
	"github.com/ikeswand/ikeswand/internal/crypto"
	"github.com/ikeswand/ikeswand/internal/state"
)

// Packet is one inbound UDP datagram, read off either the IKE or NAT-T
// port, queued for the event loop to process in arrival order: there is
// no per-peer parallelism at the protocol layer.
type Packet struct {
	Data []byte
	From *net.UDPAddr
	// NATT is true if this arrived on the 4500 listener rather than 500.
	NATT bool
	// LocalIP is the destination address the kernel delivered this
	// datagram on, recovered from the socket's IP_PKTINFO control
	// message. Only populated when the listener requested control
	// messages; nil on backends (tests, Fake transports) that don't.
	LocalIP net.IP
}

// Handlers is the set of callbacks the engine dispatches into; they are
// supplied by whatever layer implements actual IKEv1/IKEv2 message
// processing. Keeping them as fields, rather than an interface the engine
// itself implements, favors tagged variants over dynamic dispatch for the
// loop's own wiring.
type Handlers struct {
	// OnPacket handles one inbound datagram.
	OnPacket func(e *Engine, pkt Packet)
	// OnTimer handles one fired timer for a still-live state. Already
	// resolved from the serial and already matched against the state's
	// current scheduled-event slot by the time this is called.
	OnTimer func(e *Engine, st *state.State, kind state.EventKind)
	// OnDHComplete handles a crypto pipeline result arriving for a
	// still-live state. If the owning state was deleted in the meantime,
	// the engine drops the task (Cancel) without calling this.
	OnDHComplete func(e *Engine, st *state.State, task *crypto.DHTask)
}

// Engine is the process-wide mutable state this daemon revolves around:
// the state table, the connection list, and the event queue, owned by one
// value passed to every handler by reference.
type Engine struct {
	Log         *logrus.Logger
	States      *state.Table
	Connections []config.Connection
	Timers      *TimerQueue
	DH          *crypto.Pipeline

	handlers Handlers
	inbound  chan Packet
	outbound func(data []byte, to *net.UDPAddr) error

	wake chan struct{} // nudges Run's select after a new timer is scheduled sooner than the current wait

	// pendingDH correlates an in-flight task back to the serial of the
	// state that submitted it, since the task itself carries no such
	// reference.
	pendingDH map[*crypto.DHTask]uint64
}

// New constructs an Engine. outbound is the function the loop calls to
// actually write a UDP datagram; it must not block.
func New(log *logrus.Logger, dh *crypto.Pipeline, outbound func(data []byte, to *net.UDPAddr) error, handlers Handlers) *Engine {
	return &Engine{
		Log:      log,
		States:   state.NewTable(),
		Timers:   NewTimerQueue(),
		DH:       dh,
		handlers: handlers,
		inbound:   make(chan Packet, 256),
		outbound:  outbound,
		wake:      make(chan struct{}, 1),
		pendingDH: make(map[*crypto.DHTask]uint64),
	}
}

// SubmitDH submits a DH computation over group and peerPublic to the
// pipeline and records which state it belongs to, so a later completion
// on DH.Results() can be routed back to the right state. It neither reads
// nor sets st.DHSecret; callers store the returned task there themselves.
func (e *Engine) SubmitDH(st *state.State, group crypto.DHGroup, peerPublic []byte) *crypto.DHTask {
	task := e.DH.Submit(group, peerPublic)
	e.pendingDH[task] = st.Serial
	return task
}

// Enqueue hands a received datagram to the loop. Safe to call from the
// goroutine that reads the UDP socket.
func (e *Engine) Enqueue(pkt Packet) {
	e.inbound <- pkt
}

// Send writes an outbound datagram via the configured transport.
func (e *Engine) Send(data []byte, to *net.UDPAddr) error {
	return e.outbound(data, to)
}

// ScheduleTimer schedules a new timer and wakes the loop if it's now the
// earliest pending one, so Run's wait doesn't oversleep past it.
func (e *Engine) ScheduleTimer(at time.Time, serial uint64, kind state.EventKind) uint64 {
	t := e.Timers.Schedule(at, serial, kind)
	select {
	case e.wake <- struct{}{}:
	default:
	}
	return t.Handle
}

// Run is the cooperative event loop: it pulls one ready
// item at a time and runs its handler to completion without yielding,
// returning when ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	for {
		var timerC <-chan time.Time
		var timer *time.Timer

		if next, ok := e.Timers.Peek(); ok {
			d := time.Until(next.At)
			if d < 0 {
				d = 0
			}
			timer = time.NewTimer(d)
			timerC = timer.C
		}

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case pkt := <-e.inbound:
			if timer != nil {
				timer.Stop()
			}
			if e.handlers.OnPacket != nil {
				e.handlers.OnPacket(e, pkt)
			}

		case task := <-e.DH.Results():
			if timer != nil {
				timer.Stop()
			}
			e.dispatchDHCompletion(task)

		case <-e.wake:
			if timer != nil {
				timer.Stop()
			}
			// loop around: the new earliest timer (if any) is picked up
			// at the top on the next iteration.

		case <-timerC:
			e.fireNextTimer()
		}
	}
}

// dispatchDHCompletion resolves a finished DH task to its owning state via
// the serial recorded at Submit time. If that state no longer exists —
// deleted while the task was in flight — the task is orphaned: its result
// is dropped without invoking the callback, and Cancel releases whatever
// it held.
func (e *Engine) dispatchDHCompletion(task *crypto.DHTask) {
	if task == nil {
		return
	}
	serial, known := e.pendingDH[task]
	delete(e.pendingDH, task)

	if !known {
		task.Cancel()
		return
	}

	owner, live := e.States.BySerial(serial)
	if !live {
		task.Cancel()
		return
	}

	if e.handlers.OnDHComplete != nil {
		e.handlers.OnDHComplete(e, owner, task)
	} else {
		task.Cancel()
	}
}

// fireNextTimer pops the earliest timer, resolves its state, and either
// dispatches it (state still live and this is still its current
// scheduled event of that kind) or drops it — deletion invalidates all
// pending events referencing that state.
func (e *Engine) fireNextTimer() {
	t, ok := e.Timers.Pop()
	if !ok {
		return
	}

	st, ok := e.States.BySerial(t.Serial)
	if !ok {
		return // state deleted; drop silently
	}

	handle, ok := st.HasEvent(t.Kind)
	if !ok || handle != t.Handle {
		return // superseded by a newer event of the same kind
	}

	st.ClearEvent(t.Kind)
	if e.handlers.OnTimer != nil {
		e.handlers.OnTimer(e, st, t.Kind)
	}
}
