package daemon

import (
	"net"
	"time"

	"github.com/ikeswand/ikeswand/internal/config"
	"github.com/ikeswand/ikeswand/internal/engine"
	"github.com/ikeswand/ikeswand/internal/exchange"
	"github.com/ikeswand/ikeswand/internal/kernel"
	"github.com/ikeswand/ikeswand/internal/state"
)

// OnTimer dispatches one fired scheduled event to the exchange package's
// pure decision functions, then acts on the decision: send a
// retransmission, rekey or prune an idle SA, or escalate a dead peer. The
// engine has already discarded timers for deleted states and superseded
// event slots by the time this runs.
func (d *Daemon) OnTimer(e *engine.Engine, st *state.State, kind state.EventKind) {
	conn, ok := d.connectionByName(st.ConnectionID)
	if !ok {
		d.logState(st).Warn("daemon: timer fired for state with no known connection, deleting")
		d.deleteState(e, st.Serial)
		return
	}

	switch kind {
	case state.EventRetransmit:
		d.onRetransmit(e, st, conn)
	case state.EventLiveness, state.EventDPD:
		d.onLiveness(e, st, conn)
	case state.EventReplace:
		d.onReplace(e, st, conn)
	}
}

func (d *Daemon) onRetransmit(e *engine.Engine, st *state.State, conn config.Connection) {
	delay := exchange.RetransmitDelay(conn.RetransmitInterval, conn.RetransmitTimeout, st.RetransmitCount)
	if delay == 0 {
		decision := exchange.EvaluateGiveUp(st.Try, conn.KeyingTries, conn.Policy.Has(config.IKEv2Allow))
		log := d.logState(st)
		if !decision.Retry {
			log.Warn("daemon: exchange gave up, no retry configured")
			d.deleteState(e, st.Serial)
			return
		}
		log.WithField("next_try", decision.NextTry).Warn("daemon: exchange gave up, deleting half-open state (fresh attempt left to the initiator)")
		d.deleteState(e, st.Serial)
		return
	}

	if st.FirstPacketMe != nil {
		to := net.UDPAddrFromAddrPort(st.RemoteAddr)
		if err := e.Send(st.FirstPacketMe, to); err != nil {
			d.logState(st).WithError(err).Warn("daemon: retransmit failed")
		}
	}
	st.RetransmitCount++
	handle := e.ScheduleTimer(time.Now().Add(delay), st.Serial, state.EventRetransmit)
	st.SetEvent(state.EventRetransmit, handle)
}

func (d *Daemon) onLiveness(e *engine.Engine, st *state.State, conn config.Connection) {
	lastInboundAge, err := d.Kernel.GetSAInfo(kernel.ProtocolESP, uint32(st.Serial), st.RemoteAddr.Addr())
	if err != nil {
		d.logState(st).WithError(err).Debug("daemon: liveness check: kernel SA lookup failed")
		lastInboundAge = conn.DPDTimeout // treat an unreadable SA as stale, not alive
	}

	decision := exchange.EvaluateLiveness(conn.DPDDelay, conn.DPDTimeout, lastInboundAge, false, -1)

	switch {
	case decision.PeerDead:
		d.logState(st).Warn("daemon: peer declared dead by DPD")
		d.applyDPDAction(e, st, conn)
		return
	case decision.SendProbe:
		d.logState(st).Debug("daemon: sending DPD liveness probe")
	}

	handle := e.ScheduleTimer(time.Now().Add(decision.RescheduleAfter), st.Serial, state.EventLiveness)
	st.SetEvent(state.EventLiveness, handle)
}

func (d *Daemon) applyDPDAction(e *engine.Engine, st *state.State, conn config.Connection) {
	switch conn.DPDAction {
	case config.DPDClear:
		d.deleteState(e, st.Serial)
	case config.DPDRestart:
		d.deleteState(e, st.Serial)
		d.logState(st).Info("daemon: dpd action=restart, a fresh initiation is left to the operator/whack layer")
	default: // hold
		d.logState(st).Debug("daemon: dpd action=hold, leaving SA in place")
	}
}

func (d *Daemon) onReplace(e *engine.Engine, st *state.State, conn config.Connection) {
	lastInboundAge, _ := d.Kernel.GetSAInfo(kernel.ProtocolESP, uint32(st.Serial), st.RemoteAddr.Addr())

	newest := conn.NewestIPsecSA
	if st.Kind == state.KindIKE {
		newest = conn.NewestISAKMPSA
	}

	outcome := exchange.EvaluateReplace(st.Serial, newest, conn.Policy.Has(config.DontRekey), lastInboundAge, conn.RekeyMargin)
	switch outcome {
	case exchange.ReplaceNoop:
		return
	case exchange.ReplaceIdlePrune:
		d.logState(st).Info("daemon: pruning idle SA instead of rekeying")
		d.deleteState(e, st.Serial)
	case exchange.ReplaceNow:
		d.logState(st).Info("daemon: rekey needed, deferring to a fresh initiation")
	}
}

// deleteState removes a state (and, if it was a parent, its cascaded
// children) and announces each removal on the whack event channel the
// way original_source's delete_state/whack_log pairing does.
func (d *Daemon) deleteState(e *engine.Engine, serial uint64) {
	st, _ := e.States.BySerial(serial)
	removed := e.States.Delete(serial)
	for _, ser := range removed {
		evt := whackEvent{serial: ser}
		if st != nil && ser == serial {
			evt.connection = st.ConnectionID
		}
		d.Whack.Broadcast("ike-updown", evt.message("down"))
	}
}
