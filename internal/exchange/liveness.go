package exchange

import "time"

// MinLiveness is the floor on the DPD probe interval (orig: MIN_LIVENESS),
// preventing a misconfigured dpd_delay of near-zero from probing in a
// tight loop.
const MinLiveness = 1 * time.Second

// LivenessAction is what happens to a connection when its peer is
// declared dead.
type LivenessAction int

const (
	LivenessHold LivenessAction = iota
	LivenessClear
	LivenessRestart
)

// LivenessDecision is what the DPD tick tells its caller to
// do next.
type LivenessDecision struct {
	// SendProbe, when true, means the caller should send an INFORMATIONAL
	// keepalive and set PendingLiveness on the state.
	SendProbe bool
	// PeerDead, when true, means the caller should invoke the
	// connection's configured LivenessAction.
	PeerDead bool
	// ClearPending, when true, means the caller should clear
	// PendingLiveness and reset LastLiveness to "undefined" (zero).
	ClearPending bool
	// RescheduleAfter is the delay until the next DPD tick.
	RescheduleAfter time.Duration
}

// EvaluateLiveness implements the DPD tick's decision tree (orig: timer.c's
// liveness handling).
//
//   - lastMsgAge: how long since any message (of any kind) was last seen
//     from the peer, as reported by the kernel SA.
//   - pendingLiveness: whether a keepalive probe is currently outstanding.
//   - timeSinceLastLiveness: how long since the last confirmed liveness;
//     callers pass a negative value when LastLiveness is undefined.
func EvaluateLiveness(dpdDelay, dpdTimeout time.Duration, lastMsgAge time.Duration, pendingLiveness bool, timeSinceLastLiveness time.Duration) LivenessDecision {
	reschedule := dpdDelay
	if reschedule < MinLiveness {
		reschedule = MinLiveness
	}

	if lastMsgAge < dpdTimeout {
		return LivenessDecision{ClearPending: true, RescheduleAfter: reschedule}
	}

	deathThreshold := dpdTimeout
	if threeTimesDelay := 3 * dpdDelay; threeTimesDelay > deathThreshold {
		deathThreshold = threeTimesDelay
	}

	if pendingLiveness && timeSinceLastLiveness >= 0 && timeSinceLastLiveness >= deathThreshold {
		return LivenessDecision{PeerDead: true, RescheduleAfter: reschedule}
	}

	return LivenessDecision{SendProbe: true, RescheduleAfter: reschedule}
}

// ReplaceOutcome is what the SA-replace timer should do.
type ReplaceOutcome int

const (
	ReplaceNoop ReplaceOutcome = iota // superseded already; let it expire naturally
	ReplaceIdlePrune                  // idle past rekey_margin: schedule hard expiry instead
	ReplaceNow                        // rekey now and schedule hard expiry at state.margin
)

// EvaluateReplace implements the replace-event decision:
// a superseded SA does nothing, an idle SA under REPLACE_IF_USED policy is
// pruned instead of rekeyed, otherwise rekey.
func EvaluateReplace(stateSerial, newestSA uint64, replaceIfUsedIdle bool, inboundTrafficAge, rekeyMargin time.Duration) ReplaceOutcome {
	if newestSA > stateSerial {
		return ReplaceNoop
	}
	if replaceIfUsedIdle && inboundTrafficAge >= rekeyMargin {
		return ReplaceIdlePrune
	}
	return ReplaceNow
}
