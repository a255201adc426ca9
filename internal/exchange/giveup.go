package exchange

// GiveUpDecision is what happens once RetransmitDelay returns 0 for a
// state: the exchange failed, and the caller must decide whether to start
// a fresh keying attempt.
type GiveUpDecision struct {
	// Retry is true when a new attempt should be scheduled
	// (ipsecdoi_replace with try+1).
	Retry bool
	// NextTry is the try count to use for the new attempt.
	NextTry int
	// FlipToIKEv2 is true when this new attempt should renegotiate with
	// IKEv2 instead of IKEv1 — every third attempt, when policy permits
	// it (orig: "try % 3 == 0 && POLICY_IKEV2_ALLOW|PROPOSE").
	FlipToIKEv2 bool
}

// EvaluateGiveUp implements the retry bookkeeping that follows a
// give-up (orig: timer.c's post-max-retransmit branch in
// retransmit_v1_msg/retransmit_v2_msg). try == 0 means "no retry at all";
// keyingTries == 0 means unlimited retries.
func EvaluateGiveUp(try, keyingTries int, ikev2Allowed bool) GiveUpDecision {
	if try == 0 || (keyingTries != 0 && try >= keyingTries) {
		return GiveUpDecision{}
	}

	nextTry := try + 1
	return GiveUpDecision{
		Retry:       true,
		NextTry:     nextTry,
		FlipToIKEv2: nextTry%3 == 0 && ikev2Allowed,
	}
}
