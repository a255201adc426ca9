package exchange

import (
	"testing"
	"time"
)

func TestEvaluateLivenessClearsPendingWhenRecentTraffic(t *testing.T) {
	d := EvaluateLiveness(30*time.Second, 120*time.Second, 5*time.Second, true, 200*time.Second)
	if !d.ClearPending {
		t.Fatal("want ClearPending when lastMsgAge < dpdTimeout")
	}
	if d.SendProbe || d.PeerDead {
		t.Fatal("must not probe or declare death when traffic is recent")
	}
}

func TestEvaluateLivenessSendsProbeWhenNoPending(t *testing.T) {
	d := EvaluateLiveness(30*time.Second, 120*time.Second, 200*time.Second, false, -1)
	if !d.SendProbe {
		t.Fatal("want SendProbe when no probe is already pending")
	}
	if d.PeerDead {
		t.Fatal("must not declare peer dead on first probe")
	}
}

func TestEvaluateLivenessDeclaresDeathPastThreshold(t *testing.T) {
	// dpd_timeout=120s, 3*dpd_delay=90s -> threshold = max(120,90) = 120s
	d := EvaluateLiveness(30*time.Second, 120*time.Second, 200*time.Second, true, 150*time.Second)
	if !d.PeerDead {
		t.Fatal("want PeerDead once past max(dpd_timeout, 3*dpd_delay)")
	}
}

func TestEvaluateLivenessRescheduleFloor(t *testing.T) {
	d := EvaluateLiveness(0, 10*time.Second, 1*time.Second, false, -1)
	if d.RescheduleAfter != MinLiveness {
		t.Fatalf("RescheduleAfter = %v, want MinLiveness floor %v", d.RescheduleAfter, MinLiveness)
	}
}

func TestEvaluateReplaceSuperseded(t *testing.T) {
	if got := EvaluateReplace(5, 9, false, 0, time.Minute); got != ReplaceNoop {
		t.Fatalf("got %v, want ReplaceNoop when newestSA > serial", got)
	}
}

func TestEvaluateReplaceIdlePrune(t *testing.T) {
	got := EvaluateReplace(5, 0, true, 10*time.Minute, 5*time.Minute)
	if got != ReplaceIdlePrune {
		t.Fatalf("got %v, want ReplaceIdlePrune", got)
	}
}

func TestEvaluateReplaceNow(t *testing.T) {
	got := EvaluateReplace(5, 0, false, 0, 5*time.Minute)
	if got != ReplaceNow {
		t.Fatalf("got %v, want ReplaceNow", got)
	}
}
