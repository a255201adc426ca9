package crypto

import (
	"net/netip"
	"testing"
)

func TestCookieSecretComputeDeterministic(t *testing.T) {
	secret := CookieSecret([]byte("responder-local-secret"))
	spi := [8]byte{1, 2, 3, 4, 5, 6, 7, 8}
	addr := netip.MustParseAddr("203.0.113.9")

	a := secret.Compute(spi, addr)
	b := secret.Compute(spi, addr)
	if a != b {
		t.Fatal("Compute is not deterministic for identical inputs")
	}

	otherAddr := netip.MustParseAddr("203.0.113.10")
	if c := secret.Compute(spi, otherAddr); c == a {
		t.Fatal("Compute produced the same cookie for different initiator addresses")
	}
}

func TestFloodGuardTripsUnderBurst(t *testing.T) {
	guard := NewFloodGuard(2, 100)
	src := netip.MustParseAddr("198.51.100.5")

	if guard.RequireCookie(src) {
		t.Fatal("first attempt: cookie required too early")
	}
	if guard.RequireCookie(src) {
		t.Fatal("second attempt: cookie required too early")
	}
	if !guard.RequireCookie(src) {
		t.Fatal("third attempt within the same second: want cookie required")
	}
}

func TestFloodGuardPerSourceIsolation(t *testing.T) {
	guard := NewFloodGuard(1, 100)
	a := netip.MustParseAddr("198.51.100.1")
	b := netip.MustParseAddr("198.51.100.2")

	if guard.RequireCookie(a) {
		t.Fatal("source a: cookie required too early")
	}
	if guard.RequireCookie(b) {
		t.Fatal("source b should have its own independent budget")
	}
}
