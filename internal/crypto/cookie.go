package crypto

import (
	"crypto/hmac"
	"crypto/sha1"
	"net/netip"
	"time"

	"github.com/joeycumines/go-catrate"
)

// CookieSecret is the responder's rotating local secret used to compute
// stateless RFC 7296 §2.6 cookies. It should be replaced periodically
// (pluto rotates its equivalent on a timer); this type carries no timer of
// its own, since that belongs to the event loop.
type CookieSecret []byte

// Compute returns the cookie a responder would send in a COOKIE
// notification: HMAC(secret, initiator-SPI || initiator-address). It
// leaves out the initiator nonce and the VersionID-of-secret prefix that
// RFC 7296 §2.6 and pluto's cookie computation include.
func (s CookieSecret) Compute(initiatorSPI [8]byte, initiatorAddr netip.Addr) [sha1.Size]byte {
	mac := hmac.New(sha1.New, s)
	mac.Write(initiatorSPI[:])
	mac.Write(initiatorAddr.AsSlice())
	var out [sha1.Size]byte
	copy(out[:], mac.Sum(nil))
	return out
}

// FloodGuard gates whether a responder should demand a cookie before
// committing to the expensive half of an IKE_SA_INIT exchange, tracking
// half-open-SA arrival rate per source address (RFC 7296 §2.6: "SHOULD NOT
// enable this challenge until there is evidence that the system is being
// over-utilized").
type FloodGuard struct {
	limiter *catrate.Limiter
}

// NewFloodGuard builds a guard that requires cookies once a source address
// opens more than burstPerSecond half-open SAs in a one-second window, or
// more than sustainedPerMinute in a one-minute window — the same
// short-window/long-window shape pluto's DDOS-mode threshold check uses,
// expressed as catrate's multi-window rates.
func NewFloodGuard(burstPerSecond, sustainedPerMinute int) *FloodGuard {
	return &FloodGuard{
		limiter: catrate.NewLimiter(map[time.Duration]int{
			time.Second: burstPerSecond,
			time.Minute: sustainedPerMinute,
		}),
	}
}

// RequireCookie reports whether the responder should reject src's
// IKE_SA_INIT with a COOKIE notification instead of proceeding. Calling it
// also registers this attempt against src's rate, so repeated calls for
// the same flood eventually trip the guard even if each individual probe
// looks legitimate in isolation.
func (g *FloodGuard) RequireCookie(src netip.Addr) bool {
	_, allowed := g.limiter.Allow(src)
	return !allowed
}
