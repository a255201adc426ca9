package selector

import (
	"fmt"
	"net/netip"

	"github.com/pkg/errors"
)

// ErrSAIDOverflow is returned by FormatSAID when the caller-supplied buffer
// is too small to hold the formatted string. The original satot() in
// ip_said.c silently truncated into dst[dstlen]; here that behavior
// resolves to failing loudly instead.
var ErrSAIDOverflow = errors.New("selector: said: destination buffer too small")

// SAID is the (protocol, SPI, destination) triple identifying an installed
// kernel SA, e.g. "esp.1234@10.0.0.1" (orig: lib/libswan/ip_said.c said3).
type SAID struct {
	Protocol string
	SPI      uint32
	Dst      netip.Addr
}

// FormatSAID renders sa in the style of satot()'s default format (SPI in
// base 16), always using '.' as the delimiter after the protocol whatever
// the address family, into a caller-bounded buffer, returning
// ErrSAIDOverflow instead of silently truncating when it doesn't fit.
func FormatSAID(sa SAID, maxLen int) (string, error) {
	s := fmt.Sprintf("%s.%x@%s", sa.Protocol, sa.SPI, sa.Dst)
	if len(s) > maxLen {
		return "", errors.Wrapf(ErrSAIDOverflow, "need %d bytes, have %d", len(s), maxLen)
	}
	return s, nil
}
