package selector

import "net/netip"

// RangeBits returns the number of leading bits Start and End share, the same
// quantity ikev2_ts.c's iprange_bits computes and that the prefix-fitness
// score in the TS narrowing engine sums with a connection's mask length.
//
// A /32 (or /128) range — Start == End — scores the full address width.
func RangeBits(r Range) int {
	s := r.Start.AsSlice()
	e := r.End.AsSlice()
	bits := 0
	for i := range s {
		x := s[i] ^ e[i]
		if x == 0 {
			bits += 8
			continue
		}
		for b := 7; b >= 0; b-- {
			if x&(1<<uint(b)) != 0 {
				break
			}
			bits++
		}
		break
	}
	return bits
}

// End is the minimal description of a connection endpoint's client
// selector, the fields ikev2_end_to_ts reads off struct end.
type End struct {
	Addr         netip.Addr
	MaskBits     int
	Protocol     uint8
	Port         uint16
	PortWildcard bool
}

// PortRange returns the [low, high] port range End.Port expands to: 0 or a
// wildcard port means the full 0..65535 range, otherwise a single port.
func (e End) PortRange() (low, high uint16) {
	if e.Port == 0 || e.PortWildcard {
		return 0, 65535
	}
	return e.Port, e.Port
}
