// Package selector implements the address-range and subnet arithmetic that
// underlies traffic-selector narrowing: converting a connection end's
// (subnet, protocol, port) into the IKEv2 wire range representation and
// back, and the mask/range bit counting the fitness functions score on.
package selector

import (
	"net/netip"
)

// Range is an inclusive [Start, End] address range, the in-memory form of an
// IKEv2 traffic selector's address pair. Start and End must share a bit
// width (both 4-byte or both 16-byte addresses).
type Range struct {
	Start netip.Addr
	End   netip.Addr
}

// maskBytes returns the big-endian bytes of a maskbits-long prefix mask for
// the given address width, mirroring bitstomask/bitstomask6.
func maskBytes(maskbits, width int) []byte {
	buf := make([]byte, width)
	for i := 0; i < width; i++ {
		bit := maskbits - i*8
		switch {
		case bit >= 8:
			buf[i] = 0xff
		case bit > 0:
			buf[i] = byte(0xff << uint(8-bit))
		default:
			buf[i] = 0
		}
	}
	return buf
}

// SubnetRange masks base down to its floor and ORs in the host bits to reach
// its ceiling, the same computation as ikev2_end_to_ts's subnet-to-range
// conversion (orig: programs/pluto/ikev2_ts.c).
func SubnetRange(base netip.Addr, maskbits int) Range {
	width := base.BitLen() / 8
	mask := maskBytes(maskbits, width)
	baseBytes := base.AsSlice()

	startBytes := make([]byte, width)
	endBytes := make([]byte, width)
	for i := 0; i < width; i++ {
		startBytes[i] = baseBytes[i] & mask[i]
		endBytes[i] = baseBytes[i] | ^mask[i]
	}

	start, _ := netip.AddrFromSlice(startBytes)
	end, _ := netip.AddrFromSlice(endBytes)
	return Range{Start: start, End: end}
}

// IsSingleCIDR reports whether the range is exactly the CIDR block with the
// given mask length rooted at its floor — the narrowing engine and the
// group-template fallback only ever deal with single-CIDR ends (orig
// comment in ikev2_ts.c: "our parser/config only allows 1 CIDR").
func IsSingleCIDR(r Range, maskbits int) bool {
	return SubnetRange(r.Start, maskbits) == r
}

// Contains reports whether r fully contains other (other is a subset),
// used by match_address_range's END_WIDER_THAN_TS case.
func (r Range) Contains(other Range) bool {
	return r.Start.Compare(other.Start) <= 0 && other.End.Compare(r.End) <= 0
}
