// Package wire implements the bit-exact wire encoding used by the exchange
// machine and the TS narrowing engine: the IKEv2 traffic-selector payload
// and the minimal selector/address-range types it carries.
package wire

import (
	"encoding/binary"
	"net/netip"

	"github.com/pkg/errors"
)

// TSType identifies the address family a traffic selector range is in.
type TSType uint8

const (
	TSIPv4AddrRange TSType = 7
	TSIPv6AddrRange TSType = 8
	TSFCAddrRange   TSType = 9
)

// maxSelectors bounds the number of selectors a single TS payload may
// carry: a bounded number (>=16); the bound is policy, not protocol.
const maxSelectors = 16

// TrafficSelector is the in-memory form of one entry in an IKEv2 TSi/TSr
// payload.
type TrafficSelector struct {
	Type       TSType
	IPProtocol uint8
	StartPort  uint16
	EndPort    uint16
	StartAddr  netip.Addr
	EndAddr    netip.Addr
}

var (
	// ErrTooManySelectors is returned when a payload claims more than
	// maxSelectors entries; the bound is policy, not wire protocol, but the
	// engine never accepts more regardless of what a peer sends.
	ErrTooManySelectors = errors.New("wire: ts: too many selectors in payload")
	ErrTruncated        = errors.New("wire: ts: truncated payload")
	ErrBadSelectorType  = errors.New("wire: ts: unsupported selector type")
	ErrBadSelectorLen   = errors.New("wire: ts: selector_length does not match address family")
)

func addrWidth(t TSType) (int, error) {
	switch t {
	case TSIPv4AddrRange:
		return 4, nil
	case TSIPv6AddrRange:
		return 16, nil
	default:
		return 0, errors.Wrapf(ErrBadSelectorType, "type %d", t)
	}
}

// EncodeTSPayload marshals a slice of traffic selectors into the outer TS
// payload body (num_ts, reserved[3], then each selector).
func EncodeTSPayload(tss []TrafficSelector) ([]byte, error) {
	if len(tss) > maxSelectors {
		return nil, errors.Wrapf(ErrTooManySelectors, "%d selectors", len(tss))
	}

	out := make([]byte, 4, 4+len(tss)*40)
	out[0] = uint8(len(tss))
	// out[1:4] reserved, left zero

	for _, ts := range tss {
		width, err := addrWidth(ts.Type)
		if err != nil {
			return nil, err
		}
		if ts.StartAddr.BitLen()/8 != width || ts.EndAddr.BitLen()/8 != width {
			return nil, errors.Wrapf(ErrBadSelectorLen, "type %d vs address width", ts.Type)
		}

		selLen := 8 + 2*width
		hdr := make([]byte, 8)
		hdr[0] = uint8(ts.Type)
		hdr[1] = ts.IPProtocol
		binary.BigEndian.PutUint16(hdr[2:4], uint16(selLen))
		binary.BigEndian.PutUint16(hdr[4:6], ts.StartPort)
		binary.BigEndian.PutUint16(hdr[6:8], ts.EndPort)

		out = append(out, hdr...)
		out = append(out, ts.StartAddr.AsSlice()...)
		out = append(out, ts.EndAddr.AsSlice()...)
	}

	return out, nil
}

// DecodeTSPayload parses the outer TS payload body produced by
// EncodeTSPayload, rejecting malformed lengths rather than reading past
// the buffer.
func DecodeTSPayload(buf []byte) ([]TrafficSelector, error) {
	if len(buf) < 4 {
		return nil, ErrTruncated
	}
	num := int(buf[0])
	if num > maxSelectors {
		return nil, errors.Wrapf(ErrTooManySelectors, "%d selectors", num)
	}
	buf = buf[4:]

	tss := make([]TrafficSelector, 0, num)
	for i := 0; i < num; i++ {
		if len(buf) < 8 {
			return nil, ErrTruncated
		}
		t := TSType(buf[0])
		width, err := addrWidth(t)
		if err != nil {
			return nil, err
		}

		selLen := int(binary.BigEndian.Uint16(buf[2:4]))
		if selLen != 8+2*width {
			return nil, errors.Wrapf(ErrBadSelectorLen, "selector %d: got %d want %d", i, selLen, 8+2*width)
		}
		if len(buf) < selLen {
			return nil, ErrTruncated
		}

		ts := TrafficSelector{
			Type:       t,
			IPProtocol: buf[1],
			StartPort:  binary.BigEndian.Uint16(buf[4:6]),
			EndPort:    binary.BigEndian.Uint16(buf[6:8]),
		}
		start, ok := netip.AddrFromSlice(buf[8 : 8+width])
		if !ok {
			return nil, ErrTruncated
		}
		end, ok := netip.AddrFromSlice(buf[8+width : 8+2*width])
		if !ok {
			return nil, ErrTruncated
		}
		ts.StartAddr = start
		ts.EndAddr = end

		tss = append(tss, ts)
		buf = buf[selLen:]
	}

	return tss, nil
}
