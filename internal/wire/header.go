package wire

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// HeaderLength is the fixed size of the ISAKMP/IKEv2 header (RFC 7296
// §3.1): SPIi, SPIr, next payload, versions, exchange type, flags,
// message ID, length.
const HeaderLength = 28

// ExchangeType names the exchange the header's isa_xchg field selects.
// The IKEv1 and IKEv2 enumerations collide on the wire by design — a
// given value means different things depending on MajorVersion — so
// ExchangeType is interpreted alongside MajorVersion, not in isolation.
type ExchangeType uint8

const (
	ExchangeIKESAInit    ExchangeType = 34
	ExchangeIKEAuth      ExchangeType = 35
	ExchangeCreateChild  ExchangeType = 36
	ExchangeInformational ExchangeType = 37

	ExchangeIdentityProtection ExchangeType = 2 // IKEv1 Main Mode
	ExchangeAggressive         ExchangeType = 4 // IKEv1 Aggressive Mode
	ExchangeQuickMode          ExchangeType = 32
)

// HeaderFlags are the single-bit flags carried in isa_flags.
type HeaderFlags uint8

const (
	FlagInitiator HeaderFlags = 1 << 3
	FlagResponse  HeaderFlags = 1 << 5
)

func (f HeaderFlags) IsInitiator() bool { return f&FlagInitiator != 0 }
func (f HeaderFlags) IsResponse() bool  { return f&FlagResponse != 0 }

// Header is the fixed-format IKE packet header that precedes every
// payload chain. Only the fields the exchange machine dispatches on are
// named; unrecognized reserved bits are preserved in neither direction —
// this is a demux header, not a general codec.
type Header struct {
	InitiatorSPI uint64
	ResponderSPI uint64
	NextPayload  uint8
	MajorVersion uint8
	MinorVersion uint8
	Exchange     ExchangeType
	Flags        HeaderFlags
	MessageID    uint32
	Length       uint32
}

var (
	ErrHeaderTruncated = errors.New("wire: header: truncated packet")
	ErrLengthMismatch  = errors.New("wire: header: isa_length disagrees with datagram size")
)

// DecodeHeader parses the fixed header off the front of an inbound
// datagram, returning the payload chain that follows it as the second
// return value.
func DecodeHeader(buf []byte) (Header, []byte, error) {
	if len(buf) < HeaderLength {
		return Header{}, nil, ErrHeaderTruncated
	}

	h := Header{
		InitiatorSPI: binary.BigEndian.Uint64(buf[0:8]),
		ResponderSPI: binary.BigEndian.Uint64(buf[8:16]),
		NextPayload:  buf[16],
		MajorVersion: buf[17] >> 4,
		MinorVersion: buf[17] & 0x0f,
		Exchange:     ExchangeType(buf[18]),
		Flags:        HeaderFlags(buf[19]),
		MessageID:    binary.BigEndian.Uint32(buf[20:24]),
		Length:       binary.BigEndian.Uint32(buf[24:28]),
	}

	if int(h.Length) != len(buf) {
		return Header{}, nil, errors.Wrapf(ErrLengthMismatch, "isa_length=%d datagram=%d", h.Length, len(buf))
	}

	return h, buf[HeaderLength:], nil
}

// EncodeHeader serializes h and appends body, setting Length to the
// correct total so callers never have to compute it by hand.
func EncodeHeader(h Header, body []byte) []byte {
	h.Length = uint32(HeaderLength + len(body))

	out := make([]byte, HeaderLength, h.Length)
	binary.BigEndian.PutUint64(out[0:8], h.InitiatorSPI)
	binary.BigEndian.PutUint64(out[8:16], h.ResponderSPI)
	out[16] = h.NextPayload
	out[17] = (h.MajorVersion << 4) | (h.MinorVersion & 0x0f)
	out[18] = uint8(h.Exchange)
	out[19] = uint8(h.Flags)
	binary.BigEndian.PutUint32(out[20:24], h.MessageID)
	binary.BigEndian.PutUint32(out[24:28], h.Length)

	return append(out, body...)
}
