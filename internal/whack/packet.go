package whack

import (
	"bytes"
	"errors"
	"fmt"
)

// Packet types exchanged over the whack control channel. Command
// request/response framing and event (de)registration reuse the same
// shape the wire codec already defines for messages.
const (
	// pktCmdRequest is a named command request ("initiate", "terminate", ...).
	pktCmdRequest uint8 = iota

	// pktCmdResponse is an unnamed response to a command request.
	pktCmdResponse

	// pktCmdUnknown is returned when the requested command has no handler.
	pktCmdUnknown

	// pktEventRegister is a named request to subscribe to an event stream.
	pktEventRegister

	// pktEventUnregister is a named request to unsubscribe.
	pktEventUnregister

	// pktEventConfirm confirms a successful (un)registration.
	pktEventConfirm

	// pktEventUnknown is returned for an unrecognized event name.
	pktEventUnknown

	// pktEvent is a named, asynchronous event push.
	pktEvent
)

var (
	errPacketWrite = errors.New("whack: error writing packet")
	errPacketParse = errors.New("whack: error parsing packet")
	errBadName     = fmt.Errorf("%v: expected name length does not match actual length", errPacketParse)
)

// packet is one frame on the wire: a type, an optional name (for named
// types), and an optional message body.
type packet struct {
	ptype uint8
	name  string
	msg   *Message
}

func newPacket(ptype uint8, name string, msg *Message) *packet {
	return &packet{ptype: ptype, name: name, msg: msg}
}

func (p *packet) isNamed() bool {
	switch p.ptype {
	case pktCmdRequest, pktEventRegister, pktEventUnregister, pktEvent:
		return true
	default:
		return false
	}
}

func (p *packet) bytes() ([]byte, error) {
	buf := bytes.NewBuffer([]byte{p.ptype})

	if p.isNamed() {
		if err := buf.WriteByte(uint8(len(p.name))); err != nil {
			return nil, fmt.Errorf("%v: %v", errPacketWrite, err)
		}
		if _, err := buf.WriteString(p.name); err != nil {
			return nil, fmt.Errorf("%v: %v", errPacketWrite, err)
		}
	}

	if p.msg != nil {
		b, err := p.msg.encode()
		if err != nil {
			return nil, err
		}
		if _, err := buf.Write(b); err != nil {
			return nil, fmt.Errorf("%v: %v", errPacketWrite, err)
		}
	}

	return buf.Bytes(), nil
}

// parsePacket decodes a frame previously produced by (*packet).bytes.
func parsePacket(data []byte) (*packet, error) {
	buf := bytes.NewBuffer(data)
	p := &packet{}

	b, err := buf.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("%v: %v", errPacketParse, err)
	}
	p.ptype = b

	if p.isNamed() {
		l, err := buf.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("%v: %v", errPacketParse, err)
		}

		name := buf.Next(int(l))
		if len(name) != int(l) {
			return nil, errBadName
		}
		p.name = string(name)
	}

	m := NewMessage()
	if err := m.decode(buf.Bytes()); err != nil {
		return nil, err
	}
	p.msg = m

	return p, nil
}
