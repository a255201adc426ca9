package daemon

import (
	"encoding/binary"
	"net"
	"net/netip"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/ikeswand/ikeswand/internal/engine"
	"github.com/ikeswand/ikeswand/internal/kernel"
	"github.com/ikeswand/ikeswand/internal/state"
	"github.com/ikeswand/ikeswand/internal/ts"
	"github.com/ikeswand/ikeswand/internal/wire"
)

// childSAEnvelope is this daemon's own length-prefixed framing for the two
// TS payload bodies carried in a CREATE_CHILD_SA / QUICK_MODE request:
// [2-byte length][TSi bytes][2-byte length][TSr bytes]. Full IKEv2
// payload-chain parsing (SA, KE, Nonce, ID, AUTH, Notify, Delete
// payloads, each with their own generic payload header and next-payload
// chaining) is explicitly out of scope; this is just enough
// structure to hand the narrowing engine real TSi/TSr bytes off the wire.
func splitChildSAEnvelope(body []byte) (tsiBody, tsrBody []byte, err error) {
	if len(body) < 2 {
		return nil, nil, errors.New("daemon: child sa envelope: truncated")
	}
	tsiLen := int(binary.BigEndian.Uint16(body[0:2]))
	if len(body) < 2+tsiLen+2 {
		return nil, nil, errors.New("daemon: child sa envelope: truncated tsi")
	}
	tsiBody = body[2 : 2+tsiLen]
	rest := body[2+tsiLen:]

	tsrLen := int(binary.BigEndian.Uint16(rest[0:2]))
	if len(rest) < 2+tsrLen {
		return nil, nil, errors.New("daemon: child sa envelope: truncated tsr")
	}
	tsrBody = rest[2 : 2+tsrLen]
	return tsiBody, tsrBody, nil
}

func encodeChildSAEnvelope(tsiBody, tsrBody []byte) []byte {
	out := make([]byte, 0, 4+len(tsiBody)+len(tsrBody))
	var lenBuf [2]byte

	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(tsiBody)))
	out = append(out, lenBuf[:]...)
	out = append(out, tsiBody...)

	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(tsrBody)))
	out = append(out, lenBuf[:]...)
	out = append(out, tsrBody...)

	return out
}

// OnPacket demultiplexes one inbound datagram by its IKE header and
// dispatches to the narrow set of exchanges this daemon actually
// negotiates end to end: CREATE_CHILD_SA / QUICK_MODE traffic-selector
// narrowing. Anything else is logged and dropped — proposal negotiation,
// authentication, and certificate handling are out of scope
// and belong to the crypto/config collaborators this engine only ever
// reaches through their interfaces.
func (d *Daemon) OnPacket(e *engine.Engine, pkt engine.Packet) {
	hdr, body, err := wire.DecodeHeader(pkt.Data)
	if err != nil {
		d.Log.WithError(err).WithFields(logrus.Fields{
			"from":     pkt.From,
			"local_ip": pkt.LocalIP,
		}).Debug("daemon: dropping malformed datagram")
		return
	}

	switch hdr.Exchange {
	case wire.ExchangeCreateChild, wire.ExchangeQuickMode:
		if hdr.Flags.IsResponse() {
			d.onChildSAResponse(e, hdr, body, pkt.From)
		} else {
			d.onChildSARequest(e, hdr, body, pkt.From)
		}
	default:
		d.Log.WithFields(logrus.Fields{
			"exchange": hdr.Exchange,
			"from":     pkt.From,
			"local_ip": pkt.LocalIP,
		}).Debug("daemon: exchange type not handled by the narrowing/retransmit core")
	}
}

func (d *Daemon) onChildSARequest(e *engine.Engine, hdr wire.Header, body []byte, from *net.UDPAddr) {
	parent, ok := e.States.BySPI(state.SPIPair{Initiator: hdr.InitiatorSPI, Responder: hdr.ResponderSPI})
	if !ok {
		d.Log.WithField("from", from).Debug("daemon: child sa request for unknown IKE SA")
		return
	}

	tsiBody, tsrBody, err := splitChildSAEnvelope(body)
	if err != nil {
		d.logState(parent).WithError(err).Debug("daemon: malformed child sa envelope")
		return
	}
	tsi, err := wire.DecodeTSPayload(tsiBody)
	if err != nil {
		d.logState(parent).WithError(err).Debug("daemon: malformed TSi")
		return
	}
	tsr, err := wire.DecodeTSPayload(tsrBody)
	if err != nil {
		d.logState(parent).WithError(err).Debug("daemon: malformed TSr")
		return
	}

	conn, candidate, err := ts.ProcessRequest(d.Connections, tsi, tsr)
	if err != nil {
		d.logState(parent).WithError(err).Info("daemon: no acceptable traffic selector narrowing")
		return
	}

	child := e.States.New(state.KindChild)
	child.ParentSerial = parent.Serial
	child.ConnectionID = conn.Name
	child.Role = state.RoleResponder
	child.Label = state.V2IPsecR
	child.LocalAddr = parent.LocalAddr
	child.RemoteAddr = parent.RemoteAddr
	narrowedTSi, narrowedTSr := ts.EmitPayloads(candidate)

	if err := d.installChildSA(child, narrowedTSi, narrowedTSr); err != nil {
		d.logState(child).WithError(err).Error("daemon: kernel SA install failed")
		e.States.Delete(child.Serial)
		return
	}

	d.logState(child).WithField("connection", conn.Name).Info("daemon: child sa established")
	d.Whack.Broadcast("child-updown", childUpdownEvent(child, "up"))

	respTSi, err := wire.EncodeTSPayload(narrowedTSi)
	if err != nil {
		d.logState(child).WithError(err).Error("daemon: encode response TSi")
		return
	}
	respTSr, err := wire.EncodeTSPayload(narrowedTSr)
	if err != nil {
		d.logState(child).WithError(err).Error("daemon: encode response TSr")
		return
	}

	respHdr := hdr
	respHdr.Flags |= wire.FlagResponse
	datagram := wire.EncodeHeader(respHdr, encodeChildSAEnvelope(respTSi, respTSr))
	if err := e.Send(datagram, from); err != nil {
		d.logState(child).WithError(err).Warn("daemon: send child sa response")
	}
}

func (d *Daemon) onChildSAResponse(e *engine.Engine, hdr wire.Header, body []byte, from *net.UDPAddr) {
	parent, ok := e.States.BySPI(state.SPIPair{Initiator: hdr.InitiatorSPI, Responder: hdr.ResponderSPI})
	if !ok {
		return
	}

	tsiBody, tsrBody, err := splitChildSAEnvelope(body)
	if err != nil {
		d.logState(parent).WithError(err).Debug("daemon: malformed child sa response envelope")
		return
	}
	narrowedTSi, err := wire.DecodeTSPayload(tsiBody)
	if err != nil {
		return
	}
	narrowedTSr, err := wire.DecodeTSPayload(tsrBody)
	if err != nil {
		return
	}

	if err := ts.ProcessResponse(parent.TSThis, parent.TSThat, narrowedTSi, narrowedTSr); err != nil {
		d.logState(parent).WithError(err).Warn("daemon: responder widened traffic selectors, rejecting")
		return
	}

	d.logState(parent).Info("daemon: child sa negotiation confirmed by peer")
}

// installChildSA programs the kernel's inbound and outbound SAs for a
// newly-narrowed child, deriving placeholder keying material from the
// parent's SharedKey via the Appendix B stretch: real
// SA proposal negotiation (algorithm/key-length selection) is out of
// scope, so this always stretches enough key material for the narrowest
// HMAC-SHA256/AES-128 pairing the crypto package exposes.
func (d *Daemon) installChildSA(child *state.State, tsi, tsr []wire.TrafficSelector) error {
	if len(tsi) == 0 || len(tsr) == 0 {
		return errors.New("daemon: child sa: narrowed selector list is empty")
	}

	spi := uint32(child.Serial)
	keys := d.deriveChildKeys(child)

	in := kernel.SAParams{
		Direction:          kernel.DirectionIn,
		Protocol:           kernel.ProtocolESP,
		SPI:                spi,
		Src:                child.RemoteAddr.Addr(),
		Dst:                child.LocalAddr.Addr(),
		// Inbound traffic flows from the peer's own range (TSi, matched
		// against That) to ours (TSr, matched against This).
		SrcSelector:        tsSelectorPrefix(tsi[0]),
		DstSelector:        tsSelectorPrefix(tsr[0]),
		EncryptionKey:      keys[:16],
		AuthenticationKey:  keys[16:],
		EncryptionAlgo:     "aes-cbc",
		AuthenticationAlgo: "hmac-sha256",
		ReqID:              spi,
	}
	if err := d.Kernel.InstallSA(in); err != nil {
		return errors.Wrap(err, "daemon: install inbound child sa")
	}

	out := in
	out.Direction = kernel.DirectionOut
	out.Src, out.Dst = in.Dst, in.Src
	out.SrcSelector, out.DstSelector = in.DstSelector, in.SrcSelector
	if err := d.Kernel.InstallSA(out); err != nil {
		return errors.Wrap(err, "daemon: install outbound child sa")
	}

	return nil
}

// tsSelectorPrefix converts a narrowed traffic selector's start address
// into the host or zero prefix a kernel.SAParams selector expects. A
// selector whose start and end addresses coincide is a single host; any
// wider range degrades to "any address" (0/0) rather than guessing a
// subnet mask the TS payload doesn't actually carry.
func tsSelectorPrefix(t wire.TrafficSelector) netip.Prefix {
	if t.StartAddr == t.EndAddr {
		return netip.PrefixFrom(t.StartAddr, t.StartAddr.BitLen())
	}
	return netip.PrefixFrom(t.StartAddr, 0)
}
