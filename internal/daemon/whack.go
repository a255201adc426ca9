package daemon

import (
	"context"
	"net/netip"
	"strconv"

	"github.com/pkg/errors"

	"github.com/ikeswand/ikeswand/internal/config"
	"github.com/ikeswand/ikeswand/internal/selector"
	"github.com/ikeswand/ikeswand/internal/state"
	"github.com/ikeswand/ikeswand/internal/whack"
)

// errNoSuchConnection mirrors whack's own errNoSuchSA for a named
// connection lookup miss (initiate/terminate by name).
var errNoSuchConnection = errors.New("daemon: no such connection")

// registerWhackHandlers wires the status/initiate/terminate/list-sas/
// list-conns command set (orig:lib/libswan/ike_info.c's one-line SA
// summary) against the live state table and connection list.
func (d *Daemon) registerWhackHandlers() {
	d.Whack.RegisterHandler("status", d.handleStatus)
	d.Whack.RegisterHandler("list-sas", d.handleListSAs)
	d.Whack.RegisterHandler("list-conns", d.handleListConns)
	d.Whack.RegisterHandler("initiate", d.handleInitiate)
	d.Whack.RegisterHandler("terminate", d.handleTerminate)
}

func (d *Daemon) handleStatus(ctx context.Context, req *whack.Message) (*whack.Message, error) {
	resp := whack.NewMessage()
	_ = resp.Set("ike_sas", strconv.Itoa(d.Engine.States.Len()))
	_ = resp.Set("connections", strconv.Itoa(len(d.Connections)))
	return resp, nil
}

func (d *Daemon) handleListConns(ctx context.Context, req *whack.Message) (*whack.Message, error) {
	resp := whack.NewMessage()
	names := make([]string, 0, len(d.Connections))
	for _, c := range d.Connections {
		names = append(names, c.Name)
	}
	_ = resp.Set("connections", names)
	return resp, nil
}

// handleListSAs renders every live state as a one-line summary, the whack
// equivalent of ipsec whack --status's per-SA lines (orig:
// lib/libswan/ike_info.c).
func (d *Daemon) handleListSAs(ctx context.Context, req *whack.Message) (*whack.Message, error) {
	resp := whack.NewMessage()
	var lines []string

	for _, serial := range d.liveSerials() {
		st, ok := d.Engine.States.BySerial(serial)
		if !ok {
			continue
		}
		said, err := selector.FormatSAID(selector.SAID{
			Protocol: protocolName(st),
			SPI:      uint32(st.Serial),
			Dst:      st.RemoteAddr.Addr(),
		}, 128)
		if err != nil {
			said = "<said overflow>"
		}
		lines = append(lines, said+" "+st.ConnectionID)
	}

	_ = resp.Set("sas", lines)
	return resp, nil
}

func protocolName(st *state.State) string {
	if st.Kind == state.KindIKE {
		return "ike"
	}
	return "esp"
}

// liveSerials collects the newest IKE and IPsec SA serials recorded on each
// configured connection; it does not list every state in the table. Table
// doesn't expose iteration directly (its locking surface stays narrow on
// purpose), so list-sas walks the connection list's last-known serials
// instead of reaching into Table's internals.
func (d *Daemon) liveSerials() []uint64 {
	var out []uint64
	for _, c := range d.Connections {
		if c.NewestISAKMPSA != 0 {
			out = append(out, c.NewestISAKMPSA)
		}
		if c.NewestIPsecSA != 0 {
			out = append(out, c.NewestIPsecSA)
		}
	}
	return out
}

// handleInitiate allocates a fresh half-open IKE state for a named
// connection and submits its first Diffie-Hellman computation to the
// crypto pipeline — the one piece of an initiation this daemon's core
// actually owns. Building and sending the actual
// IKE_SA_INIT/Main Mode message 1 payload chain (SA proposal, KE, Nonce)
// needs the out-of-scope proposal/config layers, so the datagram itself
// is left for those collaborators; this command proves the state table
// and DH pipeline wiring end to end.
func (d *Daemon) handleInitiate(ctx context.Context, req *whack.Message) (*whack.Message, error) {
	name, _ := req.Get("name").(string)
	conn, ok := d.connectionByName(name)
	if !ok {
		return nil, errNoSuchConnection
	}

	st := d.Engine.States.New(state.KindIKE)
	st.ConnectionID = conn.Name
	st.Role = state.RoleOriginalInitiator
	st.Label = state.MainI1
	if conn.Policy.Has(config.IKEv2Allow) {
		st.Label = state.ParentI1
	}
	st.Try = 1

	port := conn.That.HostPort
	if port == 0 {
		port = 500
	}
	st.RemoteAddr = netip.AddrPortFrom(conn.That.Address, port)

	task := d.Engine.SubmitDH(st, d.dhGroup, nil)
	st.DHSecret = task

	d.logState(st).WithField("connection", name).Info("daemon: initiation submitted, DH computation in flight")

	resp := whack.NewMessage()
	_ = resp.Set("connection", name)
	_ = resp.Set("serial", strconv.FormatUint(st.Serial, 10))
	return resp, nil
}

func (d *Daemon) handleTerminate(ctx context.Context, req *whack.Message) (*whack.Message, error) {
	name, _ := req.Get("name").(string)
	conn, ok := d.connectionByName(name)
	if !ok {
		return nil, errNoSuchConnection
	}

	if conn.NewestISAKMPSA != 0 {
		d.deleteState(d.Engine, conn.NewestISAKMPSA)
	}
	if conn.NewestIPsecSA != 0 {
		d.deleteState(d.Engine, conn.NewestIPsecSA)
	}

	resp := whack.NewMessage()
	_ = resp.Set("connection", name)
	return resp, nil
}

// whackEvent carries the fields every up/down event broadcast shares.
type whackEvent struct {
	serial     uint64
	connection string
}

func (e whackEvent) message(direction string) *whack.Message {
	m := whack.NewMessage()
	_ = m.Set("serial", strconv.FormatUint(e.serial, 10))
	_ = m.Set("connection", e.connection)
	_ = m.Set("direction", direction)
	return m
}

func childUpdownEvent(child *state.State, direction string) *whack.Message {
	return whackEvent{serial: child.Serial, connection: child.ConnectionID}.message(direction)
}
