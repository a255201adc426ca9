// Package daemon wires the otherwise-independent state, exchange, crypto,
// kdf, ts, and kernel packages into the engine.Handlers contract, and
// registers the whack command set against the running state table. It is
// the one package that actually knows what an inbound datagram means, the
// way original_source's programs/pluto/ipsecdoi.go (the dispatch table)
// and state.c (the established-SA bookkeeping) sit above the rest of
// pluto's building blocks.
package daemon

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/ipv4"

	"github.com/ikeswand/ikeswand/internal/config"
	"github.com/ikeswand/ikeswand/internal/crypto"
	"github.com/ikeswand/ikeswand/internal/engine"
	"github.com/ikeswand/ikeswand/internal/kernel"
	"github.com/ikeswand/ikeswand/internal/loglog"
	"github.com/ikeswand/ikeswand/internal/state"
	"github.com/ikeswand/ikeswand/internal/whack"
)

// controlFlags asks the kernel for the destination address and inbound
// interface of every datagram, the way egorse-ike's listenUDP4 does, so a
// multi-homed daemon can tell which of its own addresses a peer used.
const controlFlags = ipv4.FlagDst | ipv4.FlagInterface

// Daemon owns everything cmd/ikeswand wires together: the engine, the
// kernel backend, the whack server, and the connection list config.Load
// produced.
type Daemon struct {
	Log         *logrus.Logger
	Global      config.Global
	Connections []config.Connection

	Kernel kernel.Interface
	Whack  *whack.Server
	Engine *engine.Engine

	prf     crypto.PRF
	dhGroup crypto.DHGroup
	udpConn *ipv4.PacketConn
	natConn *ipv4.PacketConn
}

// New constructs a Daemon from a loaded configuration and a kernel
// backend, registering engine.Handlers and whack command handlers but not
// yet opening any sockets — call Run to do that.
func New(log *logrus.Logger, global config.Global, conns []config.Connection, kern kernel.Interface, whackSocket string) (*Daemon, error) {
	whackServer, err := whack.NewServer(log, whackSocket)
	if err != nil {
		return nil, err
	}

	d := &Daemon{
		Log:         log,
		Global:      global,
		Connections: conns,
		Kernel:      kern,
		Whack:       whackServer,
		prf:         crypto.HMACSHA256PRF(),
		dhGroup:     crypto.Curve25519Group(),
	}

	workers := global.WorkerCount
	if workers <= 0 {
		workers = 4
	}
	dh := crypto.NewPipeline(context.Background(), workers)

	d.Engine = engine.New(log, dh, d.sendUDP, engine.Handlers{
		OnPacket:     d.OnPacket,
		OnTimer:      d.OnTimer,
		OnDHComplete: d.OnDHComplete,
	})

	d.registerWhackHandlers()

	return d, nil
}

// sendUDP is the engine's outbound transport function; it picks the NAT-T
// socket when the destination is on the 4500 convention, matching pluto's
// own "respond on the interface/port the request arrived on" rule.
func (d *Daemon) sendUDP(data []byte, to *net.UDPAddr) error {
	conn := d.udpConn
	if to.Port == 4500 && d.natConn != nil {
		conn = d.natConn
	}
	_, err := conn.WriteTo(data, nil, to)
	return err
}

// listenPacketConn opens a SO_REUSEPORT UDP/4 listener and wraps it as an
// ipv4.PacketConn with destination-address control messages enabled, the
// pattern egorse-ike's listenUDP4 uses to recover the local address and
// interface a datagram arrived on.
func listenPacketConn(ctx context.Context, port int) (*ipv4.PacketConn, error) {
	lc := net.ListenConfig{Control: reusePortControl}
	pc, err := lc.ListenPacket(ctx, "udp4", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, err
	}
	p := ipv4.NewPacketConn(pc)
	if err := p.SetControlMessage(controlFlags, true); err != nil {
		// Some kernels/sandboxes refuse control messages on a UDP socket;
		// fall back to a plain listener rather than failing startup over
		// a diagnostic-only feature.
		p.SetControlMessage(controlFlags, false)
	}
	return p, nil
}

// Run opens the UDP listeners and blocks until ctx is cancelled, running
// the engine's event loop, the read goroutines, and the whack server
// concurrently: a single-writer-goroutine event loop fed by reader
// goroutines.
func (d *Daemon) Run(ctx context.Context) error {
	conn, err := listenPacketConn(ctx, d.Global.ListenPort)
	if err != nil {
		return err
	}
	d.udpConn = conn
	defer conn.Close()

	if d.Global.ListenPortNATT != 0 {
		nattConn, err := listenPacketConn(ctx, d.Global.ListenPortNATT)
		if err != nil {
			return err
		}
		d.natConn = nattConn
		defer nattConn.Close()
		go d.readLoop(ctx, nattConn, true)
	}

	go d.readLoop(ctx, conn, false)

	go func() {
		if err := d.Whack.Serve(ctx); err != nil {
			d.Log.WithError(err).Error("daemon: whack server stopped")
		}
	}()

	d.Log.WithFields(logrus.Fields{
		"port":      d.Global.ListenPort,
		"port_natt": d.Global.ListenPortNATT,
	}).Info("daemon: listening")

	d.Engine.Run(ctx)
	return nil
}

func (d *Daemon) readLoop(ctx context.Context, conn *ipv4.PacketConn, natt bool) {
	buf := make([]byte, 65535)
	for {
		if err := conn.SetReadDeadline(time.Now().Add(time.Second)); err != nil {
			return
		}
		n, cm, from, err := conn.ReadFrom(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			d.Log.WithError(err).Warn("daemon: udp read error")
			continue
		}

		data := make([]byte, n)
		copy(data, buf[:n])
		fromUDP, _ := from.(*net.UDPAddr)
		pkt := engine.Packet{Data: data, From: fromUDP, NATT: natt}
		if cm != nil {
			pkt.LocalIP = cm.Dst
		}
		d.Engine.Enqueue(pkt)
	}
}

// connectionByName finds a configured connection by its operator-facing
// name, the lookup every whack command keyed by name performs.
func (d *Daemon) connectionByName(name string) (config.Connection, bool) {
	for _, c := range d.Connections {
		if c.Name == name {
			return c, true
		}
	}
	return config.Connection{}, false
}

// logState scopes a logger to one state the way loglog.ForState does,
// kept as a one-line helper so handlers don't repeat the import.
func (d *Daemon) logState(st *state.State) *logrus.Entry {
	return loglog.ForState(d.Log, st)
}
