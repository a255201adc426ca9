package whack

import (
	"context"
	"io"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	sock := filepath.Join(t.TempDir(), "whack.sock")

	log := logrus.New()
	log.SetOutput(io.Discard)

	s, err := NewServer(log, sock)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go s.Serve(ctx)

	return s, sock
}

func dial(t *testing.T, sock string) *transport {
	t.Helper()
	conn, err := net.Dial("unix", sock)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return &transport{conn: conn}
}

func TestServerDispatchesRegisteredCommand(t *testing.T) {
	s, sock := newTestServer(t)
	s.RegisterHandler("status", func(ctx context.Context, msg *Message) (*Message, error) {
		resp := NewMessage()
		_ = resp.Set("state", "established")
		return resp, nil
	})

	tr := dial(t, sock)
	if err := tr.send(newPacket(pktCmdRequest, "status", nil)); err != nil {
		t.Fatalf("send: %v", err)
	}

	p, err := tr.recv()
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	if p.ptype != pktCmdResponse {
		t.Fatalf("ptype = %v, want pktCmdResponse", p.ptype)
	}
	if p.msg.Get("state") != "established" {
		t.Fatalf("state = %v, want established", p.msg.Get("state"))
	}
	if p.msg.Get("success") != "yes" {
		t.Fatalf("success = %v, want yes", p.msg.Get("success"))
	}
}

func TestServerUnknownCommandRespondsUnknown(t *testing.T) {
	s, sock := newTestServer(t)
	_ = s

	tr := dial(t, sock)
	if err := tr.send(newPacket(pktCmdRequest, "bogus", nil)); err != nil {
		t.Fatalf("send: %v", err)
	}

	p, err := tr.recv()
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	if p.ptype != pktCmdUnknown {
		t.Fatalf("ptype = %v, want pktCmdUnknown", p.ptype)
	}
}

func TestServerHandlerErrorReportsFailure(t *testing.T) {
	s, sock := newTestServer(t)
	s.RegisterHandler("terminate", func(ctx context.Context, msg *Message) (*Message, error) {
		return nil, errNoSuchSA
	})

	tr := dial(t, sock)
	if err := tr.send(newPacket(pktCmdRequest, "terminate", nil)); err != nil {
		t.Fatalf("send: %v", err)
	}

	p, err := tr.recv()
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	if err := p.msg.CheckSuccess(); err == nil {
		t.Fatal("CheckSuccess() = nil, want error for a failed command")
	}
}

func TestServerBroadcastDeliversToSubscriber(t *testing.T) {
	s, sock := newTestServer(t)

	tr := dial(t, sock)
	if err := tr.send(newPacket(pktEventRegister, "ike-updown", nil)); err != nil {
		t.Fatalf("send register: %v", err)
	}
	confirm, err := tr.recv()
	if err != nil {
		t.Fatalf("recv confirm: %v", err)
	}
	if confirm.ptype != pktEventConfirm {
		t.Fatalf("ptype = %v, want pktEventConfirm", confirm.ptype)
	}

	// give the server a moment to register the subscription before broadcasting
	deadline := time.Now().Add(time.Second)
	for {
		s.subMu.RLock()
		n := len(s.subs)
		s.subMu.RUnlock()
		if n > 0 || time.Now().After(deadline) {
			break
		}
		time.Sleep(time.Millisecond)
	}

	evt := NewMessage()
	_ = evt.Set("name", "conn1")
	s.Broadcast("ike-updown", evt)

	p, err := tr.recv()
	if err != nil {
		t.Fatalf("recv event: %v", err)
	}
	if p.ptype != pktEvent || p.name != "ike-updown" {
		t.Fatalf("got ptype=%v name=%q, want pktEvent/ike-updown", p.ptype, p.name)
	}
	if p.msg.Get("name") != "conn1" {
		t.Fatalf("event payload name = %v, want conn1", p.msg.Get("name"))
	}
}

func TestServerBroadcastSkipsUnsubscribed(t *testing.T) {
	s, sock := newTestServer(t)

	tr := dial(t, sock)
	if err := tr.send(newPacket(pktEventRegister, "child-updown", nil)); err != nil {
		t.Fatalf("send register: %v", err)
	}
	if _, err := tr.recv(); err != nil {
		t.Fatalf("recv confirm: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for {
		s.subMu.RLock()
		n := len(s.subs)
		s.subMu.RUnlock()
		if n > 0 || time.Now().After(deadline) {
			break
		}
		time.Sleep(time.Millisecond)
	}

	s.Broadcast("ike-updown", NewMessage()) // subscribed to a different event

	// Now send a command request; if the unrelated broadcast had wrongly
	// been delivered, it would arrive before this response and fail the
	// ptype check below.
	if err := tr.send(newPacket(pktCmdRequest, "noop", nil)); err != nil {
		t.Fatalf("send: %v", err)
	}
	p, err := tr.recv()
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	if p.ptype != pktCmdUnknown {
		t.Fatalf("ptype = %v, want pktCmdUnknown (no spurious event should have been delivered first)", p.ptype)
	}
}
