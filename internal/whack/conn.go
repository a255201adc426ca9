package whack

import (
	"context"
	"net"
)

// serveConn runs one client connection's request/event loop until it
// disconnects or ctx is cancelled.
func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	tr := &transport{conn: conn}
	sub := newSubscriber(tr)

	s.addSubscriber(sub)
	defer func() {
		s.removeSubscriber(sub)
		conn.Close()
	}()

	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		conn.Close()
		close(done)
	}()

	for {
		p, err := tr.recv()
		if err != nil {
			return
		}

		switch p.ptype {
		case pktCmdRequest:
			s.dispatchCommand(ctx, sub, p)

		case pktEventRegister:
			sub.subscribe(p.name)
			_ = sub.sendLocked(newPacket(pktEventConfirm, "", nil))

		case pktEventUnregister:
			sub.unsubscribe(p.name)
			_ = sub.sendLocked(newPacket(pktEventConfirm, "", nil))

		default:
			_ = sub.sendLocked(newPacket(pktCmdUnknown, "", nil))
		}

		select {
		case <-done:
			return
		default:
		}
	}
}

func (s *Server) dispatchCommand(ctx context.Context, sub *subscriber, p *packet) {
	h, ok := s.handler(p.name)
	if !ok {
		_ = sub.sendLocked(newPacket(pktCmdUnknown, "", nil))
		return
	}

	resp, err := h(ctx, p.msg)
	if err != nil {
		resp = NewMessage()
		_ = resp.Set("success", "no")
		_ = resp.Set("errmsg", err.Error())
	} else if resp == nil {
		resp = NewMessage()
	}
	if resp.Get("success") == nil {
		_ = resp.Set("success", "yes")
	}

	_ = sub.sendLocked(newPacket(pktCmdResponse, "", resp))
}
