// Package whack's Server is the daemon side of the operator control
// channel: it accepts connections on a unix socket, dispatches named
// command requests to registered handlers, and pushes named events to
// whichever connections have subscribed to them (the
// status/initiate/terminate/list-sas/list-conns/events command set).
package whack

import (
	"context"
	"fmt"
	"net"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// Handler answers one command request with a response message, or an
// error that becomes a failed ("success": "no") response.
type Handler func(ctx context.Context, msg *Message) (*Message, error)

// Server is one listening whack control channel.
type Server struct {
	log *logrus.Logger

	listener net.Listener

	mu       sync.RWMutex
	handlers map[string]Handler

	subMu sync.RWMutex
	subs  map[*subscriber]struct{}

	wg sync.WaitGroup
}

// NewServer listens on socketPath (defaultSocketPath if empty), removing
// any stale socket file left behind by a previous run.
func NewServer(log *logrus.Logger, socketPath string) (*Server, error) {
	if socketPath == "" {
		socketPath = defaultSocketPath
	}

	if err := os.Remove(socketPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("whack: removing stale socket %s: %w", socketPath, err)
	}

	l, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("whack: listen on %s: %w", socketPath, err)
	}

	return &Server{
		log:      log,
		listener: l,
		handlers: make(map[string]Handler),
		subs:     make(map[*subscriber]struct{}),
	}, nil
}

// RegisterHandler binds a command name to its handler. Call before Serve.
func (s *Server) RegisterHandler(cmd string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[cmd] = h
}

func (s *Server) handler(cmd string) (Handler, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.handlers[cmd]
	return h, ok
}

// Serve accepts connections until ctx is cancelled or the listener errors.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.listener.Close()
	}()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				s.wg.Wait()
				return nil
			default:
				return fmt.Errorf("whack: accept: %w", err)
			}
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveConn(ctx, conn)
		}()
	}
}

// Broadcast pushes a named event to every connection currently subscribed
// to it.
func (s *Server) Broadcast(eventName string, msg *Message) {
	s.subMu.RLock()
	defer s.subMu.RUnlock()

	for sub := range s.subs {
		if sub.subscribed(eventName) {
			if err := sub.sendEvent(eventName, msg); err != nil {
				s.log.WithError(err).WithField("event", eventName).Debug("dropping event for disconnected client")
			}
		}
	}
}

// Close stops accepting new connections.
func (s *Server) Close() error {
	return s.listener.Close()
}

func (s *Server) addSubscriber(sub *subscriber) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.subs[sub] = struct{}{}
}

func (s *Server) removeSubscriber(sub *subscriber) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	delete(s.subs, sub)
}
