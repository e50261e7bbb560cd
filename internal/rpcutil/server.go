// Package rpcutil provides the net/rpc-based transport shared by every
// peer role: a listen-and-serve loop on the server side, and a cached,
// write-once-per-remote client on the dial side. Plain net/rpc over TCP,
// one ServeConn goroutine per accepted connection, Call for synchronous
// requests and Go for fire-and-forget forwarding.
package rpcutil

import (
	"fmt"
	"net"
	"net/rpc"

	"github.com/abeynet/filemesh/internal/logging"
)

func portAddr(port int) string {
	return fmt.Sprintf(":%d", port)
}

// Server wraps a net/rpc server bound to a single listener. Each accepted
// connection gets its own goroutine running ServeConn, so one slow or
// hanging peer connection never blocks another.
type Server struct {
	rpcServer *rpc.Server
	listener  net.Listener
	log       interface {
		Error(msg string, ctx ...interface{})
	}
	closed chan struct{}
}

// Listen binds a new RPC server on the given port and registers receiver
// (an object whose exported methods follow the net/rpc signature
// convention) under name.
func Listen(port int, name string, receiver interface{}) (*Server, error) {
	rpcServer := rpc.NewServer()
	if err := rpcServer.RegisterName(name, receiver); err != nil {
		return nil, err
	}
	ln, err := net.Listen("tcp", portAddr(port))
	if err != nil {
		return nil, err
	}
	s := &Server{
		rpcServer: rpcServer,
		listener:  ln,
		log:       logging.New("rpcutil", "port", port),
		closed:    make(chan struct{}),
	}
	go s.acceptLoop()
	return s, nil
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.closed:
				return
			default:
				s.log.Error("accept failed", "err", err)
				return
			}
		}
		go s.rpcServer.ServeConn(conn)
	}
}

// Close stops accepting new connections. In-flight handlers run to
// completion; it is a best-effort shutdown, not a hard cutoff.
func (s *Server) Close() error {
	close(s.closed)
	return s.listener.Close()
}

// Addr returns the bound listener address, useful for tests that bind to
// port 0.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}
