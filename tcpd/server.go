// Package tcpd provides the TCP listener and the framed connection type
// used by the relay server. It knows about frames, not about rooms.
package tcpd

import (
	"net"
	"sync"
	"time"
)

// Server accepts TCP connections and hands each one, wrapped as a framed
// Conn, to HandlerFunc on its own goroutine.
type Server struct {
	net.Listener

	// HandlerFunc runs the session for one connection and is expected to
	// close it.
	HandlerFunc func(c *Conn)

	// IdleTimeout bounds how long a read may block waiting for a frame.
	// Zero disables the deadline, which leaves half-open peers to hold
	// their session until TCP gives up.
	IdleTimeout time.Duration

	mu    sync.Mutex
	conns map[*Conn]struct{}
	done  chan struct{}
}

// Listen opens a TCP listener on laddr.
func Listen(laddr string) (*Server, error) {
	socket, err := net.Listen("tcp", laddr)
	if err != nil {
		return nil, err
	}
	return &Server{
		Listener: socket,
		conns:    map[*Conn]struct{}{},
		done:     make(chan struct{}),
	}, nil
}

// Serve accepts connections until the listener closes. Blocks.
func (s *Server) Serve() {
	for {
		conn, err := s.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}
			logger.Printf("Failed to accept connection: %v", err)
			return
		}

		// Goroutineify to resume accepting sockets early.
		go func() {
			c := NewConn(conn, s.IdleTimeout)
			logger.Printf("[%s] connected: %s", c.ID(), c.RemoteAddr())

			s.track(c)
			defer s.untrack(c)
			defer c.Close()

			s.HandlerFunc(c)
			logger.Printf("[%s] disconnected", c.ID())
		}()
	}
}

func (s *Server) track(c *Conn) {
	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrack(c *Conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
}

// EachConn applies fn to every live connection, used to push shutdown
// notices.
func (s *Server) EachConn(fn func(c *Conn)) {
	s.mu.Lock()
	conns := make([]*Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		fn(c)
	}
}

// Close stops accepting and tears down every live connection.
func (s *Server) Close() error {
	close(s.done)
	err := s.Listener.Close()
	s.EachConn(func(c *Conn) { c.Close() })
	return err
}
