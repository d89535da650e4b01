package adapter

import (
	"bufio"
	"io"
	"log"
	"net"

	"blinkdb/internal/engine"
)

// Server is the Redis-compatible front door: a net.Listener served by one
// goroutine per connection, each decoding requests and dispatching them
// against a shared *engine.Engine (SPEC_FULL.md §4.9).
type Server struct {
	ln  net.Listener
	eng *engine.Engine
	log *log.Logger
}

func NewServer(eng *engine.Engine, ln net.Listener, logger *log.Logger) *Server {
	return &Server{ln: ln, eng: eng, log: logger}
}

// Serve blocks, accepting connections until the listener is closed.
func (s *Server) Serve() error {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return err
		}
		go s.handleConn(conn)
	}
}

func (s *Server) Close() error {
	return s.ln.Close()
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	w := bufio.NewWriter(conn)

	for {
		args, err := decodeRequest(r)
		if err != nil {
			if err != io.EOF {
				s.log.Printf("adapter: %s: %v", conn.RemoteAddr(), err)
			}
			return
		}
		if err := dispatch(s.eng, args, w); err != nil {
			s.log.Printf("adapter: %s: write error: %v", conn.RemoteAddr(), err)
			return
		}
		if err := w.Flush(); err != nil {
			return
		}
	}
}
