// Package udp is the raw pixel-frame listener. Receives are polled with a
// short deadline so the control loop never blocks on the socket.
package udp

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"
)

// Config holds the listener settings.
type Config struct {
	IP      string
	Port    int
	Timeout time.Duration // per-poll read deadline
	// MaxFrame is the expected frame size; reads accept a little slack so
	// oversized packets surface as length errors instead of silent truncation.
	MaxFrame int
}

// Server is a non-blocking UDP receiver.
type Server struct {
	cfg    Config
	conn   *net.UDPConn
	buf    []byte
	logger *slog.Logger
}

// NewServer creates an unstarted server.
func NewServer(cfg Config, logger *slog.Logger) *Server {
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Millisecond
	}
	return &Server{
		cfg:    cfg,
		buf:    make([]byte, cfg.MaxFrame+64),
		logger: logger.With("component", "udp"),
	}
}

// Start binds the socket.
func (s *Server) Start() error {
	addr := &net.UDPAddr{IP: net.ParseIP(s.cfg.IP), Port: s.cfg.Port}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("udp listen %s:%d: %w", s.cfg.IP, s.cfg.Port, err)
	}
	s.conn = conn
	s.logger.Info("udp server listening", "addr", conn.LocalAddr())
	return nil
}

// Poll performs one bounded receive. A deadline expiry yields nil; any
// other socket error is logged and also yields nil so a transient OS
// failure never takes down the control loop.
func (s *Server) Poll() []byte {
	if s.conn == nil {
		return nil
	}
	if err := s.conn.SetReadDeadline(time.Now().Add(s.cfg.Timeout)); err != nil {
		s.logger.Warn("set read deadline", "err", err)
		return nil
	}
	n, _, err := s.conn.ReadFromUDP(s.buf)
	if err != nil {
		if !errors.Is(err, os.ErrDeadlineExceeded) {
			s.logger.Warn("udp receive", "err", err)
		}
		return nil
	}
	out := make([]byte, n)
	copy(out, s.buf[:n])
	return out
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

// Close releases the socket.
func (s *Server) Close() error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}
