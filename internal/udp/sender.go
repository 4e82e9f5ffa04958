package udp

import (
	"net"
	"sync"

	"github.com/pkg/errors"
)

type udpConn interface {
	Write(p []byte) (int, error)
	Close() error
}

type resolveFunc func(network, address string) (*net.UDPAddr, error)

type dialFunc func(network string, laddr, raddr *net.UDPAddr) (udpConn, error)

// Stats counts what the sender has pushed out since it was opened.
type Stats struct {
	Packets uint64 `json:"packets"`
	Bytes   uint64 `json:"bytes"`
	Errors  uint64 `json:"errors"`
}

// Sender writes telemetry frames to a single UDP destination.
type Sender struct {
	dest string
	conn udpConn

	mu    sync.Mutex
	stats Stats
}

func NewSender(dest string) (*Sender, error) {
	return newSender(dest, net.ResolveUDPAddr, func(network string, laddr, raddr *net.UDPAddr) (udpConn, error) {
		// DialUDP selects a suitable local address automatically.
		return net.DialUDP(network, laddr, raddr)
	})
}

func newSender(dest string, resolve resolveFunc, dial dialFunc) (*Sender, error) {
	addr, err := resolve("udp", dest)
	if err != nil {
		return nil, errors.Wrap(err, "resolve dest")
	}
	conn, err := dial("udp", nil, addr)
	if err != nil {
		return nil, errors.Wrap(err, "dial udp")
	}
	return &Sender{dest: dest, conn: conn}, nil
}

func (s *Sender) Dest() string { return s.dest }

// Send writes one datagram. Empty payloads are skipped.
func (s *Sender) Send(payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	n, err := s.conn.Write(payload)
	s.mu.Lock()
	if err != nil {
		s.stats.Errors++
	} else {
		s.stats.Packets++
		s.stats.Bytes += uint64(n)
	}
	s.mu.Unlock()
	return err
}

// SendAll sends each frame as its own datagram and returns the first error.
func (s *Sender) SendAll(frames ...[]byte) error {
	var first error
	for _, f := range frames {
		if err := s.Send(f); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (s *Sender) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *Sender) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}
