package lib

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"golang.org/x/net/ipv4"
)

// Transport is the datagram endpoint a connection runs on. Both calls block
// and are implicitly addressed to one fixed remote peer.
type Transport interface {
	Send(b []byte) (int, error)
	Receive(b []byte) (int, error)
	Close() error
}

type UDPTransportConfig struct {
	TOS             int // IPv4 type-of-service byte, 0 keeps the system default
	TTL             int // IPv4 time-to-live, 0 keeps the system default
	ReadBufferSize  int // socket receive buffer, 0 keeps the system default
	WriteBufferSize int // socket send buffer, 0 keeps the system default
}

func DefaultUDPTransportConfig() *UDPTransportConfig {
	return &UDPTransportConfig{}
}

// UDPTransport is a UDP socket bound to a local address and connected to a
// single remote address, so the kernel filters out datagrams from anybody else.
type UDPTransport struct {
	conn       *net.UDPConn
	localAddr  *net.UDPAddr
	remoteAddr *net.UDPAddr
	closeOnce  sync.Once
	closeErr   error
}

func NewUDPTransport(localAddr, remoteAddr *net.UDPAddr, config *UDPTransportConfig) (*UDPTransport, error) {
	if config == nil {
		config = DefaultUDPTransportConfig()
	}
	conn, err := net.DialUDP("udp", localAddr, remoteAddr)
	if err != nil {
		return nil, fmt.Errorf("binding udp %s -> %s: %w", localAddr, remoteAddr, err)
	}

	t := &UDPTransport{
		conn:       conn,
		localAddr:  conn.LocalAddr().(*net.UDPAddr),
		remoteAddr: remoteAddr,
	}

	if err := t.applySocketOptions(config); err != nil {
		conn.Close()
		return nil, err
	}
	return t, nil
}

func (t *UDPTransport) applySocketOptions(config *UDPTransportConfig) error {
	if config.ReadBufferSize > 0 {
		if err := t.conn.SetReadBuffer(config.ReadBufferSize); err != nil {
			return fmt.Errorf("setting read buffer: %w", err)
		}
	}
	if config.WriteBufferSize > 0 {
		if err := t.conn.SetWriteBuffer(config.WriteBufferSize); err != nil {
			return fmt.Errorf("setting write buffer: %w", err)
		}
	}
	if t.remoteAddr.IP.To4() == nil {
		return nil // TOS and TTL are only applied to IPv4 sockets
	}
	pc := ipv4.NewConn(t.conn)
	if config.TOS > 0 {
		if err := pc.SetTOS(config.TOS); err != nil {
			return fmt.Errorf("setting TOS: %w", err)
		}
	}
	if config.TTL > 0 {
		if err := pc.SetTTL(config.TTL); err != nil {
			return fmt.Errorf("setting TTL: %w", err)
		}
	}
	return nil
}

func (t *UDPTransport) Send(b []byte) (int, error) {
	n, err := t.conn.Write(b)
	if err != nil && errors.Is(err, net.ErrClosed) {
		return n, fmt.Errorf("%w: %v", ErrTransportClosed, err)
	}
	return n, err
}

// Receive reads one datagram. Errors other than ErrTransportClosed, such as
// ICMP port unreachable reports surfacing as connection refused, are
// transient.
func (t *UDPTransport) Receive(b []byte) (int, error) {
	n, err := t.conn.Read(b)
	if err != nil && errors.Is(err, net.ErrClosed) {
		return n, fmt.Errorf("%w: %v", ErrTransportClosed, err)
	}
	return n, err
}

func (t *UDPTransport) Close() error {
	t.closeOnce.Do(func() {
		t.closeErr = t.conn.Close()
	})
	return t.closeErr
}

func (t *UDPTransport) LocalAddr() *net.UDPAddr {
	return t.localAddr
}

func (t *UDPTransport) RemoteAddr() *net.UDPAddr {
	return t.remoteAddr
}

// isTransportClosed reports whether err means the endpoint is gone for good.
func isTransportClosed(err error) bool {
	return errors.Is(err, ErrTransportClosed) || errors.Is(err, net.ErrClosed)
}
