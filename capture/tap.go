package capture

import (
	"net"
	"sync"
	"time"

	"github.com/Clouded-Sabre/Datagram-TCP/lib"
)

var (
	defaultLocal  = &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 1}
	defaultRemote = &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 2}
)

// Tap is a transport decorator that records every datagram that passes
// through it. Capture failures never fail the transport; the first one is
// kept and reported by Err.
type Tap struct {
	lib.Transport
	w      *Writer
	local  *net.UDPAddr
	remote *net.UDPAddr
	mu     sync.Mutex
	err    error
}

// NewTap wraps t. Nil addresses, as with in-memory transports, are replaced
// by fixed loopback placeholders.
func NewTap(t lib.Transport, w *Writer, local, remote *net.UDPAddr) *Tap {
	if local == nil {
		local = defaultLocal
	}
	if remote == nil {
		remote = defaultRemote
	}
	return &Tap{Transport: t, w: w, local: local, remote: remote}
}

// Wrapper returns a lib.TransportWrapper that taps dialed sockets into w.
func Wrapper(w *Writer) lib.TransportWrapper {
	return func(u *lib.UDPTransport) (lib.Transport, error) {
		return NewTap(u, w, u.LocalAddr(), u.RemoteAddr()), nil
	}
}

func (t *Tap) Send(b []byte) (int, error) {
	n, err := t.Transport.Send(b)
	if err == nil {
		t.record(t.local, t.remote, b[:n])
	}
	return n, err
}

func (t *Tap) Receive(b []byte) (int, error) {
	n, err := t.Transport.Receive(b)
	if err == nil {
		t.record(t.remote, t.local, b[:n])
	}
	return n, err
}

func (t *Tap) record(src, dst *net.UDPAddr, datagram []byte) {
	if err := t.w.WriteDatagram(src, dst, datagram, time.Now()); err != nil {
		t.mu.Lock()
		if t.err == nil {
			t.err = err
		}
		t.mu.Unlock()
	}
}

// Err returns the first capture failure.
func (t *Tap) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}
