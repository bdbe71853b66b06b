package lib

import (
	"net"
	"testing"
)

func TestUDPTransportLoopback(t *testing.T) {
	loopback := net.IPv4(127, 0, 0, 1)
	portA, portB := freeUDPPort(t), freeUDPPort(t)
	addrA := &net.UDPAddr{IP: loopback, Port: portA}
	addrB := &net.UDPAddr{IP: loopback, Port: portB}

	a, err := NewUDPTransport(addrA, addrB, &UDPTransportConfig{TTL: 16, ReadBufferSize: 1 << 16})
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	b, err := NewUDPTransport(addrB, addrA, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	if a.LocalAddr().Port != portA || a.RemoteAddr().Port != portB {
		t.Errorf("addresses %s -> %s", a.LocalAddr(), a.RemoteAddr())
	}
	datagram, _ := Encode(1, 2, SYNFlag, 1250, nil)
	if _, err := a.Send(datagram); err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, MTU)
	n, err := b.Receive(buf)
	if err != nil {
		t.Fatal(err)
	}
	seg, err := Decode(buf[:n])
	if err != nil || seg.Flags != SYNFlag {
		t.Fatalf("Decode = %v, %v", seg, err)
	}

	a.Close()
	if err := a.Close(); err != nil {
		t.Errorf("second close = %v", err)
	}
	if _, err := a.Send(datagram); !isTransportClosed(err) {
		t.Errorf("send after close = %v", err)
	}
	if _, err := a.Receive(buf); !isTransportClosed(err) {
		t.Errorf("receive after close = %v", err)
	}
}
