package lib

import "sync"

const pipeQueueLength = 256

// pipeEnd is one side of an in-memory datagram link. Like UDP it never blocks
// the sender: datagrams sent into a full queue or to a closed peer are lost.
type pipeEnd struct {
	in         chan []byte
	out        chan []byte
	closed     chan struct{}
	peerClosed chan struct{}
	closeOnce  sync.Once
}

// Pipe returns two connected in-memory transports.
func Pipe() (Transport, Transport) {
	aToB := make(chan []byte, pipeQueueLength)
	bToA := make(chan []byte, pipeQueueLength)
	aClosed := make(chan struct{})
	bClosed := make(chan struct{})
	a := &pipeEnd{in: bToA, out: aToB, closed: aClosed, peerClosed: bClosed}
	b := &pipeEnd{in: aToB, out: bToA, closed: bClosed, peerClosed: aClosed}
	return a, b
}

func (p *pipeEnd) Send(b []byte) (int, error) {
	select {
	case <-p.closed:
		return 0, ErrTransportClosed
	default:
	}
	select {
	case <-p.peerClosed:
		return len(b), nil
	default:
	}
	datagram := append([]byte(nil), b...)
	select {
	case p.out <- datagram:
	default:
	}
	return len(b), nil
}

func (p *pipeEnd) Receive(b []byte) (int, error) {
	select {
	case datagram := <-p.in:
		return copy(b, datagram), nil
	case <-p.closed:
		return 0, ErrTransportClosed
	}
}

func (p *pipeEnd) Close() error {
	p.closeOnce.Do(func() {
		close(p.closed)
	})
	return nil
}
