package lib

import (
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// PortPool hands out local UDP ports in random order from a fixed range.
// Ports circulate in a ring: allocation reads, return writes.
type PortPool struct {
	ports           []int
	capacity        int
	minPort         int
	maxPort         int
	readIdx         int
	writeIdx        int
	isFull, isEmpty bool
	allocatedMap    map[int]time.Time
	mtx             sync.Mutex
}

// newPortPool creates a full pool holding every port of [minPort, maxPort].
func newPortPool(minPort, maxPort int) (*PortPool, error) {
	if minPort <= 0 || maxPort > 65535 || minPort > maxPort {
		return nil, fmt.Errorf("invalid port range %d-%d", minPort, maxPort)
	}
	capacity := maxPort - minPort + 1

	perm := rand.Perm(capacity)
	ports := make([]int, capacity)
	for i, v := range perm {
		ports[i] = minPort + v // random sequence of the whole range
	}

	return &PortPool{
		ports:        ports,
		capacity:     capacity,
		minPort:      minPort,
		maxPort:      maxPort,
		allocatedMap: make(map[int]time.Time),
		isFull:       true,
	}, nil
}

// allocatePort retrieves the next port from the pool.
func (p *PortPool) allocatePort() (int, error) {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	return p.allocateLocked()
}

func (p *PortPool) allocateLocked() (int, error) {
	if p.isEmpty {
		return 0, ErrPortPoolEmpty
	}

	port := p.ports[p.readIdx]
	p.readIdx = (p.readIdx + 1) % p.capacity
	if p.readIdx == p.writeIdx {
		p.isEmpty = true
	}
	p.isFull = false
	p.allocatedMap[port] = time.Now()

	return port, nil
}

// allocatePortAbove retrieves a port greater than floor, so that a
// connection from it to a peer on floor plays the client role. Ports that do
// not qualify go back to the end of the ring.
func (p *PortPool) allocatePortAbove(floor int) (int, error) {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	if floor >= p.maxPort {
		return 0, fmt.Errorf("%w: no port above %d in %d-%d", ErrPortPoolEmpty, floor, p.minPort, p.maxPort)
	}
	for tries := p.availableLocked(); tries > 0; tries-- {
		port, err := p.allocateLocked()
		if err != nil {
			return 0, err
		}
		if port > floor {
			return port, nil
		}
		p.returnLocked(port)
	}
	return 0, fmt.Errorf("%w: no free port above %d", ErrPortPoolEmpty, floor)
}

// returnPort puts a port back into the pool.
func (p *PortPool) returnPort(port int) error {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	if port < p.minPort || port > p.maxPort {
		return fmt.Errorf("port %d out of range %d-%d", port, p.minPort, p.maxPort)
	}
	if _, ok := p.allocatedMap[port]; !ok {
		return fmt.Errorf("port %d was not allocated", port)
	}
	p.returnLocked(port)
	return nil
}

func (p *PortPool) returnLocked(port int) {
	p.ports[p.writeIdx] = port
	p.writeIdx = (p.writeIdx + 1) % p.capacity
	if p.writeIdx == p.readIdx {
		p.isFull = true
	}
	p.isEmpty = false
	delete(p.allocatedMap, port)
}

// available returns the number of ports left in the pool.
func (p *PortPool) available() int {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	return p.availableLocked()
}

func (p *PortPool) availableLocked() int {
	switch {
	case p.isFull:
		return p.capacity
	case p.isEmpty:
		return 0
	case p.readIdx < p.writeIdx:
		return p.writeIdx - p.readIdx
	default:
		return p.capacity - (p.readIdx - p.writeIdx)
	}
}
