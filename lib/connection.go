package lib

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const incomingQueueLength = 128

// ConnectionConfig holds the timing parameters of a connection.
type ConnectionConfig struct {
	RTT        time.Duration // round trip estimate, drives every retransmission timer
	RstTimeout time.Duration // give up on the peer after this long without an ACK
	Bandwidth  int           // link bandwidth in bits per second, sizes the window
	MSS        int           // max payload bytes per data segment
}

func DefaultConnectionConfig() *ConnectionConfig {
	return &ConnectionConfig{
		RTT:        DefaultRTT,
		RstTimeout: DefaultRstTimeout,
		Bandwidth:  DefaultBandwidth,
		MSS:        MaxMSS,
	}
}

// TimeoutDuration is the retransmission and receive timeout, 1.1 x RTT.
func (c *ConnectionConfig) TimeoutDuration() time.Duration {
	return c.RTT * 11 / 10
}

// WindowSize is the bandwidth-delay product in bytes, floor(bandwidth/8 x RTT).
func (c *ConnectionConfig) WindowSize() uint32 {
	return uint32(int64(c.Bandwidth) * int64(c.RTT) / (8 * int64(time.Second)))
}

func (c *ConnectionConfig) Validate() error {
	if c.RTT <= 0 {
		return fmt.Errorf("rtt must be positive, got %s", c.RTT)
	}
	if c.RstTimeout <= c.TimeoutDuration() {
		return fmt.Errorf("reset timeout (%s) must exceed the retransmission timeout (%s)", c.RstTimeout, c.TimeoutDuration())
	}
	if c.MSS <= 0 || c.MSS > MaxMSS {
		return fmt.Errorf("mss must be in (0, %d], got %d", MaxMSS, c.MSS)
	}
	window := c.WindowSize()
	if window == 0 {
		return fmt.Errorf("bandwidth %d bit/s with rtt %s gives an empty window", c.Bandwidth, c.RTT)
	}
	if window > 0xffff {
		return fmt.Errorf("window of %d bytes does not fit the 16 bit header field", window)
	}
	return nil
}

// ConnectionParams carries what a connection is bound to.
type ConnectionParams struct {
	Transport  Transport
	Role       Role
	Logger     zerolog.Logger
	Recorder   *Recorder // optional tail of the diagnostics, see Trace
	LocalAddr  net.Addr  // informational, may be nil
	RemoteAddr net.Addr  // informational, may be nil
	OnClose    func(*Connection)
}

// Connection is a reliable ordered byte stream over a datagram transport.
type Connection struct {
	//static
	config     *ConnectionConfig
	transport  Transport
	log        zerolog.Logger
	recorder   *Recorder
	localAddr  net.Addr
	remoteAddr net.Addr
	onClose    func(*Connection)
	// variables
	state         *connState
	stats         connStats
	incoming      chan *Segment // decoded segments from readLoop, consumed by the current phase
	ackArrived    *event        // set by the dispatch loop on every ACK
	slot          *receiveSlot  // latest data segment not yet taken by recv
	queue         *sendQueue    // application buffers waiting for the sender
	recvMu        sync.Mutex    // serializes Recv callers
	leftover      bytes.Buffer  // bytes accepted from the peer but not yet returned by recv
	errMu         sync.Mutex
	err           error         // sticky failure of the sender
	established   chan struct{} // closed when the handshake completes
	dispatchStop  chan struct{} // closed to stop the dispatch loop
	dispatchDone  chan struct{} // closed when the dispatch loop exits
	terminated    chan struct{} // closed when either termination path ends
	closeSignal   chan struct{} // closed by Close, stops every goroutine
	stopOnce      sync.Once
	terminateOnce sync.Once
	closeOnce     sync.Once
	wg            sync.WaitGroup
}

// NewConnection starts the handshake on params.Transport in the background
// and returns immediately. Send and Recv may be called at once: Send queues,
// Recv waits for establishment.
func NewConnection(params *ConnectionParams, config *ConnectionConfig) (*Connection, error) {
	if params == nil || params.Transport == nil {
		return nil, fmt.Errorf("new connection: transport is required")
	}
	if config == nil {
		config = DefaultConnectionConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("new connection: %w", err)
	}

	c := &Connection{
		config:       config,
		transport:    params.Transport,
		recorder:     params.Recorder,
		localAddr:    params.LocalAddr,
		remoteAddr:   params.RemoteAddr,
		onClose:      params.OnClose,
		state:        newConnState(params.Role, config.WindowSize()),
		incoming:     make(chan *Segment, incomingQueueLength),
		ackArrived:   newEvent(),
		slot:         newReceiveSlot(),
		queue:        newSendQueue(),
		established:  make(chan struct{}),
		dispatchStop: make(chan struct{}),
		dispatchDone: make(chan struct{}),
		terminated:   make(chan struct{}),
		closeSignal:  make(chan struct{}),
	}
	logCtx := params.Logger.With().Str("role", params.Role.String())
	if params.LocalAddr != nil && params.RemoteAddr != nil {
		logCtx = logCtx.Str("conn", params.LocalAddr.String()+"->"+params.RemoteAddr.String())
	}
	c.log = logCtx.Logger()

	c.wg.Add(3)
	go c.readLoop()
	go c.handshake()
	go c.sendLoop()

	return c, nil
}

// Send queues data for reliable delivery and returns without waiting for it
// to be acknowledged. Data queued before establishment goes out once the
// handshake completes.
func (c *Connection) Send(data []byte) (int, error) {
	if err := c.Err(); err != nil {
		return 0, err
	}
	switch c.state.current() {
	case StateActiveClosing, StatePassiveClosing, StateClosed:
		return 0, ErrClosed
	}
	if len(data) == 0 {
		return 0, nil
	}
	c.queue.push(append([]byte(nil), data...))
	return len(data), nil
}

// Close flushes queued data, performs the active close if the connection is
// established and releases everything it holds. The whole exchange is
// bounded by RstTimeout. Closing twice is a no-op.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		deadline := time.NewTimer(c.config.RstTimeout)
		defer deadline.Stop()
		if c.beginClose() {
			select {
			case <-c.queue.idleChan():
				select {
				case <-c.terminated:
				case <-deadline.C:
					c.log.Warn().Str("state", c.state.current().String()).Msg("termination did not finish in time, closing anyway")
				}
			case <-deadline.C:
				c.log.Warn().Msg("queued data not flushed in time, closing anyway")
			}
		}

		c.state.set(StateClosed)
		close(c.closeSignal)
		err = c.transport.Close()
		c.wg.Wait()

		c.finishTermination()
		c.drainIncoming()
		c.slot.drain()
		c.log.Debug().Interface("stats", c.stats.snapshot()).Msg("connection closed")
		if c.onClose != nil {
			c.onClose(c)
		}
	})
	return err
}

// beginClose starts the active close or, before establishment, aborts the
// handshake. It reports whether a termination path is running or finished.
func (c *Connection) beginClose() bool {
	for {
		if c.startActiveClose() {
			return true
		}
		switch st := c.state.current(); st {
		case StateUninitialized, StateEstablishing:
			if c.state.transition(st, StateClosed) {
				return false
			}
		case StateEstablished:
			// lost a race with the handshake finishing, retry
		default:
			return true
		}
	}
}

func (c *Connection) drainIncoming() {
	for {
		select {
		case seg := <-c.incoming:
			seg.ReturnChunk()
		default:
			return
		}
	}
}

// WaitEstablished blocks until the handshake completes, the connection is
// closed or ctx is done. A connection closed before its handshake finished
// reports ErrNotEstablished.
func (c *Connection) WaitEstablished(ctx context.Context) error {
	select {
	case <-c.established:
		return nil
	default:
	}
	select {
	case <-c.established:
		return nil
	case <-c.closeSignal:
	case <-c.terminated:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-c.established:
		return nil
	default:
		return ErrNotEstablished
	}
}

// Err returns the failure that stopped the sender, if any.
func (c *Connection) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

func (c *Connection) fail(err error) {
	c.errMu.Lock()
	if c.err == nil {
		c.err = err
	}
	c.errMu.Unlock()
}

func (c *Connection) State() State {
	return c.state.current()
}

func (c *Connection) Role() Role {
	return c.state.role
}

// Snapshot returns the current sequence space.
func (c *Connection) Snapshot() StateSnapshot {
	return c.state.snapshot()
}

func (c *Connection) Stats() Stats {
	return c.stats.snapshot()
}

// Trace returns the recent diagnostic output, or nil without a recorder.
func (c *Connection) Trace() []byte {
	if c.recorder == nil {
		return nil
	}
	return c.recorder.Bytes()
}

func (c *Connection) LocalAddr() net.Addr {
	return c.localAddr
}

func (c *Connection) RemoteAddr() net.Addr {
	return c.remoteAddr
}

// sendSegment encodes and transmits one segment.
func (c *Connection) sendSegment(seq, ack uint32, flags uint16, payload []byte) error {
	seg := NewSegment(seq, ack, flags, uint16(c.state.windowSize), payload)
	buffer := make([]byte, seg.Length())
	if _, err := seg.Marshal(buffer); err != nil {
		return err
	}
	if _, err := c.transport.Send(buffer); err != nil {
		return err
	}
	c.stats.segmentsSent.Add(1)
	switch flags {
	case DataFlags:
		c.stats.dataSegmentsSent.Add(1)
	case ACKFlag:
		c.stats.acksSent.Add(1)
	}
	if e := c.log.Trace(); e.Enabled() {
		e.Str("segment", seg.String()).Msg("sent")
	}
	return nil
}

// sendControl sends a payload-less segment carrying the current sequence
// space.
func (c *Connection) sendControl(flags uint16) error {
	return c.sendSegment(c.state.localSequence.Load(), c.state.localAck.Load(), flags, nil)
}

// sendControlTolerant is sendControl for retransmission loops: only a closed
// transport is reported, other failures are logged and retried on the next
// tick.
func (c *Connection) sendControlTolerant(flags uint16) error {
	err := c.sendControl(flags)
	if err == nil {
		return nil
	}
	if isTransportClosed(err) {
		return err
	}
	c.log.Debug().Err(err).Str("flags", FlagString(flags)).Msg("transient send error")
	return nil
}

// awaitSegment consumes incoming segments until one satisfies match.
// retransmit, if not nil, is called at once and then on every timeout tick.
// Segments that do not match are discarded.
func (c *Connection) awaitSegment(match func(*Segment) bool, retransmit func() error) (*Segment, error) {
	if retransmit != nil {
		if err := retransmit(); err != nil {
			return nil, err
		}
	}
	ticker := time.NewTicker(c.config.TimeoutDuration())
	defer ticker.Stop()
	for {
		select {
		case seg := <-c.incoming:
			if match(seg) {
				return seg, nil
			}
			c.log.Debug().Str("segment", seg.String()).Msg("ignoring segment")
			seg.ReturnChunk()
		case <-ticker.C:
			if retransmit != nil {
				if err := retransmit(); err != nil {
					return nil, err
				}
			}
		case <-c.closeSignal:
			return nil, ErrClosed
		}
	}
}
