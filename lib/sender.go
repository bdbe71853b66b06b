package lib

import (
	"errors"
	"sync"
)

// sendQueue is the FIFO between Send and the sender goroutine. pending counts
// buffers queued or in transmission; idle is closed whenever it is zero.
type sendQueue struct {
	mu      sync.Mutex
	buffers [][]byte
	pending int
	notify  chan struct{}
	idle    chan struct{}
}

func newSendQueue() *sendQueue {
	idle := make(chan struct{})
	close(idle)
	return &sendQueue{
		notify: make(chan struct{}, 1),
		idle:   idle,
	}
}

func (q *sendQueue) push(b []byte) {
	q.mu.Lock()
	if q.pending == 0 {
		q.idle = make(chan struct{})
	}
	q.pending++
	q.buffers = append(q.buffers, b)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// pop takes the oldest buffer. It stays pending until done is called.
func (q *sendQueue) pop() ([]byte, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.buffers) == 0 {
		return nil, false
	}
	b := q.buffers[0]
	q.buffers[0] = nil
	q.buffers = q.buffers[1:]
	return b, true
}

func (q *sendQueue) done() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending--
	if q.pending == 0 {
		close(q.idle)
	}
}

// discard drops every queued buffer and returns how many bytes were lost.
func (q *sendQueue) discard() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	lost := 0
	for _, b := range q.buffers {
		lost += len(b)
	}
	n := len(q.buffers)
	q.buffers = nil
	if n > 0 {
		q.pending -= n
		if q.pending == 0 {
			close(q.idle)
		}
	}
	return lost
}

func (q *sendQueue) idleChan() <-chan struct{} {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.idle
}

// sendLoop transmits queued buffers one after another once the connection is
// established. After a failure it keeps draining the queue without sending so
// that waiters on idle are released.
func (c *Connection) sendLoop() {
	defer c.wg.Done()

	select {
	case <-c.established:
	case <-c.closeSignal:
		return
	}

	for {
		data, ok := c.queue.pop()
		if !ok {
			select {
			case <-c.queue.notify:
				continue
			case <-c.closeSignal:
				return
			}
		}

		if c.Err() == nil {
			if err := c.transmit(data); err != nil {
				c.abandon(err)
			}
		}
		c.queue.done()
	}
}

// transmit delivers one buffer with go-back-N: segments go out while they fit
// in the window past remote_ack, then the sender waits for an ACK and rewinds
// local_sequence to remote_ack. It returns once the peer acknowledged the end
// of the buffer, or fails after RstTimeout without any ACK.
func (c *Connection) transmit(data []byte) error {
	start := c.state.localSequence.Load()
	end := SeqIncrementBy(start, uint32(len(data)))
	window := c.state.windowSize
	mss := uint32(c.config.MSS)

	for {
		remoteAck := c.state.remoteAck.Load()
		if isGreaterOrEqual(remoteAck, end) {
			return nil
		}

		seq := c.state.localSequence.Load()
		windowEnd := SeqIncrementBy(remoteAck, window)
		if isLess(seq, end) && isLess(seq, windowEnd) {
			n := mss
			if room := uint32(seqDistance(windowEnd, seq)); room < n {
				n = room
			}
			if left := uint32(seqDistance(end, seq)); left < n {
				n = left
			}
			offset := uint32(seqDistance(seq, start))
			next := SeqIncrementBy(seq, n)
			// the segment carries the offset just past its payload
			c.state.localSequence.Store(next)
			if err := c.sendSegment(next, c.state.localAck.Load(), DataFlags, data[offset:offset+n]); err != nil {
				if isTransportClosed(err) {
					return err
				}
				c.log.Debug().Err(err).Msg("transient send error")
			}
			continue
		}

		// window exhausted, wait for the peer
		c.ackArrived.Clear()
		if c.state.remoteAck.Load() == remoteAck {
			if !c.ackArrived.Wait(c.config.RstTimeout, c.closeSignal) {
				select {
				case <-c.closeSignal:
					return ErrClosed
				default:
				}
				if c.state.remoteAck.Load() == remoteAck {
					return ErrAckTimeout
				}
			}
		}

		// go back to the first unacknowledged byte
		rewind := c.state.remoteAck.Load()
		if isLess(rewind, c.state.localSequence.Load()) {
			c.stats.retransmissions.Add(1)
		}
		if isLess(rewind, start) {
			rewind = start
		}
		c.state.localSequence.Store(rewind)
	}
}

// abandon records a fatal sender failure and drops everything still queued.
// local_sequence is pulled back to what the peer acknowledged so a later FIN
// carries a consistent sequence number.
func (c *Connection) abandon(err error) {
	c.fail(err)
	c.state.localSequence.Store(c.state.remoteAck.Load())
	lost := c.queue.discard()
	ev := c.log.Error()
	if errors.Is(err, ErrClosed) {
		ev = c.log.Debug()
	}
	ev.Err(err).
		Int("discarded_bytes", lost).
		Interface("state", c.state.snapshot()).
		Msg("sender stopped")
}
