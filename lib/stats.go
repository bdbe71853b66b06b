package lib

import "sync/atomic"

// Stats is a snapshot of a connection's counters.
type Stats struct {
	SegmentsSent      uint64
	SegmentsReceived  uint64
	DataSegmentsSent  uint64
	Retransmissions   uint64 // go-back-N rewinds of the send pointer
	AcksSent          uint64
	DuplicateAcksSent uint64 // ACKs sent because recv timed out or saw an unexpected segment
	WindowAdvances    uint64 // ACKs that moved remote_ack forward
	BytesDelivered    uint64
	SlotOverwrites    uint64 // data segments replaced before recv consumed them
	MalformedSegments uint64
}

type connStats struct {
	segmentsSent      atomic.Uint64
	segmentsReceived  atomic.Uint64
	dataSegmentsSent  atomic.Uint64
	retransmissions   atomic.Uint64
	acksSent          atomic.Uint64
	duplicateAcksSent atomic.Uint64
	windowAdvances    atomic.Uint64
	bytesDelivered    atomic.Uint64
	slotOverwrites    atomic.Uint64
	malformedSegments atomic.Uint64
}

func (s *connStats) snapshot() Stats {
	return Stats{
		SegmentsSent:      s.segmentsSent.Load(),
		SegmentsReceived:  s.segmentsReceived.Load(),
		DataSegmentsSent:  s.dataSegmentsSent.Load(),
		Retransmissions:   s.retransmissions.Load(),
		AcksSent:          s.acksSent.Load(),
		DuplicateAcksSent: s.duplicateAcksSent.Load(),
		WindowAdvances:    s.windowAdvances.Load(),
		BytesDelivered:    s.bytesDelivered.Load(),
		SlotOverwrites:    s.slotOverwrites.Load(),
		MalformedSegments: s.malformedSegments.Load(),
	}
}
