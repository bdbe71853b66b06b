package lib

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"

	rp "github.com/Clouded-Sabre/ringpool/lib"
)

// Segment is one datagram of the protocol: a 12 byte big-endian header
// followed by an optional payload of at most MaxMSS bytes.
type Segment struct {
	SequenceNumber    uint32 // for data segments, the stream offset just past the payload
	AcknowledgmentNum uint32 // next byte offset expected from the peer
	Flags             uint16 // one of 0, SYN, ACK, FIN, SYN|ACK, FIN|ACK
	WindowSize        uint16 // sender's fixed window, informational only
	Payload           []byte
	chunk             *rp.Element // pooled storage backing Payload on decoded segments
}

func NewSegment(seqNum, ackNum uint32, flags, windowSize uint16, payload []byte) *Segment {
	return &Segment{
		SequenceNumber:    seqNum,
		AcknowledgmentNum: ackNum,
		Flags:             flags,
		WindowSize:        windowSize,
		Payload:           payload,
	}
}

// Length returns the encoded size of the segment.
func (s *Segment) Length() int {
	return HeaderLength + len(s.Payload)
}

// Marshal encodes the segment into buffer and returns the number of bytes written.
func (s *Segment) Marshal(buffer []byte) (int, error) {
	if len(s.Payload) > MaxMSS {
		return 0, fmt.Errorf("payload (%d bytes) exceeds MSS (%d bytes)", len(s.Payload), MaxMSS)
	}
	frameLength := s.Length()
	if frameLength > len(buffer) {
		return 0, fmt.Errorf("buffer size (%d) is too small to hold the segment (%d)", len(buffer), frameLength)
	}

	binary.BigEndian.PutUint32(buffer[0:4], s.SequenceNumber)
	binary.BigEndian.PutUint32(buffer[4:8], s.AcknowledgmentNum)
	binary.BigEndian.PutUint16(buffer[8:10], s.Flags)
	binary.BigEndian.PutUint16(buffer[10:12], s.WindowSize)
	copy(buffer[HeaderLength:], s.Payload)

	return frameLength, nil
}

// Unmarshal decodes data into the segment. The payload is copied, so data
// may be reused by the caller afterwards.
func (s *Segment) Unmarshal(data []byte) error {
	if len(data) < HeaderLength {
		return fmt.Errorf("%w: length (%d) is shorter than the header (%d)", ErrMalformedSegment, len(data), HeaderLength)
	}
	if len(data) > MTU {
		return fmt.Errorf("%w: length (%d) exceeds MTU (%d)", ErrMalformedSegment, len(data), MTU)
	}
	s.SequenceNumber = binary.BigEndian.Uint32(data[0:4])
	s.AcknowledgmentNum = binary.BigEndian.Uint32(data[4:8])
	s.Flags = binary.BigEndian.Uint16(data[8:10])
	s.WindowSize = binary.BigEndian.Uint16(data[10:12])

	if len(data) > HeaderLength {
		if err := s.CopyToPayload(data[HeaderLength:]); err != nil {
			return fmt.Errorf("segment unmarshal: error copying payload - %w", err)
		}
	} else {
		s.Payload = nil
	}
	return nil
}

// Encode returns the wire form of a segment.
func Encode(seqNum, ackNum uint32, flags, windowSize uint16, payload []byte) ([]byte, error) {
	seg := NewSegment(seqNum, ackNum, flags, windowSize, payload)
	buffer := make([]byte, seg.Length())
	if _, err := seg.Marshal(buffer); err != nil {
		return nil, err
	}
	return buffer, nil
}

// Decode parses a datagram. The returned segment may hold a pooled chunk;
// call ReturnChunk once its payload is no longer needed.
func Decode(data []byte) (*Segment, error) {
	seg := &Segment{}
	if err := seg.Unmarshal(data); err != nil {
		return nil, err
	}
	return seg, nil
}

// CopyToPayload stores src in a pooled chunk, or in a fresh slice when the
// pool is not initialized or has nothing to hand out.
func (s *Segment) CopyToPayload(src []byte) error {
	if len(src) == 0 {
		return fmt.Errorf("segment CopyToPayload: source slice is empty")
	}
	if Pool == nil {
		s.Payload = append([]byte(nil), src...)
		return nil
	}
	s.GetChunk()
	if s.chunk == nil {
		s.Payload = append([]byte(nil), src...)
		return nil
	}
	payload, ok := s.chunk.Data.(*Payload)
	if !ok {
		s.ReturnChunk()
		return ErrPoolExhausted
	}
	if err := payload.Copy(src); err != nil {
		s.ReturnChunk()
		return err
	}
	s.Payload = payload.GetSlice()
	return nil
}

func (s *Segment) GetChunk() {
	s.chunk = Pool.GetElement()
}

// ReturnChunk gives the backing chunk back to the pool. Payload must not be
// used afterwards.
func (s *Segment) ReturnChunk() {
	if s.chunk != nil {
		Pool.ReturnElement(s.chunk)
		s.chunk = nil
		s.Payload = nil
	}
}

func (s *Segment) String() string {
	return fmt.Sprintf("%s seq=%d ack=%d win=%d len=%d", FlagString(s.Flags), s.SequenceNumber, s.AcknowledgmentNum, s.WindowSize, len(s.Payload))
}

// FlagString names a flag value. Values outside the six meaningful ones are
// printed in hex.
func FlagString(flags uint16) string {
	switch flags {
	case DataFlags:
		return "DATA"
	case SYNFlag:
		return "SYN"
	case ACKFlag:
		return "ACK"
	case FINFlag:
		return "FIN"
	case SYNFlag | ACKFlag:
		return "SYN|ACK"
	case FINFlag | ACKFlag:
		return "FIN|ACK"
	default:
		return fmt.Sprintf("0x%04x", flags)
	}
}

func GenerateISN() (uint32, error) {
	var isn uint32
	err := binary.Read(rand.Reader, binary.BigEndian, &isn)
	if err != nil {
		return 0, err
	}
	return isn, nil
}
