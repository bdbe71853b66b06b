package shared

import (
	"encoding/binary"
	"fmt"
)

// FrameHeaderSize is the size of the length prefix in front of every message.
const FrameHeaderSize = 4

// MaxMessageSize bounds what ReadMessage accepts from a peer.
const MaxMessageSize = 64 << 20

// Stream is the part of a connection the framing needs.
type Stream interface {
	Send(data []byte) (int, error)
	Recv(n int) ([]byte, error)
}

// WriteMessage sends data prefixed with its big-endian length.
func WriteMessage(s Stream, data []byte) error {
	if len(data) > MaxMessageSize {
		return fmt.Errorf("message of %d bytes exceeds the limit of %d", len(data), MaxMessageSize)
	}
	frame := make([]byte, FrameHeaderSize+len(data))
	binary.BigEndian.PutUint32(frame[:FrameHeaderSize], uint32(len(data)))
	copy(frame[FrameHeaderSize:], data)
	if _, err := s.Send(frame); err != nil {
		return fmt.Errorf("sending message: %w", err)
	}
	return nil
}

// ReadMessage receives one length-prefixed message.
func ReadMessage(s Stream) ([]byte, error) {
	header, err := s.Recv(FrameHeaderSize)
	if err != nil {
		return nil, fmt.Errorf("reading message length: %w", err)
	}
	length := binary.BigEndian.Uint32(header)
	if length > MaxMessageSize {
		return nil, fmt.Errorf("peer announced %d bytes, limit is %d", length, MaxMessageSize)
	}
	if length == 0 {
		return []byte{}, nil
	}
	body, err := s.Recv(int(length))
	if err != nil {
		return nil, fmt.Errorf("reading %d byte message: %w", length, err)
	}
	return body, nil
}
