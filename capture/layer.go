// Package capture records segments in pcap files and decodes them again with
// gopacket, so captured traffic can be inspected with the usual tools.
package capture

import (
	"encoding/binary"
	"fmt"

	"github.com/Clouded-Sabre/Datagram-TCP/lib"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// LayerTypeSegment is the gopacket layer type of a protocol segment.
var LayerTypeSegment = gopacket.RegisterLayerType(1999, gopacket.LayerTypeMetadata{
	Name:    "DatagramTCP",
	Decoder: gopacket.DecodeFunc(decodeSegment),
})

// Segment is the gopacket view of a segment header. Its payload is the
// application data.
type Segment struct {
	layers.BaseLayer
	SequenceNumber    uint32
	AcknowledgmentNum uint32
	Flags             uint16
	WindowSize        uint16
}

func (s *Segment) LayerType() gopacket.LayerType { return LayerTypeSegment }

func (s *Segment) CanDecode() gopacket.LayerClass { return LayerTypeSegment }

func (s *Segment) NextLayerType() gopacket.LayerType {
	if len(s.Payload) == 0 {
		return gopacket.LayerTypeZero
	}
	return gopacket.LayerTypePayload
}

func (s *Segment) DecodeFromBytes(data []byte, df gopacket.DecodeFeedback) error {
	if len(data) < lib.HeaderLength {
		df.SetTruncated()
		return fmt.Errorf("%w: %d bytes, header needs %d", lib.ErrMalformedSegment, len(data), lib.HeaderLength)
	}
	if len(data) > lib.MTU {
		return fmt.Errorf("%w: %d bytes exceeds MTU %d", lib.ErrMalformedSegment, len(data), lib.MTU)
	}
	s.SequenceNumber = binary.BigEndian.Uint32(data[0:4])
	s.AcknowledgmentNum = binary.BigEndian.Uint32(data[4:8])
	s.Flags = binary.BigEndian.Uint16(data[8:10])
	s.WindowSize = binary.BigEndian.Uint16(data[10:12])
	s.Contents = data[:lib.HeaderLength]
	s.Payload = data[lib.HeaderLength:]
	return nil
}

// SerializeTo writes the header in front of whatever the buffer already
// holds, which is expected to be the payload.
func (s *Segment) SerializeTo(b gopacket.SerializeBuffer, opts gopacket.SerializeOptions) error {
	header, err := b.PrependBytes(lib.HeaderLength)
	if err != nil {
		return err
	}
	binary.BigEndian.PutUint32(header[0:4], s.SequenceNumber)
	binary.BigEndian.PutUint32(header[4:8], s.AcknowledgmentNum)
	binary.BigEndian.PutUint16(header[8:10], s.Flags)
	binary.BigEndian.PutUint16(header[10:12], s.WindowSize)
	return nil
}

func (s *Segment) String() string {
	return fmt.Sprintf("%s seq=%d ack=%d win=%d len=%d", lib.FlagString(s.Flags), s.SequenceNumber, s.AcknowledgmentNum, s.WindowSize, len(s.Payload))
}

func decodeSegment(data []byte, p gopacket.PacketBuilder) error {
	s := &Segment{}
	if err := s.DecodeFromBytes(data, p); err != nil {
		return err
	}
	p.AddLayer(s)
	if len(s.Payload) == 0 {
		return nil
	}
	return p.NextDecoder(gopacket.LayerTypePayload)
}

// RegisterPort makes gopacket decode UDP traffic to or from port as
// segments. It modifies global gopacket state and must not race with
// decoding.
func RegisterPort(port int) {
	layers.RegisterUDPPortLayerType(layers.UDPPort(port), LayerTypeSegment)
}
