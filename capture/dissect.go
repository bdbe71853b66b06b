package capture

import (
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// Record is one captured segment with its addressing.
type Record struct {
	Timestamp time.Time
	Src       *net.UDPAddr
	Dst       *net.UDPAddr
	Segment   *Segment
}

func (r *Record) String() string {
	return fmt.Sprintf("%s %s -> %s %s", r.Timestamp.Format("15:04:05.000000"), r.Src, r.Dst, r.Segment)
}

// Dissect decodes an Ethernet frame carrying a segment over UDP.
func Dissect(frame []byte) (*Record, error) {
	packet := gopacket.NewPacket(frame, layers.LayerTypeEthernet, gopacket.Default)
	udp, ok := packet.Layer(layers.LayerTypeUDP).(*layers.UDP)
	if !ok {
		if errLayer := packet.ErrorLayer(); errLayer != nil {
			return nil, fmt.Errorf("decoding frame: %w", errLayer.Error())
		}
		return nil, errors.New("frame carries no UDP datagram")
	}

	var srcIP, dstIP net.IP
	switch ip := packet.NetworkLayer().(type) {
	case *layers.IPv4:
		srcIP, dstIP = ip.SrcIP, ip.DstIP
	case *layers.IPv6:
		srcIP, dstIP = ip.SrcIP, ip.DstIP
	}

	// registered ports are decoded by gopacket already
	seg, ok := packet.Layer(LayerTypeSegment).(*Segment)
	if !ok {
		seg = &Segment{}
		if err := seg.DecodeFromBytes(udp.Payload, gopacket.NilDecodeFeedback); err != nil {
			return nil, err
		}
	}

	return &Record{
		Src:     &net.UDPAddr{IP: srcIP, Port: int(udp.SrcPort)},
		Dst:     &net.UDPAddr{IP: dstIP, Port: int(udp.DstPort)},
		Segment: seg,
	}, nil
}

// ReadAll dissects every frame of a pcap stream. Frames that do not hold a
// segment are skipped and counted.
func ReadAll(r io.Reader) ([]*Record, int, error) {
	pr, err := pcapgo.NewReader(r)
	if err != nil {
		return nil, 0, fmt.Errorf("reading pcap header: %w", err)
	}
	var (
		records []*Record
		skipped int
	)
	for {
		data, ci, err := pr.ReadPacketData()
		if err == io.EOF {
			return records, skipped, nil
		}
		if err != nil {
			return records, skipped, fmt.Errorf("reading frame: %w", err)
		}
		rec, err := Dissect(data)
		if err != nil {
			skipped++
			continue
		}
		rec.Timestamp = ci.Timestamp
		records = append(records, rec)
	}
}
