package capture

import (
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

const snapLen = 65536

var (
	srcMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	dstMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x02}
)

// Writer stores datagrams as Ethernet/IP/UDP frames in a pcap stream. It is
// safe for concurrent use.
type Writer struct {
	mu     sync.Mutex
	w      *pcapgo.Writer
	closer io.Closer
	count  int
}

// NewWriter writes the pcap file header to w.
func NewWriter(w io.Writer) (*Writer, error) {
	pw := pcapgo.NewWriter(w)
	if err := pw.WriteFileHeader(snapLen, layers.LinkTypeEthernet); err != nil {
		return nil, fmt.Errorf("writing pcap header: %w", err)
	}
	return &Writer{w: pw}, nil
}

// Create opens a new pcap file at path.
func Create(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating capture file: %w", err)
	}
	w, err := NewWriter(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	w.closer = f
	return w, nil
}

// WriteDatagram records one datagram sent from src to dst. A datagram that
// parses as a segment is rebuilt through the segment layer, anything else is
// stored as raw UDP payload.
func (w *Writer) WriteDatagram(src, dst *net.UDPAddr, datagram []byte, ts time.Time) error {
	udp := &layers.UDP{
		SrcPort: layers.UDPPort(src.Port),
		DstPort: layers.UDPPort(dst.Port),
	}
	var network gopacket.SerializableLayer
	ethType := layers.EthernetTypeIPv4
	if src.IP.To4() != nil && dst.IP.To4() != nil {
		ip := &layers.IPv4{
			Version:  4,
			TTL:      64,
			Protocol: layers.IPProtocolUDP,
			SrcIP:    src.IP.To4(),
			DstIP:    dst.IP.To4(),
		}
		udp.SetNetworkLayerForChecksum(ip)
		network = ip
	} else {
		ip := &layers.IPv6{
			Version:    6,
			HopLimit:   64,
			NextHeader: layers.IPProtocolUDP,
			SrcIP:      src.IP.To16(),
			DstIP:      dst.IP.To16(),
		}
		udp.SetNetworkLayerForChecksum(ip)
		network = ip
		ethType = layers.EthernetTypeIPv6
	}
	eth := &layers.Ethernet{
		SrcMAC:       srcMAC,
		DstMAC:       dstMAC,
		EthernetType: ethType,
	}

	stack := []gopacket.SerializableLayer{eth, network, udp}
	seg := &Segment{}
	if err := seg.DecodeFromBytes(datagram, gopacket.NilDecodeFeedback); err == nil {
		stack = append(stack, seg, gopacket.Payload(seg.Payload))
	} else {
		stack = append(stack, gopacket.Payload(datagram))
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, stack...); err != nil {
		return fmt.Errorf("serializing frame: %w", err)
	}
	frame := buf.Bytes()

	w.mu.Lock()
	defer w.mu.Unlock()
	err := w.w.WritePacket(gopacket.CaptureInfo{
		Timestamp:     ts,
		CaptureLength: len(frame),
		Length:        len(frame),
	}, frame)
	if err != nil {
		return fmt.Errorf("writing frame: %w", err)
	}
	w.count++
	return nil
}

// Count returns the number of frames written.
func (w *Writer) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// Close closes the underlying file if the writer was made by Create.
func (w *Writer) Close() error {
	if w.closer == nil {
		return nil
	}
	return w.closer.Close()
}
