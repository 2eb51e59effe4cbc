// Package pcap turns network packet captures into sample matrices for the
// detectors, extracting one numeric feature vector per packet.
package pcap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"

	detio "github.com/mizuaki/go-outliers/pkg/io"
)

// Reader reads packets from capture files or live interfaces and emits
// feature vectors.
type Reader struct {
	handle    *pcap.Handle
	extractor *Extractor
}

// NewFileReader opens a capture file.
func NewFileReader(filename string) (*Reader, error) {
	handle, err := pcap.OpenOffline(filename)
	if err != nil {
		return nil, err
	}
	return &Reader{handle: handle, extractor: NewExtractor()}, nil
}

// NewLiveReader opens a live capture on iface.
func NewLiveReader(iface string, snaplen int32, promisc bool, timeout time.Duration) (*Reader, error) {
	handle, err := pcap.OpenLive(iface, snaplen, promisc, timeout)
	if err != nil {
		return nil, err
	}
	return &Reader{handle: handle, extractor: NewExtractor()}, nil
}

// Read drains the capture and returns one feature vector per packet.
func (r *Reader) Read() ([][]float64, error) {
	if r.handle == nil {
		return nil, errors.New("pcap: reader not initialized")
	}

	var data [][]float64
	source := gopacket.NewPacketSource(r.handle, r.handle.LinkType())
	for packet := range source.Packets() {
		features, err := r.extractor.Extract(packet)
		if err != nil {
			continue
		}
		data = append(data, features)
	}
	return data, nil
}

// Stream emits feature vectors as packets arrive.
func (r *Reader) Stream(ctx context.Context) (<-chan []float64, error) {
	if r.handle == nil {
		return nil, errors.New("pcap: reader not initialized")
	}

	out := make(chan []float64, 1000)
	source := gopacket.NewPacketSource(r.handle, r.handle.LinkType())

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case packet, ok := <-source.Packets():
				if !ok {
					return
				}
				features, err := r.extractor.Extract(packet)
				if err != nil {
					continue
				}
				select {
				case out <- features:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// Close releases the capture handle.
func (r *Reader) Close() error {
	if r.handle != nil {
		r.handle.Close()
	}
	return nil
}

var _ detio.Reader = (*Reader)(nil)

// Extractor converts packets into fixed-width feature vectors:
// [packet_size, inter_arrival_time, protocol, src_port, dst_port,
// tcp_flags, ip_ttl, payload_size].
type Extractor struct {
	lastTimestamp time.Time
}

// NewExtractor creates a packet feature extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

var _ detio.FeatureExtractor = (*Extractor)(nil)

// Extract converts a gopacket.Packet to a feature vector.
func (e *Extractor) Extract(data any) ([]float64, error) {
	packet, ok := data.(gopacket.Packet)
	if !ok {
		return nil, fmt.Errorf("pcap: expected gopacket.Packet, got %T", data)
	}

	features := make([]float64, 8)
	features[0] = float64(len(packet.Data()))

	if md := packet.Metadata(); md != nil && !md.Timestamp.IsZero() {
		if !e.lastTimestamp.IsZero() {
			features[1] = md.Timestamp.Sub(e.lastTimestamp).Seconds()
		}
		e.lastTimestamp = md.Timestamp
	}

	if tcpLayer := packet.Layer(layers.LayerTypeTCP); tcpLayer != nil {
		tcp := tcpLayer.(*layers.TCP)
		features[2] = 6
		features[3] = float64(tcp.SrcPort)
		features[4] = float64(tcp.DstPort)
		features[5] = encodeTCPFlags(tcp)
	} else if udpLayer := packet.Layer(layers.LayerTypeUDP); udpLayer != nil {
		udp := udpLayer.(*layers.UDP)
		features[2] = 17
		features[3] = float64(udp.SrcPort)
		features[4] = float64(udp.DstPort)
	} else if packet.Layer(layers.LayerTypeICMPv4) != nil {
		features[2] = 1
	}

	if ipLayer := packet.Layer(layers.LayerTypeIPv4); ipLayer != nil {
		features[6] = float64(ipLayer.(*layers.IPv4).TTL)
	}
	if appLayer := packet.ApplicationLayer(); appLayer != nil {
		features[7] = float64(len(appLayer.Payload()))
	}

	return features, nil
}

// FeatureNames returns the names of the extracted features.
func (e *Extractor) FeatureNames() []string {
	return []string{
		"packet_size",
		"inter_arrival_time",
		"protocol",
		"src_port",
		"dst_port",
		"tcp_flags",
		"ip_ttl",
		"payload_size",
	}
}

// encodeTCPFlags packs the TCP flag bits into a single numeric feature.
func encodeTCPFlags(tcp *layers.TCP) float64 {
	var flags float64
	if tcp.FIN {
		flags += 1
	}
	if tcp.SYN {
		flags += 2
	}
	if tcp.RST {
		flags += 4
	}
	if tcp.PSH {
		flags += 8
	}
	if tcp.ACK {
		flags += 16
	}
	if tcp.URG {
		flags += 32
	}
	return flags
}
