package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/banshee-data/tmsnav/internal/monitoring"
	"github.com/banshee-data/tmsnav/internal/timeutil"
)

// ReplayConfig configures an offline telemetry replay.
type ReplayConfig struct {
	// Port keeps only UDP datagrams sent to this port. Zero keeps all.
	Port int
	// Speed paces delivery by capture timestamps (2.0 is twice as fast).
	// Zero or less delivers packets as fast as they are read.
	Speed float64
	// Clock paces delivery when Speed is set.
	Clock timeutil.Clock
}

// ReplayStats summarises a replay.
type ReplayStats struct {
	Packets       int `json:"packets"`
	Delivered     int `json:"delivered"`
	Skipped       int `json:"skipped"`
	HandlerErrors int `json:"handler_errors"`
}

// ReplayFile replays the UDP telemetry in a pcap capture at path.
func ReplayFile(ctx context.Context, path string, cfg ReplayConfig, handle func([]byte) error) (ReplayStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return ReplayStats{}, fmt.Errorf("failed to open PCAP file %s: %w", path, err)
	}
	defer f.Close()
	return Replay(ctx, f, cfg, handle)
}

// Replay reads a pcap stream and passes each matching UDP payload to
// handle. Handler errors are counted and logged; the replay continues.
func Replay(ctx context.Context, r io.Reader, cfg ReplayConfig, handle func([]byte) error) (ReplayStats, error) {
	var stats ReplayStats
	reader, err := pcapgo.NewReader(r)
	if err != nil {
		return stats, fmt.Errorf("read pcap header: %w", err)
	}
	if cfg.Speed > 0 && cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}

	source := gopacket.NewPacketSource(reader, reader.LinkType())
	var first, start time.Time

	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		packet, err := source.NextPacket()
		if errors.Is(err, io.EOF) {
			monitoring.Logf("telemetry: replay complete: %d packets, %d delivered", stats.Packets, stats.Delivered)
			return stats, nil
		}
		if err != nil {
			return stats, fmt.Errorf("read packet %d: %w", stats.Packets+1, err)
		}
		stats.Packets++

		udp, ok := packet.Layer(layers.LayerTypeUDP).(*layers.UDP)
		if !ok || len(udp.Payload) == 0 || (cfg.Port != 0 && int(udp.DstPort) != cfg.Port) {
			stats.Skipped++
			continue
		}

		if cfg.Speed > 0 {
			ts := packet.Metadata().Timestamp
			if first.IsZero() {
				first, start = ts, cfg.Clock.Now()
			} else if err := waitUntil(ctx, cfg.Clock, start, ts.Sub(first), cfg.Speed); err != nil {
				return stats, err
			}
		}

		stats.Delivered++
		if err := handle(udp.Payload); err != nil {
			stats.HandlerErrors++
			monitoring.Logf("telemetry: replay packet %d: %v", stats.Packets, err)
		}
	}
}

func waitUntil(ctx context.Context, clock timeutil.Clock, start time.Time, offset time.Duration, speed float64) error {
	due := start.Add(time.Duration(float64(offset) / speed))
	wait := due.Sub(clock.Now())
	if wait <= 0 {
		return nil
	}
	timer := clock.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C():
		return nil
	}
}

// CaptureWriter writes telemetry datagrams as a pcap capture. Used to record
// sessions for later replay.
type CaptureWriter struct {
	w       *pcapgo.Writer
	udp     *layers.UDP
	ip      *layers.IPv4
	buf     gopacket.SerializeBuffer
	options gopacket.SerializeOptions
}

// NewCaptureWriter writes a pcap header to w. Datagrams appear as IPv4/UDP
// from srcPort to dstPort on loopback.
func NewCaptureWriter(w io.Writer, srcPort, dstPort int) (*CaptureWriter, error) {
	pw := pcapgo.NewWriter(w)
	if err := pw.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		return nil, fmt.Errorf("write pcap header: %w", err)
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    []byte{127, 0, 0, 1},
		DstIP:    []byte{127, 0, 0, 1},
	}
	udp := &layers.UDP{SrcPort: layers.UDPPort(srcPort), DstPort: layers.UDPPort(dstPort)}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		return nil, err
	}
	return &CaptureWriter{
		w:       pw,
		udp:     udp,
		ip:      ip,
		buf:     gopacket.NewSerializeBuffer(),
		options: gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true},
	}, nil
}

// Write records payload captured at ts.
func (c *CaptureWriter) Write(ts time.Time, payload []byte) error {
	eth := &layers.Ethernet{
		SrcMAC:       []byte{0, 0, 0, 0, 0, 1},
		DstMAC:       []byte{0, 0, 0, 0, 0, 2},
		EthernetType: layers.EthernetTypeIPv4,
	}
	if err := gopacket.SerializeLayers(c.buf, c.options, eth, c.ip, c.udp, gopacket.Payload(payload)); err != nil {
		return fmt.Errorf("serialize packet: %w", err)
	}
	data := c.buf.Bytes()
	ci := gopacket.CaptureInfo{Timestamp: ts, CaptureLength: len(data), Length: len(data)}
	return c.w.WritePacket(ci, data)
}
