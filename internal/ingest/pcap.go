package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/banshee-data/markerpose/internal/monitoring"
)

// PCAPStats summarises one capture replay.
type PCAPStats struct {
	Packets      int // all packets read from the capture
	Matched      int // UDP packets addressed to the filtered port
	Frames       int // frames delivered to the sink
	DecodeErrors int
}

// ReadPCAPFile replays UDP frames captured in a pcap file. Only datagrams
// whose destination port equals udpPort are decoded; frames without their
// own timestamp take the capture timestamp.
func ReadPCAPFile(ctx context.Context, path string, udpPort int, sink Sink) (PCAPStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return PCAPStats{}, fmt.Errorf("failed to open PCAP file %s: %w", path, err)
	}
	defer f.Close()

	r, err := pcapgo.NewReader(f)
	if err != nil {
		return PCAPStats{}, fmt.Errorf("failed to read PCAP header from %s: %w", path, err)
	}
	return readPCAP(ctx, r, r.LinkType(), udpPort, sink)
}

func readPCAP(ctx context.Context, src gopacket.PacketDataSource, link layers.LinkType, udpPort int, sink Sink) (PCAPStats, error) {
	var stats PCAPStats
	packetSource := gopacket.NewPacketSource(src, link)
	packetSource.NoCopy = true

	for {
		if err := ctx.Err(); err != nil {
			monitoring.Logf("PCAP reader stopping due to context cancellation (processed %d packets)", stats.Packets)
			return stats, err
		}

		packet, err := packetSource.NextPacket()
		if errors.Is(err, io.EOF) {
			monitoring.Logf("PCAP replay complete: %d packets, %d frames, %d decode errors",
				stats.Packets, stats.Frames, stats.DecodeErrors)
			return stats, nil
		}
		if err != nil {
			return stats, fmt.Errorf("read packet %d: %w", stats.Packets+1, err)
		}
		stats.Packets++

		udpLayer := packet.Layer(layers.LayerTypeUDP)
		if udpLayer == nil {
			continue
		}
		udp, ok := udpLayer.(*layers.UDP)
		if !ok || int(udp.DstPort) != udpPort || len(udp.Payload) == 0 {
			continue
		}
		stats.Matched++

		frame, err := DecodeFrame(udp.Payload)
		if err != nil {
			stats.DecodeErrors++
			monitoring.Logf("Error decoding PCAP packet %d: %v", stats.Packets, err)
			continue
		}
		if frame.Timestamp.IsZero() {
			frame.Timestamp = packet.Metadata().Timestamp.UTC()
		}
		sink(frame)
		stats.Frames++
	}
}
