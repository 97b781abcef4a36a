package ingest

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedDatagram struct {
	port    uint16
	payload string
	at      time.Time
}

func writeCapture(t *testing.T, datagrams []capturedDatagram) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "frames.pcap")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := pcapgo.NewWriter(f)
	require.NoError(t, w.WriteFileHeader(65536, layers.LinkTypeEthernet))

	for _, d := range datagrams {
		eth := &layers.Ethernet{
			SrcMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 1},
			DstMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 2},
			EthernetType: layers.EthernetTypeIPv4,
		}
		ip := &layers.IPv4{
			Version:  4,
			TTL:      64,
			Protocol: layers.IPProtocolUDP,
			SrcIP:    net.IPv4(10, 0, 0, 2),
			DstIP:    net.IPv4(10, 0, 0, 1),
		}
		udp := &layers.UDP{SrcPort: 50000, DstPort: layers.UDPPort(d.port)}
		require.NoError(t, udp.SetNetworkLayerForChecksum(ip))

		buf := gopacket.NewSerializeBuffer()
		opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
		require.NoError(t, gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload(d.payload)))

		data := buf.Bytes()
		require.NoError(t, w.WritePacket(gopacket.CaptureInfo{
			Timestamp:     d.at,
			CaptureLength: len(data),
			Length:        len(data),
		}, data))
	}
	return path
}

func TestReadPCAPFile(t *testing.T) {
	t.Parallel()

	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	path := writeCapture(t, []capturedDatagram{
		{port: 7400, payload: `{"markers":[{"id":1,"position":[0,0,0]}]}`, at: base},
		{port: 9999, payload: `{"markers":[{"id":2,"position":[0,0,0]}]}`, at: base.Add(time.Second)},
		{port: 7400, payload: `{"timestamp_ns":5,"markers":[{"id":3,"position":[0,0,0]}]}`, at: base.Add(2 * time.Second)},
		{port: 7400, payload: `nope`, at: base.Add(3 * time.Second)},
	})

	var frames []Frame
	stats, err := ReadPCAPFile(context.Background(), path, 7400, func(f Frame) { frames = append(frames, f) })
	require.NoError(t, err)

	assert.Equal(t, PCAPStats{Packets: 4, Matched: 3, Frames: 2, DecodeErrors: 1}, stats)
	require.Len(t, frames, 2)
	assert.Contains(t, frames[0].Markers, 1)
	assert.True(t, base.Equal(frames[0].Timestamp), "capture time fills a missing frame timestamp")
	assert.Contains(t, frames[1].Markers, 3)
	assert.Equal(t, int64(5), frames[1].Timestamp.UnixNano())
}

func TestReadPCAPFileErrors(t *testing.T) {
	t.Parallel()

	_, err := ReadPCAPFile(context.Background(), filepath.Join(t.TempDir(), "missing.pcap"), 7400, func(Frame) {})
	assert.Error(t, err)

	notPcap := filepath.Join(t.TempDir(), "frames.pcap")
	require.NoError(t, os.WriteFile(notPcap, []byte("definitely not a capture"), 0o644))
	_, err = ReadPCAPFile(context.Background(), notPcap, 7400, func(Frame) {})
	assert.Error(t, err)
}

func TestReadPCAPFileCancelled(t *testing.T) {
	t.Parallel()

	path := writeCapture(t, []capturedDatagram{
		{port: 7400, payload: `{"markers":[]}`, at: time.Unix(1, 0)},
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ReadPCAPFile(ctx, path, 7400, func(Frame) {})
	assert.ErrorIs(t, err, context.Canceled)
}
