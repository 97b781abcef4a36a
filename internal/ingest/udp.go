package ingest

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/banshee-data/markerpose/internal/monitoring"
)

// maxDatagramBytes is the largest frame accepted over UDP.
const maxDatagramBytes = 64 * 1024

// UDPListenerConfig contains configuration options for the UDP listener.
type UDPListenerConfig struct {
	Address string // host:port to bind
	RcvBuf  int    // OS receive buffer in bytes; zero leaves the default
	Sink    Sink
	// Factory creates the socket; nil uses RealUDPSocketFactory.
	Factory UDPSocketFactory
}

// UDPListener receives one JSON frame per datagram and forwards decoded
// frames to a Sink.
type UDPListener struct {
	cfg     UDPListenerConfig
	factory UDPSocketFactory

	packets      atomic.Uint64
	frames       atomic.Uint64
	decodeErrors atomic.Uint64
}

// UDPStats holds listener counters.
type UDPStats struct {
	Packets      uint64 `json:"packets"`
	Frames       uint64 `json:"frames"`
	DecodeErrors uint64 `json:"decode_errors"`
}

// NewUDPListener creates a new UDP listener with the provided configuration.
func NewUDPListener(cfg UDPListenerConfig) *UDPListener {
	factory := cfg.Factory
	if factory == nil {
		factory = RealUDPSocketFactory{}
	}
	return &UDPListener{cfg: cfg, factory: factory}
}

// Stats returns a snapshot of the listener counters.
func (l *UDPListener) Stats() UDPStats {
	return UDPStats{
		Packets:      l.packets.Load(),
		Frames:       l.frames.Load(),
		DecodeErrors: l.decodeErrors.Load(),
	}
}

// Start binds the socket and processes datagrams until ctx is cancelled.
func (l *UDPListener) Start(ctx context.Context) error {
	if l.cfg.Sink == nil {
		return errors.New("udp listener: nil sink")
	}
	addr, err := net.ResolveUDPAddr("udp", l.cfg.Address)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}

	conn, err := l.factory.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP address: %w", err)
	}
	defer conn.Close()

	if l.cfg.RcvBuf > 0 {
		if err := conn.SetReadBuffer(l.cfg.RcvBuf); err != nil {
			monitoring.Logf("Warning: Failed to set UDP receive buffer size to %d: %v", l.cfg.RcvBuf, err)
		}
	}
	monitoring.Logf("UDP frame listener started on %s", conn.LocalAddr())

	buffer := make([]byte, maxDatagramBytes)
	for {
		select {
		case <-ctx.Done():
			monitoring.Logf("UDP frame listener stopping: %d frames, %d decode errors",
				l.frames.Load(), l.decodeErrors.Load())
			return nil
		default:
		}

		// Set read deadline to allow checking context cancellation
		conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))

		n, from, err := conn.ReadFromUDP(buffer)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("udp socket closed: %w", err)
			}
			monitoring.Logf("UDP read error: %v", err)
			continue
		}

		l.packets.Add(1)
		f, err := DecodeFrame(buffer[:n])
		if err != nil {
			l.decodeErrors.Add(1)
			monitoring.Logf("Error decoding frame from %v: %v", from, err)
			continue
		}
		l.frames.Add(1)
		l.cfg.Sink(f)
	}
}
