package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
)

func TestPortOptionsNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		opts    PortOptions
		want    PortOptions
		wantErr bool
	}{
		{name: "defaults", opts: PortOptions{}, want: PortOptions{BaudRate: 115200, DataBits: 8, StopBits: 1, Parity: "N"}},
		{name: "even parity word", opts: PortOptions{BaudRate: 9600, Parity: " even "}, want: PortOptions{BaudRate: 9600, DataBits: 8, StopBits: 1, Parity: "E"}},
		{name: "bad data bits", opts: PortOptions{DataBits: 9}, wantErr: true},
		{name: "bad stop bits", opts: PortOptions{StopBits: 3}, wantErr: true},
		{name: "bad parity", opts: PortOptions{Parity: "mark"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.opts.Normalize()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPortOptionsSerialMode(t *testing.T) {
	t.Parallel()

	mode, err := PortOptions{BaudRate: 57600, StopBits: 2, Parity: "O"}.SerialMode()
	require.NoError(t, err)
	assert.Equal(t, 57600, mode.BaudRate)
	assert.Equal(t, 8, mode.DataBits)
	assert.Equal(t, serial.TwoStopBits, mode.StopBits)
	assert.Equal(t, serial.OddParity, mode.Parity)

	mode, err = PortOptions{}.SerialMode()
	require.NoError(t, err)
	assert.Equal(t, serial.OneStopBit, mode.StopBits)
	assert.Equal(t, serial.NoParity, mode.Parity)

	_, err = PortOptions{Parity: "X"}.SerialMode()
	assert.Error(t, err)
}

func TestSerialSourceSetMarkerSize(t *testing.T) {
	t.Parallel()

	port := NewMockSerialPort()
	src := NewSerialSource(port)

	require.NoError(t, src.SetMarkerSize(0.05))
	assert.Equal(t, "S=0.0500\n", port.Written())
	assert.Error(t, src.SetMarkerSize(0))

	require.NoError(t, src.Close())
	assert.True(t, port.Closed())
}

func TestSerialSourceRun(t *testing.T) {
	t.Parallel()

	port := NewMockSerialPort()
	src := NewSerialSource(port)
	c := newFrameCollector(2)

	done := make(chan error, 1)
	go func() { done <- src.Run(context.Background(), c.sink) }()

	require.NoError(t, port.Feed(`{"markers":[{"id":8,"position":[0,0,1]}]}`+"\n"))
	require.NoError(t, port.Feed("\n# boot banner\n"))
	require.NoError(t, port.Feed(`{"markers":[{"id":9,"position":[0,0,2]}]}`+"\n"))
	require.NoError(t, port.EndInput())

	for _, id := range []int{8, 9} {
		select {
		case f := <-c.frames:
			assert.Contains(t, f.Markers, id)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for frame %d", id)
		}
	}
	require.NoError(t, <-done, "EOF ends the run cleanly")
}

func TestSerialSourceRunCancelled(t *testing.T) {
	t.Parallel()

	port := NewMockSerialPort()
	src := NewSerialSource(port)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- src.Run(ctx, func(Frame) {}) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
	port.Close()
}
