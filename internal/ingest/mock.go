package ingest

import (
	"bytes"
	"io"
	"sync"
)

// MockSerialPort implements SerialPorter for testing. Data written with
// Feed is returned by Read; commands written by the source are captured.
type MockSerialPort struct {
	r *io.PipeReader
	w *io.PipeWriter

	mu      sync.Mutex
	written bytes.Buffer
	closed  bool
}

// NewMockSerialPort creates an open mock port.
func NewMockSerialPort() *MockSerialPort {
	r, w := io.Pipe()
	return &MockSerialPort{r: r, w: w}
}

// Feed makes data available to Read. It blocks until the reader consumes it.
func (m *MockSerialPort) Feed(data string) error {
	_, err := m.w.Write([]byte(data))
	return err
}

// EndInput signals EOF to the reader.
func (m *MockSerialPort) EndInput() error {
	return m.w.Close()
}

// Read implements io.Reader.
func (m *MockSerialPort) Read(p []byte) (int, error) {
	return m.r.Read(p)
}

// Write implements io.Writer.
func (m *MockSerialPort) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.written.Write(p)
}

// Written returns everything written to the port so far.
func (m *MockSerialPort) Written() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.written.String()
}

// Close implements io.Closer.
func (m *MockSerialPort) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.w.Close()
	return m.r.Close()
}

// Closed reports whether Close was called.
func (m *MockSerialPort) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
