package ingest

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/banshee-data/markerpose/internal/monitoring"
)

// maxLineBytes bounds a single newline-delimited frame.
const maxLineBytes = 1024 * 1024

// ReadFrames decodes newline-delimited frames from r and passes each to
// sink until r is exhausted or ctx is cancelled. Blank lines are skipped
// and malformed lines are logged and skipped. It returns the number of
// frames delivered.
func ReadFrames(ctx context.Context, r io.Reader, sink Sink) (int, error) {
	scan := bufio.NewScanner(r)
	scan.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	delivered := 0
	line := 0
	for scan.Scan() {
		if err := ctx.Err(); err != nil {
			return delivered, err
		}
		line++
		f, err := DecodeFrame(scan.Bytes())
		if errors.Is(err, ErrEmptyFrame) {
			continue
		}
		if err != nil {
			monitoring.Logf("ingest: skipping line %d: %v", line, err)
			continue
		}
		sink(f)
		delivered++
	}
	if err := scan.Err(); err != nil {
		return delivered, fmt.Errorf("read frames: %w", err)
	}
	return delivered, nil
}
