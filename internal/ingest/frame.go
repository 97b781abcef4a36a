// Package ingest decodes marker observation frames from the transports a
// vision pipeline can publish on: UDP datagrams, a serial-attached module,
// newline-delimited replay files and pcap captures.
package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/banshee-data/markerpose/internal/markers"
)

// ErrEmptyFrame is returned by DecodeFrame for blank input.
var ErrEmptyFrame = errors.New("empty frame")

// Frame is one cycle of decoded observations keyed by marker id.
type Frame struct {
	Timestamp time.Time // zero when the producer sent none
	Markers   map[int]markers.Marker
}

// Sink receives decoded frames. Implementations must be safe for concurrent
// use when several sources feed the same sink.
type Sink func(Frame)

type wireFrame struct {
	TimestampNS int64            `json:"timestamp_ns,omitempty"`
	Markers     []markers.Marker `json:"markers"`
}

// DecodeFrame parses one JSON frame:
//
//	{"timestamp_ns":123,"markers":[{"id":7,"position":[x,y,z],"rotation":[x,y,z,w]}]}
//
// When an id appears more than once the last observation wins. Markers
// with unusable values are kept; the aggregator rejects them.
func DecodeFrame(data []byte) (Frame, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return Frame{}, ErrEmptyFrame
	}

	var w wireFrame
	if err := json.Unmarshal(data, &w); err != nil {
		return Frame{}, fmt.Errorf("decode frame: %w", err)
	}

	f := Frame{Markers: make(map[int]markers.Marker, len(w.Markers))}
	if w.TimestampNS != 0 {
		f.Timestamp = time.Unix(0, w.TimestampNS).UTC()
	}
	for _, m := range w.Markers {
		f.Markers[m.ID] = m
	}
	return f, nil
}

// EncodeFrame renders f in the wire format with markers in ascending id
// order.
func EncodeFrame(f Frame) ([]byte, error) {
	w := wireFrame{Markers: make([]markers.Marker, 0, len(f.Markers))}
	if !f.Timestamp.IsZero() {
		w.TimestampNS = f.Timestamp.UnixNano()
	}
	ids := make([]int, 0, len(f.Markers))
	for id := range f.Markers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		m := f.Markers[id]
		m.ID = id
		w.Markers = append(w.Markers, m)
	}

	data, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return data, nil
}
