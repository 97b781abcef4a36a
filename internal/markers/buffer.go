package markers

import "sort"

// ObservationBuffer is the FIFO window of raw samples for one marker id, in
// arrival order.
type ObservationBuffer struct {
	samples []Marker
}

// Append adds m and evicts the oldest samples while the window is longer
// than capacity. It returns the number of evicted samples. A capacity
// below one is treated as one.
func (b *ObservationBuffer) Append(m Marker, capacity int) int {
	b.samples = append(b.samples, m)
	return b.Trim(capacity)
}

// Trim evicts the oldest samples until the window holds at most capacity
// samples and returns how many were evicted. A capacity below one is
// treated as one.
func (b *ObservationBuffer) Trim(capacity int) int {
	if capacity < 1 {
		capacity = 1
	}
	over := len(b.samples) - capacity
	if over <= 0 {
		return 0
	}
	n := copy(b.samples, b.samples[over:])
	clear(b.samples[n:])
	b.samples = b.samples[:n]
	return over
}

// Samples returns the buffered samples, oldest first. The returned slice
// is only valid until the next Append or Clear.
func (b *ObservationBuffer) Samples() []Marker {
	return b.samples
}

// Len returns the number of buffered samples.
func (b *ObservationBuffer) Len() int {
	return len(b.samples)
}

// Clear empties the window while keeping its storage.
func (b *ObservationBuffer) Clear() {
	clear(b.samples)
	b.samples = b.samples[:0]
}

// BufferSet holds one ObservationBuffer per marker id.
type BufferSet struct {
	buffers map[int]*ObservationBuffer
}

// NewBufferSet creates an empty BufferSet.
func NewBufferSet() *BufferSet {
	return &BufferSet{buffers: make(map[int]*ObservationBuffer)}
}

// Observe appends m to the buffer for m.ID, creating it on first use, and
// returns the number of evicted samples.
func (s *BufferSet) Observe(m Marker, capacity int) int {
	buf, ok := s.buffers[m.ID]
	if !ok {
		buf = &ObservationBuffer{}
		s.buffers[m.ID] = buf
	}
	return buf.Append(m, capacity)
}

// Buffer returns the buffer for id, if one exists.
func (s *BufferSet) Buffer(id int) (*ObservationBuffer, bool) {
	buf, ok := s.buffers[id]
	return buf, ok
}

// IDs returns every id with a buffer, in ascending order. Ids whose buffer
// was cleared after a completion are included.
func (s *BufferSet) IDs() []int {
	ids := make([]int, 0, len(s.buffers))
	for id := range s.buffers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Clear empties the buffer for id but keeps the id tracked.
func (s *BufferSet) Clear(id int) {
	if buf, ok := s.buffers[id]; ok {
		buf.Clear()
	}
}

// Trim shrinks every buffer to capacity, oldest samples first, and returns
// the total number of evicted samples.
func (s *BufferSet) Trim(capacity int) int {
	evicted := 0
	for _, buf := range s.buffers {
		evicted += buf.Trim(capacity)
	}
	return evicted
}

// Reset drops every buffer.
func (s *BufferSet) Reset() {
	s.buffers = make(map[int]*ObservationBuffer)
}

// Len returns the number of tracked ids.
func (s *BufferSet) Len() int {
	return len(s.buffers)
}

// Counts returns the number of buffered samples per id.
func (s *BufferSet) Counts() map[int]int {
	counts := make(map[int]int, len(s.buffers))
	for id, buf := range s.buffers {
		counts[id] = buf.Len()
	}
	return counts
}
