package averager

// History is a fixed-size circular buffer of the most recent samples of one
// channel. It starts zero-filled, so the mean ramps up over the first window
// samples.
type History struct {
	values []uint16
	cursor int
}

// NewHistory creates a history holding window values.
func NewHistory(window int) *History {
	if window <= 0 {
		window = 1 // No averaging if invalid
	}
	return &History{values: make([]uint16, window)}
}

// Window returns the number of values averaged.
func (h *History) Window() int {
	return len(h.values)
}

// Cursor returns the slot the next value will be written to.
func (h *History) Cursor() int {
	return h.cursor
}

// Push stores v at the cursor and advances the cursor modulo the window.
func (h *History) Push(v uint16) {
	h.values[h.cursor] = v
	h.cursor++
	if h.cursor == len(h.values) {
		h.cursor = 0
	}
}

// Mean recomputes the truncating integer mean over the whole buffer.
// 12-bit values over a window of at most 32 fit easily in the accumulator.
func (h *History) Mean() uint16 {
	var sum uint32
	for _, v := range h.values {
		sum += uint32(v)
	}
	return uint16(sum / uint32(len(h.values)))
}

// Values copies the buffer contents in storage order into dst.
func (h *History) Values(dst []uint16) []uint16 {
	if cap(dst) >= len(h.values) {
		dst = dst[:len(h.values)]
	} else {
		dst = make([]uint16, len(h.values))
	}
	copy(dst, h.values)
	return dst
}
