package display

import "sync"

// Port drives the physical display: one enable line per digit position and a
// segment bus shared by all positions.
type Port interface {
	SetPosition(pos int, on bool)
	WriteSegments(pattern uint8)
}

// Multiplexer lights one digit position per tick, cycling 0, 1, 2, 3.
//
// Each tick turns off the previously lit position, puts the new position's
// pattern on the bus and then turns the new position on, so at most one
// position is ever enabled and no position shows the wrong pattern.
type Multiplexer struct {
	port   Port
	digits *DigitBuffer

	mu  sync.Mutex
	pos int // position lit by the last tick, -1 before the first
}

// NewMultiplexer creates a multiplexer rendering digits on port.
func NewMultiplexer(port Port, digits *DigitBuffer) *Multiplexer {
	return &Multiplexer{port: port, digits: digits, pos: -1}
}

// Tick advances to the next position. It is meant to be called from a
// periodic timer and never blocks on anything but the hardware writes.
func (m *Multiplexer) Tick() {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := (m.pos + 1) % NumDigits
	if m.pos >= 0 {
		m.port.SetPosition(m.pos, false)
	}
	m.port.WriteSegments(Encode(m.digits.Digit(next)))
	m.port.SetPosition(next, true)
	m.pos = next
}

// Position returns the currently lit position, or -1 before the first tick.
func (m *Multiplexer) Position() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pos
}

// Blank turns all positions off.
func (m *Multiplexer) Blank() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for pos := 0; pos < NumDigits; pos++ {
		m.port.SetPosition(pos, false)
	}
	m.pos = -1
}
