package display

import "sync/atomic"

// NumDigits is the number of positions on the multiplexed display.
const NumDigits = 4

// Digits is a decimal decomposition, most-significant digit first.
type Digits [NumDigits]uint8

// Decompose splits v into exactly four decimal digits. Values of 10000 and
// above keep only their low four digits.
func Decompose(v uint32) Digits {
	var d Digits
	for i := NumDigits - 1; i >= 0; i-- {
		d[i] = uint8(v % 10)
		v /= 10
	}
	return d
}

// Value recombines the digits into a number.
func (d Digits) Value() uint32 {
	var v uint32
	for _, digit := range d {
		v = v*10 + uint32(digit)
	}
	return v
}

// DigitBuffer holds the digits currently rendered by the multiplexer. The
// four digits are packed into one word so a reader always sees a complete
// decomposition.
type DigitBuffer struct {
	packed atomic.Uint32
}

// Store replaces all four digits at once.
func (b *DigitBuffer) Store(d Digits) {
	b.packed.Store(uint32(d[0])<<24 | uint32(d[1])<<16 | uint32(d[2])<<8 | uint32(d[3]))
}

// Load returns a consistent copy of the four digits.
func (b *DigitBuffer) Load() Digits {
	p := b.packed.Load()
	return Digits{uint8(p >> 24), uint8(p >> 16), uint8(p >> 8), uint8(p)}
}

// Digit returns the digit shown at position pos.
func (b *DigitBuffer) Digit(pos int) uint8 {
	return b.Load()[pos%NumDigits]
}
