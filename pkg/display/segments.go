package display

// Segment bits on the bus, a..g from bit 6 down to bit 0.
const (
	SegA = 1 << (6 - iota)
	SegB
	SegC
	SegD
	SegE
	SegF
	SegG
)

// segmentTable maps a decimal digit to its 7-segment pattern.
var segmentTable = [10]uint8{
	0x7e, // 0
	0x30, // 1
	0x6d, // 2
	0x79, // 3
	0x33, // 4
	0x5b, // 5
	0x5f, // 6
	0x70, // 7
	0x7f, // 8
	0x7b, // 9
}

// Encode returns the segment pattern for digit d. Digits above 9 wrap.
func Encode(d uint8) uint8 {
	return segmentTable[d%10]
}

// Decode maps a segment pattern back to its digit. ok is false for patterns
// that are not in the table (blank, partially lit).
func Decode(pattern uint8) (d uint8, ok bool) {
	for i, p := range segmentTable {
		if p == pattern {
			return uint8(i), true
		}
	}
	return 0, false
}
