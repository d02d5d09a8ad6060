package sample

import "fmt"

// MaxValue is the largest 12-bit conversion result.
const MaxValue = 4095

// Tag identifies which channel a Sample was converted on and therefore which
// averager is allowed to consume it.
type Tag uint8

const (
	TagA Tag = iota // channel A, 16 sample window
	TagB            // channel B, 32 sample window
)

// NumTags is the number of distinct tags.
const NumTags = 2

func (t Tag) String() string {
	switch t {
	case TagA:
		return "A"
	case TagB:
		return "B"
	default:
		return fmt.Sprintf("Tag(%d)", uint8(t))
	}
}

// Sample is a single tagged conversion result.
type Sample struct {
	Tag   Tag
	Value uint16 // 12-bit ADC reading (0-4095)
}

// New builds a Sample, masking value to 12 bits.
func New(tag Tag, value uint16) Sample {
	return Sample{Tag: tag, Value: value & MaxValue}
}
