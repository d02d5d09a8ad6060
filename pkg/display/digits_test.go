package display

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecompose(t *testing.T) {
	tests := []struct {
		name string
		v    uint32
		want Digits
	}{
		{"zero", 0, Digits{0, 0, 0, 0}},
		{"single", 7, Digits{0, 0, 0, 7}},
		{"average", 115, Digits{0, 1, 1, 5}},
		{"full scale", 4095, Digits{4, 0, 9, 5}},
		{"max four", 9999, Digits{9, 9, 9, 9}},
		{"truncated", 12345, Digits{2, 3, 4, 5}},
		{"truncated to zero", 10000, Digits{0, 0, 0, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decompose(tt.v))
		})
	}
}

func TestDecompose_RoundTrip(t *testing.T) {
	for v := uint32(0); v <= 9999; v++ {
		require.Equal(t, v, Decompose(v).Value(), "v=%d", v)
	}
	for _, v := range []uint32{10000, 10001, 65535, 123456, 4294967295} {
		assert.Equal(t, v%10000, Decompose(v).Value(), "v=%d", v)
	}
}

func TestDigitBuffer_StoreLoad(t *testing.T) {
	var b DigitBuffer
	assert.Equal(t, Digits{}, b.Load())

	b.Store(Digits{1, 2, 3, 4})
	assert.Equal(t, Digits{1, 2, 3, 4}, b.Load())
	assert.Equal(t, uint8(1), b.Digit(0))
	assert.Equal(t, uint8(4), b.Digit(3))
}

func TestDigitBuffer_NoTornReads(t *testing.T) {
	var b DigitBuffer
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 5000; i++ {
			if i%2 == 0 {
				b.Store(Digits{1, 1, 1, 1})
			} else {
				b.Store(Digits{2, 2, 2, 2})
			}
		}
	}()

	for i := 0; i < 5000; i++ {
		d := b.Load()
		require.True(t, d == Digits{} || d == Digits{1, 1, 1, 1} || d == Digits{2, 2, 2, 2}, "torn read %v", d)
	}
	wg.Wait()
}

func TestSegments_EncodeDecode(t *testing.T) {
	for d := uint8(0); d < 10; d++ {
		got, ok := Decode(Encode(d))
		require.True(t, ok)
		assert.Equal(t, d, got)
	}

	_, ok := Decode(0)
	assert.False(t, ok)
	assert.Equal(t, uint8(SegB|SegC), Encode(1))
	assert.Equal(t, uint8(SegA|SegB|SegC|SegD|SegE|SegF), Encode(0))
	assert.Equal(t, Encode(3), Encode(13))
}
