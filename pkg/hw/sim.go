package hw

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/itohio/ledavg/pkg/config"
	"go.uber.org/zap"
)

// Sim simulates the board for testing and development.
//
// Conversions complete asynchronously after the configured latency and
// report channel A then channel B. Inputs and buttons are set from tests or
// the front panel; the display is a VirtualDisplay.
type Sim struct {
	*converter
	*VirtualDisplay

	latency time.Duration

	mu     sync.RWMutex
	inputs [NumChannels]uint16
	noise  uint16
	rng    *rand.Rand

	buttons [NumButtons]atomic.Bool // true = released (high)
}

// NewSim creates a simulated board. Both buttons start released.
func NewSim(cfg *config.SimulationConfig, log *zap.Logger) *Sim {
	if cfg == nil {
		cfg = &config.Default().Simulation
	}
	if log == nil {
		log = zap.NewNop()
	}

	s := &Sim{
		latency: cfg.ConversionLatency,
		inputs:  [NumChannels]uint16{cfg.InputA & MaxValue, cfg.InputB & MaxValue},
		noise:   cfg.Noise,
		rng:     rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x1ed)),

		VirtualDisplay: &VirtualDisplay{},
	}
	for i := range s.buttons {
		s.buttons[i].Store(true)
	}
	s.converter = newConverter(s.convert, log.Named("sim"))
	return s
}

func (s *Sim) ADC() ADC         { return s }
func (s *Sim) Buttons() Buttons { return s }
func (s *Sim) Display() Display { return s }

// Close stops the conversion goroutine.
func (s *Sim) Close() error {
	s.stop()
	return nil
}

// SetInput sets the level seen by channel ch, clamped to 12 bits.
func (s *Sim) SetInput(ch Channel, value uint16) error {
	if ch >= NumChannels {
		return fmt.Errorf("invalid channel %v", ch)
	}
	if value > MaxValue {
		value = MaxValue
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inputs[ch] = value
	return nil
}

// Input returns the level set for channel ch.
func (s *Sim) Input(ch Channel) uint16 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.inputs[ch]
}

// SetNoise sets the peak deviation added to each conversion.
func (s *Sim) SetNoise(noise uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.noise = noise
}

func (s *Sim) convert(ctx context.Context, ch Channel) (uint16, error) {
	if s.latency > 0 {
		t := time.NewTimer(s.latency)
		select {
		case <-ctx.Done():
			t.Stop()
			return 0, ctx.Err()
		case <-t.C:
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	v := int(s.inputs[ch])
	if s.noise > 0 {
		n := int(s.noise)
		v += s.rng.IntN(2*n+1) - n
	}
	return uint16(min(max(v, 0), MaxValue)), nil
}

// Level reports the raw level of a button.
func (s *Sim) Level(button int) bool {
	return s.buttons[button].Load()
}

// SetLevel drives a button line directly.
func (s *Sim) SetLevel(button int, high bool) {
	s.buttons[button].Store(high)
}

// Press pulls a button low.
func (s *Sim) Press(button int) {
	s.SetLevel(button, false)
}

// Release lets a button float high.
func (s *Sim) Release(button int) {
	s.SetLevel(button, true)
}
