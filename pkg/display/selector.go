package display

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/itohio/ledavg/pkg/mailbox"
	"github.com/itohio/ledavg/pkg/metrics"
	"go.uber.org/zap"
)

// NumButtons is the number of selector buttons (S1 selects channel A, S2
// selects channel B).
const NumButtons = 2

// DefaultPollInterval is the delay after each button check.
const DefaultPollInterval = 20 * time.Millisecond

// ButtonName returns the board label of button i.
func ButtonName(i int) string {
	return fmt.Sprintf("S%d", i+1)
}

// Input reads raw button levels. Buttons are active low: true (high) means
// released, false (low) means pressed.
type Input interface {
	Level(button int) bool
}

// Edge is a two-sample press detector. It reports a press when the current
// sample is low and the previous one was high; there is no further filtering,
// so bounce spanning two poll instants can register as an extra press.
//
// The zero value treats the line as already pressed, so a button held down at
// startup does not fire until it has been released once.
type Edge struct {
	lastHigh bool
}

// Update feeds the next raw level and reports whether it completes a press.
func (e *Edge) Update(high bool) bool {
	pressed := !high && e.lastHigh
	e.lastHigh = high
	return pressed
}

// SelectorParams wires a Selector.
type SelectorParams struct {
	Input   Input
	Sources [NumButtons]*mailbox.Mailbox // mailbox shown when button i is pressed
	Digits  *DigitBuffer
	Poll    time.Duration
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// Selector polls the buttons and, on a press, copies the matching mailbox
// value into the digit buffer.
type Selector struct {
	input   Input
	sources [NumButtons]*mailbox.Mailbox
	edges   [NumButtons]Edge
	digits  *DigitBuffer
	poll    time.Duration
	log     *zap.Logger
	metrics *metrics.Metrics

	selected atomic.Int32 // last button whose value was shown, -1 for none
}

// NewSelector creates a Selector.
func NewSelector(p SelectorParams) (*Selector, error) {
	if p.Input == nil || p.Digits == nil {
		return nil, fmt.Errorf("selector: input and digits are required")
	}
	for i, src := range p.Sources {
		if src == nil {
			return nil, fmt.Errorf("selector: no mailbox for %s", ButtonName(i))
		}
	}
	if p.Poll <= 0 {
		p.Poll = DefaultPollInterval
	}
	if p.Logger == nil {
		p.Logger = zap.NewNop()
	}

	s := &Selector{
		input:   p.Input,
		sources: p.Sources,
		digits:  p.Digits,
		poll:    p.Poll,
		log:     p.Logger.Named("selector"),
		metrics: p.Metrics,
	}
	s.selected.Store(-1)
	return s, nil
}

// Selected returns the button whose mailbox value is on the display.
func (s *Selector) Selected() (button int, ok bool) {
	b := s.selected.Load()
	return int(b), b >= 0
}

// Check samples button i once and handles a press edge. It returns true when
// a press was detected, whether or not the mailbox had a value to show.
func (s *Selector) Check(i int) bool {
	if !s.edges[i].Update(s.input.Level(i)) {
		return false
	}

	name := ButtonName(i)
	s.metrics.Pressed(name)

	v, ok := s.sources[i].Peek()
	if !ok {
		s.log.Debug("press with no average yet", zap.String("button", name))
		return true
	}

	s.digits.Store(Decompose(uint32(v)))
	s.selected.Store(int32(i))
	s.log.Debug("showing average", zap.String("button", name), zap.Uint16("value", v))
	return true
}

// Run alternates between the buttons, waiting the poll interval after every
// check, until ctx is done.
func (s *Selector) Run(ctx context.Context) error {
	t := time.NewTimer(s.poll)
	defer t.Stop()

	for {
		for i := range s.edges {
			s.Check(i)

			t.Reset(s.poll)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
			}
		}
	}
}
