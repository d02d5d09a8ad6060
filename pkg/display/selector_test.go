package display

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/itohio/ledavg/pkg/mailbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	pressed  = false
	released = true
)

type fakeInput struct {
	mu     sync.Mutex
	levels [NumButtons]bool
}

func newFakeInput() *fakeInput {
	return &fakeInput{levels: [NumButtons]bool{released, released}}
}

func (f *fakeInput) Level(button int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.levels[button]
}

func (f *fakeInput) set(button int, level bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.levels[button] = level
}

func newSelector(t *testing.T, in Input) (*Selector, [NumButtons]*mailbox.Mailbox, *DigitBuffer) {
	t.Helper()
	boxes := [NumButtons]*mailbox.Mailbox{mailbox.New(), mailbox.New()}
	digits := &DigitBuffer{}
	s, err := NewSelector(SelectorParams{
		Input:   in,
		Sources: boxes,
		Digits:  digits,
		Poll:    time.Millisecond,
	})
	require.NoError(t, err)
	return s, boxes, digits
}

func TestEdge_SinglePressAtLastSample(t *testing.T) {
	var e Edge
	levels := []bool{pressed, pressed, released, released, pressed}

	var events []int
	for i, level := range levels {
		if e.Update(level) {
			events = append(events, i)
		}
	}
	assert.Equal(t, []int{4}, events)
}

func TestEdge_HeldButtonFiresOnce(t *testing.T) {
	var e Edge
	e.Update(released)

	assert.True(t, e.Update(pressed))
	for i := 0; i < 10; i++ {
		assert.False(t, e.Update(pressed))
	}
	assert.False(t, e.Update(released))
	assert.True(t, e.Update(pressed))
}

func TestEdge_BounceRegistersAgain(t *testing.T) {
	// Contact bounce seen across poll instants counts as a second press.
	var e Edge
	e.Update(released)

	count := 0
	for _, level := range []bool{pressed, released, pressed, pressed} {
		if e.Update(level) {
			count++
		}
	}
	assert.Equal(t, 2, count)
}

func TestNewSelector_Validation(t *testing.T) {
	_, err := NewSelector(SelectorParams{})
	assert.Error(t, err)

	_, err = NewSelector(SelectorParams{Input: newFakeInput(), Digits: &DigitBuffer{}})
	assert.Error(t, err, "missing mailboxes")
}

func TestSelector_PressShowsMailbox(t *testing.T) {
	in := newFakeInput()
	s, boxes, digits := newSelector(t, in)
	boxes[0].Overwrite(115)
	boxes[1].Overwrite(2048)

	assert.False(t, s.Check(0)) // released -> released
	in.set(0, pressed)
	assert.True(t, s.Check(0))
	assert.Equal(t, Digits{0, 1, 1, 5}, digits.Load())

	sel, ok := s.Selected()
	assert.True(t, ok)
	assert.Equal(t, 0, sel)

	s.Check(1)
	in.set(1, pressed)
	assert.True(t, s.Check(1))
	assert.Equal(t, Digits{2, 0, 4, 8}, digits.Load())
}

func TestSelector_EmptyMailboxLeavesDigits(t *testing.T) {
	in := newFakeInput()
	s, _, digits := newSelector(t, in)
	digits.Store(Digits{1, 2, 3, 4})

	s.Check(1)
	in.set(1, pressed)
	assert.True(t, s.Check(1), "press is still an event")
	assert.Equal(t, Digits{1, 2, 3, 4}, digits.Load())

	_, ok := s.Selected()
	assert.False(t, ok)
}

func TestSelector_StaleReadRepeatsValue(t *testing.T) {
	in := newFakeInput()
	s, boxes, digits := newSelector(t, in)
	boxes[0].Overwrite(321)

	for i := 0; i < 2; i++ {
		s.Check(0)
		in.set(0, pressed)
		require.True(t, s.Check(0))
		in.set(0, released)
		assert.Equal(t, Digits{0, 3, 2, 1}, digits.Load())
	}
}

func TestSelector_HeldAtStartupDoesNotFire(t *testing.T) {
	in := newFakeInput()
	in.set(0, pressed)
	s, boxes, digits := newSelector(t, in)
	boxes[0].Overwrite(999)

	assert.False(t, s.Check(0))
	assert.False(t, s.Check(0))
	assert.Equal(t, Digits{}, digits.Load())
}

func TestSelector_Run(t *testing.T) {
	in := newFakeInput()
	s, boxes, digits := newSelector(t, in)
	boxes[1].Overwrite(1234)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()

	time.Sleep(10 * time.Millisecond)
	in.set(1, pressed)

	require.Eventually(t, func() bool {
		return digits.Load() == Digits{1, 2, 3, 4}
	}, time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
