// Package mailbox provides a single-slot, overwrite-on-write store for
// publishing the latest value of a producer to any number of readers.
package mailbox

import "sync/atomic"

const validBit = 1 << 16

// Mailbox holds the most recently published 16-bit value.
//
// Writes overwrite unconditionally and reads never remove the value, so a
// reader may skip any number of intermediate publications. The value and its
// presence flag share one atomic word: a read can never observe a torn value.
//
// The zero value is an empty mailbox. A Mailbox must not be copied after
// first use.
type Mailbox struct {
	state atomic.Uint32
	seq   atomic.Uint32
}

// New returns an empty mailbox.
func New() *Mailbox {
	return &Mailbox{}
}

// Overwrite publishes v, replacing any previous value.
func (m *Mailbox) Overwrite(v uint16) {
	m.state.Store(validBit | uint32(v))
	m.seq.Add(1)
}

// Peek returns the latest value without waiting. ok is false until the first
// Overwrite.
func (m *Mailbox) Peek() (v uint16, ok bool) {
	s := m.state.Load()
	if s&validBit == 0 {
		return 0, false
	}
	return uint16(s), true
}

// Seq returns how many values have been published so far.
func (m *Mailbox) Seq() uint32 {
	return m.seq.Load()
}
