package sampler

import (
	"sync/atomic"

	"github.com/itohio/ledavg/pkg/hw"
)

// Trigger starts a conversion each time it fires. It does not wait for or
// read the results; they arrive through the Producer.
type Trigger struct {
	adc   hw.ADC
	fired atomic.Uint64
}

// NewTrigger creates a trigger for adc.
func NewTrigger(adc hw.ADC) *Trigger {
	return &Trigger{adc: adc}
}

// Fire issues a single start-conversion command. Use it as a timer callback.
func (t *Trigger) Fire() {
	t.fired.Add(1)
	t.adc.StartConversion()
}

// Fired returns how many conversions were requested.
func (t *Trigger) Fired() uint64 {
	return t.fired.Load()
}
