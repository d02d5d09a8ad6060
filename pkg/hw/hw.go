// Package hw is the boundary between the pipeline and the board: a
// two-channel ADC with a conversion-complete callback, two push buttons and
// a 4-digit multiplexed 7-segment display.
package hw

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/itohio/ledavg/pkg/config"
	"go.uber.org/zap"
)

// Channel identifies an analog input.
type Channel uint8

const (
	ChannelA Channel = iota
	ChannelB

	NumChannels = 2
)

func (c Channel) String() string {
	switch c {
	case ChannelA:
		return "A"
	case ChannelB:
		return "B"
	default:
		return fmt.Sprintf("Channel(%d)", uint8(c))
	}
}

const (
	NumButtons = 2
	NumDigits  = 4
)

// MaxValue is the largest conversion result.
const MaxValue = 4095

// ConversionHandler receives one conversion result. It is called from the
// conversion context and must not block.
type ConversionHandler func(ch Channel, value uint16)

// ADC runs a conversion of both channels on request.
type ADC interface {
	// StartConversion requests a conversion sequence and returns at once.
	// Results are delivered to the handler, channel A first. A request made
	// while a sequence is still running is ignored.
	StartConversion()
	// SetHandler installs the single conversion subscriber.
	SetHandler(h ConversionHandler)
}

// Buttons reads the raw button levels. Buttons are active low: true (high)
// means released.
type Buttons interface {
	Level(button int) bool
}

// Display drives the digit enable lines and the shared segment bus. Segment
// patterns carry a in bit 6 down to g in bit 0.
type Display interface {
	SetPosition(pos int, on bool)
	WriteSegments(pattern uint8)
}

// Board bundles the peripherals of one target.
type Board interface {
	ADC() ADC
	Buttons() Buttons
	Display() Display
	Close() error
}

// Ensure backends implement Board.
var (
	_ Board = (*Sim)(nil)
	_ Board = (*Periph)(nil)
	_ Board = (*Bridge)(nil)
)

// New opens the board selected by cfg.Hardware.Backend.
func New(cfg *config.Config, log *zap.Logger) (Board, error) {
	switch cfg.Hardware.Backend {
	case config.BackendSim, "":
		return NewSim(&cfg.Simulation, log), nil
	case config.BackendPeriph:
		p, err := NewPeriph(&cfg.Hardware, log)
		if err != nil {
			return nil, err
		}
		return p, nil
	case config.BackendBridge:
		b, err := OpenBridge(&cfg.Hardware.Bridge, log)
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unknown hardware backend %q", cfg.Hardware.Backend)
	}
}

// converter serializes conversion sequences on one goroutine. Requests that
// arrive while a sequence is pending or running are counted and dropped.
type converter struct {
	read func(ctx context.Context, ch Channel) (uint16, error)
	log  *zap.Logger

	mu      sync.RWMutex
	handler ConversionHandler

	busy     atomic.Bool // set from an accepted request until its handler calls return
	start    chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	overruns atomic.Uint64
	runs     atomic.Uint64
}

func newConverter(read func(ctx context.Context, ch Channel) (uint16, error), log *zap.Logger) *converter {
	ctx, cancel := context.WithCancel(context.Background())
	c := &converter{
		read:   read,
		log:    log,
		start:  make(chan struct{}, 1),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go c.loop()
	return c
}

// StartConversion queues a sequence unless one is pending or running.
func (c *converter) StartConversion() {
	if !c.busy.CompareAndSwap(false, true) {
		c.overruns.Add(1)
		return
	}
	select {
	case c.start <- struct{}{}:
	default:
		c.busy.Store(false)
		c.overruns.Add(1)
	}
}

// SetHandler installs the conversion subscriber.
func (c *converter) SetHandler(h ConversionHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = h
}

// Conversions returns how many sequences have completed.
func (c *converter) Conversions() uint64 {
	return c.runs.Load()
}

// Overruns returns how many start requests were ignored.
func (c *converter) Overruns() uint64 {
	return c.overruns.Load()
}

func (c *converter) stop() {
	c.cancel()
	<-c.done
}

func (c *converter) loop() {
	defer close(c.done)

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-c.start:
		}

		for ch := Channel(0); ch < NumChannels; ch++ {
			v, err := c.read(c.ctx, ch)
			if err != nil {
				if c.ctx.Err() != nil {
					return
				}
				c.log.Warn("conversion failed", zap.Stringer("channel", ch), zap.Error(err))
				continue
			}

			c.mu.RLock()
			h := c.handler
			c.mu.RUnlock()
			if h != nil {
				h(ch, v&MaxValue)
			}
		}
		c.runs.Add(1)
		c.busy.Store(false)
	}
}
