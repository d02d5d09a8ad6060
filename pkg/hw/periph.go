package hw

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/itohio/ledavg/pkg/config"
	"go.uber.org/zap"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// ADS1115 registers.
const (
	pointerConv   = 0x00
	pointerConfig = 0x01
)

// ads1115Settle is the conversion time at 128 SPS plus margin.
const ads1115Settle = 1000*time.Millisecond/128 + 2*time.Millisecond

// Periph drives a Linux board through periph.io: an ADS1115 on I2C for the
// two analog channels and plain GPIO lines for buttons and display.
type Periph struct {
	*converter

	log *zap.Logger
	bus i2c.BusCloser
	dev *i2c.Dev

	buttons  [NumButtons]gpio.PinIO
	digits   [NumDigits]gpio.PinIO
	segments [7]gpio.PinIO
	digitOn  gpio.Level
	digitOff gpio.Level
}

// NewPeriph initializes the host drivers and claims the configured pins.
// All digit lines are driven off before returning.
func NewPeriph(cfg *config.HardwareConfig, log *zap.Logger) (*Periph, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("host init: %w", err)
	}
	return openPeriph(cfg, log, gpioreg.ByName, i2creg.Open)
}

// openPeriph claims pins through lookup and the ADC bus through openBus.
// On failure every line already claimed is released.
func openPeriph(
	cfg *config.HardwareConfig,
	log *zap.Logger,
	lookup func(name string) gpio.PinIO,
	openBus func(name string) (i2c.BusCloser, error),
) (*Periph, error) {
	if log == nil {
		log = zap.NewNop()
	}
	p := &Periph{
		log:      log.Named("periph"),
		digitOn:  gpio.High,
		digitOff: gpio.Low,
	}
	if cfg.DigitActiveLow {
		p.digitOn, p.digitOff = gpio.Low, gpio.High
	}

	if err := p.openPins(cfg, lookup); err != nil {
		p.releasePins()
		return nil, err
	}

	bus, err := openBus(cfg.I2CBus)
	if err != nil {
		p.releasePins()
		return nil, fmt.Errorf("open i2c: %w", err)
	}
	p.bus = bus
	p.dev = &i2c.Dev{Addr: cfg.ADCAddress, Bus: bus}
	p.converter = newConverter(p.convert, p.log)

	p.log.Info("board ready",
		zap.String("i2c", bus.String()),
		zap.Uint16("adc_address", cfg.ADCAddress),
	)
	return p, nil
}

func (p *Periph) openPins(cfg *config.HardwareConfig, lookup func(name string) gpio.PinIO) error {
	if len(cfg.Buttons) != NumButtons || len(cfg.Digits) != NumDigits || len(cfg.Segments) != len(p.segments) {
		return fmt.Errorf("need %d button, %d digit and %d segment pins", NumButtons, NumDigits, len(p.segments))
	}

	for i, name := range cfg.Buttons {
		pin, err := lookupPin(lookup, name)
		if err != nil {
			return err
		}
		if err := pin.In(gpio.PullUp, gpio.NoEdge); err != nil {
			return fmt.Errorf("button %s: %w", name, err)
		}
		p.buttons[i] = pin
	}
	for i, name := range cfg.Digits {
		pin, err := lookupPin(lookup, name)
		if err != nil {
			return err
		}
		if err := pin.Out(p.digitOff); err != nil {
			return fmt.Errorf("digit %s: %w", name, err)
		}
		p.digits[i] = pin
	}
	for i, name := range cfg.Segments {
		pin, err := lookupPin(lookup, name)
		if err != nil {
			return err
		}
		if err := pin.Out(gpio.Low); err != nil {
			return fmt.Errorf("segment %s: %w", name, err)
		}
		p.segments[i] = pin
	}
	return nil
}

func lookupPin(lookup func(name string) gpio.PinIO, name string) (gpio.PinIO, error) {
	pin := lookup(name)
	if pin == nil {
		return nil, fmt.Errorf("unknown gpio %q", name)
	}
	return pin, nil
}

func (p *Periph) ADC() ADC         { return p }
func (p *Periph) Buttons() Buttons { return p }
func (p *Periph) Display() Display { return p }

// Close stops conversions, blanks the display and releases the bus.
func (p *Periph) Close() error {
	if p.converter != nil {
		p.stop()
	}
	p.releasePins()
	if p.bus != nil {
		return p.bus.Close()
	}
	return nil
}

// releasePins turns off every digit and segment line claimed so far and
// hands it back as a floating input.
func (p *Periph) releasePins() {
	release := func(pin gpio.PinIO, off gpio.Level) {
		if pin == nil {
			return
		}
		pin.Out(off)
		if err := pin.In(gpio.Float, gpio.NoEdge); err != nil {
			p.log.Debug("pin release failed", zap.String("pin", pin.Name()), zap.Error(err))
		}
	}
	for _, pin := range p.digits {
		release(pin, p.digitOff)
	}
	for _, pin := range p.segments {
		release(pin, gpio.Low)
	}
}

// Level reads a button line.
func (p *Periph) Level(button int) bool {
	return bool(p.buttons[button].Read())
}

// SetPosition switches a digit enable line.
func (p *Periph) SetPosition(pos int, on bool) {
	level := p.digitOff
	if on {
		level = p.digitOn
	}
	if err := p.digits[pos].Out(level); err != nil {
		p.log.Debug("digit write failed", zap.Int("pos", pos), zap.Error(err))
	}
}

// WriteSegments puts pattern on the segment lines, a (bit 6) first.
func (p *Periph) WriteSegments(pattern uint8) {
	for i, pin := range p.segments {
		if err := pin.Out(gpio.Level(pattern&(1<<(6-i)) != 0)); err != nil {
			p.log.Debug("segment write failed", zap.Int("segment", i), zap.Error(err))
		}
	}
}

func (p *Periph) convert(ctx context.Context, ch Channel) (uint16, error) {
	msb, lsb, err := ads1115Config(ch)
	if err != nil {
		return 0, err
	}
	if err := p.dev.Tx([]byte{pointerConfig, msb, lsb}, nil); err != nil {
		return 0, fmt.Errorf("write config: %w", err)
	}

	t := time.NewTimer(ads1115Settle)
	select {
	case <-ctx.Done():
		t.Stop()
		return 0, ctx.Err()
	case <-t.C:
	}

	var buf [2]byte
	if err := p.dev.Tx([]byte{pointerConv}, buf[:]); err != nil {
		return 0, fmt.Errorf("read conv: %w", err)
	}
	return ads1115To12Bit(int16(buf[0])<<8 | int16(buf[1])), nil
}

// ads1115Config returns the config register for a single-shot conversion of
// ch against ground, ±4.096V full scale, 128 SPS, comparator disabled.
func ads1115Config(ch Channel) (byte, byte, error) {
	if ch >= NumChannels {
		return 0, 0, errors.New("invalid channel")
	}
	mux := byte(0x4) + byte(ch)
	pga := byte(0x1)
	dr := byte(0x4)

	var config uint16 = 0x8000 // start single conversion
	config |= uint16(mux) << 12
	config |= uint16(pga) << 9
	config |= 1 << 8 // single-shot mode
	config |= uint16(dr) << 5
	config |= 0x3
	return byte(config >> 8), byte(config & 0xFF), nil
}

// ads1115To12Bit maps a single-ended reading onto 0..4095. Negative readings
// (noise around ground) clamp to 0.
func ads1115To12Bit(raw int16) uint16 {
	if raw < 0 {
		return 0
	}
	return uint16(raw) >> 3
}
