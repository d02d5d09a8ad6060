package hw

import (
	"errors"
	"testing"

	"github.com/itohio/ledavg/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2ctest"
)

func TestADS1115Config(t *testing.T) {
	msb, lsb, err := ads1115Config(ChannelA)
	assert.NoError(t, err)
	assert.Equal(t, uint16(0xC383), uint16(msb)<<8|uint16(lsb), "single-shot AIN0, ±4.096V, 128 SPS")

	msb, lsb, err = ads1115Config(ChannelB)
	assert.NoError(t, err)
	assert.Equal(t, uint16(0xD383), uint16(msb)<<8|uint16(lsb))

	_, _, err = ads1115Config(Channel(2))
	assert.Error(t, err)
}

func TestADS1115To12Bit(t *testing.T) {
	assert.Equal(t, uint16(0), ads1115To12Bit(-5))
	assert.Equal(t, uint16(0), ads1115To12Bit(0))
	assert.Equal(t, uint16(0), ads1115To12Bit(7))
	assert.Equal(t, uint16(1), ads1115To12Bit(8))
	assert.Equal(t, uint16(2048), ads1115To12Bit(16384))
	assert.Equal(t, uint16(MaxValue), ads1115To12Bit(32767))
}

type fakePins map[string]*gpiotest.Pin

func newFakePins(cfg *config.HardwareConfig) fakePins {
	pins := fakePins{}
	for _, names := range [][]string{cfg.Buttons, cfg.Digits, cfg.Segments} {
		for _, name := range names {
			pins[name] = &gpiotest.Pin{N: name}
		}
	}
	return pins
}

func (f fakePins) lookup(name string) gpio.PinIO {
	if pin, ok := f[name]; ok {
		return pin
	}
	return nil
}

func (f fakePins) level(name string) gpio.Level {
	return f[name].Read()
}

// markClaimed sets a pull no open path uses, so a later release to a
// floating input is visible.
func (f fakePins) markClaimed() {
	for _, pin := range f {
		pin.Lock()
		pin.P = gpio.PullDown
		pin.Unlock()
	}
}

func (f fakePins) assertReleased(t *testing.T, names ...string) {
	t.Helper()
	for _, name := range names {
		pin := f[name]
		pin.Lock()
		pull := pin.P
		pin.Unlock()
		assert.Equal(t, gpio.Float, pull, "pin %s released", name)
	}
}

func openTestPeriph(cfg *config.HardwareConfig, pins fakePins, busErr error) (*Periph, error) {
	return openPeriph(cfg, nil, pins.lookup, func(string) (i2c.BusCloser, error) {
		if busErr != nil {
			return nil, busErr
		}
		return &i2ctest.Playback{DontPanic: true}, nil
	})
}

func TestOpenPeriph_DrivesPins(t *testing.T) {
	cfg := config.Default().Hardware
	pins := newFakePins(&cfg)

	p, err := openTestPeriph(&cfg, pins, nil)
	require.NoError(t, err)

	assert.True(t, p.Level(0), "pull-up reads released")
	p.WriteSegments(0x30) // 1: b and c
	p.SetPosition(2, true)
	assert.Equal(t, gpio.High, pins.level(cfg.Digits[2]))
	assert.Equal(t, gpio.High, pins.level(cfg.Segments[1]))
	assert.Equal(t, gpio.Low, pins.level(cfg.Segments[0]))

	require.NoError(t, p.Close())
	assert.Equal(t, gpio.Low, pins.level(cfg.Digits[2]))
	assert.Equal(t, gpio.Low, pins.level(cfg.Segments[1]))
	pins.assertReleased(t, cfg.Digits...)
	pins.assertReleased(t, cfg.Segments...)
}

func TestOpenPeriph_UnknownPinReleasesClaimed(t *testing.T) {
	cfg := config.Default().Hardware
	pins := newFakePins(&cfg)
	pins.markClaimed()
	delete(pins, cfg.Segments[3])

	p, err := openTestPeriph(&cfg, pins, nil)
	require.Error(t, err)
	assert.Nil(t, p)

	pins.assertReleased(t, cfg.Digits...)
	pins.assertReleased(t, cfg.Segments[:3]...)
	assert.Equal(t, gpio.PullDown, pins[cfg.Segments[4]].P, "never claimed")
}

func TestOpenPeriph_BusErrorReleasesPins(t *testing.T) {
	cfg := config.Default().Hardware
	cfg.DigitActiveLow = true
	pins := newFakePins(&cfg)
	pins.markClaimed()

	p, err := openTestPeriph(&cfg, pins, errors.New("no i2c"))
	require.Error(t, err)
	assert.Nil(t, p)

	for _, name := range cfg.Digits {
		assert.Equal(t, gpio.High, pins.level(name), "active-low digit %s off", name)
	}
	pins.assertReleased(t, cfg.Digits...)
	pins.assertReleased(t, cfg.Segments...)
}
