package hw

import (
	"testing"
	"time"

	"github.com/itohio/ledavg/pkg/config"
	"github.com/stretchr/testify/assert"
)

func TestSim_CloseDuringConversion(t *testing.T) {
	s := NewSim(&config.SimulationConfig{ConversionLatency: time.Hour}, nil)
	s.SetHandler(func(Channel, uint16) { t.Error("handler called after close") })
	s.StartConversion()

	done := make(chan struct{})
	go func() {
		assert.NoError(t, s.Close())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close blocked on a pending conversion")
	}
}
