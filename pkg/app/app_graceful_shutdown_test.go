package app

import (
	"context"
	"testing"
	"time"

	"github.com/itohio/ledavg/pkg/hw"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_CancelledBeforeStart(t *testing.T) {
	cfg := testConfig()
	board := hw.NewSim(&cfg.Simulation, nil)
	defer board.Close()

	c, err := New(cfg, board, nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
}

func TestRun_StopsWithBacklog(t *testing.T) {
	cfg := testConfig()
	cfg.Timing.PollInterval = time.Hour
	board := hw.NewSim(&cfg.Simulation, nil)
	defer board.Close()

	c, err := New(cfg, board, nil, nil)
	require.NoError(t, err)

	// Fill the queue with B samples before anything consumes them.
	c.Producer.Attach(board.ADC())
	for i := 0; i < cfg.Queue.Capacity; i++ {
		c.Producer.HandleConversion(hw.ChannelB, 1)
	}

	stop := start(t, c)
	time.Sleep(20 * time.Millisecond)
	assert.NoError(t, stop())
}
