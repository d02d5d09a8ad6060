// Package app builds the sampling pipeline once at startup and runs its
// tasks until the context is cancelled.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/itohio/ledavg/pkg/averager"
	"github.com/itohio/ledavg/pkg/config"
	"github.com/itohio/ledavg/pkg/display"
	"github.com/itohio/ledavg/pkg/hw"
	"github.com/itohio/ledavg/pkg/mailbox"
	"github.com/itohio/ledavg/pkg/metrics"
	"github.com/itohio/ledavg/pkg/sample"
	"github.com/itohio/ledavg/pkg/sampler"
	"github.com/itohio/ledavg/pkg/telemetry"
	"github.com/itohio/ledavg/pkg/timer"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Context owns every entity of the pipeline. It is created once by New and
// handed to the tasks; nothing lives in package globals.
type Context struct {
	Config  *config.Config
	Log     *zap.Logger
	Metrics *metrics.Metrics
	Board   hw.Board

	Queue     *sample.Queue
	Lock      sync.Mutex // consumption lock shared by the averagers
	Mailboxes [sample.NumTags]*mailbox.Mailbox
	Digits    display.DigitBuffer

	Producer  *sampler.Producer
	Trigger   *sampler.Trigger
	Averagers [sample.NumTags]*averager.Averager
	Selector  *display.Selector
	Mux       *display.Multiplexer

	SampleTimer *timer.Timer
	MuxTimer    *timer.Timer

	Reporter *telemetry.Reporter // nil when telemetry is off
}

// New wires the pipeline on board. m may be nil.
func New(cfg *config.Config, board hw.Board, log *zap.Logger, m *metrics.Metrics) (*Context, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if board == nil {
		return nil, errors.New("no board")
	}
	if log == nil {
		log = zap.NewNop()
	}

	c := &Context{
		Config:  cfg,
		Log:     log,
		Metrics: m,
		Board:   board,
		Queue:   sample.NewQueue(cfg.Queue.Capacity),
	}
	for i := range c.Mailboxes {
		c.Mailboxes[i] = mailbox.New()
	}

	var err error
	if c.Producer, err = sampler.NewProducer(c.Queue, log, m); err != nil {
		return nil, err
	}
	c.Trigger = sampler.NewTrigger(board.ADC())

	windows := [sample.NumTags]int{cfg.Channels.WindowA, cfg.Channels.WindowB}
	for i, tag := range []sample.Tag{sample.TagA, sample.TagB} {
		c.Averagers[i], err = averager.New(averager.Params{
			Tag:     tag,
			Window:  windows[i],
			Queue:   c.Queue,
			Lock:    &c.Lock,
			Mailbox: c.Mailboxes[tag],
			Logger:  log,
			Metrics: m,
		})
		if err != nil {
			return nil, err
		}
	}

	// S1 shows channel A, S2 shows channel B.
	c.Selector, err = display.NewSelector(display.SelectorParams{
		Input:   board.Buttons(),
		Sources: [display.NumButtons]*mailbox.Mailbox{c.Mailboxes[sample.TagA], c.Mailboxes[sample.TagB]},
		Digits:  &c.Digits,
		Poll:    cfg.Timing.PollInterval,
		Logger:  log,
		Metrics: m,
	})
	if err != nil {
		return nil, err
	}
	c.Mux = display.NewMultiplexer(board.Display(), &c.Digits)

	if c.SampleTimer, err = timer.New("sample", cfg.Timing.SamplePeriod, c.Trigger.Fire); err != nil {
		return nil, err
	}
	if c.MuxTimer, err = timer.New("mux", cfg.Timing.MuxPeriod, c.Mux.Tick); err != nil {
		return nil, err
	}

	if cfg.Telemetry.Interval > 0 {
		sinks, err := openSinks(&cfg.Telemetry, log)
		if err != nil {
			return nil, err
		}
		if len(sinks) > 0 {
			c.Reporter, err = telemetry.NewReporter(
				[]telemetry.Source{
					{Channel: sample.TagA.String(), Box: c.Mailboxes[sample.TagA]},
					{Channel: sample.TagB.String(), Box: c.Mailboxes[sample.TagB]},
				},
				sinks, cfg.Telemetry.Interval, cfg.Hardware.VRef, log,
			)
			if err != nil {
				closeSinks(sinks)
				return nil, err
			}
		}
	}

	return c, nil
}

func openSinks(cfg *config.TelemetryConfig, log *zap.Logger) ([]telemetry.Sink, error) {
	var sinks []telemetry.Sink
	if cfg.Log {
		sinks = append(sinks, telemetry.NewLogSink(log.Named("telemetry")))
	}
	if cfg.Serial.Port != "" {
		s, err := telemetry.OpenSerial(cfg.Serial.Port, cfg.Serial.BaudRate)
		if err != nil {
			closeSinks(sinks)
			return nil, err
		}
		sinks = append(sinks, s)
	}
	if cfg.MQTT.Broker != "" {
		s, err := telemetry.NewMQTT(cfg.MQTT)
		if err != nil {
			closeSinks(sinks)
			return nil, err
		}
		sinks = append(sinks, s)
	}
	return sinks, nil
}

func closeSinks(sinks []telemetry.Sink) {
	for _, s := range sinks {
		s.Close()
	}
}

// Close releases what New opened and Run has not: the telemetry sinks.
// It is safe to call after Run and more than once.
func (c *Context) Close() error {
	if c.Reporter == nil {
		return nil
	}
	return c.Reporter.Close()
}

// Run starts every task and blocks until ctx is cancelled or a task fails.
// Cancellation is a clean stop and returns nil. The display is blanked on
// the way out.
func (c *Context) Run(ctx context.Context) error {
	c.Producer.Attach(c.Board.ADC())
	defer c.Board.ADC().SetHandler(nil)
	defer c.Mux.Blank()

	g, ctx := errgroup.WithContext(ctx)
	for _, a := range c.Averagers {
		g.Go(func() error { return a.Run(ctx) })
	}
	g.Go(func() error { return c.Selector.Run(ctx) })
	g.Go(func() error { return c.MuxTimer.Run(ctx) })
	g.Go(func() error { return c.SampleTimer.Run(ctx) })
	if c.Reporter != nil {
		g.Go(func() error { return c.Reporter.Run(ctx) })
	}

	c.Log.Info("pipeline running",
		zap.Duration("sample_period", c.SampleTimer.Period()),
		zap.Duration("mux_period", c.MuxTimer.Period()),
		zap.Int("queue_capacity", c.Queue.Cap()),
	)

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	c.Log.Info("pipeline stopped", zap.Error(err))
	return err
}
