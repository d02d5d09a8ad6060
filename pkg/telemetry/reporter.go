// Package telemetry periodically reports the latest channel averages to
// diagnostic outputs. It only reads the mailboxes and never blocks the
// sampling pipeline.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chewxy/math32"
	"github.com/itohio/ledavg/pkg/mailbox"
	"go.uber.org/zap"
)

const fullScale = 4095

// Reading is the state of one channel at report time.
type Reading struct {
	Channel string  // "A" or "B"
	Raw     uint16  // latest moving average in ADC counts
	Volts   float32 // Raw scaled to the reference voltage
	Valid   bool    // false until the channel published its first average
}

// Report is one telemetry snapshot.
type Report struct {
	Time     time.Time
	Readings []Reading
}

// Sink receives reports.
type Sink interface {
	Publish(r Report) error
	Close() error
}

// Source names a mailbox to report.
type Source struct {
	Channel string
	Box     *mailbox.Mailbox
}

// Reporter snapshots its sources every interval and hands the report to each
// sink in turn.
type Reporter struct {
	sources  []Source
	sinks    []Sink
	interval time.Duration
	vref     float32
	log      *zap.Logger
	now      func() time.Time

	closeOnce sync.Once
}

// NewReporter creates a reporter. vref is the input voltage at full scale.
func NewReporter(sources []Source, sinks []Sink, interval time.Duration, vref float64, log *zap.Logger) (*Reporter, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("telemetry interval must be positive, got %v", interval)
	}
	for _, s := range sources {
		if s.Box == nil {
			return nil, fmt.Errorf("telemetry source %q has no mailbox", s.Channel)
		}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Reporter{
		sources:  sources,
		sinks:    sinks,
		interval: interval,
		vref:     float32(vref),
		log:      log.Named("telemetry"),
		now:      time.Now,
	}, nil
}

// Volts converts a 12-bit reading to volts, rounded to the millivolt.
func Volts(raw uint16, vref float32) float32 {
	v := float32(min(raw, fullScale)) / fullScale * vref
	return math32.Floor(v*1000+0.5) / 1000
}

// Snapshot reads every source without waiting.
func (r *Reporter) Snapshot() Report {
	rep := Report{
		Time:     r.now(),
		Readings: make([]Reading, 0, len(r.sources)),
	}
	for _, s := range r.sources {
		raw, ok := s.Box.Peek()
		rd := Reading{Channel: s.Channel, Raw: raw, Valid: ok}
		if ok {
			rd.Volts = Volts(raw, r.vref)
		}
		rep.Readings = append(rep.Readings, rd)
	}
	return rep
}

// Publish sends rep to all sinks. A failing sink does not stop the others.
func (r *Reporter) Publish(rep Report) error {
	var errs []error
	for _, s := range r.sinks {
		if err := s.Publish(rep); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Run reports every interval until ctx is done, then closes the sinks.
func (r *Reporter) Run(ctx context.Context) error {
	defer r.Close()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.Publish(r.Snapshot()); err != nil {
				r.log.Warn("telemetry publish failed", zap.Error(err))
			}
		}
	}
}

// Close closes every sink once. Later calls return nil.
func (r *Reporter) Close() error {
	var errs []error
	r.closeOnce.Do(func() {
		for _, s := range r.sinks {
			if err := s.Close(); err != nil {
				r.log.Warn("closing telemetry sink", zap.Error(err))
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}
