// Package sampler turns conversion results into tagged samples on the shared
// queue and triggers conversions periodically.
package sampler

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/itohio/ledavg/pkg/hw"
	"github.com/itohio/ledavg/pkg/metrics"
	"github.com/itohio/ledavg/pkg/sample"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DropLogInterval bounds how often a dropped sample is logged.
const DropLogInterval = time.Second

// Producer pushes each conversion result onto the queue. Its handler runs in
// conversion context: it never waits and a full queue loses the sample.
type Producer struct {
	queue   *sample.Queue
	log     *zap.Logger
	metrics *metrics.Metrics
	limiter *rate.Limiter

	sent    atomic.Uint64
	dropped atomic.Uint64
}

// NewProducer creates a producer feeding q.
func NewProducer(q *sample.Queue, log *zap.Logger, m *metrics.Metrics) (*Producer, error) {
	if q == nil {
		return nil, fmt.Errorf("producer: nil queue")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Producer{
		queue:   q,
		log:     log.Named("producer"),
		metrics: m,
		limiter: rate.NewLimiter(rate.Every(DropLogInterval), 1),
	}, nil
}

// Attach installs the producer as the ADC conversion handler.
func (p *Producer) Attach(adc hw.ADC) {
	adc.SetHandler(p.HandleConversion)
}

// TagFor maps an ADC channel onto its sample tag.
func TagFor(ch hw.Channel) (sample.Tag, bool) {
	switch ch {
	case hw.ChannelA:
		return sample.TagA, true
	case hw.ChannelB:
		return sample.TagB, true
	default:
		return 0, false
	}
}

// HandleConversion enqueues one result. Results from unknown channels are
// ignored.
func (p *Producer) HandleConversion(ch hw.Channel, value uint16) {
	tag, ok := TagFor(ch)
	if !ok {
		return
	}

	if p.queue.TrySend(sample.New(tag, value)) {
		p.sent.Add(1)
		p.metrics.Enqueued(tag, p.queue.Len())
		return
	}

	n := p.dropped.Add(1)
	p.metrics.Dropped(tag)
	if p.limiter.Allow() {
		p.log.Debug("sample queue full, dropping sample",
			zap.Stringer("channel", tag),
			zap.Uint16("value", value),
			zap.Uint64("dropped_total", n),
		)
	}
}

// Sent returns the number of samples enqueued.
func (p *Producer) Sent() uint64 {
	return p.sent.Load()
}

// Dropped returns the number of samples lost to a full queue.
func (p *Producer) Dropped() uint64 {
	return p.dropped.Load()
}
