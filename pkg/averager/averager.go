package averager

import (
	"context"
	"fmt"
	"sync"

	"github.com/itohio/ledavg/pkg/mailbox"
	"github.com/itohio/ledavg/pkg/metrics"
	"github.com/itohio/ledavg/pkg/sample"
	"go.uber.org/zap"
)

// Window sizes of the two channels.
const (
	WindowA = 16
	WindowB = 32
)

// Params wires an Averager to the shared pipeline state.
type Params struct {
	Tag     sample.Tag
	Window  int
	Queue   *sample.Queue
	Lock    sync.Locker // shared consumption lock, held only around Receive
	Mailbox *mailbox.Mailbox
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// Averager consumes the samples tagged for one channel from the shared
// queue, keeps a moving window of them and publishes the mean.
type Averager struct {
	tag     sample.Tag
	history *History
	queue   *sample.Queue
	lock    sync.Locker
	mailbox *mailbox.Mailbox
	log     *zap.Logger
	metrics *metrics.Metrics
}

// New creates an Averager. Queue, Lock and Mailbox are required.
func New(p Params) (*Averager, error) {
	if p.Queue == nil || p.Lock == nil || p.Mailbox == nil {
		return nil, fmt.Errorf("averager %s: queue, lock and mailbox are required", p.Tag)
	}
	if p.Logger == nil {
		p.Logger = zap.NewNop()
	}

	return &Averager{
		tag:     p.Tag,
		history: NewHistory(p.Window),
		queue:   p.Queue,
		lock:    p.Lock,
		mailbox: p.Mailbox,
		log:     p.Logger.Named("avg").With(zap.Stringer("channel", p.Tag)),
		metrics: p.Metrics,
	}, nil
}

// Tag returns the channel this averager consumes.
func (a *Averager) Tag() sample.Tag {
	return a.tag
}

// Window returns the number of samples averaged.
func (a *Averager) Window() int {
	return a.history.Window()
}

// Run consumes samples until ctx is done.
func (a *Averager) Run(ctx context.Context) error {
	a.log.Debug("averager started", zap.Int("window", a.history.Window()))
	defer a.log.Debug("averager stopped")

	for {
		s, err := a.next(ctx)
		if err != nil {
			return err
		}
		mean := a.process(s)
		a.metrics.Consumed(a.tag, a.queue.Len(), mean)
	}
}

// next runs the consumption protocol: peek the head, and only when it is
// tagged for this channel take the shared lock and remove it. A head that
// belongs to the other channel is left alone; we sleep until the queue
// changes and look again.
func (a *Averager) next(ctx context.Context) (sample.Sample, error) {
	for {
		head, version, err := a.queue.Peek(ctx)
		if err != nil {
			return sample.Sample{}, err
		}

		if head.Tag != a.tag {
			if err := a.queue.WaitChange(ctx, version); err != nil {
				return sample.Sample{}, err
			}
			continue
		}

		a.lock.Lock()
		s, err := a.queue.Receive(ctx)
		a.lock.Unlock()
		if err != nil {
			return sample.Sample{}, err
		}

		// Only the owner of a tag removes it, so the head cannot change
		// between Peek and Receive.
		if s.Tag != a.tag {
			a.log.Error("dequeued foreign sample", zap.Stringer("tag", s.Tag), zap.Uint16("value", s.Value))
			continue
		}
		return s, nil
	}
}

// process records s and publishes the recomputed mean.
func (a *Averager) process(s sample.Sample) uint16 {
	a.history.Push(s.Value)
	mean := a.history.Mean()
	a.mailbox.Overwrite(mean)
	return mean
}
