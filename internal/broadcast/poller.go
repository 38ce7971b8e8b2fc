package broadcast

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"hedge-lords/internal/logging"
)

// SnapshotFunc computes the payload for one poll tick.
type SnapshotFunc func(ctx context.Context) (interface{}, error)

// Poller periodically computes a channel's snapshot and broadcasts it.
// Ticks on an idle channel skip the compute entirely, and at most one
// compute+broadcast is in flight at a time.
type Poller struct {
	broadcaster *Broadcaster
	channel     string
	snapshot    SnapshotFunc
	interval    time.Duration
	stopTimeout time.Duration
	logger      zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPoller creates a poller for the channel. It does not start it.
func NewPoller(b *Broadcaster, channel string, snapshot SnapshotFunc, interval, stopTimeout time.Duration, logger zerolog.Logger) *Poller {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	if stopTimeout <= 0 {
		stopTimeout = 5 * time.Second
	}
	return &Poller{
		broadcaster: b,
		channel:     channel,
		snapshot:    snapshot,
		interval:    interval,
		stopTimeout: stopTimeout,
		logger:      logging.WithChannel(logging.WithService(logger, "poller"), channel),
	}
}

// Start launches the poll loop. Starting a running poller is a no-op.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil {
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})

	go p.loop(loopCtx, p.done)
	p.logger.Info().Dur("interval", p.interval).Msg("Poller started")
}

// Stop cancels the loop and waits for it to exit, bounded by the stop
// timeout so a wedged tick cannot hang shutdown forever.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()

	select {
	case <-done:
	case <-time.After(p.stopTimeout):
		p.logger.Warn().Msg("Poller did not stop within timeout")
	}
}

func (p *Poller) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

// tick computes and broadcasts one snapshot. Failures are logged and
// the loop keeps going; a bad tick must never kill the feed.
func (p *Poller) tick(ctx context.Context) {
	if !p.broadcaster.Active(p.channel) {
		return
	}

	payload, err := p.snapshot(ctx)
	if err != nil {
		p.logger.Warn().Err(err).Msg("Snapshot failed")
		return
	}

	if err := p.broadcaster.Broadcast(p.channel, payload); err != nil {
		p.logger.Warn().Err(err).Msg("Broadcast failed")
	}
}
