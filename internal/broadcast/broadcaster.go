// Package broadcast fans computed snapshots out to at most one client
// per named channel, with pollers driving each channel on a fixed
// cadence.
package broadcast

import (
	"sync"

	"github.com/rs/zerolog"

	apperrors "hedge-lords/internal/errors"
	"hedge-lords/internal/logging"
)

// Channel names served by the pipeline.
const (
	ChannelPremiums = "premiums"
	ChannelTrading  = "trading"
)

// Handle is one connected client. Send must be safe to call from the
// poller goroutine.
type Handle interface {
	Send(v interface{}) error
	Close() error
}

// Broadcaster tracks one optional client per channel. A channel with no
// client is idle and broadcasts to it are silently dropped.
type Broadcaster struct {
	logger zerolog.Logger

	mu      sync.Mutex
	clients map[string]Handle
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster(logger zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		logger:  logging.WithService(logger, "broadcast"),
		clients: make(map[string]Handle),
	}
}

// Connect registers a client on the channel. Any previous client is
// closed and evicted: the newest connection always wins.
func (b *Broadcaster) Connect(channel string, handle Handle) {
	b.mu.Lock()
	prev := b.clients[channel]
	b.clients[channel] = handle
	b.mu.Unlock()

	if prev != nil {
		if err := prev.Close(); err != nil {
			b.logger.Debug().Err(err).Str("channel", channel).Msg("Closing evicted client")
		}
		b.logger.Info().Str("channel", channel).Msg("Evicted previous client")
	}
}

// Disconnect removes the client from the channel if the given handle is
// still the current one. Disconnecting twice, or after an eviction, is
// a no-op.
func (b *Broadcaster) Disconnect(channel string, handle Handle) {
	b.mu.Lock()
	current, ok := b.clients[channel]
	if ok && current == handle {
		delete(b.clients, channel)
	} else {
		ok = false
	}
	b.mu.Unlock()

	if ok {
		if err := handle.Close(); err != nil {
			b.logger.Debug().Err(err).Str("channel", channel).Msg("Closing client")
		}
	}
}

// Active reports whether the channel has a connected client.
func (b *Broadcaster) Active(channel string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.clients[channel] != nil
}

// Broadcast sends v to the channel's client. An idle channel is a
// no-op; a send failure drops the client back to idle and reports the
// loss.
func (b *Broadcaster) Broadcast(channel string, v interface{}) error {
	b.mu.Lock()
	handle := b.clients[channel]
	b.mu.Unlock()

	if handle == nil {
		return nil
	}

	if err := handle.Send(v); err != nil {
		b.mu.Lock()
		if b.clients[channel] == handle {
			delete(b.clients, channel)
		}
		b.mu.Unlock()

		handle.Close()
		b.logger.Warn().Err(err).Str("channel", channel).Msg("Client dropped on send failure")
		return apperrors.Wrap(apperrors.ErrConnectionLost, channel)
	}
	return nil
}
