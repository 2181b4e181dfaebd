// Package channel manages the chat integrations that carry operator turns to
// the coordinator.
package channel

import (
	"context"
	"sync"
	"time"

	"github.com/soyeahso/arbiter/internal/domain"
	"github.com/soyeahso/arbiter/internal/logging"
)

const stopTimeout = 5 * time.Second

// Registry holds the configured channels in registration order.
type Registry struct {
	mu       sync.RWMutex
	channels []domain.Channel
	log      *logging.Logger
}

// NewRegistry creates an empty channel registry.
func NewRegistry(log *logging.Logger) *Registry {
	return &Registry{log: log.Sub("channels")}
}

// Register adds ch, replacing any channel with the same ID.
func (r *Registry) Register(ch domain.Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.channels {
		if existing.ID() == ch.ID() {
			r.channels[i] = ch
			r.log.Info().Str("channel", ch.ID()).Msg("channel replaced")
			return
		}
	}
	r.channels = append(r.channels, ch)
	r.log.Info().Str("channel", ch.ID()).Msg("channel registered")
}

// Get returns the channel with id.
func (r *Registry) Get(id string) (domain.Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, ch := range r.channels {
		if ch.ID() == id {
			return ch, true
		}
	}
	return nil, false
}

// List returns channel IDs in registration order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, len(r.channels))
	for i, ch := range r.channels {
		ids[i] = ch.ID()
	}
	return ids
}

// Count returns the number of registered channels.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels)
}

// Status reports every channel. Channels without a Status method are
// reported as running.
func (r *Registry) Status() []domain.ChannelStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	statuses := make([]domain.ChannelStatus, 0, len(r.channels))
	for _, ch := range r.channels {
		if sc, ok := ch.(interface{ Status() domain.ChannelStatus }); ok {
			statuses = append(statuses, sc.Status())
			continue
		}
		statuses = append(statuses, domain.ChannelStatus{ChannelID: ch.ID(), Running: true})
	}
	return statuses
}

// Run starts every channel concurrently and blocks until ctx is done, then
// stops them all. A channel whose Start fails is logged and left stopped;
// it does not take the others down.
func (r *Registry) Run(ctx context.Context) error {
	r.mu.RLock()
	channels := append([]domain.Channel(nil), r.channels...)
	r.mu.RUnlock()

	var wg sync.WaitGroup
	for _, ch := range channels {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.log.Info().Str("channel", ch.ID()).Msg("starting channel")
			if err := ch.Start(ctx); err != nil {
				r.log.Error().Err(err).Str("channel", ch.ID()).Msg("channel exited with error")
			}
		}()
	}

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopTimeout)
	defer cancel()
	for _, ch := range channels {
		r.log.Info().Str("channel", ch.ID()).Msg("stopping channel")
		if err := ch.Stop(stopCtx); err != nil {
			r.log.Error().Err(err).Str("channel", ch.ID()).Msg("failed to stop channel")
		}
	}
	wg.Wait()
	return nil
}
