package redisad

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"friendly_eats/internal/adapters/observability"
)

const channelPrefix = "friendlyeats:changes:"

// Feed fans change signals out over Redis pub/sub so every API instance
// sees writes committed by the others.
type Feed struct{ c *redis.Client }

func NewFeed(c *redis.Client) *Feed { return &Feed{c: c} }

func (f *Feed) Publish(ctx context.Context, topic string) error {
	observability.ObserveFeed(topic, "publish")
	return f.c.Publish(ctx, channelPrefix+topic, "changed").Err()
}

// Subscribe returns once the subscription is live. Bursts of messages
// coalesce into one pending signal.
func (f *Feed) Subscribe(ctx context.Context, topic string) (<-chan struct{}, func(), error) {
	ps := f.c.Subscribe(ctx, channelPrefix+topic)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, nil, err
	}
	msgs := ps.Channel()

	out := make(chan struct{}, 1)
	done := make(chan struct{})
	var once sync.Once
	stop := func() {
		once.Do(func() {
			close(done)
			if err := ps.Close(); err != nil {
				log.Debug().Err(err).Str("topic", topic).Msg("closing subscription")
			}
		})
	}

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				stop()
				return
			case <-done:
				return
			case _, ok := <-msgs:
				if !ok {
					return
				}
				observability.ObserveFeed(topic, "receive")
				select {
				case out <- struct{}{}:
				default: // a signal is already pending
				}
			}
		}
	}()
	return out, stop, nil
}
