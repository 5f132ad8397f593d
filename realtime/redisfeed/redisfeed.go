// Package redisfeed carries realtime change events over Redis Pub/Sub.
//
// Events are JSON encoded realtime.Event values published on "<prefix>:<channel>".
// Malformed messages are dropped.
package redisfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/swrcache"
	"github.com/unkn0wn-root/swrcache/realtime"
)

type Feed struct {
	rdb    redis.UniversalClient
	prefix string
	log    swrcache.Logger
}

var _ realtime.Feed = (*Feed)(nil)

// New returns a feed on rdb. prefix namespaces channels, e.g. "app:prod:changes".
func New(rdb redis.UniversalClient, prefix string, log swrcache.Logger) *Feed {
	if log == nil {
		log = swrcache.NopLogger{}
	}
	return &Feed{rdb: rdb, prefix: prefix, log: log}
}

func (f *Feed) topic(channel string) string {
	if f.prefix == "" {
		return channel
	}
	return f.prefix + ":" + channel
}

// Subscribe waits for Redis to confirm the subscription, then delivers events from
// a background goroutine until the returned Closer is closed.
func (f *Feed) Subscribe(ctx context.Context, channel string, deliver func(realtime.Event)) (io.Closer, error) {
	topic := f.topic(channel)
	ps := f.rdb.Subscribe(ctx, topic)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redisfeed: subscribe %q: %w", topic, err)
	}

	s := &subscription{ps: ps, done: make(chan struct{})}
	msgs := ps.Channel()
	go func() {
		defer close(s.done)
		for m := range msgs {
			ev, err := decode(channel, []byte(m.Payload))
			if err != nil {
				f.log.Debug("redisfeed: dropped message", swrcache.Fields{"channel": topic, "err": err})
				continue
			}
			deliver(ev)
		}
	}()
	return s, nil
}

// Publish sends ev on channel.
func (f *Feed) Publish(ctx context.Context, channel string, ev realtime.Event) error {
	ev.Channel = channel
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return f.rdb.Publish(ctx, f.topic(channel), b).Err()
}

func decode(channel string, b []byte) (realtime.Event, error) {
	var ev realtime.Event
	if err := json.Unmarshal(b, &ev); err != nil {
		return realtime.Event{}, err
	}
	if ev.Table == "" {
		return realtime.Event{}, fmt.Errorf("event without table")
	}
	if ev.Type == "" {
		ev.Type = realtime.Any
	}
	ev.Channel = channel
	return ev, nil
}

type subscription struct {
	ps   *redis.PubSub
	done chan struct{}
	once sync.Once
	err  error
}

// Close unsubscribes and waits for the delivery goroutine to exit.
func (s *subscription) Close() error {
	s.once.Do(func() {
		s.err = s.ps.Close()
		<-s.done
	})
	return s.err
}
