package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// fakeRedis is an in-memory RedisClient with pub/sub fan-out.
type fakeRedis struct {
	mu        sync.Mutex
	values    map[string]string
	ttls      map[string]time.Duration
	subs      map[string][]*fakeSubscription
	published []fakePublish

	SetFunc func(ctx context.Context, key string, value any, expiration time.Duration) error
}

type fakePublish struct {
	channel string
	message string
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{
		values: map[string]string{},
		ttls:   map[string]time.Duration{},
		subs:   map[string][]*fakeSubscription{},
	}
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}

func (f *fakeRedis) Set(ctx context.Context, key string, value any, expiration time.Duration) error {
	if f.SetFunc != nil {
		return f.SetFunc(ctx, key, value, expiration)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key] = asString(value)
	f.ttls[key] = expiration
	return nil
}

func (f *fakeRedis) Get(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.values, k)
	}
	return nil
}

func (f *fakeRedis) Publish(ctx context.Context, channel string, message any) error {
	f.mu.Lock()
	msg := asString(message)
	f.published = append(f.published, fakePublish{channel: channel, message: msg})
	subs := append([]*fakeSubscription(nil), f.subs[channel]...)
	f.mu.Unlock()
	for _, s := range subs {
		s.deliver(msg)
	}
	return nil
}

func (f *fakeRedis) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	s := &fakeSubscription{ch: make(chan string, 64)}
	f.mu.Lock()
	f.subs[channel] = append(f.subs[channel], s)
	f.mu.Unlock()
	return s, nil
}

func (f *fakeRedis) publishedTo(channel string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, p := range f.published {
		if p.channel == channel {
			out = append(out, p.message)
		}
	}
	return out
}

type fakeSubscription struct {
	mu     sync.Mutex
	ch     chan string
	closed bool
}

func (s *fakeSubscription) deliver(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.ch <- msg
	}
}

func (s *fakeSubscription) Messages() <-chan string {
	return s.ch
}

func (s *fakeSubscription) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
	return nil
}

func (s *fakeSubscription) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
