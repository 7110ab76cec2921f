package services

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClient narrows redis operations used by services.
type RedisClient interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
	Publish(ctx context.Context, channel string, message any) error
	Subscribe(ctx context.Context, channel string) (Subscription, error)
}

// Subscription is a live pub/sub channel. Messages is closed after Close.
type Subscription interface {
	Messages() <-chan string
	Close() error
}

// RedisAdapter wraps *redis.Client to satisfy RedisClient.
type RedisAdapter struct {
	client *redis.Client
}

// NewRedisAdapter builds a RedisClient adapter around a redis client.
func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client}
}

func (r *RedisAdapter) Set(ctx context.Context, key string, value any, expiration time.Duration) error {
	return r.client.Set(ctx, key, value, expiration).Err()
}

func (r *RedisAdapter) Get(ctx context.Context, key string) (string, error) {
	return r.client.Get(ctx, key).Result()
}

func (r *RedisAdapter) Del(ctx context.Context, keys ...string) error {
	return r.client.Del(ctx, keys...).Err()
}

func (r *RedisAdapter) Publish(ctx context.Context, channel string, message any) error {
	return r.client.Publish(ctx, channel, message).Err()
}

// Subscribe waits for the subscription to be confirmed so no message published
// after it returns is missed.
func (r *RedisAdapter) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	ps := r.client.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}
	return newPubSubAdapter(ps), nil
}

type pubSubAdapter struct {
	ps   *redis.PubSub
	out  chan string
	done chan struct{}
	once sync.Once
}

func newPubSubAdapter(ps *redis.PubSub) *pubSubAdapter {
	a := &pubSubAdapter{
		ps:   ps,
		out:  make(chan string, 16),
		done: make(chan struct{}),
	}
	go a.pump(ps.Channel())
	return a
}

func (a *pubSubAdapter) pump(in <-chan *redis.Message) {
	defer close(a.out)
	for {
		select {
		case <-a.done:
			return
		case msg, ok := <-in:
			if !ok {
				return
			}
			select {
			case a.out <- msg.Payload:
			case <-a.done:
				return
			}
		}
	}
}

func (a *pubSubAdapter) Messages() <-chan string {
	return a.out
}

func (a *pubSubAdapter) Close() error {
	var err error
	a.once.Do(func() {
		close(a.done)
		err = a.ps.Close()
	})
	return err
}
