// Package redis fans session events out to every process subscribed to a
// Redis pub/sub channel.
package redis

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/goliatone/go-buildtracker"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

const DefaultChannel = "buildtracker:session"

// envelope is the wire format of a published event
type envelope struct {
	Origin string                    `json:"origin"`
	Event  buildtracker.SessionEvent `json:"event"`
}

// Notifier is a SessionNotifier backed by Redis pub/sub. Events published by
// this process are delivered locally right away, events from other
// processes arrive once Listen is running.
type Notifier struct {
	client  goredis.UniversalClient
	channel string
	origin  string
	local   *buildtracker.Broadcaster
	logger  buildtracker.Logger

	mu     sync.Mutex
	pubsub *goredis.PubSub
}

var _ buildtracker.SessionNotifier = (*Notifier)(nil)

func New(client goredis.UniversalClient) *Notifier {
	return &Notifier{
		client:  client,
		channel: DefaultChannel,
		origin:  uuid.NewString(),
		local:   buildtracker.NewBroadcaster(),
		logger:  nopLogger{},
	}
}

// Dial connects to addr and pings the server
func Dial(ctx context.Context, addr, password string, db int) (*Notifier, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "redis ping failed").
			WithMetadata(map[string]any{"addr": addr})
	}

	return New(client), nil
}

func (n *Notifier) WithChannel(channel string) *Notifier {
	if channel != "" {
		n.channel = channel
	}
	return n
}

func (n *Notifier) WithLogger(l buildtracker.Logger) *Notifier {
	if l != nil {
		n.logger = l
		n.local.WithLogger(l)
	}
	return n
}

func (n *Notifier) Channel() string {
	return n.channel
}

func (n *Notifier) OnSessionChange(fn func(buildtracker.SessionEvent)) func() {
	return n.local.OnSessionChange(fn)
}

// Publish delivers event to local subscribers and broadcasts it to other
// processes. Local delivery happens even when Redis is unreachable.
func (n *Notifier) Publish(ctx context.Context, event buildtracker.SessionEvent) error {
	if err := n.local.Publish(ctx, event); err != nil {
		return err
	}

	payload, err := json.Marshal(envelope{Origin: n.origin, Event: event})
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "encode session event")
	}

	if err := n.client.Publish(ctx, n.channel, payload).Err(); err != nil {
		n.logger.Warn("redis publish failed", "channel", n.channel, "error", err)
		return goerrors.Wrap(err, goerrors.CategoryOperation, "publish session event").
			WithMetadata(map[string]any{"channel": n.channel})
	}
	return nil
}

// Listen receives events from other processes until ctx is done or Close
// is called.
func (n *Notifier) Listen(ctx context.Context) error {
	pubsub := n.client.Subscribe(ctx, n.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return goerrors.Wrap(err, goerrors.CategoryOperation, "subscribe session channel").
			WithMetadata(map[string]any{"channel": n.channel})
	}

	n.mu.Lock()
	n.pubsub = pubsub
	n.mu.Unlock()

	n.logger.Info("listening for session events", "channel", n.channel)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			n.Close()
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			n.handleMessage(ctx, msg.Payload)
		}
	}
}

// Close stops Listen. It does not close the Redis client.
func (n *Notifier) Close() error {
	n.mu.Lock()
	pubsub := n.pubsub
	n.pubsub = nil
	n.mu.Unlock()

	if pubsub == nil {
		return nil
	}
	return pubsub.Close()
}

func (n *Notifier) handleMessage(ctx context.Context, payload string) {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		n.logger.Warn("discarding malformed session event", "error", err)
		return
	}

	if env.Origin == n.origin {
		return
	}

	if env.Event.Type == "" {
		n.logger.Warn("discarding session event without type", "origin", env.Origin)
		return
	}

	if err := n.local.Publish(ctx, env.Event); err != nil {
		n.logger.Debug("session event dropped", "error", err)
	}
}

type nopLogger struct{}

func (nopLogger) Debug(format string, args ...any) {}
func (nopLogger) Info(format string, args ...any)  {}
func (nopLogger) Warn(format string, args ...any)  {}
func (nopLogger) Error(format string, args ...any) {}
