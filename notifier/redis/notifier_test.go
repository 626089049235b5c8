package redis

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-buildtracker"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unreachableClient() *goredis.Client {
	return goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
}

func TestPublishDeliversLocallyWhenRedisIsDown(t *testing.T) {
	client := unreachableClient()
	defer client.Close()

	n := New(client)

	var got []buildtracker.SessionEvent
	unsubscribe := n.OnSessionChange(func(e buildtracker.SessionEvent) {
		got = append(got, e)
	})
	defer unsubscribe()

	event := buildtracker.NewSessionEvent(buildtracker.SessionSignedIn, &buildtracker.Session{UserID: "u1"})
	err := n.Publish(context.Background(), event)
	assert.Error(t, err)

	require.Len(t, got, 1)
	assert.Equal(t, "u1", got[0].Session.UserID)
}

func TestHandleMessage(t *testing.T) {
	client := unreachableClient()
	defer client.Close()

	n := New(client).WithChannel("test:session")
	assert.Equal(t, "test:session", n.Channel())

	var got []buildtracker.SessionEvent
	n.OnSessionChange(func(e buildtracker.SessionEvent) {
		got = append(got, e)
	})

	encode := func(origin string, event buildtracker.SessionEvent) string {
		b, err := json.Marshal(envelope{Origin: origin, Event: event})
		require.NoError(t, err)
		return string(b)
	}

	ctx := context.Background()

	// own events were already delivered by Publish
	n.handleMessage(ctx, encode(n.origin, buildtracker.NewSessionEvent(buildtracker.SessionSignedOut, nil)))
	assert.Empty(t, got)

	n.handleMessage(ctx, "{not json")
	assert.Empty(t, got)

	n.handleMessage(ctx, encode("other", buildtracker.SessionEvent{}))
	assert.Empty(t, got)

	n.handleMessage(ctx, encode("other", buildtracker.NewSessionEvent(buildtracker.SessionSignedOut, nil)))
	require.Len(t, got, 1)
	assert.Equal(t, buildtracker.SessionSignedOut, got[0].Type)
	assert.Nil(t, got[0].Session)
}

func TestCloseWithoutListen(t *testing.T) {
	client := unreachableClient()
	defer client.Close()

	assert.NoError(t, New(client).Close())
}

func TestNotifierAcrossProcesses(t *testing.T) {
	addr := os.Getenv("BUILDTRACKER_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("BUILDTRACKER_TEST_REDIS_ADDR not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	channel := "buildtracker:test:" + time.Now().Format("150405.000000")

	sender, err := Dial(ctx, addr, "", 0)
	require.NoError(t, err)
	sender.WithChannel(channel)

	receiver, err := Dial(ctx, addr, "", 0)
	require.NoError(t, err)
	receiver.WithChannel(channel)

	var (
		mu  sync.Mutex
		got []buildtracker.SessionEvent
	)
	received := make(chan struct{}, 1)
	receiver.OnSessionChange(func(e buildtracker.SessionEvent) {
		mu.Lock()
		got = append(got, e)
		mu.Unlock()
		received <- struct{}{}
	})

	listenCtx, stop := context.WithCancel(ctx)
	defer stop()
	go receiver.Listen(listenCtx)

	// wait for the subscription to be active
	require.Eventually(t, func() bool {
		n, err := sender.client.PubSubNumSub(ctx, channel).Result()
		return err == nil && n[channel] > 0
	}, 2*time.Second, 20*time.Millisecond)

	require.NoError(t, sender.Publish(ctx, buildtracker.NewSessionEvent(buildtracker.SessionTokenRefreshed, &buildtracker.Session{UserID: "u1"})))

	select {
	case <-received:
	case <-ctx.Done():
		t.Fatal("event not received")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1)
	assert.Equal(t, buildtracker.SessionTokenRefreshed, got[0].Type)
	assert.Equal(t, "u1", got[0].Session.UserID)
}
