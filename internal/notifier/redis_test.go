package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	channel string
	payload []byte
}

type fakeRedis struct {
	sent    []published
	pubErr  error
	pingErr error
	closed  bool
}

func (f *fakeRedis) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	if f.pubErr != nil {
		cmd.SetErr(f.pubErr)
		return cmd
	}
	f.sent = append(f.sent, published{channel: channel, payload: message.([]byte)})
	cmd.SetVal(1)
	return cmd
}

func (f *fakeRedis) Ping(ctx context.Context) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx)
	if f.pingErr != nil {
		cmd.SetErr(f.pingErr)
	} else {
		cmd.SetVal("PONG")
	}
	return cmd
}

func (f *fakeRedis) Close() error {
	f.closed = true
	return nil
}

func TestRedisSink_DeliverPublishesOnSessionChannel(t *testing.T) {
	client := &fakeRedis{}
	sink := &RedisSink{client: client}
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	require.NoError(t, sink.Deliver(context.Background(), Event{
		Type:    EventSyncStatus,
		Session: "alpha",
		Payload: SyncStatusPayload{Current: 2, Total: 5, ChatName: "Ali"},
		At:      at,
	}))

	require.Len(t, client.sent, 1)
	assert.Equal(t, "wamirror:events:alpha", client.sent[0].channel)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(client.sent[0].payload, &got))
	assert.Equal(t, "sync-status", got["type"])
	assert.Equal(t, "alpha", got["session"])
	assert.Equal(t, "2026-01-02T03:04:05Z", got["at"])
	assert.Equal(t, map[string]interface{}{"current": 2.0, "total": 5.0, "chatName": "Ali"}, got["payload"])
}

func TestRedisSink_ErrorsSurface(t *testing.T) {
	client := &fakeRedis{pubErr: errors.New("READONLY"), pingErr: errors.New("connection refused")}
	sink := &RedisSink{client: client}

	assert.EqualError(t, sink.Deliver(context.Background(), Event{Type: EventReady, Session: "alpha"}), "READONLY")
	assert.EqualError(t, sink.Ping(context.Background()), "connection refused")

	require.NoError(t, sink.Close())
	assert.True(t, client.closed)
}
