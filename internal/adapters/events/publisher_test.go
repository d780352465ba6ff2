package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Silverviles/nexar-hal/internal/domain/model"
	"github.com/Silverviles/nexar-hal/internal/testutil"
)

func TestRedisPublisherDeliversToSubscribers(t *testing.T) {
	client := testutil.SetupTestRedis(t)
	t.Cleanup(func() { _ = client.Close() })
	ctx := context.Background()

	const topic = "hal:events:test"
	sub := client.Subscribe(ctx, topic)
	t.Cleanup(func() { _ = sub.Close() })
	_, err := sub.Receive(ctx)
	require.NoError(t, err, "subscription confirmation")

	publisher := NewRedisPublisher(client, topic)
	event := model.LifecycleEvent{
		JobID:     "job-1",
		Status:    model.JobStatusQueued,
		Provider:  "sim",
		Device:    "sim-7q",
		Timestamp: time.Now().UTC(),
	}
	require.NoError(t, publisher.Publish(ctx, event))

	select {
	case msg := <-sub.Channel():
		var got model.LifecycleEvent
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
		assert.Equal(t, "job-1", got.JobID)
		assert.Equal(t, model.JobStatusQueued, got.Status)
		assert.Equal(t, "sim", got.Provider)
	case <-time.After(2 * time.Second):
		t.Fatal("no event received on topic")
	}
}

func TestLoggingPublisherNeverFails(t *testing.T) {
	publisher := NewLoggingPublisher(nil)
	assert.NoError(t, publisher.Publish(context.Background(), model.LifecycleEvent{JobID: "job-1"}))
}
