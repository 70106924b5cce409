package publisher

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/johanmaxwell/server-toilet/internal/models"
	"github.com/johanmaxwell/server-toilet/internal/redisclient"
)

type publishedMessage struct {
	Topic    string
	QoS      byte
	Retained bool
	Payload  []byte
}

type fakeMQTTPublisher struct {
	mu        sync.Mutex
	published []publishedMessage
}

func (f *fakeMQTTPublisher) Publish(topic string, qos byte, retained bool, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, publishedMessage{Topic: topic, QoS: qos, Retained: retained, Payload: payload})
	return nil
}

func (f *fakeMQTTPublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published)
}

func (f *fakeMQTTPublisher) first() publishedMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.published[0]
}

func setupPublisher(t *testing.T, mqtt MQTTPublisher) (*Publisher, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	pub := NewPublisher(client, mqtt, Options{
		Stream:        "config:changes",
		ConsumerGroup: "test-group",
		ConsumerName:  "test-consumer",
		BatchSize:     10,
	}, nil, zap.NewNop())

	return pub, client
}

func TestPublisher_RepublishesConfigChange(t *testing.T) {
	mqtt := &fakeMQTTPublisher{}
	pub, client := setupPublisher(t, mqtt)

	cfg := &models.DeviceConfig{
		Company:    "acme",
		Building:   "hq",
		Location:   "floor_1",
		Gender:     models.GenderMale,
		DeviceSlot: "3",
		MACAddress: "AA:BB:CC",
		Version:    2,
	}
	_, err := redisclient.PublishJSONToStream(context.Background(), client, "config:changes", cfg)
	require.NoError(t, err)

	require.NoError(t, pub.Start(context.Background()))
	defer pub.Stop()

	require.Eventually(t, func() bool { return mqtt.count() == 1 }, 5*time.Second, 20*time.Millisecond)

	msg := mqtt.first()
	assert.Equal(t, "update/acme/AA:BB:CC", msg.Topic)
	assert.Equal(t, byte(0), msg.QoS)
	assert.True(t, msg.Retained)

	var decoded models.DeviceConfig
	require.NoError(t, json.Unmarshal(msg.Payload, &decoded))
	assert.Equal(t, "floor_1", decoded.Location)
	assert.Equal(t, 2, decoded.Version)
}

func TestPublisher_SkipsMalformedEvents(t *testing.T) {
	mqtt := &fakeMQTTPublisher{}
	pub, client := setupPublisher(t, mqtt)

	ctx := context.Background()
	err := client.XAdd(ctx, &redis.XAddArgs{
		Stream: "config:changes",
		Values: map[string]interface{}{"data": "{not json"},
	}).Err()
	require.NoError(t, err)

	cfg := &models.DeviceConfig{Company: "acme", MACAddress: "DD:EE:FF", Version: 1}
	_, err = redisclient.PublishJSONToStream(ctx, client, "config:changes", cfg)
	require.NoError(t, err)

	require.NoError(t, pub.Start(ctx))
	defer pub.Stop()

	// The malformed entry is acked and dropped; only the valid one publishes.
	require.Eventually(t, func() bool { return mqtt.count() == 1 }, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, "update/acme/DD:EE:FF", mqtt.first().Topic)
}
