package mqtt

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hydronom-io/hydronom/internal/relay/core/model"
	"github.com/hydronom-io/hydronom/internal/relay/core/recorder"
	"github.com/hydronom-io/hydronom/internal/relay/core/service"
	"github.com/hydronom-io/hydronom/internal/relay/sink"
	pkgmqtt "github.com/hydronom-io/hydronom/pkg/mqtt"
	"github.com/hydronom-io/hydronom/pkg/options"
)

type published struct {
	topic   string
	qos     int
	payload []byte
}

type fakeClient struct {
	mu        sync.Mutex
	handlers  map[string]pkgmqtt.MessageHandler
	published []published
	connected chan struct{}
}

func newFakeClient() *fakeClient {
	return &fakeClient{handlers: map[string]pkgmqtt.MessageHandler{}, connected: make(chan struct{})}
}

func (c *fakeClient) Start(context.Context) error { close(c.connected); return nil }
func (c *fakeClient) Disconnect(context.Context)  {}
func (c *fakeClient) IsConnected() bool           { return true }

func (c *fakeClient) AwaitConnection(ctx context.Context) error {
	select {
	case <-c.connected:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *fakeClient) Publish(_ context.Context, topic string, qos int, _ bool, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, published{topic, qos, payload})
	return nil
}

func (c *fakeClient) Subscribe(_ context.Context, topic string, _ int, h pkgmqtt.MessageHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[topic] = h
	return nil
}

func (c *fakeClient) Unsubscribe(_ context.Context, topic string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.handlers, topic)
	return nil
}

func (c *fakeClient) handler(topic string) pkgmqtt.MessageHandler {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handlers[topic]
}

func (c *fakeClient) sent() []published {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]published(nil), c.published...)
}

func start(t *testing.T, opts *options.MqttOptions) (*fakeClient, *service.Service) {
	t.Helper()
	svc := service.New(recorder.New(sink.Discard{}, recorder.Options{}), service.Options{})
	client := newFakeClient()
	srv := NewServer(client, opts, svc, logr.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
	})
	return client, svc
}

func TestTelemetryIngress(t *testing.T) {
	opts := options.NewMqttOptions()
	opts.ShareGroup = "relays"
	client, svc := start(t, opts)

	filter := "$share/relays/hydronom/v1/telemetry/+"
	require.Eventually(t, func() bool { return client.handler(filter) != nil }, 2*time.Second, 5*time.Millisecond)

	payload, err := json.Marshal(model.TelemetrySnapshot{
		Timestamp: time.Now(),
		Vehicle:   model.VehicleInfo{Type: model.VehicleSub},
		Battery:   model.Battery{SocPct: 55},
	})
	require.NoError(t, err)
	client.handler(filter)(context.Background(), "hydronom/v1/telemetry/sub-02", payload)

	snap, err := svc.GetState("sub-02")
	require.NoError(t, err)
	assert.Equal(t, "sub-02", snap.VehicleID)

	// A payload naming another vehicle is ignored.
	payload, _ = json.Marshal(model.TelemetrySnapshot{Timestamp: time.Now(), VehicleID: "boat-99"})
	client.handler(filter)(context.Background(), "hydronom/v1/telemetry/sub-02", payload)
	_, err = svc.GetState("boat-99")
	assert.Error(t, err)
}

func TestCommandDownlink(t *testing.T) {
	client, svc := start(t, options.NewMqttOptions())
	require.Eventually(t, func() bool { return client.handler("hydronom/v1/telemetry/+") != nil }, 2*time.Second, 5*time.Millisecond)

	ctx := context.Background()
	_, err := svc.PostTelemetry(ctx, model.TelemetrySnapshot{Timestamp: time.Now(), VehicleID: "boat-01"})
	require.NoError(t, err)
	for range 3 {
		_, err := svc.PostCommand(ctx, model.Command{VehicleID: "boat-01", Type: model.CommandPing})
		require.NoError(t, err)
	}
	_, err = svc.PostMission(ctx, model.Mission{TaskID: "t-1", VehicleID: "boat-01", Mode: model.ModeManual})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(client.sent()) == 4 }, 2*time.Second, 5*time.Millisecond)
	sent := client.sent()
	for i := range 3 {
		assert.Equal(t, "hydronom/v1/command/boat-01", sent[i].topic)
		assert.Equal(t, 1, sent[i].qos)

		var rec struct {
			Kind    model.RecordKind `json:"kind"`
			Payload model.Command    `json:"payload"`
		}
		require.NoError(t, json.Unmarshal(sent[i].payload, &rec))
		assert.Equal(t, model.KindCommand, rec.Kind)
		assert.Equal(t, uint64(i+1), rec.Payload.Seq)
	}
	assert.Equal(t, "hydronom/v1/mission/boat-01", sent[3].topic)
}

func TestJSONAdapterRejectsGarbage(t *testing.T) {
	called := false
	h := JSONAdapter(func(context.Context, string, model.TelemetrySnapshot) error {
		called = true
		return nil
	})
	assert.Error(t, h(context.Background(), "t", []byte("{")))
	assert.False(t, called)
}
