package mqtt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopicsMatch(t *testing.T) {
	cases := []struct {
		filter, topic string
		want          bool
	}{
		{"hydronom/v1/telemetry/boat-01", "hydronom/v1/telemetry/boat-01", true},
		{"hydronom/v1/telemetry/+", "hydronom/v1/telemetry/boat-01", true},
		{"hydronom/v1/telemetry/+", "hydronom/v1/telemetry/boat-01/extra", false},
		{"hydronom/v1/telemetry/+", "hydronom/v1/command/boat-01", false},
		{"hydronom/v1/#", "hydronom/v1/mission/sub-02", true},
		{"hydronom/v1/telemetry", "hydronom/v1/telemetry/boat-01", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, topicsMatch(tc.filter, tc.topic), "%s vs %s", tc.filter, tc.topic)
	}
}

func TestTopicFilterStripsShare(t *testing.T) {
	assert.Equal(t, "hydronom/v1/telemetry/+", topicFilter("$share/relays/hydronom/v1/telemetry/+"))
	assert.Equal(t, "a/b", topicFilter("a/b"))
}

func TestNewClientValidates(t *testing.T) {
	_, err := NewClient(nil)
	require.Error(t, err)

	_, err = NewClient(&ClientConfig{})
	require.Error(t, err)

	c, err := NewClient(&ClientConfig{BrokerURL: "mqtt://localhost:1883"})
	require.NoError(t, err)
	assert.False(t, c.IsConnected())

	pc := c.(*pahoClient)
	assert.Equal(t, uint16(60), pc.cfg.KeepAlive)
	assert.NotZero(t, pc.cfg.ReconnectBackoff)
}

func TestWillMessage(t *testing.T) {
	c := &pahoClient{cfg: &ClientConfig{}}
	assert.Nil(t, c.willMessage())

	c.cfg.WillTopic = "hydronom/v1/status/boat-01"
	c.cfg.WillPayload = []byte("offline")
	c.cfg.WillQoS = 1
	w := c.willMessage()
	require.NotNil(t, w)
	assert.Equal(t, byte(1), w.QoS)
}
