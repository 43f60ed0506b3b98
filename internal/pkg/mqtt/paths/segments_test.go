package paths

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hydronom-io/hydronom/internal/relay/core/model"
	"github.com/hydronom-io/hydronom/pkg/mqtt/topic"
)

func TestDownlink(t *testing.T) {
	s, ok := Downlink(model.KindCommand)
	assert.True(t, ok)
	assert.Equal(t, topic.SuffixCommand, s)

	s, ok = Downlink(model.KindMissionEvent)
	assert.True(t, ok)
	assert.Equal(t, topic.SuffixMission, s)

	_, ok = Downlink(model.KindTelemetry)
	assert.False(t, ok)
}
