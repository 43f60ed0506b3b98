// Package paths routes relay records onto MQTT topic segments.
package paths

import (
	"github.com/hydronom-io/hydronom/internal/relay/core/model"
	"github.com/hydronom-io/hydronom/pkg/mqtt/topic"
)

// downlink maps the record kinds vehicles must see to their topic segment.
// Telemetry is never sent back down.
var downlink = map[model.RecordKind]string{
	model.KindCommand:      topic.SuffixCommand,
	model.KindMission:      topic.SuffixMission,
	model.KindMissionEvent: topic.SuffixMission,
}

// Downlink returns the segment a record of kind is published under.
func Downlink(kind model.RecordKind) (string, bool) {
	s, ok := downlink[kind]
	return s, ok
}
