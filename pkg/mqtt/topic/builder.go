package topic

import (
	"fmt"
	"strings"
)

// Standard topic segments shared by the relay and the vehicles.
// Changing these values breaks compatibility with deployed vehicles.
const (
	// SuffixTelemetry carries vehicle snapshots (Vehicle -> Relay).
	// Structure: {root}/telemetry/{vehicleID}
	SuffixTelemetry = "telemetry"

	// SuffixCommand carries accepted commands (Relay -> Vehicle).
	// Structure: {root}/command/{vehicleID}
	SuffixCommand = "command"

	// SuffixMission carries mission definitions and transitions (Relay -> Vehicle).
	// Structure: {root}/mission/{vehicleID}
	SuffixMission = "mission"
)

// TopicBuilder encapsulates the logic for constructing MQTT topic strings.
type TopicBuilder struct {
	// root is the base namespace for all topics (e.g. "hydronom/v1").
	root string
}

// NewTopicBuilder creates a new instance of TopicBuilder with the specified root namespace.
func NewTopicBuilder(root string) *TopicBuilder {
	return &TopicBuilder{root: strings.TrimSuffix(root, "/")}
}

// Telemetry returns the topic a vehicle publishes its snapshots to.
func (b *TopicBuilder) Telemetry(vehicleID string) string {
	return b.build(SuffixTelemetry, vehicleID)
}

// TelemetryWildcard matches the telemetry of every vehicle.
// Result: {root}/telemetry/+
func (b *TopicBuilder) TelemetryWildcard() string {
	return b.build(SuffixTelemetry, Wildcard)
}

// Command returns the topic string for sending commands to a specific vehicle.
func (b *TopicBuilder) Command(vehicleID string) string {
	return b.build(SuffixCommand, vehicleID)
}

// For builds {root}/{suffix}/{vehicleID} for an arbitrary segment.
func (b *TopicBuilder) For(suffix, vehicleID string) string {
	return b.build(suffix, vehicleID)
}

// Shared wraps filter in an MQTT v5 shared subscription for group.
// An empty group returns filter unchanged.
func Shared(group, filter string) string {
	if group == "" {
		return filter
	}
	return fmt.Sprintf("$share/%s/%s", group, filter)
}

// VehicleID extracts the vehicle segment from a topic built with suffix.
// It reports false when the topic does not belong to this root and suffix.
func (b *TopicBuilder) VehicleID(suffix, topic string) (string, bool) {
	prefix := b.root + "/" + suffix + "/"
	id, ok := strings.CutPrefix(topic, prefix)
	if !ok || id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}

// build constructs {root}/{suffix}/{identifier}.
func (b *TopicBuilder) build(suffix, id string) string {
	return fmt.Sprintf("%s/%s/%s", b.root, suffix, id)
}
