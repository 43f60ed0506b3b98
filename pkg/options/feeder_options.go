package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*FeederOptions)(nil)

// FeederOptions configures the telemetry simulator.
type FeederOptions struct {
	VehicleID string `json:"vehicle" mapstructure:"vehicle"`
	Type      string `json:"type" mapstructure:"type"`

	// Rate is the publish frequency in Hz.
	Rate float64 `json:"rate" mapstructure:"rate"`

	Mode   string `json:"mode" mapstructure:"mode"`
	TaskID string `json:"task-id" mapstructure:"task-id"`

	StartLat float64 `json:"start-lat" mapstructure:"start-lat"`
	StartLon float64 `json:"start-lon" mapstructure:"start-lon"`
	StartSoC float64 `json:"start-soc" mapstructure:"start-soc"`

	// LowBattery is the state of charge the battery drains towards.
	// Zero disables the drain.
	LowBattery float64 `json:"low-battery" mapstructure:"low-battery"`

	// LeakAfter raises the leak flag once this much time has passed.
	// Zero never leaks.
	LeakAfter time.Duration `json:"leak-after" mapstructure:"leak-after"`
}

func NewFeederOptions() *FeederOptions {
	return &FeederOptions{
		VehicleID: "hydronom-boat-01",
		Type:      "boat",
		Rate:      5,
		Mode:      "MANUAL",
		StartLat:  41.025,
		StartLon:  28.85,
		StartSoC:  90,
	}
}

func (o *FeederOptions) Validate() []error {
	var errors []error

	if o.VehicleID == "" {
		errors = append(errors, fmt.Errorf("--feeder.vehicle must not be empty"))
	}
	if o.Type != "boat" && o.Type != "sub" {
		errors = append(errors, fmt.Errorf("--feeder.type must be 'boat' or 'sub', got %q", o.Type))
	}
	if o.Rate <= 0 || o.Rate > 100 {
		errors = append(errors, fmt.Errorf("--feeder.rate must be in (0, 100], got %v", o.Rate))
	}
	switch o.Mode {
	case "MANUAL", "AUTONOMOUS", "EMERGENCY":
	default:
		errors = append(errors, fmt.Errorf("--feeder.mode must be MANUAL, AUTONOMOUS or EMERGENCY, got %q", o.Mode))
	}
	if o.StartSoC < 0 || o.StartSoC > 100 {
		errors = append(errors, fmt.Errorf("--feeder.start-soc must be between 0 and 100"))
	}
	if o.LowBattery < 0 || o.LowBattery > 100 {
		errors = append(errors, fmt.Errorf("--feeder.low-battery must be between 0 and 100"))
	}
	if o.LeakAfter < 0 {
		errors = append(errors, fmt.Errorf("--feeder.leak-after must not be negative"))
	}

	return errors
}

func (o *FeederOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.VehicleID, "feeder.vehicle", o.VehicleID, "Vehicle id to simulate.")
	fs.StringVar(&o.Type, "feeder.type", o.Type, "Hull type: boat or sub.")
	fs.Float64Var(&o.Rate, "feeder.rate", o.Rate, "Telemetry messages per second.")
	fs.StringVar(&o.Mode, "feeder.mode", o.Mode, "Control mode reported in telemetry.")
	fs.StringVar(&o.TaskID, "feeder.task-id", o.TaskID, "Task id reported in telemetry.")
	fs.Float64Var(&o.StartLat, "feeder.start-lat", o.StartLat, "Initial latitude.")
	fs.Float64Var(&o.StartLon, "feeder.start-lon", o.StartLon, "Initial longitude.")
	fs.Float64Var(&o.StartSoC, "feeder.start-soc", o.StartSoC, "Initial battery state of charge in percent.")
	fs.Float64Var(&o.LowBattery, "feeder.low-battery", o.LowBattery, "Drain the battery towards this state of charge. 0 disables.")
	fs.DurationVar(&o.LeakAfter, "feeder.leak-after", o.LeakAfter, "Report a leak after this long. 0 disables.")
}
