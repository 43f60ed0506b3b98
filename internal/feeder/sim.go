package feeder

import (
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/hydronom-io/hydronom/internal/relay/core/model"
)

const (
	neutralPwm  = 1450
	minPwm      = 1100
	maxPwm      = 1900
	maxSpeedMps = 2.5
	maxDepthM   = 30.0

	// socDrainPerStep is the state of charge lost per published sample.
	socDrainPerStep = 0.02
)

type SimOptions struct {
	VehicleID  string
	Type       model.VehicleType
	Mode       model.Mode
	TaskID     string
	Lat, Lon   float64
	HeadingDeg float64
	SoC        float64
	LowBattery float64
	LeakAfter  time.Duration
}

// Sim is a crude kinematic model of one vehicle. It is safe for
// concurrent use: commands arrive on the MQTT goroutine while the
// publisher steps it.
type Sim struct {
	opts SimOptions

	mu        sync.Mutex
	lat, lon  float64
	heading   float64
	speed     float64
	soc       float64
	rudder    float64
	leftPwm   int
	rightPwm  int
	ballast   float64
	depth     float64
	leak      bool
	elapsed   time.Duration
	lastApply model.CommandType
}

func NewSim(opts SimOptions) *Sim {
	return &Sim{
		opts:     opts,
		lat:      opts.Lat,
		lon:      opts.Lon,
		heading:  math.Mod(opts.HeadingDeg+360, 360),
		speed:    0.8,
		soc:      opts.SoC,
		leftPwm:  neutralPwm,
		rightPwm: neutralPwm,
	}
}

// Step advances the model by dt.
func (s *Sim) Step(dt time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.elapsed += dt
	if s.opts.LeakAfter > 0 && s.elapsed > s.opts.LeakAfter {
		s.leak = true
	}
	if s.opts.LowBattery > 0 && s.soc > s.opts.LowBattery {
		s.soc = math.Max(s.opts.LowBattery, s.soc-socDrainPerStep)
	}

	// Differential thrust and rudder both turn the hull.
	s.heading += float64(s.rightPwm-s.leftPwm)*0.0002 + s.rudder*0.01
	s.heading = math.Mod(math.Mod(s.heading, 360)+360, 360)
	s.speed = clamp(0.5+float64(s.leftPwm+s.rightPwm-2900)*0.001, 0, maxSpeedMps)

	secs := dt.Seconds()
	rad := s.heading * math.Pi / 180
	s.lat += math.Cos(rad) * s.speed * secs * 1e-5
	s.lon += math.Sin(rad) * s.speed * secs * 1e-5

	if s.opts.Type == model.VehicleSub {
		target := s.ballast / 100 * maxDepthM
		s.depth += (target - s.depth) * math.Min(1, 0.5*secs)
	}
}

// Snapshot renders the current state stamped with now.
func (s *Sim) Snapshot(now time.Time) model.TelemetrySnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	wp := 0
	snap := model.TelemetrySnapshot{
		Timestamp: now.UTC(),
		VehicleID: s.opts.VehicleID,
		Vehicle:   model.VehicleInfo{Type: s.opts.Type},
		Pose: model.Pose{
			Lat:        s.lat,
			Lon:        s.lon,
			HeadingDeg: s.heading,
			SpeedMps:   s.speed,
		},
		DepthM:    s.depth,
		IMU:       model.IMU{RollDeg: 0.2, PitchDeg: -1.3, YawDeg: s.heading},
		Thrusters: model.Thrusters{LeftPwm: s.leftPwm, RightPwm: s.rightPwm},
		RudderDeg: s.rudder,
		Ballast:   model.Ballast{LevelPct: s.ballast},
		Battery:   model.Battery{Voltage: 12 + s.soc/100*3, SocPct: s.soc},
		Leak:      s.leak,
		TempC:     24,
		Mission:   model.MissionRef{Mode: s.opts.Mode, TaskID: s.opts.TaskID},
	}
	if s.opts.TaskID != "" {
		snap.Mission.WaypointIndex = &wp
	}
	return snap
}

// Apply executes a command from the relay. Unknown types are ignored.
func (s *Sim) Apply(cmd model.Command) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch cmd.Type {
	case model.CommandSetThrusters:
		var p model.ThrusterPayload
		if err := json.Unmarshal(cmd.Payload, &p); err != nil {
			return fmt.Errorf("%s payload: %w", cmd.Type, err)
		}
		s.leftPwm = clampPwm(p.LeftPwm)
		s.rightPwm = clampPwm(p.RightPwm)
	case model.CommandSetRudder:
		var p model.RudderPayload
		if err := json.Unmarshal(cmd.Payload, &p); err != nil {
			return fmt.Errorf("%s payload: %w", cmd.Type, err)
		}
		s.rudder = clamp(p.RudderDeg, -45, 45)
	case model.CommandSetBallast:
		var p model.BallastPayload
		if err := json.Unmarshal(cmd.Payload, &p); err != nil {
			return fmt.Errorf("%s payload: %w", cmd.Type, err)
		}
		s.ballast = clamp(p.LevelPct, 0, 100)
	case model.CommandEmergencyStop:
		s.leftPwm, s.rightPwm = neutralPwm, neutralPwm
		s.rudder = 0
	default:
		return nil
	}
	s.lastApply = cmd.Type
	return nil
}

// LastApplied returns the type of the last command that changed state.
func (s *Sim) LastApplied() model.CommandType {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastApply
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func clampPwm(v int) int {
	return min(max(v, minPwm), maxPwm)
}
