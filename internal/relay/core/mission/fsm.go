package mission

import (
	"context"
	"errors"
	"fmt"

	"github.com/looplab/fsm"

	fsmutil "github.com/hydronom-io/hydronom/internal/pkg/util/fsm"
	"github.com/hydronom-io/hydronom/internal/relay/core"
	"github.com/hydronom-io/hydronom/internal/relay/core/model"
)

// Lifecycle actions. Incoming action names are uppercased before matching.
const (
	ActionStart    = "START"
	ActionPause    = "PAUSE"
	ActionResume   = "RESUME"
	ActionAbort    = "ABORT"
	ActionComplete = "COMPLETE"
)

var (
	draft     = string(model.MissionDraft)
	active    = string(model.MissionActive)
	paused    = string(model.MissionPaused)
	aborted   = string(model.MissionAborted)
	completed = string(model.MissionCompleted)
)

var transitions = fsm.Events{
	{Name: ActionStart, Src: []string{draft, paused}, Dst: active},
	{Name: ActionPause, Src: []string{active}, Dst: paused},
	{Name: ActionResume, Src: []string{paused}, Dst: active},
	{Name: ActionAbort, Src: []string{draft, active, paused}, Dst: aborted},
	{Name: ActionComplete, Src: []string{active}, Dst: completed},
}

// KnownAction reports whether action names a lifecycle action.
func KnownAction(action string) bool {
	for _, e := range transitions {
		if e.Name == action {
			return true
		}
	}
	return false
}

// machine drives one transition of one mission.
type machine struct {
	*fsm.FSM

	mission *model.Mission
	// holder is the vehicle's other ACTIVE or PAUSED mission, if any.
	holder string
}

func newMachine(m *model.Mission, holder string) *machine {
	x := &machine{mission: m, holder: holder}

	callbacks := fsm.Callbacks{
		// Guards (before_...)
		"before_" + ActionStart: fsmutil.WrapGuard(x.guardVehicleFree),

		// Side effects (enter_...)
		"enter_state": fsmutil.WrapEvent(x.enterState),
	}

	x.FSM = fsm.NewFSM(string(m.State), transitions, callbacks)
	return x
}

// guardVehicleFree cancels START while another mission holds the vehicle.
func (x *machine) guardVehicleFree(_ context.Context, _ *fsm.Event) error {
	if x.holder != "" && x.holder != x.mission.TaskID {
		return fmt.Errorf("%w: vehicle %s already has mission %s in progress", core.ErrConflict, x.mission.VehicleID, x.holder)
	}
	return nil
}

func (x *machine) enterState(_ context.Context, e *fsm.Event) error {
	x.mission.State = model.MissionState(e.Dst)
	return nil
}

// fire runs action and maps looplab errors onto the core taxonomy.
func (x *machine) fire(ctx context.Context, action string) error {
	err := x.Event(ctx, action)
	if err == nil {
		return nil
	}

	var invalid fsm.InvalidEventError
	if errors.As(err, &invalid) {
		return fmt.Errorf("%w: cannot %s a %s mission", core.ErrInvalidTransition, action, invalid.State)
	}
	return fsmutil.Cause(err)
}
