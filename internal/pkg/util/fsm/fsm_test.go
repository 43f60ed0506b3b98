package fsm

import (
	"context"
	"errors"
	"testing"

	"github.com/looplab/fsm"
	"github.com/stretchr/testify/assert"
)

func TestWrapGuardCancels(t *testing.T) {
	errBusy := errors.New("busy")

	f := fsm.NewFSM("closed",
		fsm.Events{{Name: "open", Src: []string{"closed"}, Dst: "open"}},
		fsm.Callbacks{
			"before_open": WrapGuard(func(_ context.Context, _ *fsm.Event) error { return errBusy }),
		},
	)

	err := f.Event(context.Background(), "open")
	assert.ErrorIs(t, Cause(err), errBusy)
	assert.Equal(t, "closed", f.Current())
}

func TestWrapEventPassesThrough(t *testing.T) {
	var entered bool
	f := fsm.NewFSM("closed",
		fsm.Events{{Name: "open", Src: []string{"closed"}, Dst: "open"}},
		fsm.Callbacks{
			"enter_open": WrapEvent(func(_ context.Context, _ *fsm.Event) error {
				entered = true
				return nil
			}),
		},
	)

	assert.NoError(t, f.Event(context.Background(), "open"))
	assert.True(t, entered)
	assert.Equal(t, "open", f.Current())
}

func TestCauseLeavesOtherErrors(t *testing.T) {
	err := fsm.InvalidEventError{Event: "open", State: "open"}
	assert.Equal(t, error(err), Cause(err))
}
