package camera2

import (
	"context"

	"github.com/looplab/fsm"
)

const (
	StateIdle               = "idle"
	StateAwaitingPermission = "awaiting_permission"
	StateOpening            = "opening"
	StatePreviewing         = "previewing"
	StateCapturing          = "capturing"
	StateClosed             = "closed"
	StateDisabled           = "disabled"
)

const (
	evOpen              = "open"
	evRequestPermission = "request_permission"
	evGrant             = "grant"
	evDeny              = "deny"
	evPreview           = "preview"
	evCapture           = "capture"
	evClose             = "close"
)

func newStateMachine() *fsm.FSM {
	return fsm.NewFSM(
		StateIdle,
		fsm.Events{
			{Name: evOpen, Src: []string{StateIdle, StateClosed}, Dst: StateOpening},
			{Name: evRequestPermission, Src: []string{StateIdle, StateClosed}, Dst: StateAwaitingPermission},
			{Name: evGrant, Src: []string{StateAwaitingPermission}, Dst: StateOpening},
			{Name: evDeny, Src: []string{StateAwaitingPermission}, Dst: StateDisabled},
			{Name: evPreview, Src: []string{StateOpening, StateCapturing}, Dst: StatePreviewing},
			{Name: evCapture, Src: []string{StatePreviewing}, Dst: StateCapturing},
			{Name: evClose, Src: []string{StateAwaitingPermission, StateOpening, StatePreviewing, StateCapturing}, Dst: StateClosed},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				logger.Debugf("%s: %s -> %s (%s)", Name, e.Src, e.Dst, e.Event)
			},
		},
	)
}
