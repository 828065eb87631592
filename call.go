package layerz

import (
	"context"
	"log/slog"

	"github.com/looplab/fsm"
)

// Call states of a single wrapped invocation.
const (
	StateIdle            = "idle"
	StateContextResolved = "context_resolved"
	StateSkipped         = "skipped"
	StateLayerStarted    = "layer_started"
	StateExecuting       = "executing"
	StateErrored         = "errored"
	StateCompleted       = "completed"
	StateLayerStopped    = "layer_stopped"
)

const (
	eventResolve  = "resolve"
	eventSkip     = "skip"
	eventStart    = "start"
	eventExecute  = "execute"
	eventFail     = "fail"
	eventComplete = "complete"
	eventStop     = "stop"
)

var callEvents = fsm.Events{
	{Name: eventResolve, Src: []string{StateIdle}, Dst: StateContextResolved},
	{Name: eventSkip, Src: []string{StateContextResolved}, Dst: StateSkipped},
	{Name: eventStart, Src: []string{StateContextResolved}, Dst: StateLayerStarted},
	{Name: eventExecute, Src: []string{StateSkipped, StateLayerStarted}, Dst: StateExecuting},
	{Name: eventFail, Src: []string{StateExecuting}, Dst: StateErrored},
	{Name: eventComplete, Src: []string{StateExecuting}, Dst: StateCompleted},
	{Name: eventStop, Src: []string{StateErrored, StateCompleted}, Dst: StateLayerStopped},
}

// callState tracks one wrapped call through its lifecycle. Every path,
// including a panic in the wrapped call, ends in StateLayerStopped.
type callState struct {
	machine *fsm.FSM
	path    []string
	logger  *slog.Logger
}

func newCallState(logger *slog.Logger) *callState {
	c := &callState{path: []string{StateIdle}, logger: logger}
	c.machine = fsm.NewFSM(StateIdle, callEvents, fsm.Callbacks{
		"enter_state": func(_ context.Context, e *fsm.Event) {
			c.path = append(c.path, e.Dst)
		},
	})
	return c
}

// fire applies event. Transition faults are instrumentation-internal and
// never reach the caller. The request context is not passed on so a
// cancelled request still records its terminal state.
func (c *callState) fire(event string) {
	if err := c.machine.Event(context.Background(), event); err != nil {
		c.logger.Debug("call state transition failed", "event", event, "state", c.machine.Current(), "error", err)
	}
}

// Current returns the current state.
func (c *callState) Current() string {
	return c.machine.Current()
}

// Path returns every state visited, starting at StateIdle.
func (c *callState) Path() []string {
	return c.path
}
