package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ActionState names a phase of a single user-triggered operation.
type ActionState string

const (
	ActionIdle             ActionState = "idle"
	ActionConfirming       ActionState = "confirming"
	ActionWorking          ActionState = "working"
	ActionAwaitingFollowup ActionState = "awaiting_followup"
	ActionComplete         ActionState = "complete"
	ActionFailed           ActionState = "failed"
)

// ErrActionConsumed is returned when Execute is called on an Action that has
// already run. Retrying a terminal operation requires a fresh Action.
var ErrActionConsumed = errors.New("action already executed")

// WorkFunc issues the operation's work request.
type WorkFunc func(ctx context.Context) (json.RawMessage, error)

// Followup configures the optional post-work polling phase.
type Followup struct {
	Check    CheckFunc
	Done     DonePredicate
	Interval time.Duration
}

// ActionConfig enumerates everything an Action recognizes. Work and Notifier
// are required; the rest is optional.
type ActionConfig struct {
	// TargetID is the displayed object the operation acts on, if any.
	TargetID string
	// Confirm gates execution; returning false discards the operation.
	Confirm func() bool
	Work    WorkFunc
	// WorkDone validates the work response; a non-nil error fails the action.
	WorkDone func(response json.RawMessage) error
	Followup *Followup

	OnComplete func(response json.RawMessage)
	OnFailed   func(reason string)

	Display  DisplayList
	Notifier Notifier
}

// Action drives one operation through
// Idle -> (Confirming) -> Working -> (AwaitingFollowup) -> Complete | Failed.
// An Action is single-use: Execute consumes it.
type Action struct {
	cfg ActionConfig

	mu    sync.Mutex
	state ActionState
}

// NewAction validates the configuration and returns an idle Action.
func NewAction(cfg ActionConfig) (*Action, error) {
	if cfg.Work == nil {
		return nil, fmt.Errorf("work func is required")
	}
	if cfg.Notifier == nil {
		return nil, fmt.Errorf("notifier is required")
	}
	if cfg.Followup != nil {
		if cfg.Followup.Check == nil || cfg.Followup.Done == nil {
			return nil, fmt.Errorf("followup requires check func and done predicate")
		}
	}
	return &Action{cfg: cfg, state: ActionIdle}, nil
}

// State reports the current phase.
func (a *Action) State() ActionState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *Action) setState(s ActionState) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
}

// Execute runs the operation to a terminal state and blocks until done. A
// declined confirmation returns the Action to Idle without consuming it.
// Calling Execute on a consumed Action returns ErrActionConsumed.
func (a *Action) Execute(ctx context.Context) error {
	a.mu.Lock()
	if a.state != ActionIdle {
		a.mu.Unlock()
		return ErrActionConsumed
	}
	if a.cfg.Confirm != nil {
		a.state = ActionConfirming
	} else {
		a.state = ActionWorking
	}
	a.mu.Unlock()

	if a.cfg.Confirm != nil {
		if !a.cfg.Confirm() {
			a.setState(ActionIdle)
			return nil
		}
		a.setState(ActionWorking)
	}

	a.markTarget(StateWorking)

	response, err := a.cfg.Work(ctx)
	if err != nil {
		a.fail(err.Error())
		return nil
	}
	if a.cfg.WorkDone != nil {
		if err := a.cfg.WorkDone(response); err != nil {
			a.fail(err.Error())
			return nil
		}
	}

	if a.cfg.Followup == nil {
		a.complete(response)
		return nil
	}

	a.setState(ActionAwaitingFollowup)
	a.markTarget(StateFollowup)

	type outcome struct {
		response json.RawMessage
		err      error
	}
	result := make(chan outcome, 1)
	mon, err := StartStateMonitor(ctx, StateMonitorConfig{
		Check:    a.cfg.Followup.Check,
		Done:     a.cfg.Followup.Done,
		Interval: a.cfg.Followup.Interval,
		OnComplete: func(resp json.RawMessage) {
			result <- outcome{response: resp}
		},
		OnError: func(err error) {
			result <- outcome{err: err}
		},
	})
	if err != nil {
		a.fail(err.Error())
		return nil
	}

	select {
	case out := <-result:
		if out.err != nil {
			a.fail(out.err.Error())
			return nil
		}
		a.complete(out.response)
		return nil
	case <-ctx.Done():
		mon.Stop()
		a.fail(ctx.Err().Error())
		return nil
	}
}

func (a *Action) complete(response json.RawMessage) {
	a.setState(ActionComplete)
	a.markTarget(StateIdle)
	if a.cfg.OnComplete != nil {
		a.cfg.OnComplete(response)
	}
}

func (a *Action) fail(reason string) {
	a.setState(ActionFailed)
	a.markTarget(StateFailed)
	a.cfg.Notifier.Notify(SeverityError, reason)
	if a.cfg.OnFailed != nil {
		a.cfg.OnFailed(reason)
	}
}

func (a *Action) markTarget(state ItemState) {
	if a.cfg.Display == nil || a.cfg.TargetID == "" {
		return
	}
	if item := a.cfg.Display.Item(a.cfg.TargetID); item != nil {
		item.SetState(state)
	}
}
