package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

const defaultCheckInterval = 2 * time.Second

// CheckFunc issues one status probe against the server.
type CheckFunc func(ctx context.Context) (json.RawMessage, error)

// DonePredicate decides whether a probe response means the awaited condition
// holds. A returned error halts polling and is reported like a transport error.
type DonePredicate func(response json.RawMessage) (bool, error)

// StateMonitorConfig configures a StateMonitor.
type StateMonitorConfig struct {
	Check      CheckFunc
	Done       DonePredicate
	Interval   time.Duration // zero uses defaultCheckInterval
	OnComplete func(response json.RawMessage)
	OnError    func(err error)
}

// StateMonitor repeatedly issues a status check until the done predicate is
// satisfied, then invokes OnComplete exactly once. At most one check is in
// flight at a time; the next is issued only after the previous one returns.
// After Stop, OnComplete and OnError never fire, even for a response that was
// already in flight.
type StateMonitor struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// StartStateMonitor begins polling immediately and returns without blocking.
func StartStateMonitor(ctx context.Context, cfg StateMonitorConfig) (*StateMonitor, error) {
	if cfg.Check == nil {
		return nil, fmt.Errorf("check func is required")
	}
	if cfg.Done == nil {
		return nil, fmt.Errorf("done predicate is required")
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultCheckInterval
	}

	mctx, cancel := context.WithCancel(ctx)
	m := &StateMonitor{
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(m.done)
		defer cancel()
		for {
			response, err := cfg.Check(mctx)
			if mctx.Err() != nil {
				// Stopped while the check was in flight; discard the response.
				return
			}
			if err != nil {
				if cfg.OnError != nil {
					cfg.OnError(err)
				}
				return
			}
			ok, err := cfg.Done(response)
			if err != nil {
				if cfg.OnError != nil {
					cfg.OnError(err)
				}
				return
			}
			if ok {
				if cfg.OnComplete != nil {
					cfg.OnComplete(response)
				}
				return
			}

			timer := time.NewTimer(interval)
			select {
			case <-mctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		}
	}()

	return m, nil
}

// Stop halts polling. It is idempotent and safe to call at any time; no
// callback fires afterwards.
func (m *StateMonitor) Stop() {
	m.cancel()
}

// Done is closed once the monitor has halted for any reason.
func (m *StateMonitor) Done() <-chan struct{} {
	return m.done
}
