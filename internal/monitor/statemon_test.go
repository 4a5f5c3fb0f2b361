package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func waitClosed(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("monitor did not halt in time")
	}
}

func TestStateMonitor_CompletesOnFirstResponse(t *testing.T) {
	t.Parallel()

	var checks, completions atomic.Int32
	m, err := StartStateMonitor(context.Background(), StateMonitorConfig{
		Check: func(ctx context.Context) (json.RawMessage, error) {
			checks.Add(1)
			return json.RawMessage(`{"done":true}`), nil
		},
		Done: func(resp json.RawMessage) (bool, error) {
			return true, nil
		},
		Interval: time.Hour, // must never be waited on
		OnComplete: func(resp json.RawMessage) {
			completions.Add(1)
		},
		OnError: func(err error) {
			t.Errorf("OnError fired: %v", err)
		},
	})
	if err != nil {
		t.Fatalf("StartStateMonitor returned error: %v", err)
	}
	waitClosed(t, m.Done())

	if got := checks.Load(); got != 1 {
		t.Fatalf("checks = %d, want 1", got)
	}
	if got := completions.Load(); got != 1 {
		t.Fatalf("completions = %d, want 1", got)
	}
}

func TestStateMonitor_PollsUntilDone(t *testing.T) {
	t.Parallel()

	var checks atomic.Int32
	var final json.RawMessage
	m, err := StartStateMonitor(context.Background(), StateMonitorConfig{
		Check: func(ctx context.Context) (json.RawMessage, error) {
			n := checks.Add(1)
			if n < 3 {
				return json.RawMessage(`{"done":false}`), nil
			}
			return json.RawMessage(`{"done":true}`), nil
		},
		Done: func(resp json.RawMessage) (bool, error) {
			var payload struct {
				Done bool `json:"done"`
			}
			if err := json.Unmarshal(resp, &payload); err != nil {
				return false, err
			}
			return payload.Done, nil
		},
		Interval: time.Millisecond,
		OnComplete: func(resp json.RawMessage) {
			final = resp
		},
	})
	if err != nil {
		t.Fatalf("StartStateMonitor returned error: %v", err)
	}
	waitClosed(t, m.Done())

	if got := checks.Load(); got != 3 {
		t.Fatalf("checks = %d, want 3", got)
	}
	if string(final) != `{"done":true}` {
		t.Fatalf("final response = %s", final)
	}
}

func TestStateMonitor_TransportErrorHaltsPolling(t *testing.T) {
	t.Parallel()

	var checks, failures atomic.Int32
	m, err := StartStateMonitor(context.Background(), StateMonitorConfig{
		Check: func(ctx context.Context) (json.RawMessage, error) {
			checks.Add(1)
			return nil, errors.New("connection refused")
		},
		Done: func(resp json.RawMessage) (bool, error) { return false, nil },
		OnComplete: func(resp json.RawMessage) {
			t.Error("OnComplete fired after transport error")
		},
		OnError: func(err error) {
			failures.Add(1)
		},
	})
	if err != nil {
		t.Fatalf("StartStateMonitor returned error: %v", err)
	}
	waitClosed(t, m.Done())

	if got := checks.Load(); got != 1 {
		t.Fatalf("checks = %d, want 1 (no retry after fatal error)", got)
	}
	if got := failures.Load(); got != 1 {
		t.Fatalf("OnError invocations = %d, want 1", got)
	}
}

func TestStateMonitor_PredicateErrorReportsOnce(t *testing.T) {
	t.Parallel()

	var failures atomic.Int32
	m, err := StartStateMonitor(context.Background(), StateMonitorConfig{
		Check: func(ctx context.Context) (json.RawMessage, error) {
			return json.RawMessage(`not json`), nil
		},
		Done: func(resp json.RawMessage) (bool, error) {
			return false, errors.New("malformed status payload")
		},
		OnError: func(err error) {
			failures.Add(1)
		},
	})
	if err != nil {
		t.Fatalf("StartStateMonitor returned error: %v", err)
	}
	waitClosed(t, m.Done())

	if got := failures.Load(); got != 1 {
		t.Fatalf("OnError invocations = %d, want 1", got)
	}
}

func TestStateMonitor_StopDiscardsInFlightResponse(t *testing.T) {
	t.Parallel()

	entered := make(chan struct{})
	release := make(chan struct{})
	m, err := StartStateMonitor(context.Background(), StateMonitorConfig{
		Check: func(ctx context.Context) (json.RawMessage, error) {
			close(entered)
			<-release
			return json.RawMessage(`{"done":true}`), nil
		},
		Done: func(resp json.RawMessage) (bool, error) { return true, nil },
		OnComplete: func(resp json.RawMessage) {
			t.Error("OnComplete fired after Stop")
		},
		OnError: func(err error) {
			t.Errorf("OnError fired after Stop: %v", err)
		},
	})
	if err != nil {
		t.Fatalf("StartStateMonitor returned error: %v", err)
	}

	<-entered
	m.Stop()
	m.Stop() // idempotent
	close(release)
	waitClosed(t, m.Done())
}

func TestStateMonitor_RequiresCheckAndPredicate(t *testing.T) {
	t.Parallel()

	if _, err := StartStateMonitor(context.Background(), StateMonitorConfig{
		Done: func(json.RawMessage) (bool, error) { return true, nil },
	}); err == nil {
		t.Fatal("StartStateMonitor accepted missing check func")
	}
	if _, err := StartStateMonitor(context.Background(), StateMonitorConfig{
		Check: func(context.Context) (json.RawMessage, error) { return nil, nil },
	}); err == nil {
		t.Fatal("StartStateMonitor accepted missing done predicate")
	}
}
