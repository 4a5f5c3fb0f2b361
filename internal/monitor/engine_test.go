package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/curatorhq/curator/internal/stacks"
)

func newTestEngine(t *testing.T, api *fakeJobAPI, display *fakeDisplay, notifier *fakeNotifier, ledger Ledger) *Engine {
	t.Helper()
	if ledger == nil {
		ledger = NewMemoryLedger()
	}
	e, err := NewEngine(EngineConfig{
		Client:   api,
		Ledger:   ledger,
		Notifier: notifier,
		Display:  display,
	})
	if err != nil {
		t.Fatalf("NewEngine returned error: %v", err)
	}
	return e
}

func (e *Engine) localSets() (active, complete map[string]struct{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	active = make(map[string]struct{}, len(e.active))
	for id := range e.active {
		active[id] = struct{}{}
	}
	complete = make(map[string]struct{}, len(e.complete))
	for id := range e.complete {
		complete[id] = struct{}{}
	}
	return active, complete
}

func assertConverged(t *testing.T, e *Engine, listing stacks.JobListResponse) {
	t.Helper()
	active, complete := e.localSets()
	if len(active) != len(listing.Active) {
		t.Fatalf("local active = %v, want %v", active, listing.Active)
	}
	for _, id := range listing.Active {
		if _, ok := active[id]; !ok {
			t.Fatalf("local active missing %s", id)
		}
	}
	if len(complete) != len(listing.Complete) {
		t.Fatalf("local complete = %v, want %v", complete, listing.Complete)
	}
	for _, id := range listing.Complete {
		if _, ok := complete[id]; !ok {
			t.Fatalf("local complete missing %s", id)
		}
	}
}

// Scenario: a move initiated by this client is observed active, completes, and
// is eventually forgotten by the server.
func TestEngine_LocalMoveLifecycle(t *testing.T) {
	t.Parallel()

	api := &fakeJobAPI{details: map[string]stacks.JobDetail{
		"j1": {Moved: []string{"a", "b"}},
	}}
	display := newFakeDisplay("a", "b", "c")
	notifier := &fakeNotifier{}
	ledger := NewMemoryLedger()
	e := newTestEngine(t, api, display, notifier, ledger)
	ctx := context.Background()

	// Poll 1: j1 active on the server.
	poll1 := stacks.JobListResponse{Active: []string{"j1"}}
	api.push(poll1)
	if err := e.tick(ctx); err != nil {
		t.Fatalf("tick 1 returned error: %v", err)
	}
	assertConverged(t, e, poll1)
	if len(api.detailCalls) != 1 || len(api.detailCalls[0]) != 1 || api.detailCalls[0][0] != "j1" {
		t.Fatalf("detail calls = %v, want one batched call for j1", api.detailCalls)
	}

	// The client initiated this move: members marked immediately, ledger written.
	if err := e.AddMove("j1", []string{"a", "b"}, "Folder X"); err != nil {
		t.Fatalf("AddMove returned error: %v", err)
	}
	if got := display.item("a").last(); got != StateMoving {
		t.Fatalf("item a state = %q, want %q before any further poll", got, StateMoving)
	}
	if got := display.item("b").last(); got != StateMoving {
		t.Fatalf("item b state = %q, want %q", got, StateMoving)
	}

	// Poll 2: the job completed.
	poll2 := stacks.JobListResponse{Complete: []string{"j1"}}
	api.push(poll2)
	if err := e.tick(ctx); err != nil {
		t.Fatalf("tick 2 returned error: %v", err)
	}
	assertConverged(t, e, poll2)

	successes := notifier.bySeverity(SeveritySuccess)
	if len(successes) != 1 {
		t.Fatalf("success notifications = %#v, want exactly one", successes)
	}
	if successes[0].text != "Moved 2 objects to Folder X" {
		t.Fatalf("notification text = %q", successes[0].text)
	}
	removed := display.removedIDs()
	if len(removed) != 2 {
		t.Fatalf("removed items = %v, want a and b", removed)
	}

	// Poll 3: the server forgot the job; it is tombstoned for good.
	poll3 := stacks.JobListResponse{}
	api.push(poll3)
	if err := e.tick(ctx); err != nil {
		t.Fatalf("tick 3 returned error: %v", err)
	}
	assertConverged(t, e, poll3)

	if _, ok := ledger.Lookup("j1"); ok {
		t.Fatal("ledger still holds j1 after retirement")
	}

	// Poll 4: the job never reappears and is never notified again.
	api.push(stacks.JobListResponse{})
	if err := e.tick(ctx); err != nil {
		t.Fatalf("tick 4 returned error: %v", err)
	}
	if got := len(notifier.bySeverity(SeveritySuccess)); got != 1 {
		t.Fatalf("success notifications after tombstone = %d, want still 1", got)
	}
	e.mu.Lock()
	_, tracked := e.members["j1"]
	e.mu.Unlock()
	if tracked {
		t.Fatal("members of tombstoned job still tracked")
	}
}

// Scenario: a move initiated by another client completes silently but its
// members are still unmarked.
func TestEngine_ForeignMoveCompletesSilently(t *testing.T) {
	t.Parallel()

	api := &fakeJobAPI{details: map[string]stacks.JobDetail{
		"j2": {Moved: []string{"c"}},
	}}
	display := newFakeDisplay("c")
	notifier := &fakeNotifier{}
	e := newTestEngine(t, api, display, notifier, nil)
	ctx := context.Background()

	api.push(stacks.JobListResponse{Active: []string{"j2"}})
	if err := e.tick(ctx); err != nil {
		t.Fatalf("tick 1 returned error: %v", err)
	}
	if got := display.item("c").last(); got != StateMoving {
		t.Fatalf("item c state = %q, want %q (foreign job marks members)", got, StateMoving)
	}

	api.push(stacks.JobListResponse{Complete: []string{"j2"}})
	if err := e.tick(ctx); err != nil {
		t.Fatalf("tick 2 returned error: %v", err)
	}
	if got := len(notifier.bySeverity(SeveritySuccess)); got != 0 {
		t.Fatalf("success notifications = %d, want 0 for a foreign job", got)
	}
	if got := display.item("c").last(); got != StateIdle {
		t.Fatalf("item c state = %q, want %q after completion", got, StateIdle)
	}
	if got := display.removedIDs(); len(got) != 0 {
		t.Fatalf("removed items = %v, want none for a foreign job", got)
	}
}

func TestEngine_UnknownFinishedJobIsNoOp(t *testing.T) {
	t.Parallel()

	api := &fakeJobAPI{details: map[string]stacks.JobDetail{}}
	display := newFakeDisplay("a")
	notifier := &fakeNotifier{}
	e := newTestEngine(t, api, display, notifier, nil)

	// A job completes between two polls without this client ever seeing it
	// active or knowing its members.
	api.push(stacks.JobListResponse{Complete: []string{"ghost"}})
	if err := e.tick(context.Background()); err != nil {
		t.Fatalf("tick returned error: %v", err)
	}
	if got := len(notifier.all()); got != 0 {
		t.Fatalf("notifications = %d, want 0", got)
	}
	if got := display.item("a").last(); got != "" {
		t.Fatalf("item a was touched: %q", got)
	}
}

func TestEngine_NeverReinitializesKnownJob(t *testing.T) {
	t.Parallel()

	api := &fakeJobAPI{details: map[string]stacks.JobDetail{
		"j1": {Moved: []string{"a"}},
	}}
	display := newFakeDisplay("a")
	notifier := &fakeNotifier{}
	e := newTestEngine(t, api, display, notifier, nil)
	ctx := context.Background()

	listing := stacks.JobListResponse{Active: []string{"j1"}}
	api.push(listing)
	if err := e.tick(ctx); err != nil {
		t.Fatalf("tick 1 returned error: %v", err)
	}
	api.push(listing)
	if err := e.tick(ctx); err != nil {
		t.Fatalf("tick 2 returned error: %v", err)
	}
	if got := len(api.detailCalls); got != 1 {
		t.Fatalf("detail calls = %d, want 1 (job must not be re-initialized)", got)
	}
}

func TestEngine_StaleSnapshotKeepsNewerLocalState(t *testing.T) {
	t.Parallel()

	past := time.Now().Add(-time.Hour).UTC().Format(time.RFC3339)
	api := &fakeJobAPI{details: map[string]stacks.JobDetail{
		"j3": {Moved: []string{"d"}, FinishedAt: past},
	}}
	display := newFakeDisplay("d")
	notifier := &fakeNotifier{}
	e := newTestEngine(t, api, display, notifier, nil)

	// The client already has a newer record for j3 than the server snapshot.
	e.mu.Lock()
	e.records["j3"] = time.Now()
	e.mu.Unlock()
	display.item("d").SetState(StateMoving)

	api.push(stacks.JobListResponse{Complete: []string{"j3"}})
	if err := e.tick(context.Background()); err != nil {
		t.Fatalf("tick returned error: %v", err)
	}
	if got := display.item("d").last(); got != StateMoving {
		t.Fatalf("item d state = %q, want %q (stale snapshot must not clean up)", got, StateMoving)
	}
}

func TestEngine_RefreshMarkedReappliesMovingState(t *testing.T) {
	t.Parallel()

	api := &fakeJobAPI{}
	display := newFakeDisplay("a", "b")
	notifier := &fakeNotifier{}
	e := newTestEngine(t, api, display, notifier, nil)

	if err := e.AddMove("j1", []string{"a", "b"}, "Folder X"); err != nil {
		t.Fatalf("AddMove returned error: %v", err)
	}

	// The view is rebuilt: transient marks are gone.
	rebuilt := newFakeDisplay("a", "b")
	e.SetResultList(rebuilt)
	e.RefreshMarked()

	if got := rebuilt.item("a").last(); got != StateMoving {
		t.Fatalf("item a state = %q, want %q after refresh", got, StateMoving)
	}
	if got := rebuilt.item("b").last(); got != StateMoving {
		t.Fatalf("item b state = %q, want %q after refresh", got, StateMoving)
	}
}

func TestEngine_ActivateIsIdempotent(t *testing.T) {
	t.Parallel()

	api := &fakeJobAPI{}
	api.push(stacks.JobListResponse{})
	notifier := &fakeNotifier{}
	ledger := NewMemoryLedger()
	e, err := NewEngine(EngineConfig{
		Client:   api,
		Ledger:   ledger,
		Notifier: notifier,
		Interval: time.Hour, // only the initial tick of each loop would fire
	})
	if err != nil {
		t.Fatalf("NewEngine returned error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	e.Activate(ctx)
	e.Activate(ctx)
	t.Cleanup(e.Deactivate)

	deadline := time.After(time.Second)
	for {
		api.mu.Lock()
		calls := api.listCalls
		api.mu.Unlock()
		if calls >= 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("poll loop never ran")
		case <-time.After(5 * time.Millisecond):
		}
	}

	// A second loop would issue a second initial poll almost immediately.
	time.Sleep(50 * time.Millisecond)
	api.mu.Lock()
	calls := api.listCalls
	api.mu.Unlock()
	if calls != 1 {
		t.Fatalf("list calls = %d, want 1 (single poll loop)", calls)
	}
}

func TestEngine_DeactivateStopsPolling(t *testing.T) {
	t.Parallel()

	api := &fakeJobAPI{}
	api.push(stacks.JobListResponse{})
	notifier := &fakeNotifier{}
	e, err := NewEngine(EngineConfig{
		Client:   api,
		Ledger:   NewMemoryLedger(),
		Notifier: notifier,
		Interval: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewEngine returned error: %v", err)
	}

	e.Activate(context.Background())
	time.Sleep(20 * time.Millisecond)
	e.Deactivate()

	api.mu.Lock()
	after := api.listCalls
	api.mu.Unlock()
	time.Sleep(20 * time.Millisecond)
	api.mu.Lock()
	final := api.listCalls
	api.mu.Unlock()
	if final != after {
		t.Fatalf("list calls grew from %d to %d after Deactivate", after, final)
	}

	// A deactivated engine can be activated again.
	e.Activate(context.Background())
	t.Cleanup(e.Deactivate)
}

func TestEngine_PollFailureBacksOffAndRecovers(t *testing.T) {
	t.Parallel()

	api := &fakeJobAPI{}
	notifier := &fakeNotifier{}
	e := newTestEngine(t, api, newFakeDisplay(), notifier, nil)
	ctx := context.Background()

	api.pushErr(errors.New("connection refused"))
	if err := e.tick(ctx); err == nil {
		t.Fatal("tick succeeded, want transport error")
	}
	if got := len(notifier.bySeverity(SeverityError)); got != 0 {
		t.Fatalf("error notifications after one failure = %d, want 0", got)
	}

	api.pushErr(errors.New("connection refused"))
	if err := e.tick(ctx); err == nil {
		t.Fatal("tick succeeded, want transport error")
	}
	if got := len(notifier.bySeverity(SeverityError)); got != 1 {
		t.Fatalf("error notifications after two failures = %d, want 1", got)
	}

	// Further failures do not repeat the offline notification.
	api.pushErr(errors.New("connection refused"))
	_ = e.tick(ctx)
	if got := len(notifier.bySeverity(SeverityError)); got != 1 {
		t.Fatalf("error notifications after three failures = %d, want still 1", got)
	}

	api.push(stacks.JobListResponse{})
	if err := e.tick(ctx); err != nil {
		t.Fatalf("tick returned error after recovery: %v", err)
	}
	msgs := notifier.bySeverity(SeverityMessage)
	if len(msgs) != 1 {
		t.Fatalf("recovery notifications = %#v, want one", msgs)
	}
}

func TestEngine_FailedPollDelaysNextTick(t *testing.T) {
	t.Parallel()

	api := &fakeJobAPI{}
	api.pushErr(errors.New("connection refused"))
	api.pushErr(errors.New("connection refused"))
	api.push(stacks.JobListResponse{})

	interval := 25 * time.Millisecond
	e, err := NewEngine(EngineConfig{
		Client:   api,
		Ledger:   NewMemoryLedger(),
		Notifier: &fakeNotifier{},
		Interval: interval,
	})
	if err != nil {
		t.Fatalf("NewEngine returned error: %v", err)
	}

	e.Activate(context.Background())
	t.Cleanup(e.Deactivate)

	// Two failed polls, one success, and at least one poll after that: the
	// loop must survive repeated failures without stopping.
	deadline := time.Now().Add(2 * time.Second)
	for len(api.times()) < 4 {
		if time.Now().After(deadline) {
			t.Fatalf("poll loop stalled after %d calls", len(api.times()))
		}
		time.Sleep(time.Millisecond)
	}

	times := api.times()
	for i := 0; i < 2; i++ {
		if gap := times[i+1].Sub(times[i]); gap < failureBackoffMultiplier*interval {
			t.Fatalf("delay after failed poll %d = %v, want at least %v",
				i+1, gap, failureBackoffMultiplier*interval)
		}
	}
	if gap := times[3].Sub(times[2]); gap < interval {
		t.Fatalf("delay after successful poll = %v, want at least %v", gap, interval)
	}
}

func TestCompletionMessage(t *testing.T) {
	tests := []struct {
		count int
		label string
		want  string
	}{
		{2, "Folder X", "Moved 2 objects to Folder X"},
		{1, "Archive", "Moved 1 object to Archive"},
		{0, "Archive", "Move to Archive finished"},
	}
	for _, tt := range tests {
		if got := completionMessage(tt.count, tt.label); got != tt.want {
			t.Errorf("completionMessage(%d, %q) = %q, want %q", tt.count, tt.label, got, tt.want)
		}
	}
}
