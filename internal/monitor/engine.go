package monitor

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/curatorhq/curator/internal/stacks"
)

const (
	defaultPollInterval      = 5 * time.Second
	failureBackoffMultiplier = 2
	defaultLedgerTTL         = 14 * 24 * time.Hour

	// offlineThreshold is how many consecutive poll failures are tolerated
	// before the user is told the server is unreachable.
	offlineThreshold = 2
)

// EngineConfig configures a reconciliation Engine.
type EngineConfig struct {
	Client   stacks.JobAPI
	Ledger   Ledger
	Notifier Notifier
	Display  DisplayList
	// Interval between poll ticks; zero uses defaultPollInterval. A failed
	// tick schedules the next one at Interval times failureBackoffMultiplier.
	Interval time.Duration
	// LedgerTTL bounds how long a never-completed ledger entry survives.
	// Zero uses defaultLedgerTTL; negative disables pruning.
	LedgerTTL time.Duration
}

// Engine keeps this client's view of server-side batch move jobs consistent.
// It owns the jobID to member-ids map and the active/complete id sets that
// mirror the last server poll; the server is authoritative for set membership,
// the client only for attribution labels and transient display marks.
type Engine struct {
	client   stacks.JobAPI
	ledger   Ledger
	notifier Notifier
	interval time.Duration
	ttl      time.Duration

	mu       sync.Mutex
	display  DisplayList
	members  map[string][]string
	active   map[string]struct{}
	complete map[string]struct{}
	// records holds the last-known record version per job: the time this
	// client learned about the job, or the server-reported completion time.
	records map[string]time.Time

	failures int

	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewEngine validates the configuration and returns an inactive Engine.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("job api client is required")
	}
	if cfg.Ledger == nil {
		return nil, fmt.Errorf("ledger is required")
	}
	if cfg.Notifier == nil {
		return nil, fmt.Errorf("notifier is required")
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	ttl := cfg.LedgerTTL
	if ttl == 0 {
		ttl = defaultLedgerTTL
	}
	return &Engine{
		client:   cfg.Client,
		ledger:   cfg.Ledger,
		notifier: cfg.Notifier,
		interval: interval,
		ttl:      ttl,
		display:  cfg.Display,
		members:  map[string][]string{},
		active:   map[string]struct{}{},
		complete: map[string]struct{}{},
		records:  map[string]time.Time{},
	}, nil
}

// Activate starts the poll loop. Calling it while a loop is already running is
// a no-op, so at most one poll request is ever outstanding.
func (e *Engine) Activate(ctx context.Context) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	e.running = true
	ectx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	done := make(chan struct{})
	e.done = done
	e.mu.Unlock()

	if e.ttl > 0 {
		if n, err := e.ledger.Prune(time.Now().Add(-e.ttl)); err != nil {
			log.Printf("ledger prune failed: %v", err)
		} else if n > 0 {
			log.Printf("pruned %d stale move record(s)", n)
		}
	}

	go func() {
		defer close(done)
		for {
			next := e.interval
			if err := e.tick(ectx); err != nil && ectx.Err() == nil {
				log.Printf("job poll failed: %v", err)
				next = e.interval * failureBackoffMultiplier
			}
			timer := time.NewTimer(next)
			select {
			case <-ectx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		}
	}()
}

// Deactivate cancels the pending poll timer and waits for the loop to exit.
func (e *Engine) Deactivate() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	cancel := e.cancel
	done := e.done
	e.mu.Unlock()

	cancel()
	<-done
}

// AddMove records a locally-initiated batch job. Members are marked as moving
// immediately, before the next poll confirms the job, and a ledger entry
// attributes the eventual completion to this client.
func (e *Engine) AddMove(jobID string, memberIDs []string, destinationLabel string) error {
	members := append([]string(nil), memberIDs...)

	e.mu.Lock()
	e.members[jobID] = members
	e.active[jobID] = struct{}{}
	e.records[jobID] = time.Now()
	e.markLocked(members, StateMoving)
	e.mu.Unlock()

	if err := e.ledger.Record(jobID, destinationLabel); err != nil {
		return fmt.Errorf("record move: %w", err)
	}
	return nil
}

// RefreshMarked re-applies the moving mark for every active job's members.
// Call it after the display list has been rebuilt and lost transient state.
func (e *Engine) RefreshMarked() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for jobID := range e.active {
		e.markLocked(e.members[jobID], StateMoving)
	}
}

// SetResultList rebinds the display collaborator.
func (e *Engine) SetResultList(display DisplayList) {
	e.mu.Lock()
	e.display = display
	e.mu.Unlock()
}

// tick runs one reconciliation pass. Mutation order matters: tombstone
// cleanup, then completion detection, then new-job initialization; the later
// steps assume the earlier ones already reconciled the authoritative sets.
func (e *Engine) tick(ctx context.Context) error {
	listing, err := e.client.ListJobs(ctx)
	if err != nil {
		e.reportFailure(err)
		return err
	}
	e.reportRecovery()

	serverActive := toSet(listing.Active)
	serverComplete := toSet(listing.Complete)

	e.mu.Lock()
	e.retireTombstonesLocked(serverActive, serverComplete)
	e.detectCompletionsLocked(listing, serverActive, serverComplete)
	e.active = serverActive
	e.complete = serverComplete
	fetch := e.uninitializedLocked(listing)
	e.mu.Unlock()

	if len(fetch) == 0 {
		return nil
	}
	// One batched request for every unknown job; never one call per job.
	details, err := e.client.JobDetails(ctx, fetch)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.initializeJobsLocked(details, serverComplete)
	e.mu.Unlock()
	return nil
}

// retireTombstonesLocked discards locally-completed jobs the server has
// forgotten entirely. The server will never report them again, so lingering
// marks and ledger entries must go now.
func (e *Engine) retireTombstonesLocked(serverActive, serverComplete map[string]struct{}) {
	for jobID := range e.complete {
		if _, ok := serverActive[jobID]; ok {
			continue
		}
		if _, ok := serverComplete[jobID]; ok {
			continue
		}
		e.markLocked(e.members[jobID], StateIdle)
		delete(e.members, jobID)
		delete(e.records, jobID)
		if err := e.ledger.Remove(jobID); err != nil {
			log.Printf("ledger remove %s failed: %v", jobID, err)
		}
	}
}

// detectCompletionsLocked handles jobs that were active locally but are no
// longer active on the server. Ledger membership gates the notification:
// moves initiated by other clients complete silently here.
func (e *Engine) detectCompletionsLocked(listing stacks.JobListResponse, serverActive, serverComplete map[string]struct{}) {
	completed := map[string]struct{}{}
	for jobID := range e.active {
		if _, ok := serverActive[jobID]; !ok {
			completed[jobID] = struct{}{}
		}
	}
	if len(completed) == 0 {
		return
	}

	// Apply in the order the server listed them; jobs the server dropped
	// outright follow in sorted order.
	ordered := make([]string, 0, len(completed))
	seen := map[string]struct{}{}
	for _, jobID := range listing.Complete {
		if _, ok := completed[jobID]; ok {
			ordered = append(ordered, jobID)
			seen[jobID] = struct{}{}
		}
	}
	var dropped []string
	for jobID := range completed {
		if _, ok := seen[jobID]; !ok {
			dropped = append(dropped, jobID)
		}
	}
	sort.Strings(dropped)
	ordered = append(ordered, dropped...)

	for _, jobID := range ordered {
		members := e.members[jobID]
		if label, ok := e.ledger.Lookup(jobID); ok {
			e.notifier.Notify(SeveritySuccess, completionMessage(len(members), label))
			if err := e.ledger.Remove(jobID); err != nil {
				log.Printf("ledger remove %s failed: %v", jobID, err)
			}
			// This client started the move, so the members have left the
			// container it is looking at.
			for _, id := range members {
				e.markOneLocked(id, StateIdle)
				e.removeLocked(id)
			}
		} else {
			e.markLocked(members, StateIdle)
		}
		if _, stillListed := serverComplete[jobID]; !stillListed {
			delete(e.members, jobID)
			delete(e.records, jobID)
		}
	}
}

// uninitializedLocked returns server-known job ids whose member lists have not
// been retrieved yet. A job with a member list is never re-initialized.
func (e *Engine) uninitializedLocked(listing stacks.JobListResponse) []string {
	var fetch []string
	for _, jobID := range listing.Active {
		if _, ok := e.members[jobID]; !ok {
			fetch = append(fetch, jobID)
		}
	}
	for _, jobID := range listing.Complete {
		if _, ok := e.members[jobID]; !ok {
			fetch = append(fetch, jobID)
		}
	}
	return fetch
}

// initializeJobsLocked stores freshly fetched member lists. Active jobs get
// their members marked; jobs that arrived already complete only trigger
// display cleanup when the server snapshot is not older than what this client
// already knows about the job.
func (e *Engine) initializeJobsLocked(details map[string]stacks.JobDetail, serverComplete map[string]struct{}) {
	for jobID, detail := range details {
		if _, ok := e.members[jobID]; ok {
			continue
		}
		members := append([]string(nil), detail.Moved...)
		e.members[jobID] = members

		if _, completed := serverComplete[jobID]; completed {
			finishedAt := detail.ParsedFinishedAt()
			if known, ok := e.records[jobID]; ok && !finishedAt.IsZero() && finishedAt.Before(known) {
				// Stale server snapshot; keep the newer local state.
				continue
			}
			e.markLocked(members, StateIdle)
			if !finishedAt.IsZero() {
				e.records[jobID] = finishedAt
			}
			continue
		}

		e.markLocked(members, StateMoving)
		e.records[jobID] = time.Now()
	}
}

func (e *Engine) markLocked(ids []string, state ItemState) {
	for _, id := range ids {
		e.markOneLocked(id, state)
	}
}

func (e *Engine) markOneLocked(id string, state ItemState) {
	if e.display == nil {
		return
	}
	if item := e.display.Item(id); item != nil {
		item.SetState(state)
	}
}

func (e *Engine) removeLocked(id string) {
	if e.display == nil {
		return
	}
	e.display.RemoveItem(id)
}

func (e *Engine) reportFailure(err error) {
	e.mu.Lock()
	e.failures++
	notify := e.failures == offlineThreshold
	e.mu.Unlock()
	if notify {
		e.notifier.Notify(SeverityError, fmt.Sprintf("repository server unreachable: %v", err))
	}
}

func (e *Engine) reportRecovery() {
	e.mu.Lock()
	recovered := e.failures >= offlineThreshold
	e.failures = 0
	e.mu.Unlock()
	if recovered {
		e.notifier.Notify(SeverityMessage, "repository server connection restored")
	}
}

func completionMessage(count int, label string) string {
	if count == 0 {
		return fmt.Sprintf("Move to %s finished", label)
	}
	noun := "objects"
	if count == 1 {
		noun = "object"
	}
	return fmt.Sprintf("Moved %d %s to %s", count, noun, label)
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
