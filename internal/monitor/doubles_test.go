package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/curatorhq/curator/internal/stacks"
)

// fakeItem records every state applied to it.
type fakeItem struct {
	mu     sync.Mutex
	states []ItemState
}

func (i *fakeItem) SetState(state ItemState) {
	i.mu.Lock()
	i.states = append(i.states, state)
	i.mu.Unlock()
}

func (i *fakeItem) last() ItemState {
	i.mu.Lock()
	defer i.mu.Unlock()
	if len(i.states) == 0 {
		return ""
	}
	return i.states[len(i.states)-1]
}

// fakeDisplay is an in-memory display list.
type fakeDisplay struct {
	mu      sync.Mutex
	items   map[string]*fakeItem
	removed []string
}

func newFakeDisplay(ids ...string) *fakeDisplay {
	d := &fakeDisplay{items: map[string]*fakeItem{}}
	for _, id := range ids {
		d.items[id] = &fakeItem{}
	}
	return d
}

func (d *fakeDisplay) Item(id string) Item {
	d.mu.Lock()
	defer d.mu.Unlock()
	item, ok := d.items[id]
	if !ok {
		return nil
	}
	return item
}

func (d *fakeDisplay) RemoveItem(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.items, id)
	d.removed = append(d.removed, id)
}

func (d *fakeDisplay) item(id string) *fakeItem {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.items[id]
}

func (d *fakeDisplay) removedIDs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.removed...)
}

type notice struct {
	severity Severity
	text     string
}

// fakeNotifier collects every posted notification.
type fakeNotifier struct {
	mu      sync.Mutex
	notices []notice
}

func (n *fakeNotifier) Notify(severity Severity, text string) {
	n.mu.Lock()
	n.notices = append(n.notices, notice{severity: severity, text: text})
	n.mu.Unlock()
}

func (n *fakeNotifier) all() []notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notice(nil), n.notices...)
}

func (n *fakeNotifier) bySeverity(severity Severity) []notice {
	var out []notice
	for _, nt := range n.all() {
		if nt.severity == severity {
			out = append(out, nt)
		}
	}
	return out
}

// fakeJobAPI serves scripted poll responses.
type fakeJobAPI struct {
	mu          sync.Mutex
	listings    []stacks.JobListResponse
	listErrs    []error
	listCalls   int
	listTimes   []time.Time
	details     map[string]stacks.JobDetail
	detailErr   error
	detailCalls [][]string
}

func (f *fakeJobAPI) push(listing stacks.JobListResponse) {
	f.mu.Lock()
	f.listings = append(f.listings, listing)
	f.listErrs = append(f.listErrs, nil)
	f.mu.Unlock()
}

func (f *fakeJobAPI) pushErr(err error) {
	f.mu.Lock()
	f.listings = append(f.listings, stacks.JobListResponse{})
	f.listErrs = append(f.listErrs, err)
	f.mu.Unlock()
}

func (f *fakeJobAPI) ListJobs(ctx context.Context) (stacks.JobListResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.listCalls
	f.listCalls++
	f.listTimes = append(f.listTimes, time.Now())
	if idx >= len(f.listings) {
		// Repeat the last scripted response.
		idx = len(f.listings) - 1
	}
	if idx < 0 {
		return stacks.JobListResponse{}, nil
	}
	return f.listings[idx], f.listErrs[idx]
}

func (f *fakeJobAPI) times() []time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Time(nil), f.listTimes...)
}

func (f *fakeJobAPI) JobDetails(ctx context.Context, jobIDs []string) (map[string]stacks.JobDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detailCalls = append(f.detailCalls, append([]string(nil), jobIDs...))
	if f.detailErr != nil {
		return nil, f.detailErr
	}
	out := map[string]stacks.JobDetail{}
	for _, id := range jobIDs {
		if detail, ok := f.details[id]; ok {
			out[id] = detail
		}
	}
	return out, nil
}
