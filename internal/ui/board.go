package ui

import (
	"sync"
	"time"

	"github.com/curatorhq/curator/internal/monitor"
	"github.com/curatorhq/curator/internal/stacks"
)

// Row is one displayed object plus its transient operation mark.
type Row struct {
	Object stacks.Object
	State  monitor.ItemState
}

// BoardSnapshot is a point-in-time copy of the board for rendering.
type BoardSnapshot struct {
	Container string
	Rows      []Row
	LastError error
	Failures  int
	Updated   time.Time
}

// boardRow implements monitor.Item with its own lock so marks can be applied
// without holding the board lock.
type boardRow struct {
	mu     sync.Mutex
	object stacks.Object
	state  monitor.ItemState
}

func (r *boardRow) SetState(state monitor.ItemState) {
	r.mu.Lock()
	r.state = state
	r.mu.Unlock()
}

func (r *boardRow) snapshot() Row {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Row{Object: r.object, State: r.state}
}

// Board holds the visible object listing and the marks the monitor applies
// to it. It is safe for concurrent use: the reconciliation engine marks and
// removes rows from its own goroutine while the UI renders snapshots.
type Board struct {
	mu        sync.RWMutex
	container string
	order     []string
	rows      map[string]*boardRow
	lastError error
	failures  int
	updated   time.Time
}

// NewBoard creates an empty board.
func NewBoard() *Board {
	return &Board{rows: make(map[string]*boardRow)}
}

// Item implements monitor.DisplayList.
func (b *Board) Item(id string) monitor.Item {
	b.mu.RLock()
	row := b.rows[id]
	b.mu.RUnlock()
	if row == nil {
		return nil
	}
	return row
}

// RemoveItem implements monitor.DisplayList. The row stays hidden until the
// next authoritative listing replaces the board contents.
func (b *Board) RemoveItem(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.rows[id]; !ok {
		return
	}
	delete(b.rows, id)
	for i, existing := range b.order {
		if existing == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}

// SetObjects replaces the board contents with a fresh listing. Existing marks
// are dropped; the caller re-applies in-flight marks via the engine.
func (b *Board) SetObjects(container string, objects []stacks.Object) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.container = container
	b.order = b.order[:0]
	b.rows = make(map[string]*boardRow, len(objects))
	for _, obj := range objects {
		b.order = append(b.order, obj.ID)
		b.rows[obj.ID] = &boardRow{object: obj, state: monitor.StateIdle}
	}
	b.lastError = nil
	b.failures = 0
	b.updated = time.Now()
}

// SetError records a failed listing fetch without touching the rows.
func (b *Board) SetError(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastError = err
	b.failures++
}

// Container returns the container whose objects are currently shown.
func (b *Board) Container() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.container
}

// Snapshot returns a copy of the current board state.
func (b *Board) Snapshot() BoardSnapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()

	rows := make([]Row, 0, len(b.order))
	for _, id := range b.order {
		if row := b.rows[id]; row != nil {
			rows = append(rows, row.snapshot())
		}
	}
	return BoardSnapshot{
		Container: b.container,
		Rows:      rows,
		LastError: b.lastError,
		Failures:  b.failures,
		Updated:   b.updated,
	}
}
