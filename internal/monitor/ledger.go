package monitor

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Ledger records which in-flight batch jobs this client initiated, so their
// eventual completion can be attributed to this user. Entries are removed when
// the engine retires the job, or pruned once they exceed an age limit.
type Ledger interface {
	Record(jobID, label string) error
	Lookup(jobID string) (label string, ok bool)
	Remove(jobID string) error
	// Prune drops entries recorded before the cutoff and reports how many.
	Prune(olderThan time.Time) (int, error)
}

const ledgerSchemaVersion = 1

type ledgerEntry struct {
	Label      string    `json:"label"`
	RecordedAt time.Time `json:"recordedAt"`
}

type ledgerFile struct {
	Version int                    `json:"version"`
	Moves   map[string]ledgerEntry `json:"moves"`
}

// FileLedger persists entries as a JSON file shared by all curator processes
// of the same user. The file is re-read before every operation and written
// atomically, so concurrent processes observe each other's entries; which
// process surfaces a notification when several are polling is not coordinated.
type FileLedger struct {
	mu   sync.Mutex
	path string
}

// NewFileLedger creates the ledger's directory if needed.
func NewFileLedger(path string) (*FileLedger, error) {
	if path == "" {
		return nil, fmt.Errorf("ledger path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create ledger dir: %w", err)
	}
	return &FileLedger{path: path}, nil
}

func (l *FileLedger) Record(jobID, label string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	state, err := l.load()
	if err != nil {
		return err
	}
	state.Moves[jobID] = ledgerEntry{Label: label, RecordedAt: time.Now().UTC()}
	return l.save(state)
}

func (l *FileLedger) Lookup(jobID string) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	state, err := l.load()
	if err != nil {
		return "", false
	}
	entry, ok := state.Moves[jobID]
	return entry.Label, ok
}

func (l *FileLedger) Remove(jobID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	state, err := l.load()
	if err != nil {
		return err
	}
	if _, ok := state.Moves[jobID]; !ok {
		return nil
	}
	delete(state.Moves, jobID)
	return l.save(state)
}

func (l *FileLedger) Prune(olderThan time.Time) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	state, err := l.load()
	if err != nil {
		return 0, err
	}
	pruned := 0
	for jobID, entry := range state.Moves {
		if entry.RecordedAt.Before(olderThan) {
			delete(state.Moves, jobID)
			pruned++
		}
	}
	if pruned == 0 {
		return 0, nil
	}
	return pruned, l.save(state)
}

func (l *FileLedger) load() (ledgerFile, error) {
	state := ledgerFile{Version: ledgerSchemaVersion, Moves: map[string]ledgerEntry{}}
	data, err := os.ReadFile(l.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return state, nil
		}
		return state, fmt.Errorf("read ledger: %w", err)
	}
	if err := json.Unmarshal(data, &state); err != nil {
		return state, fmt.Errorf("parse ledger: %w", err)
	}
	if state.Moves == nil {
		state.Moves = map[string]ledgerEntry{}
	}
	return state, nil
}

func (l *FileLedger) save(state ledgerFile) error {
	state.Version = ledgerSchemaVersion
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}
	return writeFileAtomic(l.path, data, 0o644)
}

func writeFileAtomic(path string, data []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Chmod(mode); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	committed = true
	return nil
}

// MemoryLedger is an in-process Ledger for tests and ephemeral sessions.
type MemoryLedger struct {
	mu    sync.Mutex
	moves map[string]ledgerEntry
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{moves: map[string]ledgerEntry{}}
}

func (l *MemoryLedger) Record(jobID, label string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.moves[jobID] = ledgerEntry{Label: label, RecordedAt: time.Now().UTC()}
	return nil
}

func (l *MemoryLedger) Lookup(jobID string) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.moves[jobID]
	return entry.Label, ok
}

func (l *MemoryLedger) Remove(jobID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.moves, jobID)
	return nil
}

func (l *MemoryLedger) Prune(olderThan time.Time) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	pruned := 0
	for jobID, entry := range l.moves {
		if entry.RecordedAt.Before(olderThan) {
			delete(l.moves, jobID)
			pruned++
		}
	}
	return pruned, nil
}
