// Package ui provides the Bubble Tea terminal console for curator.
package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/curatorhq/curator/internal/config"
	"github.com/curatorhq/curator/internal/monitor"
	"github.com/curatorhq/curator/internal/prefs"
	"github.com/curatorhq/curator/internal/stacks"
)

// View represents the current active view.
type View int

const (
	ViewObjects View = iota
	ViewNotices
)

// Options configures the UI.
type Options struct {
	Context   context.Context
	Client    *stacks.Client
	Engine    *monitor.Engine
	Board     *Board
	Notices   *Notices
	Config    config.Config
	PollTick  time.Duration
	ThemeName string
	PrefsPath string
	Prefs     prefs.Prefs
}

// Model is the root application state for Bubble Tea.
type Model struct {
	// Collaborators
	ctx     context.Context
	client  *stacks.Client
	engine  *monitor.Engine
	board   *Board
	notices *Notices
	config  config.Config

	prefsPath string
	userPrefs prefs.Prefs
	pollTick  time.Duration

	// UI state
	theme       Theme
	keys        keyMap
	currentView View
	width       int
	height      int
	ready       bool
	showHelp    bool

	// Objects state
	container   string
	parents     []string
	selectedRow int
	picked      map[string]bool

	// Move input
	moveActive bool
	moveInput  textinput.Model

	// Data state
	snapshot    BoardSnapshot
	lastUpdated time.Time
}

// New creates a new Bubble Tea model.
func New(opts Options) Model {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}

	pollTick := opts.PollTick
	if pollTick == 0 {
		pollTick = 2 * time.Second
	}

	themeName := opts.ThemeName
	if themeName == "" {
		themeName = opts.Prefs.Theme
	}

	prefsPath := opts.PrefsPath
	if prefsPath == "" {
		prefsPath = prefs.DefaultPath()
	}

	input := textinput.New()
	input.Placeholder = "destination container id"
	input.CharLimit = 128

	return Model{
		ctx:         ctx,
		client:      opts.Client,
		engine:      opts.Engine,
		board:       opts.Board,
		notices:     opts.Notices,
		config:      opts.Config,
		prefsPath:   prefsPath,
		userPrefs:   opts.Prefs,
		pollTick:    pollTick,
		theme:       GetTheme(themeName),
		keys:        DefaultKeyMap(),
		currentView: ViewObjects,
		container:   opts.Config.Container,
		picked:      make(map[string]bool),
		moveInput:   input,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		tea.EnterAltScreen,
		tickCmd(m.pollTick),
	}
	if m.client != nil {
		cmds = append(cmds, fetchObjectsCmd(m.ctx, m.client, m.container))
	}
	if m.board != nil {
		cmds = append(cmds, fetchBoardCmd(m.board))
	}
	return tea.Batch(cmds...)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		return m, nil

	case tickMsg:
		return m.handleTick()

	case boardMsg:
		m.snapshot = BoardSnapshot(msg)
		m.lastUpdated = time.Now()
		m.clampSelection()
		return m, nil

	case objectsMsg:
		if msg.err != nil {
			if m.board != nil {
				m.board.SetError(msg.err)
			}
		} else if m.board != nil {
			m.board.SetObjects(msg.container, msg.objects)
			if m.engine != nil {
				m.engine.RefreshMarked()
			}
		}
		if m.board != nil {
			return m, fetchBoardCmd(m.board)
		}
		return m, nil

	case moveDoneMsg:
		if msg.err != nil {
			if m.notices != nil {
				m.notices.Notify(monitor.SeverityError, fmt.Sprintf("Move failed: %v", msg.err))
			}
			return m, nil
		}
		m.picked = make(map[string]bool)
		if m.board != nil {
			return m, fetchBoardCmd(m.board)
		}
		return m, nil
	}

	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	if m.showHelp {
		return m.renderHelp()
	}

	return m.renderMain()
}

// handleKey processes keyboard input.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.showHelp {
		// Any key closes help
		m.showHelp = false
		return m, nil
	}

	if m.moveActive {
		return m.handleMoveKey(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.showHelp = true
		return m, nil

	case key.Matches(msg, m.keys.CycleTheme):
		m.theme = GetTheme(NextTheme(m.theme.Name))
		if m.prefsPath != "" {
			saved := m.userPrefs
			saved.Theme = m.theme.Name
			m.userPrefs = saved
			_ = prefs.Save(m.prefsPath, saved)
		}
		return m, nil

	case key.Matches(msg, m.keys.ViewObjects), key.Matches(msg, m.keys.Escape):
		m.currentView = ViewObjects
		return m, nil

	case key.Matches(msg, m.keys.ViewNotices):
		m.currentView = ViewNotices
		if m.notices != nil {
			m.notices.MarkSeen()
		}
		return m, nil

	case key.Matches(msg, m.keys.Refresh):
		if m.client != nil {
			return m, fetchObjectsCmd(m.ctx, m.client, m.container)
		}
		return m, nil
	}

	if m.currentView == ViewObjects {
		return m.handleObjectsKey(msg)
	}
	return m, nil
}

// handleObjectsKey processes keyboard input for the objects view.
func (m Model) handleObjectsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	rows := m.snapshot.Rows
	rowCount := len(rows)

	switch {
	case key.Matches(msg, m.keys.Down):
		if m.selectedRow < rowCount-1 {
			m.selectedRow++
		}
	case key.Matches(msg, m.keys.Up):
		if m.selectedRow > 0 {
			m.selectedRow--
		}
	case key.Matches(msg, m.keys.Top):
		m.selectedRow = 0
	case key.Matches(msg, m.keys.Bottom):
		if rowCount > 0 {
			m.selectedRow = rowCount - 1
		}

	case key.Matches(msg, m.keys.ToggleSelect):
		if row := m.selectedObject(); row != nil {
			m.picked[row.Object.ID] = !m.picked[row.Object.ID]
		}

	case key.Matches(msg, m.keys.Move):
		ids := m.pickedIDs()
		if len(ids) == 0 {
			if row := m.selectedObject(); row != nil {
				m.picked[row.Object.ID] = true
			}
		}
		if len(m.pickedIDs()) > 0 {
			m.moveActive = true
			m.moveInput.SetValue("")
			m.moveInput.Focus()
			return m, textinput.Blink
		}

	case key.Matches(msg, m.keys.Enter):
		if row := m.selectedObject(); row != nil && row.Object.Kind == "container" {
			m.parents = append(m.parents, m.container)
			m.container = row.Object.ID
			m.selectedRow = 0
			m.picked = make(map[string]bool)
			if m.client != nil {
				return m, fetchObjectsCmd(m.ctx, m.client, m.container)
			}
		}

	case key.Matches(msg, m.keys.Back):
		if len(m.parents) > 0 {
			m.container = m.parents[len(m.parents)-1]
			m.parents = m.parents[:len(m.parents)-1]
			m.selectedRow = 0
			m.picked = make(map[string]bool)
			if m.client != nil {
				return m, fetchObjectsCmd(m.ctx, m.client, m.container)
			}
		}
	}

	return m, nil
}

// handleMoveKey processes keyboard input while the destination prompt is open.
func (m Model) handleMoveKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Escape):
		m.moveActive = false
		m.moveInput.Blur()
		return m, nil

	case key.Matches(msg, m.keys.Confirm):
		dest := strings.TrimSpace(m.moveInput.Value())
		m.moveActive = false
		m.moveInput.Blur()
		if dest == "" {
			return m, nil
		}
		ids := m.pickedIDs()
		if len(ids) == 0 {
			return m, nil
		}
		return m, submitMoveCmd(m.ctx, m.client, m.engine, dest, m.destinationLabel(dest), ids)
	}

	var cmd tea.Cmd
	m.moveInput, cmd = m.moveInput.Update(msg)
	return m, cmd
}

// handleTick processes the polling tick.
func (m Model) handleTick() (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	if m.board != nil {
		cmds = append(cmds, fetchBoardCmd(m.board))
	}
	if m.client != nil {
		cmds = append(cmds, fetchObjectsCmd(m.ctx, m.client, m.container))
	}
	cmds = append(cmds, tickCmd(m.pollTick))

	return m, tea.Batch(cmds...)
}

// selectedObject returns the row under the cursor, or nil.
func (m *Model) selectedObject() *Row {
	if m.selectedRow < 0 || m.selectedRow >= len(m.snapshot.Rows) {
		return nil
	}
	return &m.snapshot.Rows[m.selectedRow]
}

// destinationLabel resolves a destination container id to its title for the
// completion notification. Falls back to the raw id when the destination is
// not in the current listing.
func (m *Model) destinationLabel(dest string) string {
	for _, row := range m.snapshot.Rows {
		if row.Object.ID == dest && row.Object.Title != "" {
			return row.Object.Title
		}
	}
	return dest
}

// pickedIDs returns the ids currently marked for a move.
func (m *Model) pickedIDs() []string {
	ids := make([]string, 0, len(m.picked))
	for _, row := range m.snapshot.Rows {
		if m.picked[row.Object.ID] {
			ids = append(ids, row.Object.ID)
		}
	}
	return ids
}

// clampSelection keeps the cursor inside the row range after refreshes.
func (m *Model) clampSelection() {
	if len(m.snapshot.Rows) == 0 {
		m.selectedRow = 0
		return
	}
	if m.selectedRow >= len(m.snapshot.Rows) {
		m.selectedRow = len(m.snapshot.Rows) - 1
	}
}

// renderMain renders the full UI.
func (m Model) renderMain() string {
	var b strings.Builder

	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.renderCommandBar())
	b.WriteString("\n")

	if m.moveActive {
		b.WriteString(m.renderMovePrompt())
		b.WriteString("\n")
	}

	switch m.currentView {
	case ViewNotices:
		b.WriteString(m.renderNotices())
	default:
		b.WriteString(m.renderObjects())
	}

	return b.String()
}

// renderMovePrompt renders the destination input line.
func (m Model) renderMovePrompt() string {
	styles := m.theme.Styles()
	count := len(m.pickedIDs())
	label := fmt.Sprintf("Move %d object(s) to: ", count)
	return styles.AccentText.Render(label) + m.moveInput.View()
}

// Messages

type tickMsg time.Time

type boardMsg BoardSnapshot

type objectsMsg struct {
	container string
	objects   []stacks.Object
	err       error
}

type moveDoneMsg struct {
	err error
}

// Commands

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func fetchBoardCmd(board *Board) tea.Cmd {
	return func() tea.Msg {
		return boardMsg(board.Snapshot())
	}
}

func fetchObjectsCmd(ctx context.Context, client *stacks.Client, container string) tea.Cmd {
	return func() tea.Msg {
		objects, err := client.ListObjects(ctx, container)
		return objectsMsg{container: container, objects: objects, err: err}
	}
}

func submitMoveCmd(ctx context.Context, client *stacks.Client, engine *monitor.Engine, dest, label string, ids []string) tea.Cmd {
	return func() tea.Msg {
		jobID, err := client.SubmitMove(ctx, dest, ids)
		if err != nil {
			return moveDoneMsg{err: err}
		}
		if engine != nil {
			if err := engine.AddMove(jobID, ids, label); err != nil {
				return moveDoneMsg{err: err}
			}
		}
		return moveDoneMsg{}
	}
}

// Run starts the Bubble Tea program.
func Run(opts Options) error {
	m := New(opts)
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err := p.Run()
	return err
}
