package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/curatorhq/curator/internal/monitor"
)

// renderObjects renders the object listing for the current container.
func (m Model) renderObjects() string {
	styles := m.theme.Styles()
	contentHeight := m.height - 2 // header + cmdbar
	if m.moveActive {
		contentHeight--
	}
	if contentHeight < 1 {
		contentHeight = 1
	}

	if len(m.snapshot.Rows) == 0 {
		var msg string
		if m.snapshot.LastError != nil {
			msg = styles.DangerText.Render("Listing unavailable: " + m.snapshot.LastError.Error())
		} else {
			msg = styles.MutedText.Render("No objects in this container")
		}
		return lipgloss.Place(m.width, contentHeight, lipgloss.Center, lipgloss.Center, msg)
	}

	var b strings.Builder
	b.WriteString(m.renderObjectsHeader())
	b.WriteString("\n")

	// Scroll window around the cursor
	visible := contentHeight - 1
	if visible < 1 {
		visible = 1
	}
	start := 0
	if m.selectedRow >= visible {
		start = m.selectedRow - visible + 1
	}
	end := start + visible
	if end > len(m.snapshot.Rows) {
		end = len(m.snapshot.Rows)
	}

	for i := start; i < end; i++ {
		b.WriteString(m.renderObjectRow(i))
		if i < end-1 {
			b.WriteString("\n")
		}
	}

	return b.String()
}

// renderObjectsHeader renders the listing header as a full-width strip.
func (m Model) renderObjectsHeader() string {
	styles := m.theme.Styles()
	bg := NewBgStyle(m.theme.Surface)
	title := m.container
	if title == "" {
		title = "(root)"
	}
	count := fmt.Sprintf("%d objects", len(m.snapshot.Rows))
	picked := len(m.pickedIDs())
	label := bg.Render(title, styles.AccentText.Bold(true)) + bg.Spaces(2) +
		bg.Render(count, styles.MutedText)
	if picked > 0 {
		label += bg.Spaces(2) + bg.Render(fmt.Sprintf("%d selected", picked), styles.WarningText)
	}
	return bg.FillLine(label, m.width)
}

// renderObjectRow renders one object line with selection and mark badges.
func (m Model) renderObjectRow(idx int) string {
	styles := m.theme.Styles()
	row := m.snapshot.Rows[idx]

	cursor := "  "
	if idx == m.selectedRow {
		cursor = styles.AccentText.Render("> ")
	}

	check := "[ ]"
	if m.picked[row.Object.ID] {
		check = "[x]"
	}

	title := row.Object.Title
	if title == "" {
		title = row.Object.ID
	}
	maxTitle := m.width - 30
	if maxTitle < 10 {
		maxTitle = 10
	}
	title = truncate(title, maxTitle)

	titleStyle := styles.Text
	if idx == m.selectedRow {
		titleStyle = styles.Selected
	}

	parts := []string{cursor + styles.FaintText.Render(check), titleStyle.Render(title)}

	if m.userPrefs.ShowKinds && row.Object.Kind != "" {
		parts = append(parts, styles.FaintText.Render(row.Object.Kind))
	}

	if badge := markBadge(row.State); badge != "" {
		parts = append(parts, styles.MarkStyle(string(row.State)).Render(badge))
	}

	return strings.Join(parts, " ")
}

// markBadge returns the badge label for a mark state, or "" for idle rows.
func markBadge(state monitor.ItemState) string {
	switch state {
	case monitor.StateMoving:
		return "MOVING"
	case monitor.StateWorking:
		return "WORKING"
	case monitor.StateFollowup:
		return "FINISHING"
	case monitor.StateFailed:
		return "FAILED"
	default:
		return ""
	}
}

// renderNotices renders the notification feed, newest first.
func (m Model) renderNotices() string {
	styles := m.theme.Styles()
	contentHeight := m.height - 2
	if contentHeight < 1 {
		contentHeight = 1
	}

	var notices []Notice
	if m.notices != nil {
		notices = m.notices.Recent()
	}
	if len(notices) == 0 {
		msg := styles.MutedText.Render("No notifications yet")
		return lipgloss.Place(m.width, contentHeight, lipgloss.Center, lipgloss.Center, msg)
	}

	var b strings.Builder
	shown := 0
	for i := len(notices) - 1; i >= 0 && shown < contentHeight; i-- {
		n := notices[i]
		var sevStyle lipgloss.Style
		switch n.Severity {
		case monitor.SeveritySuccess:
			sevStyle = styles.SuccessText
		case monitor.SeverityError:
			sevStyle = styles.DangerText
		default:
			sevStyle = styles.InfoText
		}
		b.WriteString(styles.FaintText.Render(n.At.Format("15:04:05")))
		b.WriteString(" ")
		b.WriteString(sevStyle.Render(n.Text))
		if shown < contentHeight-1 && i > 0 {
			b.WriteString("\n")
		}
		shown++
	}
	return b.String()
}
