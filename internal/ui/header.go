package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/curatorhq/curator/internal/monitor"
)

// renderHeader renders the status bar.
func (m Model) renderHeader() string {
	styles := m.theme.Styles()
	bg := NewBgStyle(m.theme.Surface)
	sep := bg.Spaces(2)

	var parts []string

	parts = append(parts, bg.Render("curator", styles.Logo))

	// Connection indicator: two consecutive listing failures means offline
	if m.snapshot.Failures >= 2 {
		parts = append(parts, bg.Render("● OFFLINE", styles.DangerText))
	} else if m.snapshot.LastError != nil {
		parts = append(parts, bg.Render("● RETRYING", styles.WarningText))
	} else {
		parts = append(parts, bg.Render("● ON", styles.SuccessText))
	}

	// Counts of in-flight and failed marks
	moving, failed := m.countMarks()
	if moving > 0 {
		parts = append(parts,
			bg.Render("Moving:", styles.MutedText)+bg.Space()+
				bg.Render(fmt.Sprintf("%d", moving), styles.InfoText))
	}
	if failed > 0 {
		parts = append(parts,
			bg.Render("Failed:", styles.MutedText)+bg.Space()+
				bg.Render(fmt.Sprintf("%d", failed), styles.DangerText))
	}

	// Unseen notifications
	if m.notices != nil {
		if unseen := m.notices.Unseen(); unseen > 0 && m.userPrefs.Notifications {
			parts = append(parts, bg.Render(fmt.Sprintf("✉ %d", unseen), styles.WarningText))
		}
	}

	// Latest notice inline so completions are visible without switching views
	if m.notices != nil && m.userPrefs.Notifications {
		if latest, ok := m.notices.Latest(); ok && time.Since(latest.At) < 10*time.Second {
			style := styles.InfoText
			if latest.Severity == monitor.SeveritySuccess {
				style = styles.SuccessText
			} else if latest.Severity == monitor.SeverityError {
				style = styles.DangerText
			}
			parts = append(parts, bg.Render(truncate(latest.Text, 60), style))
		}
	}

	if timeStr := m.formatTimestamp(); timeStr != "" {
		parts = append(parts, bg.Render(timeStr, styles.MutedText))
	}

	return styles.Header.Width(m.width).Render(bg.Join(parts, sep))
}

// countMarks counts rows currently carrying in-flight and failed marks.
func (m Model) countMarks() (moving, failed int) {
	for _, row := range m.snapshot.Rows {
		switch row.State {
		case monitor.StateMoving, monitor.StateWorking, monitor.StateFollowup:
			moving++
		case monitor.StateFailed:
			failed++
		}
	}
	return
}

// formatTimestamp formats the last update time with a relative indicator.
func (m Model) formatTimestamp() string {
	if m.lastUpdated.IsZero() {
		return ""
	}

	timeSince := time.Since(m.lastUpdated)
	timeStr := m.lastUpdated.Format("15:04:05")

	if timeSince < time.Minute {
		timeStr += " (now)"
	} else if timeSince < time.Hour {
		timeStr += fmt.Sprintf(" (%dm ago)", int(timeSince.Minutes()))
	}

	return timeStr
}

// renderCommandBar renders the command hints bar.
func (m Model) renderCommandBar() string {
	styles := m.theme.Styles()
	bg := NewBgStyle(m.theme.Surface)

	type cmd struct{ key, desc string }
	var commands []cmd

	switch m.currentView {
	case ViewNotices:
		commands = []cmd{
			{"o", "Objects"},
			{"esc", "Back"},
		}
	default:
		commands = []cmd{
			{"Space", "Select"},
			{"m", "Move"},
			{"enter", "Open"},
			{"u", "Up"},
			{"r", "Refresh"},
			{"n", "Notices"},
			{"j/k", "Navigate"},
		}
	}

	// Global bindings come from the key map so the bar stays in sync with it.
	for _, binding := range m.keys.ShortHelp() {
		h := binding.Help()
		commands = append(commands, cmd{h.Key, h.Desc})
	}

	colon := bg.Sep(":")
	sep := bg.Spaces(2)

	segments := make([]string, 0, len(commands)+1)
	for _, c := range commands {
		segments = append(segments,
			bg.Render(c.key, styles.AccentText)+colon+bg.Render(c.desc, styles.MutedText))
	}

	segments = append(segments,
		bg.Render("T", styles.AccentText)+colon+bg.Render(m.theme.Name, styles.FaintText))

	return styles.Header.Width(m.width).Render(strings.Join(segments, sep))
}

// truncate truncates a string to max length with ellipsis.
func truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
