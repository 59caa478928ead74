package review

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/nhle/mailtriage/internal/store"
	"github.com/nhle/mailtriage/internal/theme"
)

// Item wraps a classified message so it can be used in a bubbles/list.
type Item struct {
	store.ClassifiedMessage
}

// FilterValue returns the string used for fuzzy filtering.
func (i Item) FilterValue() string {
	return i.MessageRecord.Sender + " " + i.MessageRecord.Subject
}

// Title returns the subject line.
func (i Item) Title() string { return i.MessageRecord.Subject }

// Description returns a short summary line for the list.
func (i Item) Description() string {
	parts := []string{
		string(i.Verdict.Label),
		fmt.Sprintf("%.2f", i.Verdict.ConfidenceCalibrated),
		string(i.Verdict.Source),
		i.MessageRecord.Sender,
	}
	return strings.Join(parts, " | ")
}

// Delegate implements list.ItemDelegate for rendering pending verdicts.
type Delegate struct{}

// Height returns the number of lines each item takes.
func (d Delegate) Height() int { return 1 }

// Spacing returns the number of blank lines between items.
func (d Delegate) Spacing() int { return 0 }

// Update handles per-item messages (unused).
func (d Delegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd {
	return nil
}

// Render draws a single list row.
func (d Delegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	it, ok := item.(Item)
	if !ok {
		return
	}
	msg := it.MessageRecord
	v := it.Verdict

	label := theme.LabelStyle(string(v.Label)).Render(string(v.Label))
	conf := theme.ConfidenceStyle(v.ConfidenceCalibrated).Render(fmt.Sprintf("%.2f", v.ConfidenceCalibrated))
	src := theme.SourceStyle(string(v.Source)).Render(sourceBadge(string(v.Source)))
	when := theme.DimStyle.Render(humanize.Time(msg.ReceivedAt))

	sender := msg.Sender
	if msg.SenderName != "" {
		sender = msg.SenderName
	}

	width := m.Width()
	if width <= 0 {
		width = 100
	}
	prefix := lipgloss.JoinHorizontal(lipgloss.Top, label, " ", conf, " ", src, " ")
	remaining := width - lipgloss.Width(prefix) - lipgloss.Width(when) - 4
	text := clip(sender+": "+msg.Subject, remaining)

	line := prefix + text + "  " + when
	if index == m.Index() {
		line = theme.SelectedItemStyle.Render(line)
	} else {
		line = theme.ListItemStyle.Render(line)
	}
	fmt.Fprint(w, line)
}

func sourceBadge(source string) string {
	switch source {
	case "rule":
		return "RUL"
	case "pattern":
		return "PAT"
	case "oracle":
		return "ORC"
	default:
		return "???"
	}
}

// clip shortens s to at most n display columns.
func clip(s string, n int) string {
	if n <= 3 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
