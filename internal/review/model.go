// Package review is the interactive terminal screen for confirming or
// overriding pending verdicts.
package review

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/nhle/mailtriage/internal/feedback"
	"github.com/nhle/mailtriage/internal/keys"
	"github.com/nhle/mailtriage/internal/model"
	"github.com/nhle/mailtriage/internal/store"
	"github.com/nhle/mailtriage/internal/theme"
)

// Source lists classified messages.
type Source interface {
	ListClassified(ctx context.Context, filter store.VerdictFilter) ([]store.ClassifiedMessage, error)
}

// Decider records a reviewer decision.
type Decider interface {
	Record(ctx context.Context, in feedback.Input) (*model.Decision, error)
}

// PendingLoadedMsg is sent when pending verdicts have been read from the store.
type PendingLoadedMsg struct {
	Items []store.ClassifiedMessage
	Err   error
}

// DecisionRecordedMsg is sent after a decision write finishes.
type DecisionRecordedMsg struct {
	MessageID string
	Label     model.Label
	Err       error
}

// sortModes defines the orderings cycled by Tab.
var sortModes = []string{
	"confidence",
	"received",
	"sender",
}

// Model is the review screen.
type Model struct {
	ctx     context.Context
	source  Source
	decider Decider
	filter  store.VerdictFilter

	list       list.Model
	keys       *keys.KeyMap
	help       help.Model
	sortIndex  int
	showDetail bool
	status     string
	err        error
	width      int
	height     int

	decided map[model.Label]int
	skipped int
}

// New creates a review screen over the pending verdicts matched by filter.
// Statuses in filter are always narrowed to pending.
func New(
	ctx context.Context,
	src Source,
	dec Decider,
	filter store.VerdictFilter,
	width, height int,
) Model {
	filter.Statuses = []model.MessageStatus{model.StatusPending}

	l := list.New([]list.Item{}, Delegate{}, width, max(height-4, 1))
	l.Title = "Pending review"
	l.SetShowStatusBar(true)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(true)
	l.Styles.Title = theme.HeaderStyle

	return Model{
		ctx:     ctx,
		source:  src,
		decider: dec,
		filter:  filter,
		list:    l,
		keys:    keys.DefaultKeyMap(),
		help:    help.New(),
		width:   width,
		height:  height,
		decided: make(map[model.Label]int),
	}
}

// Init returns a command that loads the pending verdicts.
func (m Model) Init() tea.Cmd {
	return m.load()
}

// load reads pending verdicts from the store.
func (m Model) load() tea.Cmd {
	ctx, src, filter := m.ctx, m.source, m.filter
	return func() tea.Msg {
		items, err := src.ListClassified(ctx, filter)
		return PendingLoadedMsg{Items: items, Err: err}
	}
}

// Update handles messages for the review screen.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case PendingLoadedMsg:
		if msg.Err != nil {
			m.err = fmt.Errorf("loading pending verdicts: %w", msg.Err)
			return m, nil
		}
		m.err = nil
		items := msg.Items
		sortItems(items, sortModes[m.sortIndex])
		listItems := make([]list.Item, len(items))
		for i, cm := range items {
			listItems[i] = Item{ClassifiedMessage: cm}
		}
		m.status = fmt.Sprintf("%d pending", len(items))
		return m, m.list.SetItems(listItems)

	case DecisionRecordedMsg:
		if msg.Err != nil {
			m.err = fmt.Errorf("recording %s for %s: %w", msg.Label, msg.MessageID, msg.Err)
			return m, nil
		}
		m.err = nil
		m.decided[msg.Label]++
		m.removeItem(msg.MessageID)
		m.status = fmt.Sprintf("%s -> %s", msg.MessageID, msg.Label)
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.list.SetSize(msg.Width, max(msg.Height-4, 1))
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		if m.list.FilterState() == list.Filtering {
			var cmd tea.Cmd
			m.list, cmd = m.list.Update(msg)
			return m, cmd
		}
		return m.handleKeys(msg)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// handleKeys processes key input outside of list filtering.
func (m Model) handleKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil

	case key.Matches(msg, m.keys.Select):
		m.showDetail = !m.showDetail
		return m, nil

	case key.Matches(msg, m.keys.Back):
		if m.showDetail {
			m.showDetail = false
			return m, nil
		}
		if m.list.IsFiltered() {
			m.list.ResetFilter()
		}
		return m, nil

	case key.Matches(msg, m.keys.Refresh):
		return m, m.load()

	case key.Matches(msg, m.keys.CycleSort):
		m.sortIndex = (m.sortIndex + 1) % len(sortModes)
		m.status = "sorted by " + sortModes[m.sortIndex]
		return m, m.load()

	case key.Matches(msg, m.keys.Accept):
		if it, ok := m.selected(); ok {
			return m, m.decide(it, it.Verdict.Label)
		}
		return m, nil

	case key.Matches(msg, m.keys.Delete):
		return m.decideSelected(model.LabelDelete)

	case key.Matches(msg, m.keys.Keep):
		return m.decideSelected(model.LabelKeep)

	case key.Matches(msg, m.keys.Archive):
		return m.decideSelected(model.LabelArchive)

	case key.Matches(msg, m.keys.Skip):
		if it, ok := m.selected(); ok {
			m.skipped++
			m.removeItem(it.MessageRecord.ID)
			m.status = "skipped " + it.MessageRecord.ID
		}
		return m, nil
	}

	// Delegate to the list for navigation keys
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) decideSelected(label model.Label) (tea.Model, tea.Cmd) {
	it, ok := m.selected()
	if !ok {
		return m, nil
	}
	return m, m.decide(it, label)
}

// decide writes a decision in a command so the store call stays off the
// render loop.
func (m Model) decide(it Item, label model.Label) tea.Cmd {
	ctx, dec := m.ctx, m.decider
	id := it.MessageRecord.ID
	return func() tea.Msg {
		_, err := dec.Record(ctx, feedback.Input{MessageID: id, Label: label})
		return DecisionRecordedMsg{MessageID: id, Label: label, Err: err}
	}
}

func (m Model) selected() (Item, bool) {
	it, ok := m.list.SelectedItem().(Item)
	return it, ok
}

func (m *Model) removeItem(id string) {
	for i, li := range m.list.Items() {
		if it, ok := li.(Item); ok && it.MessageRecord.ID == id {
			m.list.RemoveItem(i)
			return
		}
	}
}

// Remaining returns the number of verdicts still listed.
func (m Model) Remaining() int {
	return len(m.list.Items())
}

// Summary describes what the session decided.
func (m Model) Summary() string {
	total := 0
	for _, n := range m.decided {
		total += n
	}
	return fmt.Sprintf("%d decisions (delete %d, keep %d, archive %d), %d skipped, %d left",
		total,
		m.decided[model.LabelDelete],
		m.decided[model.LabelKeep],
		m.decided[model.LabelArchive],
		m.skipped,
		m.Remaining(),
	)
}

// View renders the review screen.
func (m Model) View() string {
	var b strings.Builder

	if m.showDetail {
		if it, ok := m.selected(); ok {
			b.WriteString(renderDetail(it, m.width))
		} else {
			b.WriteString(theme.DimStyle.Render("nothing selected"))
		}
	} else {
		b.WriteString(m.list.View())
	}
	b.WriteString("\n")

	status := m.status
	if m.err != nil {
		status = theme.ErrorStyle.Render(m.err.Error())
	}
	b.WriteString(theme.StatusBarStyle.Render(status))
	b.WriteString("\n")
	b.WriteString(theme.HelpStyle.Render(m.help.View(m.keys)))
	return b.String()
}

func renderDetail(it Item, width int) string {
	msg := it.MessageRecord
	v := it.Verdict

	rows := []string{
		theme.HeaderStyle.Render(msg.Subject),
		"",
		fmt.Sprintf("From:      %s <%s>", msg.SenderName, msg.Sender),
		fmt.Sprintf("Received:  %s (%s)", msg.ReceivedAt.Local().Format("2006-01-02 15:04"), humanize.Time(msg.ReceivedAt)),
		fmt.Sprintf("Size:      %s", humanize.Bytes(uint64(max(msg.SizeBytes, 0)))),
		"",
		fmt.Sprintf("Verdict:   %s  %s  raw %.2f  via %s",
			theme.LabelStyle(string(v.Label)).Render(string(v.Label)),
			theme.ConfidenceStyle(v.ConfidenceCalibrated).Render(fmt.Sprintf("%.2f", v.ConfidenceCalibrated)),
			v.ConfidenceRaw,
			v.Source,
		),
	}
	if v.RuleName != "" {
		rows = append(rows, "Rule:      "+v.RuleName)
	}
	if v.Category != "" {
		rows = append(rows, "Category:  "+v.Category)
	}
	if v.Reasoning != "" {
		rows = append(rows, "Reasoning: "+v.Reasoning)
	}
	rows = append(rows, "", msg.BodyPreview)

	style := theme.DetailPanelStyle
	if width > 4 {
		style = style.Width(width - 4)
	}
	return style.Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

// sortItems orders items in place for the given sort mode.
func sortItems(items []store.ClassifiedMessage, mode string) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		switch mode {
		case "received":
			return a.MessageRecord.ReceivedAt.After(b.MessageRecord.ReceivedAt)
		case "sender":
			if a.MessageRecord.Sender != b.MessageRecord.Sender {
				return a.MessageRecord.Sender < b.MessageRecord.Sender
			}
			return a.MessageRecord.ID < b.MessageRecord.ID
		default:
			return a.Verdict.ConfidenceCalibrated > b.Verdict.ConfidenceCalibrated
		}
	})
}
