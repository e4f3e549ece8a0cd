package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"sketchbridge/internal/core/ports"
	"sketchbridge/internal/engine/task"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			MarginLeft(2).
			Foreground(lipgloss.Color("#3B82F6")).
			Bold(true).
			Render

	docStyle = lipgloss.NewStyle().Margin(1, 2)

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#64748B")).
			Italic(true)

	detailStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#64748B")).
			Padding(0, 1)
)

type tickMsg time.Time

type importsMsg struct {
	snaps []task.Snapshot
	err   error
	at    time.Time
}

type model struct {
	store      ports.TaskStore
	limit      int
	interval   time.Duration
	table      table.Model
	snaps      []task.Snapshot
	err        error
	lastUpdate time.Time
	showDetail bool
}

func initialModel(store ports.TaskStore, limit int, interval time.Duration) model {
	if interval <= 0 {
		interval = time.Second
	}
	columns := make([]table.Column, 0, len(importColumns))
	for i, title := range importColumns {
		width := 12
		switch i {
		case 1:
			width = 20
		case 4:
			width = 30
		case 5:
			width = 19
		}
		columns = append(columns, table.Column{Title: title, Width: width})
	}
	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(15),
	)
	return model{store: store, limit: limit, interval: interval, table: t}
}

func loadImports(store ports.TaskStore, limit int) tea.Cmd {
	return func() tea.Msg {
		if store == nil {
			return importsMsg{err: fmt.Errorf("task store unavailable"), at: time.Now()}
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		snaps, err := store.List(ctx, limit)
		return importsMsg{snaps: snaps, err: err, at: time.Now()}
	}
}

func tick(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m model) Init() tea.Cmd {
	return tea.Batch(loadImports(m.store, m.limit), tick(m.interval))
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "r":
			return m, loadImports(m.store, m.limit)
		case "enter":
			m.showDetail = !m.showDetail
			return m, nil
		case "esc":
			m.showDetail = false
			return m, nil
		}
	case tea.WindowSizeMsg:
		if h := msg.Height - 10; h > 3 {
			m.table.SetHeight(h)
		}
		return m, nil
	case tickMsg:
		return m, tea.Batch(loadImports(m.store, m.limit), tick(m.interval))
	case importsMsg:
		m.lastUpdate = msg.at
		m.err = msg.err
		if msg.err == nil {
			m.snaps = msg.snaps
			rows := make([]table.Row, 0, len(msg.snaps))
			for _, snap := range msg.snaps {
				rows = append(rows, table.Row(importRow(snap)))
			}
			m.table.SetRows(rows)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m model) selected() (task.Snapshot, bool) {
	idx := m.table.Cursor()
	if idx < 0 || idx >= len(m.snaps) {
		return task.Snapshot{}, false
	}
	return m.snaps[idx], true
}

func (m model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle(fmt.Sprintf("Sketchfab imports (%d)", len(m.snaps))))
	b.WriteString("\n\n")
	b.WriteString(m.table.View())
	b.WriteString("\n")

	if m.showDetail {
		if snap, ok := m.selected(); ok {
			b.WriteString(detailStyle.Render(formatDetail(snap)))
			b.WriteString("\n")
		}
	}

	status := "updated " + m.lastUpdate.Format(time.TimeOnly)
	if m.lastUpdate.IsZero() {
		status = "loading..."
	}
	if m.err != nil {
		status = "refresh failed: " + m.err.Error()
	}
	b.WriteString(statusStyle.Render(status + "  ·  enter details  r refresh  q quit"))
	return docStyle.Render(b.String())
}

func formatDetail(snap task.Snapshot) string {
	lines := []string{
		"Task:    " + snap.ID,
		"Keyword: " + snap.Keyword,
		"Bounds:  " + snap.Bounds.String(),
		fmt.Sprintf("State:   %s (%d%%)", snap.State, snap.Progress),
	}
	if snap.RemoteTaskID != "" {
		lines = append(lines, "Remote:  "+snap.RemoteTaskID)
	}
	if snap.ModelName != "" {
		lines = append(lines, "Model:   "+snap.ModelName)
	}
	if snap.Message != "" {
		lines = append(lines, "Message: "+snap.Message)
	}
	if snap.Error != "" {
		lines = append(lines, "Error:   "+snap.Error)
	}
	return strings.Join(lines, "\n")
}
