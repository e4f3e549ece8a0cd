package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"sketchbridge/internal/core/ports"
	"sketchbridge/internal/engine/task"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#3B82F6")).Padding(0, 1)
	cellStyle      = lipgloss.NewStyle().Padding(0, 1)
	completedStyle = cellStyle.Foreground(lipgloss.Color("#10B981"))
	failedStyle    = cellStyle.Foreground(lipgloss.Color("#F87171"))
	runningStyle   = cellStyle.Foreground(lipgloss.Color("#FBBF24"))
	mutedStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#64748B")).Italic(true)
)

var importColumns = []string{"TASK", "KEYWORD", "STATE", "PROGRESS", "MODEL", "UPDATED"}

func stateStyle(state task.State) lipgloss.Style {
	switch state {
	case task.StateCompleted:
		return completedStyle
	case task.StateFailed:
		return failedStyle
	default:
		return runningStyle
	}
}

func importRow(snap task.Snapshot) []string {
	model := snap.ModelName
	if snap.State == task.StateFailed {
		model = snap.Error
	}
	return []string{
		shortID(snap.ID),
		snap.Keyword,
		string(snap.State),
		fmt.Sprintf("%d%%", snap.Progress),
		truncate(model, 40),
		snap.UpdatedAt.Local().Format(time.DateTime),
	}
}

func renderImports(snaps []task.Snapshot) string {
	if len(snaps) == 0 {
		return mutedStyle.Render("No imports recorded.")
	}
	rows := make([][]string, 0, len(snaps))
	for _, snap := range snaps {
		rows = append(rows, importRow(snap))
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("#64748B"))).
		Headers(importColumns...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if col == 2 && row >= 0 && row < len(snaps) {
				return stateStyle(snaps[row].State)
			}
			return cellStyle
		})
	return t.Render()
}

func printImports(ctx context.Context, w io.Writer, store ports.TaskStore, limit int) error {
	snaps, err := store.List(ctx, limit)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, renderImports(snaps))
	return err
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
