package cli

import (
	"time"

	"sketchbridge/internal/core/ports"

	tea "github.com/charmbracelet/bubbletea"
)

const uiRefreshInterval = time.Second

func runUI(store ports.TaskStore, limit int) error {
	p := tea.NewProgram(initialModel(store, limit, uiRefreshInterval), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
