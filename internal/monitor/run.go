package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/muurk/orvibo-bridge/internal/events"
)

// Run shows the interactive dashboard until the user quits or ctx ends
func Run(ctx context.Context, source Source, stream <-chan events.Envelope, apiAddr string) error {
	p := tea.NewProgram(NewModel(source, stream, apiAddr), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("monitor failed: %w", err)
	}
	return nil
}

// RunPlain prints one line per event to w. Used when stdout is not a
// terminal.
func RunPlain(ctx context.Context, stream <-chan events.Envelope, w io.Writer) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case env, ok := <-stream:
			if !ok {
				return nil
			}
			e, err := env.Decode()
			if err != nil {
				fmt.Fprintf(w, "%s %s (undecodable: %v)\n", env.Time.Format("2006-01-02T15:04:05Z07:00"), env.Type, err)
				continue
			}
			fmt.Fprintf(w, "%s %-28s %s\n", env.Time.Format("2006-01-02T15:04:05Z07:00"), e.Type(), Describe(e))
		}
	}
}
