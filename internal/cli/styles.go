package cli

import (
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/JonMunkholm/graphload/internal/progress"
)

type styles struct {
	title      lipgloss.Style
	header     lipgloss.Style
	completed  lipgloss.Style
	inProgress lipgloss.Style
	pending    lipgloss.Style
	dim        lipgloss.Style
	err        lipgloss.Style
}

// newStyles returns colored styles for terminals and plain ones otherwise.
func newStyles(w io.Writer) styles {
	if !writerIsTerminal(w) || os.Getenv("NO_COLOR") != "" {
		plain := lipgloss.NewStyle()
		return styles{plain, plain, plain, plain, plain, plain, plain}
	}
	return styles{
		title:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		header:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("245")),
		completed:  lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		inProgress: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		pending:    lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		dim:        lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		err:        lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
	}
}

func (s styles) status(st progress.Status) lipgloss.Style {
	switch st {
	case progress.Completed:
		return s.completed
	case progress.InProgress:
		return s.inProgress
	default:
		return s.pending
	}
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
