package synchronizer

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// reporter writes human-readable progress lines to an optional sink and
// mirrors them to the structured log.
type reporter struct {
	out     io.Writer
	logger  *slog.Logger
	success lipgloss.Style
	color   bool
}

func newReporter(out io.Writer, logger *slog.Logger) *reporter {
	return &reporter{
		out:     out,
		logger:  logger,
		success: lipgloss.NewStyle().Foreground(lipgloss.Color("46")),
		color:   isTerminal(out),
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Success reports a completed step.
func (rp *reporter) Success(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	rp.logger.Info(msg)
	if rp.out == nil {
		return
	}
	if rp.color {
		msg = rp.success.Render(msg)
	}
	_, _ = fmt.Fprintln(rp.out, msg)
}

// Info reports a plain progress line.
func (rp *reporter) Info(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	rp.logger.Info(msg)
	if rp.out != nil {
		_, _ = fmt.Fprintln(rp.out, msg)
	}
}
