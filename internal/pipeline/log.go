package pipeline

import (
	"fmt"
	"io"
)

// logger writes diagnostics to the run's log stream. Under GitHub Actions
// the messages use workflow-command prefixes so they surface in the run
// annotations.
type logger struct {
	out     io.Writer
	verbose bool
	actions bool
}

func (l *logger) debugf(format string, args ...any) {
	if l.actions {
		fmt.Fprintf(l.out, "::debug::"+format+"\n", args...)
		return
	}
	if l.verbose {
		fmt.Fprintf(l.out, format+"\n", args...)
	}
}

func (l *logger) warnf(format string, args ...any) {
	if l.actions {
		fmt.Fprintf(l.out, "::warning::"+format+"\n", args...)
		return
	}
	fmt.Fprintf(l.out, "Warning: "+format+"\n", args...)
}
