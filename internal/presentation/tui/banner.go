package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner writes the Chameleon ASCII banner to w.
func PrintBanner(w io.Writer) {
	out := termenv.NewOutput(w)
	lines := []struct {
		text  string
		color string
	}{
		{`   ____ _                              _`, "#34d399"},
		{`  / ___| |__   __ _ _ __ ___   ___| | ___  ___  _ __`, "#2dd4bf"},
		{` | |   | '_ \ / _' | '_ ' _ \ / _ \ |/ _ \/ _ \| '_ \`, "#22d3ee"},
		{` | |___| | | | (_| | | | | | |  __/ |  __/ (_) | | | |`, "#38bdf8"},
		{`  \____|_| |_|\__,_|_| |_| |_|\___|_|\___|\___/|_| |_|`, "#818cf8"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, out.String(l.text).Foreground(out.Color(l.color)))
	}
	fmt.Fprintln(w)
}
