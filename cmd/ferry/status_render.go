package main

import (
	"fmt"
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
)

type statusKind int

const (
	statusOK statusKind = iota
	statusWarn
	statusError
)

var statusStyles = map[statusKind]struct {
	label  string
	colors text.Colors
}{
	statusOK:    {"OK", text.Colors{text.FgGreen}},
	statusWarn:  {"WARN", text.Colors{text.FgYellow}},
	statusError: {"FAIL", text.Colors{text.FgRed, text.Bold}},
}

// renderStatusLine formats one check as "  name: [LABEL] detail", padded so
// labels line up down the column.
func renderStatusLine(name string, kind statusKind, detail string, colorize bool) string {
	style := statusStyles[kind]
	badge := "[" + style.label + "]"
	if colorize {
		badge = style.colors.Sprint(badge)
	}
	line := fmt.Sprintf("  %-22s %s", name+":", badge)
	if detail != "" {
		line += " " + detail
	}
	return line
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
