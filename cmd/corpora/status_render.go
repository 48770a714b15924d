package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

var statusStyles = map[statusKind]struct {
	label string
	color string
}{
	statusInfo:  {"INFO", "\x1b[34m"},
	statusOK:    {"OK", "\x1b[32m"},
	statusWarn:  {"WARN", "\x1b[33m"},
	statusError: {"ERROR", "\x1b[31m"},
}

const (
	ansiReset  = "\x1b[0m"
	labelWidth = 20
)

var titleCaser = cases.Title(language.English)

// printer writes section headers and aligned status lines, colored only when
// stdout is a terminal.
type printer struct {
	out   io.Writer
	color bool
}

func newPrinter(cmd *cobra.Command) *printer {
	out := cmd.OutOrStdout()
	return &printer{out: out, color: isTerminal(out)}
}

func (p *printer) section(title string) {
	line := fmt.Sprintf("== %s ==", titleLabel(title))
	rule := strings.Repeat("-", len(line))
	if p.color {
		line = statusStyles[statusInfo].color + line + ansiReset
		rule = statusStyles[statusInfo].color + rule + ansiReset
	}
	fmt.Fprintln(p.out, line)
	fmt.Fprintln(p.out, rule)
}

func (p *printer) status(label string, kind statusKind, message string) {
	style := statusStyles[kind]
	text := fmt.Sprintf("  %-*s [%s]", labelWidth, titleLabel(label)+":", style.label)
	if message != "" {
		text += " " + message
	}
	if p.color {
		text = style.color + text + ansiReset
	}
	fmt.Fprintln(p.out, text)
}

// count prints n as OK when zero and as kind otherwise.
func (p *printer) count(label string, n int, kind statusKind) {
	if n == 0 {
		kind = statusOK
	}
	p.status(label, kind, fmt.Sprint(n))
}

func (p *printer) line(format string, args ...any) {
	fmt.Fprintf(p.out, format+"\n", args...)
}

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// titleLabel turns snake_case identifiers into headings.
func titleLabel(label string) string {
	return titleCaser.String(strings.ReplaceAll(strings.TrimSpace(label), "_", " "))
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
