package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

type ConsoleStyle int

const (
	StyleNormal ConsoleStyle = iota
	StyleError
	StyleWarning
	StyleSuccess
	StyleInfo
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorGreen  = "\033[32m"
	colorBlue   = "\033[34m"
	colorBold   = "\033[1m"
)

const indent = "    "

// Console writes progress lines to out and diagnostics to errOut.
type Console struct {
	out       io.Writer
	errOut    io.Writer
	useColors bool
}

// NewConsole returns a console bound to the process's stdout and stderr.
func NewConsole() *Console {
	return NewConsoleWithWriters(os.Stdout, os.Stderr)
}

// NewConsoleWithWriters returns a console writing to the given streams.
// Colors are used only when the diagnostic stream is a terminal.
func NewConsoleWithWriters(out, errOut io.Writer) *Console {
	return &Console{
		out:       out,
		errOut:    errOut,
		useColors: isTerminal(errOut),
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// Out returns the progress stream, e.g. for a service's inherited stdout.
func (c *Console) Out() io.Writer {
	return c.out
}

// ErrOut returns the diagnostic stream.
func (c *Console) ErrOut() io.Writer {
	return c.errOut
}

func (c *Console) formatMessage(style ConsoleStyle, message string) string {
	if !c.useColors {
		return message
	}

	var color string
	switch style {
	case StyleError:
		color = colorRed + colorBold
	case StyleWarning:
		color = colorYellow
	case StyleSuccess:
		color = colorGreen
	case StyleInfo:
		color = colorBlue
	default:
		return message
	}

	return color + message + colorReset
}

// PrintInfo writes one progress line. Progress lines are never colored so
// they stay greppable.
func (c *Console) PrintInfo(message string) {
	fmt.Fprintf(c.out, "%s\n", message)
}

// PrintInfof formats and writes one progress line.
func (c *Console) PrintInfof(format string, args ...any) {
	c.PrintInfo(fmt.Sprintf(format, args...))
}

func (c *Console) PrintError(message string) {
	fmt.Fprintf(c.errOut, "%s\n", c.formatMessage(StyleError, "Error: "+message))
}

// PrintWarning writes a blank-line-delimited warning block:
//
//	warning:
//	    <summary>
//	    <detail>
//	    source of error:
//	        <cause>...
func (c *Console) PrintWarning(summary, detail string, causes []string) {
	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(c.formatMessage(StyleWarning, "warning:") + "\n")
	if summary != "" {
		b.WriteString(indent + summary + "\n")
	}
	if detail != "" {
		b.WriteString(indent + detail + "\n")
	}
	if len(causes) > 0 {
		b.WriteString(indent + "source of error:\n")
		for _, cause := range causes {
			b.WriteString(indent + indent + cause + "\n")
		}
	}
	b.WriteString("\n")
	fmt.Fprint(c.errOut, b.String())
}

// FormatErrorMessage lays out a fatal error as its context line followed by
// the indented cause chain and an optional suggestion.
func (c *Console) FormatErrorMessage(context string, causes []string, suggestion string) string {
	var parts []string

	if context != "" {
		parts = append(parts, context)
	}

	if len(causes) > 0 {
		lines := make([]string, 0, len(causes))
		for _, cause := range causes {
			lines = append(lines, indent+cause)
		}
		parts = append(parts, "\nCaused by:\n"+strings.Join(lines, "\n"))
	}

	if suggestion != "" {
		parts = append(parts, fmt.Sprintf("Suggestion: %s", suggestion))
	}

	return strings.Join(parts, "\n")
}
