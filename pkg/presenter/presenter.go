// Package presenter prints user-facing CLI output for the siren commands.
package presenter

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
)

// ColorMode controls whether output is colored.
type ColorMode int

const (
	ColorAuto ColorMode = iota
	ColorAlways
	ColorNever
)

// TerminalPresenter writes to a pair of streams, reading prompts from input.
type TerminalPresenter struct {
	output      io.Writer
	errorOutput io.Writer
	input       io.Reader
	colorMode   ColorMode
	quiet       bool
}

func New() *TerminalPresenter {
	return NewWithOptions(os.Stdout, os.Stderr, detectColorMode())
}

// NewWithOptions builds a presenter over custom streams. Prompts read from
// stdin until SetInput is called.
func NewWithOptions(output, errorOutput io.Writer, colorMode ColorMode) *TerminalPresenter {
	switch colorMode {
	case ColorAlways:
		color.NoColor = false
	case ColorNever:
		color.NoColor = true
	}
	return &TerminalPresenter{
		output:      output,
		errorOutput: errorOutput,
		input:       os.Stdin,
		colorMode:   colorMode,
	}
}

func detectColorMode() ColorMode {
	if os.Getenv("NO_COLOR") != "" {
		return ColorNever
	}
	switch os.Getenv("SIREN_COLOR") {
	case "always", "force":
		return ColorAlways
	case "never", "off":
		return ColorNever
	default:
		return ColorAuto
	}
}

// Error prints err to the error stream, prefixed with context when given.
func (p *TerminalPresenter) Error(err error, context string) {
	if err == nil {
		return
	}
	c := color.New(color.FgRed, color.Bold)
	if context != "" {
		c.Fprintf(p.errorOutput, "[ERROR] %s: %v\n", context, err)
		return
	}
	c.Fprintf(p.errorOutput, "[ERROR] %v\n", err)
}

func (p *TerminalPresenter) Success(message string) {
	if p.quiet {
		return
	}
	color.New(color.FgGreen, color.Bold).Fprintf(p.output, "✓ %s\n", message)
}

func (p *TerminalPresenter) Warning(message string) {
	if p.quiet {
		return
	}
	color.New(color.FgYellow, color.Bold).Fprintf(p.output, "⚠ %s\n", message)
}

func (p *TerminalPresenter) Info(message string) {
	if p.quiet {
		return
	}
	fmt.Fprintln(p.output, message)
}

// Section prints an underlined title.
func (p *TerminalPresenter) Section(title string) {
	if p.quiet {
		return
	}
	c := color.New(color.Bold)
	c.Fprintln(p.output, title)
	c.Fprintln(p.output, strings.Repeat("-", len(title)))
}

// Field prints one aligned "label: value" line.
func (p *TerminalPresenter) Field(label, value string) {
	if p.quiet {
		return
	}
	color.New(color.FgCyan).Fprintf(p.output, "%-12s", label+":")
	fmt.Fprintf(p.output, " %s\n", value)
}

func (p *TerminalPresenter) Separator() {
	if p.quiet {
		return
	}
	color.New(color.Faint).Fprintln(p.output, strings.Repeat("-", 60))
}

// Confirm asks a yes/no question. Anything but y or yes is a no.
func (p *TerminalPresenter) Confirm(question string) bool {
	color.New(color.FgCyan).Fprintf(p.output, "%s [y/N]: ", question)
	answer, err := bufio.NewReader(p.input).ReadString('\n')
	if err != nil && answer == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	}
	return false
}

func (p *TerminalPresenter) SetInput(r io.Reader) { p.input = r }

func (p *TerminalPresenter) SetQuiet(quiet bool) { p.quiet = quiet }

func (p *TerminalPresenter) IsQuiet() bool { return p.quiet }

var defaultPresenter = New()

func Error(err error, context string) { defaultPresenter.Error(err, context) }

func Success(message string) { defaultPresenter.Success(message) }

func Warning(message string) { defaultPresenter.Warning(message) }

func Info(message string) { defaultPresenter.Info(message) }

func Section(title string) { defaultPresenter.Section(title) }

func Field(label, value string) { defaultPresenter.Field(label, value) }

func Separator() { defaultPresenter.Separator() }

func Confirm(question string) bool { return defaultPresenter.Confirm(question) }

func SetQuiet(quiet bool) { defaultPresenter.SetQuiet(quiet) }

func IsQuiet() bool { return defaultPresenter.IsQuiet() }
