// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

const defaultOutputWidth = 120

// output writes diagnostics, view events, and state dumps for the
// operator. Color and truncation apply only on a terminal.
type output struct {
	mu     sync.Mutex
	writer io.Writer
	color  bool
	width  int

	warningStyle lipgloss.Style
	eventStyle   lipgloss.Style
	headerStyle  lipgloss.Style
	keyStyle     lipgloss.Style
}

// newOutput writes to file, detecting whether it is a terminal.
func newOutput(file *os.File) *output {
	fileDescriptor := int(file.Fd())
	color := term.IsTerminal(fileDescriptor)
	width := defaultOutputWidth
	if color {
		if columns, _, err := term.GetSize(fileDescriptor); err == nil && columns > 0 {
			width = columns
		}
	}
	return newOutputWriter(file, color, width)
}

func newOutputWriter(writer io.Writer, color bool, width int) *output {
	profile := termenv.Ascii
	if color {
		profile = termenv.ANSI256
	}
	renderer := lipgloss.NewRenderer(writer, termenv.WithProfile(profile))
	renderer.SetColorProfile(profile)

	return &output{
		writer:       writer,
		color:        color,
		width:        width,
		warningStyle: renderer.NewStyle().Foreground(lipgloss.Color("214")).Bold(true),
		eventStyle:   renderer.NewStyle().Foreground(lipgloss.Color("39")),
		headerStyle:  renderer.NewStyle().Foreground(lipgloss.Color("141")).Bold(true),
		keyStyle:     renderer.NewStyle().Faint(true),
	}
}

// Warn prints a diagnostic. It implements mapview.Reporter; args are
// alternating keys and values as for slog.
func (o *output) Warn(message string, args ...any) {
	var line strings.Builder
	line.WriteString(o.warningStyle.Render("warning:"))
	line.WriteString(" ")
	line.WriteString(message)
	for i := 0; i+1 < len(args); i += 2 {
		fmt.Fprintf(&line, " %s%v", o.keyStyle.Render(fmt.Sprint(args[i])+"="), args[i+1])
	}
	o.println(line.String())
}

// Event prints one line for a view event, truncated to the terminal
// width.
func (o *output) Event(name string, payload any) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		encoded = []byte(fmt.Sprint(payload))
	}
	line := o.eventStyle.Render(name) + " " + string(encoded)
	o.println(ansi.Truncate(line, o.width, "…"))
}

// Dump prints value as indented JSON under a header, highlighted on a
// terminal.
func (o *output) Dump(label string, value any) error {
	encoded, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", label, err)
	}
	text := string(encoded)
	if o.color {
		var highlighted bytes.Buffer
		if err := quick.Highlight(&highlighted, text, "json", "terminal256", "monokai"); err == nil {
			text = highlighted.String()
		}
	}
	o.println(o.headerStyle.Render("── " + label + " ──"))
	o.println(strings.TrimRight(text, "\n"))
	return nil
}

func (o *output) println(line string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	fmt.Fprintln(o.writer, line)
}
