// Package ux renders command output and status styling.
package ux

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Format selects how command results are rendered
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// Printer renders command results in one of the supported formats. Text
// mode prints strings verbatim; structured data falls back to YAML, which
// reads well enough on a terminal.
type Printer struct {
	format Format
	w      io.Writer
}

// NewPrinter creates a Printer for the given format string. An empty
// format means text; a nil writer means stdout.
func NewPrinter(format string, w io.Writer) (*Printer, error) {
	if w == nil {
		w = os.Stdout
	}

	f := Format(format)
	if f == "" {
		f = FormatText
	}
	switch f {
	case FormatText, FormatJSON, FormatYAML:
		return &Printer{format: f, w: w}, nil
	default:
		return nil, fmt.Errorf("unknown format %q (supported: text, json, yaml)", format)
	}
}

// Print renders data in the printer's format
func (p *Printer) Print(data interface{}) error {
	switch p.format {
	case FormatJSON:
		enc := json.NewEncoder(p.w)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	case FormatYAML:
		return p.printYAML(data)
	default:
		return p.printText(data)
	}
}

func (p *Printer) printText(data interface{}) error {
	switch v := data.(type) {
	case string:
		_, err := fmt.Fprintln(p.w, v)
		return err
	case fmt.Stringer:
		_, err := fmt.Fprintln(p.w, v.String())
		return err
	default:
		return p.printYAML(data)
	}
}

func (p *Printer) printYAML(data interface{}) error {
	enc := yaml.NewEncoder(p.w)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(data)
}
