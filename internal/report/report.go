// Package report renders analysis reports and failures for the terminal or
// for machine consumption.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rbright/trace/internal/analysis"
	"github.com/rbright/trace/internal/fault"
	"gopkg.in/yaml.v3"
)

// Format selects the renderer.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat accepts text, json, or yaml case-insensitively.
func ParseFormat(raw string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(raw))) {
	case FormatText, "":
		return FormatText, nil
	case FormatJSON:
		return FormatJSON, nil
	case FormatYAML:
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported report format %q (want text, json, or yaml)", raw)
	}
}

// Options controls rendering.
type Options struct {
	Format       Format
	Color        bool
	ShowFindings bool
}

// Failure is the serialized form of an analysis error.
type Failure struct {
	Kind    string `json:"kind" yaml:"kind"`
	Title   string `json:"title" yaml:"title"`
	Message string `json:"message" yaml:"message"`
}

// FailureOf classifies err into its serialized form. Unclassified errors are
// reported as upstream failures.
func FailureOf(err error) Failure {
	kind, ok := fault.KindOf(err)
	if !ok {
		kind = fault.Upstream
	}
	msg := err.Error()
	var fe *fault.Error
	if errors.As(err, &fe) && fe.Message != "" {
		msg = fe.Message
	}
	return Failure{Kind: string(kind), Title: kind.Title(), Message: msg}
}

// Render writes r to w in the selected format.
func Render(w io.Writer, r analysis.Report, opts Options) error {
	switch opts.Format {
	case FormatJSON:
		return writeJSON(w, r)
	case FormatYAML:
		return writeYAML(w, r)
	case FormatText, "":
		_, err := io.WriteString(w, renderText(r, opts))
		return err
	default:
		return fmt.Errorf("unsupported report format: %s", opts.Format)
	}
}

// RenderFailure writes an analysis failure in the selected format.
func RenderFailure(w io.Writer, err error, opts Options) error {
	f := FailureOf(err)
	switch opts.Format {
	case FormatJSON:
		return writeJSON(w, struct {
			Error Failure `json:"error"`
		}{f})
	case FormatYAML:
		return writeYAML(w, struct {
			Error Failure `yaml:"error"`
		}{f})
	default:
		s := newStyles(opts.Color)
		_, werr := fmt.Fprintf(w, "%s %s\n", s.spoof.Render("✗ "+f.Title), f.Message)
		return werr
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode yaml report: %w", err)
	}
	return enc.Close()
}
