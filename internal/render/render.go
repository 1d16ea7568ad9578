// Package render writes command results as JSON, YAML or styled text.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

// Format is an output format.
type Format string

// Output formats.
const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatText Format = "text"
)

// ParseFormat validates a format name. Empty means JSON.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatJSON, nil
	case FormatJSON, FormatYAML, FormatText:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want json, yaml or text)", s)
	}
}

// TextFunc renders a value for humans.
type TextFunc func(s *Styles) string

// Renderer writes values in one format.
type Renderer struct {
	w      io.Writer
	format Format
	styles *Styles
}

// New returns a Renderer writing to w. Text is styled only when w is a
// terminal.
func New(w io.Writer, format Format) *Renderer {
	return &Renderer{
		w:      w,
		format: format,
		styles: NewStyles(IsTerminal(w)),
	}
}

// Format returns the renderer's format.
func (r *Renderer) Format() Format { return r.format }

// Styles returns the text styles in use.
func (r *Renderer) Styles() *Styles { return r.styles }

// Render writes v. In text mode text is used when given; otherwise v is
// written as YAML, which reads well enough for ad hoc values.
func (r *Renderer) Render(v any, text TextFunc) error {
	switch r.format {
	case FormatYAML:
		return r.yaml(v)
	case FormatText:
		if text == nil {
			return r.yaml(v)
		}
		out := text(r.styles)
		if !strings.HasSuffix(out, "\n") {
			out += "\n"
		}
		_, err := io.WriteString(r.w, out)
		return err
	default:
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("encode json: %w", err)
		}
		data = append(data, '\n')
		_, err = r.w.Write(data)
		return err
	}
}

func (r *Renderer) yaml(v any) error {
	// Round-trip through JSON so YAML keys match the JSON field names.
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	var generic any
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return fmt.Errorf("decode json as yaml: %w", err)
	}
	enc := yaml.NewEncoder(r.w)
	enc.SetIndent(2)
	if err := enc.Encode(generic); err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	return enc.Close()
}

// IsTerminal reports whether w is a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
