package diagfmt

import (
	"encoding/json"
	"io"

	"cargoscan/internal/diag"
)

// LocationJSON is the primary location of a diagnostic.
type LocationJSON struct {
	File string `json:"file"`
	Line int    `json:"line"`
}

// LinkJSON is a clickable range inside the joined message text.
type LinkJSON struct {
	Start  int    `json:"start"`
	Length int    `json:"length"`
	Target string `json:"target"`
	Text   string `json:"text,omitempty"`
}

// DiagnosticJSON is one diagnostic in JSON form.
type DiagnosticJSON struct {
	Severity string        `json:"severity"`
	Code     string        `json:"code,omitempty"`
	Summary  string        `json:"summary"`
	Message  []string      `json:"message"`
	Location *LocationJSON `json:"location,omitempty"`
	Links    []LinkJSON    `json:"links,omitempty"`
}

// DiagnosticsOutput is the root of the JSON output.
type DiagnosticsOutput struct {
	Diagnostics []DiagnosticJSON `json:"diagnostics"`
	Count       int              `json:"count"`
	Errors      int              `json:"errors"`
	Warnings    int              `json:"warnings"`
}

// BuildDiagnosticsOutput builds the JSON structure without serializing it.
// Errors and Warnings count the whole bag even when Max truncates the list.
func BuildDiagnosticsOutput(bag *diag.Bag, opts JSONOpts) DiagnosticsOutput {
	if bag == nil {
		return DiagnosticsOutput{Diagnostics: []DiagnosticJSON{}}
	}
	items := bag.Items()
	n := len(items)
	if opts.Max > 0 && opts.Max < n {
		n = opts.Max
	}

	diagnostics := make([]DiagnosticJSON, 0, n)
	for _, d := range items[:n] {
		dj := DiagnosticJSON{
			Severity: d.Severity.String(),
			Code:     d.Code,
			Summary:  d.Summary(),
			Message:  append([]string{}, d.Message...),
		}
		if d.File != "" {
			dj.Location = &LocationJSON{
				File: formatPath(d.File, opts.PathMode, opts.BaseDir),
				Line: d.Line,
			}
		}
		if opts.IncludeLinks && len(d.Links) > 0 {
			dj.Links = make([]LinkJSON, len(d.Links))
			for i, l := range d.Links {
				dj.Links[i] = LinkJSON{
					Start:  l.Start,
					Length: l.Length,
					Target: l.Target,
					Text:   d.LinkText(l),
				}
			}
		}
		diagnostics = append(diagnostics, dj)
	}

	return DiagnosticsOutput{
		Diagnostics: diagnostics,
		Count:       len(diagnostics),
		Errors:      bag.Count(diag.SevError),
		Warnings:    bag.Count(diag.SevWarning),
	}
}

// JSON writes the diagnostics as an indented JSON document.
func JSON(w io.Writer, bag *diag.Bag, opts JSONOpts) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(BuildDiagnosticsOutput(bag, opts))
}
