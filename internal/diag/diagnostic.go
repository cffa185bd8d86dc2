package diag

import (
	"fmt"
	"strings"
)

// LinkSpan marks a clickable range inside Diagnostic.Text().
// Start and Length are byte offsets into the joined message.
type LinkSpan struct {
	Start  int
	Length int
	Target string
}

// End returns the exclusive end offset of the span.
func (l LinkSpan) End() int { return l.Start + l.Length }

// Diagnostic is one compiler error or warning block.
type Diagnostic struct {
	Severity Severity
	// Code is the bracketed compiler code from the marker line, e.g. "E0283".
	Code    string
	Message []string
	File    string
	Line    int
	Links   []LinkSpan
}

// Text returns the message lines joined with newlines.
func (d *Diagnostic) Text() string {
	if d == nil {
		return ""
	}
	return strings.Join(d.Message, "\n")
}

// Summary returns the first message line.
func (d *Diagnostic) Summary() string {
	if d == nil || len(d.Message) == 0 {
		return ""
	}
	return d.Message[0]
}

// Location renders file:line, or an empty string when the block had no location.
func (d *Diagnostic) Location() string {
	if d == nil || d.File == "" {
		return ""
	}
	return fmt.Sprintf("%s:%d", d.File, d.Line)
}

// LinkText returns the substring of Text() covered by l.
// An out-of-range span yields an empty string.
func (d *Diagnostic) LinkText(l LinkSpan) string {
	text := d.Text()
	if l.Start < 0 || l.Length < 0 || l.End() > len(text) {
		return ""
	}
	return text[l.Start:l.End()]
}

// Equal reports value equality.
func (d *Diagnostic) Equal(o *Diagnostic) bool {
	if d == nil || o == nil {
		return d == o
	}
	if d.Severity != o.Severity || d.Code != o.Code || d.File != o.File || d.Line != o.Line {
		return false
	}
	if len(d.Message) != len(o.Message) || len(d.Links) != len(o.Links) {
		return false
	}
	for i := range d.Message {
		if d.Message[i] != o.Message[i] {
			return false
		}
	}
	for i := range d.Links {
		if d.Links[i] != o.Links[i] {
			return false
		}
	}
	return true
}
