package diagfmt

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"

	"cargoscan/internal/diag"
)

type palette struct {
	err      *color.Color
	warn     *color.Color
	location *color.Color
	gutter   *color.Color
	link     *color.Color
}

func newPalette(enabled bool) palette {
	p := palette{
		err:      color.New(color.FgRed, color.Bold),
		warn:     color.New(color.FgYellow, color.Bold),
		location: color.New(color.Bold),
		gutter:   color.New(color.FgBlue),
		link:     color.New(color.FgCyan, color.Underline),
	}
	for _, c := range []*color.Color{p.err, p.warn, p.location, p.gutter, p.link} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

func (p palette) severity(s diag.Severity) *color.Color {
	if s == diag.SevError {
		return p.err
	}
	return p.warn
}

// Pretty writes human-readable diagnostics:
//
//	src/main.rs:4: error[E0425]: cannot find value `x` in this scope
//	  --> src/main.rs:4:13
//	   |
//
// followed by optional source context and link targets.
func Pretty(w io.Writer, bag *diag.Bag, opts PrettyOpts) error {
	if bag == nil {
		return nil
	}
	p := newPalette(opts.Color)
	src := sourceCache{}
	bw := bufio.NewWriter(w)

	for i, d := range bag.Items() {
		if i > 0 {
			bw.WriteByte('\n')
		}
		writeHeader(bw, p, d, opts)
		for _, line := range d.Message[min(1, len(d.Message)):] {
			bw.WriteString(clip("  "+line, opts.Width))
			bw.WriteByte('\n')
		}
		if opts.Context > 0 && d.File != "" && d.Line > 0 {
			writeContext(bw, p, src.lines(resolve(d.File, opts.BaseDir)), d.Line, opts)
		}
		if opts.ShowLinks {
			for _, l := range d.Links {
				fmt.Fprintf(bw, "  = %s: %s\n", d.LinkText(l), p.link.Sprint(l.Target))
			}
		}
	}
	if opts.Summary {
		if bag.Len() > 0 {
			bw.WriteByte('\n')
		}
		bw.WriteString(Summary(bag))
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

func writeHeader(w *bufio.Writer, p palette, d *diag.Diagnostic, opts PrettyOpts) {
	if d.File != "" {
		loc := formatPath(d.File, opts.PathMode, opts.BaseDir) + ":" + strconv.Itoa(d.Line)
		w.WriteString(p.location.Sprint(loc))
		w.WriteString(": ")
	}
	label := strings.ToLower(d.Severity.String())
	if d.Code != "" {
		label += "[" + d.Code + "]"
	}
	w.WriteString(p.severity(d.Severity).Sprint(label))
	w.WriteString(": ")
	w.WriteString(d.Summary())
	w.WriteByte('\n')
}

func writeContext(w *bufio.Writer, p palette, lines []string, line int, opts PrettyOpts) {
	if len(lines) == 0 || line > len(lines) {
		return
	}
	first := max(1, line-opts.Context)
	last := min(len(lines), line+opts.Context)
	width := len(strconv.Itoa(last))
	for n := first; n <= last; n++ {
		marker := " "
		if n == line {
			marker = ">"
		}
		gutter := fmt.Sprintf("%s%*d | ", marker, width, n)
		text := strings.ReplaceAll(lines[n-1], "\t", "    ")
		if opts.Width > 0 {
			text = clip(text, opts.Width-runewidth.StringWidth(gutter))
		}
		w.WriteString(p.gutter.Sprint(gutter))
		w.WriteString(text)
		w.WriteByte('\n')
	}
}

// Summary renders "N errors, M warnings" with singular forms.
func Summary(bag *diag.Bag) string {
	if bag == nil {
		return plural(0, "error") + ", " + plural(0, "warning")
	}
	return plural(bag.Count(diag.SevError), "error") + ", " + plural(bag.Count(diag.SevWarning), "warning")
}

func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return strconv.Itoa(n) + " " + noun + "s"
}

func clip(s string, width int) string {
	if width <= 0 || runewidth.StringWidth(s) <= width {
		return s
	}
	if width <= 3 {
		return runewidth.Truncate(s, width, "")
	}
	return runewidth.Truncate(s, width, "...")
}

func resolve(path, base string) string {
	if base == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}

// sourceCache reads each referenced file once per Pretty call.
type sourceCache map[string][]string

func (c sourceCache) lines(path string) []string {
	if lines, ok := c[path]; ok {
		return lines
	}
	data, err := os.ReadFile(path)
	var lines []string
	if err == nil {
		lines = strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	}
	c[path] = lines
	return lines
}
