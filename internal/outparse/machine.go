package outparse

import (
	"path/filepath"
	"strings"

	"cargoscan/internal/diag"
)

// Result classifies what a machine did with one line.
type Result uint8

const (
	// NotHandled means the line is not part of any diagnostic.
	NotHandled Result = iota
	// InProgress means the line was consumed into the pending block.
	InProgress
	// Done means the line closed a block and a diagnostic was emitted.
	Done
)

func (r Result) String() string {
	switch r {
	case NotHandled:
		return "not-handled"
	case InProgress:
		return "in-progress"
	case Done:
		return "done"
	}
	return "unknown"
}

// State is the machine's coarse state.
type State uint8

const (
	StateIdle State = iota
	StateAccumulating
)

func (s State) String() string {
	if s == StateAccumulating {
		return "accumulating"
	}
	return "idle"
}

// LineStateMachine accumulates one channel's lines into diagnostics.
// It is not safe for concurrent use; give each channel its own machine.
type LineStateMachine struct {
	workDir string

	message []string
	textLen int // length of strings.Join(message, "\n")
	file    string
	line    int
	sev     diag.Severity
	code    string
	links   []diag.LinkSpan
}

// NewLineStateMachine returns an idle machine. Relative locations are
// resolved against workDir when it is non-empty.
func NewLineStateMachine(workDir string) *LineStateMachine {
	return &LineStateMachine{workDir: workDir}
}

// State reports whether a block is pending.
func (m *LineStateMachine) State() State {
	if len(m.message) == 0 {
		return StateIdle
	}
	return StateAccumulating
}

// PendingSeverity returns the severity of the pending block.
func (m *LineStateMachine) PendingSeverity() diag.Severity {
	return m.sev
}

// Feed consumes one line (without its terminator). When the line closes a
// block the emitted diagnostic is returned alongside Done.
func (m *LineStateMachine) Feed(line string) (Result, *diag.Diagnostic) {
	line = strings.TrimSuffix(line, "\r")

	if sub := errorMarker.FindStringSubmatch(line); sub != nil {
		m.sev = diag.SevError
		m.setCode(sub[2])
		m.appendLine(line)
		return InProgress, nil
	}

	if sub := warningMarker.FindStringSubmatch(line); sub != nil {
		m.sev = diag.SevWarning
		m.setCode(sub[2])
		m.appendLine(line)
		return InProgress, nil
	}

	if loc := locationMarker.FindStringSubmatchIndex(line); loc != nil {
		m.recordLocation(line, loc)
		return InProgress, nil
	}

	if len(m.message) == 0 {
		return NotHandled, nil
	}

	if strings.TrimSpace(line) != "" {
		m.appendLine(line)
		return InProgress, nil
	}

	return Done, m.emit()
}

// Flush emits the pending block, if any, as if a blank line had arrived.
func (m *LineStateMachine) Flush() *diag.Diagnostic {
	if len(m.message) == 0 {
		return nil
	}
	return m.emit()
}

// Reset drops the pending block without emitting it.
func (m *LineStateMachine) Reset() {
	m.message = nil
	m.textLen = 0
	m.file = ""
	m.line = 0
	m.sev = diag.SevUnknown
	m.code = ""
	m.links = nil
}

func (m *LineStateMachine) setCode(code string) {
	if m.code == "" {
		m.code = code
	}
}

// nextOffset is where a line appended now will start in the joined text.
func (m *LineStateMachine) nextOffset() int {
	if len(m.message) == 0 {
		return 0
	}
	return m.textLen + 1
}

func (m *LineStateMachine) appendLine(line string) {
	start := m.nextOffset()
	for _, loc := range httpLink.FindAllStringIndex(line, -1) {
		m.links = append(m.links, diag.LinkSpan{
			Start:  start + loc[0],
			Length: loc[1] - loc[0],
			Target: line[loc[0]:loc[1]],
		})
	}
	m.message = append(m.message, line)
	m.textLen = start + len(line)
}

func (m *LineStateMachine) recordLocation(line string, loc []int) {
	path := line[loc[2]:loc[3]]
	lineNo := parseNumber(line[loc[4]:loc[5]])
	col := parseNumber(line[loc[6]:loc[7]])

	resolved := m.resolve(path)
	m.links = append(m.links, diag.LinkSpan{
		Start:  m.nextOffset() + loc[2],
		Length: loc[3] - loc[2],
		Target: FileURI(resolved, lineNo, col),
	})
	if m.file == "" {
		m.file = resolved
		m.line = lineNo
	}
	m.appendLine(line)
}

func (m *LineStateMachine) resolve(path string) string {
	if m.workDir == "" || path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(m.workDir, path)
}

func (m *LineStateMachine) emit() *diag.Diagnostic {
	sev := m.sev
	if sev == diag.SevUnknown {
		// block opened by a bare location line
		sev = diag.SevWarning
	}
	d := &diag.Diagnostic{
		Severity: sev,
		Code:     m.code,
		Message:  m.message,
		File:     m.file,
		Line:     m.line,
		Links:    m.links,
	}
	m.Reset()
	return d
}
