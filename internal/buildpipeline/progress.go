package buildpipeline

import (
	"regexp"
	"strings"
)

// cargo prints right-aligned status verbs on stderr, e.g.
// "   Compiling serde v1.0.197".
var progressLine = regexp.MustCompile(`^\s*([A-Z][a-z]+) (.+)$`)

var progressVerbs = map[string]struct {
	stage  Stage
	status Status
}{
	"Updating":    {StageResolve, StatusWorking},
	"Locking":     {StageResolve, StatusWorking},
	"Adding":      {StageResolve, StatusWorking},
	"Downloading": {StageResolve, StatusWorking},
	"Downloaded":  {StageResolve, StatusDone},
	"Blocking":    {StageResolve, StatusQueued},
	"Compiling":   {StageCompile, StatusWorking},
	"Checking":    {StageCompile, StatusWorking},
	"Documenting": {StageCompile, StatusWorking},
	"Fresh":       {StageCompile, StatusDone},
	"Finished":    {StageFinish, StatusDone},
	"Removed":     {StageClean, StatusDone},
	"Cleaned":     {StageClean, StatusDone},
}

// ParseProgress recognizes a cargo status line. The unit is the first two
// words after the verb ("serde v1.0.197") when the verb names a crate.
func ParseProgress(line string) (Event, bool) {
	m := progressLine.FindStringSubmatch(strings.TrimRight(line, "\r"))
	if m == nil {
		return Event{}, false
	}
	kind, ok := progressVerbs[m[1]]
	if !ok {
		return Event{}, false
	}
	ev := Event{Stage: kind.stage, Status: kind.status, Line: line}
	if kind.stage == StageCompile {
		fields := strings.Fields(m[2])
		if len(fields) > 2 {
			fields = fields[:2]
		}
		ev.Unit = strings.Join(fields, " ")
	}
	return ev, true
}
