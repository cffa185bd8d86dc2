package outparse

import (
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"fortio.org/safecast"
)

var (
	errorMarker   = regexp.MustCompile(`^error(\[(E\d+)\])?: `)
	warningMarker = regexp.MustCompile(`^warning(\[(.\d+)\])?: `)
	// Leading whitespace only; "foo--> a.rs:1:2" is not a location line.
	locationMarker = regexp.MustCompile(`^\s*--> (.*):(\d+):(\d+)`)
	httpLink       = regexp.MustCompile(`https?://[^\s]+`)
)

// parseNumber converts a captured digit run. Values that do not fit an int
// degrade to 0.
func parseNumber(s string) int {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0
	}
	n, err := safecast.Conv[int](v)
	if err != nil {
		return 0
	}
	return n
}

// FileURI builds the link target for a source location.
func FileURI(path string, line, col int) string {
	u := url.URL{
		Scheme:   "file",
		Fragment: fmt.Sprintf("%d:%d", line, col),
	}
	slashed := filepath.ToSlash(path)
	if strings.HasPrefix(slashed, "/") {
		u.Path = slashed
	} else {
		// relative locations stay opaque so the first segment is not read as a host
		u.Opaque = slashed
	}
	return u.String()
}

// HandleLink reports whether href is a web link the host should open in a
// browser rather than resolve as a source location.
func HandleLink(href string) bool {
	loc := httpLink.FindStringIndex(href)
	return loc != nil && loc[0] == 0
}
