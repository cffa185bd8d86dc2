package diag

// Severity defines the importance of a diagnostic.
type Severity uint8

const (
	// SevUnknown is the zero value; emitted diagnostics never carry it.
	SevUnknown Severity = iota
	// SevWarning is for warning diagnostics.
	SevWarning
	SevError
)

func (s Severity) String() string {
	switch s {
	case SevWarning:
		return "WARNING"
	case SevError:
		return "ERROR"
	}
	return "UNKNOWN"
}

// ParseSeverity maps the lowercase marker used by the compiler to a Severity.
func ParseSeverity(s string) Severity {
	switch s {
	case "error", "ERROR":
		return SevError
	case "warning", "WARNING":
		return SevWarning
	}
	return SevUnknown
}
