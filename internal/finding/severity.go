package finding

import (
	"fmt"
	"strings"
)

// Severity is an ordinal rating. Higher values are more severe.
type Severity int

const (
	SeverityLow Severity = iota + 1
	SeverityMedium
	SeverityHigh
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "LOW"
	case SeverityMedium:
		return "MEDIUM"
	case SeverityHigh:
		return "HIGH"
	default:
		return "UNKNOWN"
	}
}

// ParseSeverity converts a case-insensitive name to a Severity. Returns 0 if unrecognized.
func ParseSeverity(s string) Severity {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "LOW":
		return SeverityLow
	case "MEDIUM":
		return SeverityMedium
	case "HIGH":
		return SeverityHigh
	default:
		return 0
	}
}

// Severities lists every valid severity, lowest first.
func Severities() []Severity {
	return []Severity{SeverityLow, SeverityMedium, SeverityHigh}
}

func (s Severity) MarshalText() ([]byte, error) {
	if ParseSeverity(s.String()) == 0 {
		return nil, fmt.Errorf("invalid severity %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *Severity) UnmarshalText(text []byte) error {
	parsed := ParseSeverity(string(text))
	if parsed == 0 {
		return fmt.Errorf("invalid severity %q", string(text))
	}
	*s = parsed
	return nil
}
