package finding

import (
	"fmt"
	"sort"
	"strings"
)

// Kind names a detected pattern family.
type Kind string

const (
	KindMagicConstant   Kind = "magic-constant"
	KindPhantomLoop     Kind = "phantom-loop"
	KindDeadComputation Kind = "dead-computation"
	KindSilentFailure   Kind = "silent-failure"

	// Diagnostic kinds record inputs that could not be analysed.
	KindUnparsableFile Kind = "unparsable-file"
	KindDetectorFailed Kind = "detector-failed"
	KindInvalidTarget  Kind = "invalid-target"
)

// IsDiagnostic reports whether k records an analysis failure rather than a code pattern.
func (k Kind) IsDiagnostic() bool {
	switch k {
	case KindUnparsableFile, KindDetectorFailed, KindInvalidTarget:
		return true
	}
	return false
}

// Subtype is the finer classification inside a Kind.
type Subtype string

const (
	// magic-constant
	SubtypeThreshold      Subtype = "threshold"
	SubtypeMultiplier     Subtype = "multiplier"
	SubtypeSizeLimit      Subtype = "size_limit"
	SubtypeHyperparameter Subtype = "hyperparameter"
	SubtypeUnknown        Subtype = "unknown"

	// phantom-loop
	SubtypeUnconditionalLoopExit    Subtype = "unconditional-loop-with-immediate-exit"
	SubtypeInfiniteIteratorLoopExit Subtype = "infinite-iterator-with-immediate-exit"

	// dead-computation
	SubtypeDiscardedCall        Subtype = "discarded-call"
	SubtypeDiscardedExpression  Subtype = "discarded-expression"
	SubtypeUnusedFunctionResult Subtype = "unused-function-result"
	SubtypeEmptyLoop            Subtype = "empty-loop"
	SubtypeNoEffectFunction     Subtype = "no-effect-function"

	// silent-failure
	SubtypeSwallowedException     Subtype = "swallowed-exception"
	SubtypeCatchAllWithoutLogging Subtype = "catch-all-without-logging"
	SubtypeTypedSilentHandler     Subtype = "typed-silent-handler"
)

// Origin tells whether a magic constant carries an explanatory comment.
type Origin string

const (
	OriginDocumented Origin = "documented"
	OriginArbitrary  Origin = "arbitrary"
)

// Finding is one reported occurrence of a pattern. It is a plain value and holds
// no reference to the syntax tree it was produced from.
type Finding struct {
	Kind     Kind              `json:"kind"`
	Subtype  Subtype           `json:"subtype,omitempty"`
	Severity Severity          `json:"severity"`
	Line     int               `json:"line"`
	Column   int               `json:"column,omitempty"`
	Scope    string            `json:"scope,omitempty"`
	Evidence string            `json:"evidence,omitempty"`
	Origin   Origin            `json:"origin,omitempty"`
	RawValue string            `json:"raw_value,omitempty"`
	Message  string            `json:"message,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// WithMeta returns a copy of f with key set in its metadata.
func (f Finding) WithMeta(key, value string) Finding {
	meta := make(map[string]string, len(f.Metadata)+1)
	for k, v := range f.Metadata {
		meta[k] = v
	}
	meta[key] = value
	f.Metadata = meta
	return f
}

// Meta returns the metadata value for key, or "".
func (f Finding) Meta(key string) string {
	return f.Metadata[key]
}

func (f Finding) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d: %s", f.Line, f.Kind)
	if f.Subtype != "" {
		fmt.Fprintf(&b, "/%s", f.Subtype)
	}
	fmt.Fprintf(&b, " [%s]", f.Severity)
	if f.Message != "" {
		fmt.Fprintf(&b, " %s", f.Message)
	}
	return b.String()
}

// Diagnostic builds a LOW finding recording that something could not be analysed.
func Diagnostic(kind Kind, line int, message string) Finding {
	return Finding{
		Kind:     kind,
		Severity: SeverityLow,
		Line:     line,
		Scope:    "module",
		Message:  message,
	}
}

// Sort orders findings by source position. Ties are broken on kind and subtype so
// that the result never depends on the order detectors appended them in.
func Sort(findings []Finding) {
	sort.SliceStable(findings, func(i, j int) bool {
		a, b := findings[i], findings[j]
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		if a.Column != b.Column {
			return a.Column < b.Column
		}
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		return a.Subtype < b.Subtype
	})
}
