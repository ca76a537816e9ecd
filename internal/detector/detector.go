package detector

import (
	"strings"
	"unicode"

	"darkmatter/internal/finding"
	"darkmatter/internal/parser"

	sitter "github.com/smacker/go-tree-sitter"
)

// Detector walks one syntax tree and reports the findings of a single pattern kind.
// Implementations hold no per-tree state and are safe for concurrent use.
type Detector interface {
	Kind() finding.Kind
	Detect(tree *parser.Tree) ([]finding.Finding, error)
}

// Options extends the built-in name tables of the detectors.
type Options struct {
	HyperparameterNames []string `yaml:"hyperparameter_names"`
	SideEffectNames     []string `yaml:"side_effect_names"`
	LoggingNames        []string `yaml:"logging_names"`
}

// newFinding fills the location fields of a finding from node n.
func newFinding(tree *parser.Tree, n *sitter.Node, kind finding.Kind, sub finding.Subtype, sev finding.Severity) finding.Finding {
	line := parser.Line(n)
	return finding.Finding{
		Kind:     kind,
		Subtype:  sub,
		Severity: sev,
		Line:     line,
		Column:   parser.Column(n),
		Scope:    parser.Scope(n, tree.Source),
		Evidence: tree.LineText(line),
	}
}

// nameSet is a case-insensitive set of identifiers.
type nameSet map[string]struct{}

func newNameSet(groups ...[]string) nameSet {
	s := make(nameSet)
	for _, g := range groups {
		for _, name := range g {
			s[strings.ToLower(name)] = struct{}{}
		}
	}
	return s
}

func (s nameSet) has(name string) bool {
	_, ok := s[strings.ToLower(name)]
	return ok
}

// nameTokens splits snake_case and camelCase identifiers into lower-case words.
func nameTokens(name string) []string {
	var tokens []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			tokens = append(tokens, strings.ToLower(string(cur)))
			cur = cur[:0]
		}
	}
	runes := []rune(name)
	for i, r := range runes {
		switch {
		case r == '_' || unicode.IsDigit(r):
			flush()
		case unicode.IsUpper(r) && i > 0 && unicode.IsLower(runes[i-1]):
			flush()
			cur = append(cur, r)
		default:
			cur = append(cur, r)
		}
	}
	flush()
	return tokens
}

// isUpperName reports whether name looks like a module constant (MAX_SIZE).
func isUpperName(name string) bool {
	hasLetter := false
	for _, r := range name {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsLetter(r) {
			hasLetter = true
		}
	}
	return hasLetter
}

// skipNested stops a walk from descending into nested scopes.
func skipNested(n *sitter.Node) bool {
	switch n.Type() {
	case "function_definition", "lambda", "class_definition":
		return true
	}
	return false
}

// sameNode reports whether a and b are the same node of one tree.
func sameNode(a, b *sitter.Node) bool {
	return a.StartByte() == b.StartByte() && a.EndByte() == b.EndByte() && a.Type() == b.Type()
}
