package detector

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"unicode"

	"darkmatter/internal/finding"
	"darkmatter/internal/parser"

	sitter "github.com/smacker/go-tree-sitter"
)

var defaultHyperparameterNames = []string{
	"rate", "factor", "weight", "weights", "alpha", "beta", "gamma", "lambda", "lam",
	"lr", "eps", "epsilon", "decay", "momentum", "temperature", "threshold", "ratio",
	"coef", "coeff", "coefficient", "penalty", "scale", "dropout", "tolerance", "tol",
	"smoothing", "margin", "bias",
}

// sizeWords mark keyword arguments and constant names that bound a length.
var sizeWords = newNameSet([]string{
	"size", "limit", "max", "min", "len", "length", "capacity", "buffer", "bufsize",
	"maxsize", "maxlen", "chunk", "count", "batch", "window", "depth",
})

// bufferCalls take a fixed byte or element count as their argument.
var bufferCalls = newNameSet([]string{
	"read", "read1", "readline", "readlines", "recv", "recvfrom", "recv_into",
	"bytearray", "zeros", "ones", "empty", "truncate",
})

// MagicConstantDetector reports numeric literals in semantically loaded positions.
type MagicConstantDetector struct {
	hyper nameSet
}

func NewMagicConstantDetector(opts Options) *MagicConstantDetector {
	return &MagicConstantDetector{hyper: newNameSet(defaultHyperparameterNames, opts.HyperparameterNames)}
}

func (d *MagicConstantDetector) Kind() finding.Kind { return finding.KindMagicConstant }

type magicCandidate struct {
	node    *sitter.Node
	raw     string
	key     string
	subtype finding.Subtype
	name    string
}

func (d *MagicConstantDetector) Detect(tree *parser.Tree) ([]finding.Finding, error) {
	usage := collectNameUsage(tree)
	occurrences := make(map[string]int)
	var candidates []magicCandidate

	parser.Walk(tree.Root, func(n *sitter.Node) bool {
		if !parser.IsNumber(n) {
			return true
		}
		lit, raw, value, ok := numericLiteral(n, tree.Source)
		if !ok {
			return false
		}
		key := strconv.FormatFloat(value, 'g', -1, 64)
		occurrences[key]++
		if value == 0 || value == 1 || value == -1 {
			return false
		}
		if sub, name, loaded := d.classify(lit, tree, usage); loaded {
			candidates = append(candidates, magicCandidate{node: lit, raw: raw, key: key, subtype: sub, name: name})
		}
		return false
	})

	var findings []finding.Finding
	for _, c := range candidates {
		comment := explanation(tree, c.node)
		origin := finding.OriginArbitrary
		sev := finding.SeverityMedium
		switch {
		case comment != "":
			origin = finding.OriginDocumented
			sev = finding.SeverityLow
		case occurrences[c.key] >= 2:
			sev = finding.SeverityHigh
		}

		f := newFinding(tree, c.node, finding.KindMagicConstant, c.subtype, sev)
		f.Origin = origin
		f.RawValue = c.raw
		f.Message = fmt.Sprintf("magic constant %s used as %s", c.raw, c.subtype)
		if origin == finding.OriginArbitrary {
			f.Message += " without explanation"
		}
		f = f.WithMeta("occurrences", strconv.Itoa(occurrences[c.key]))
		if c.name != "" {
			f = f.WithMeta("name", c.name)
		}
		if comment != "" {
			f = f.WithMeta("comment", comment)
		}
		findings = append(findings, f)
	}
	finding.Sort(findings)
	return findings, nil
}

// numericLiteral resolves a number node, folding a unary sign into it. Complex
// literals are not magic constants. Integers wider than 64 bits are approximated.
func numericLiteral(n *sitter.Node, src []byte) (lit *sitter.Node, raw string, value float64, ok bool) {
	text := strings.ToLower(strings.ReplaceAll(n.Content(src), "_", ""))
	if strings.HasSuffix(text, "j") {
		return nil, "", 0, false
	}
	text = strings.TrimSuffix(text, "l")

	if i, err := strconv.ParseInt(text, 0, 64); err == nil {
		value = float64(i)
	} else if f, err := strconv.ParseFloat(text, 64); err == nil {
		value = f
	} else if b, valid := new(big.Int).SetString(text, 0); valid {
		value, _ = new(big.Float).SetInt(b).Float64()
	} else {
		return nil, "", 0, false
	}

	lit = n
	raw = n.Content(src)
	if p := n.Parent(); p != nil && p.Type() == "unary_operator" {
		switch parser.Operator(p, src) {
		case "-":
			lit, raw, value = p, "-"+raw, -value
		case "+":
			lit = p
		}
	}
	return lit, raw, value, true
}

// loadedParent returns the nearest ancestor of lit that is not a parenthesis.
func loadedParent(lit *sitter.Node) (parent, child *sitter.Node) {
	child = lit
	parent = lit.Parent()
	for parent != nil && parent.Type() == "parenthesized_expression" {
		child = parent
		parent = parent.Parent()
	}
	return parent, child
}

// classify applies the subtype rules in priority order: comparison, scaling factor,
// size bound, hyperparameter-like name, other loaded assignment.
func (d *MagicConstantDetector) classify(lit *sitter.Node, tree *parser.Tree, usage nameUsage) (finding.Subtype, string, bool) {
	parent, child := loadedParent(lit)
	if parent == nil {
		return "", "", false
	}
	src := tree.Source

	switch parent.Type() {
	case "comparison_operator":
		return finding.SubtypeThreshold, "", true

	case "binary_operator":
		switch parser.Operator(parent, src) {
		case "*", "/", "//", "%":
			return finding.SubtypeMultiplier, "", true
		}
		return "", "", false

	case "augmented_assignment":
		switch parser.Operator(parent, src) {
		case "*=", "/=", "//=":
			return finding.SubtypeMultiplier, "", true
		}
		// counters and accumulators
		return "", "", false

	case "slice":
		return finding.SubtypeSizeLimit, "", true

	case "subscript":
		if value := parent.ChildByFieldName("value"); value != nil && sameNode(value, child) {
			return "", "", false
		}
		return finding.SubtypeSizeLimit, "", true

	case "argument_list":
		call := parent.Parent()
		if call == nil || call.Type() != "call" {
			return "", "", false
		}
		if _, name := parser.CallTarget(call, src); bufferCalls.has(name) {
			return finding.SubtypeSizeLimit, "", true
		}
		return "", "", false

	case "keyword_argument", "default_parameter", "typed_default_parameter":
		nameNode := parent.ChildByFieldName("name")
		value := parent.ChildByFieldName("value")
		if nameNode == nil || value == nil || !sameNode(value, child) {
			return "", "", false
		}
		name := tree.Text(nameNode)
		if d.isHyperparameter(name) {
			return finding.SubtypeHyperparameter, name, true
		}
		if isSizeName(name) {
			return finding.SubtypeSizeLimit, name, true
		}
		return "", "", false

	case "assignment":
		right := parent.ChildByFieldName("right")
		if right == nil || !sameNode(right, child) {
			return "", "", false
		}
		name := assignedName(parent.ChildByFieldName("left"), src)
		if name == "" {
			return "", "", false
		}
		return d.classifyAssignment(name, usage)
	}
	return "", "", false
}

// classifyAssignment handles `NAME = literal`. Only upper-case names, hyperparameter
// names and names later compared against are considered loaded.
func (d *MagicConstantDetector) classifyAssignment(name string, usage nameUsage) (finding.Subtype, string, bool) {
	if d.isHyperparameter(name) {
		return finding.SubtypeHyperparameter, name, true
	}
	switch {
	case usage.compared[name]:
		return finding.SubtypeThreshold, name, true
	case !isUpperName(name):
		return "", "", false
	case usage.scaled[name]:
		return finding.SubtypeMultiplier, name, true
	case usage.bounded[name] || isSizeName(name):
		return finding.SubtypeSizeLimit, name, true
	}
	return finding.SubtypeUnknown, name, true
}

func (d *MagicConstantDetector) isHyperparameter(name string) bool {
	for _, tok := range nameTokens(name) {
		if d.hyper.has(tok) {
			return true
		}
	}
	return d.hyper.has(name)
}

func isSizeName(name string) bool {
	for _, tok := range nameTokens(name) {
		if sizeWords.has(tok) {
			return true
		}
	}
	return false
}

// assignedName returns the target name of a simple assignment, `x` or `self.x`.
func assignedName(left *sitter.Node, src []byte) string {
	if left == nil {
		return ""
	}
	switch left.Type() {
	case "identifier":
		return left.Content(src)
	case "attribute":
		if attr := left.ChildByFieldName("attribute"); attr != nil {
			return attr.Content(src)
		}
	}
	return ""
}

// nameUsage records where identifiers are read in loaded positions.
type nameUsage struct {
	compared map[string]bool
	scaled   map[string]bool
	bounded  map[string]bool
}

func collectNameUsage(tree *parser.Tree) nameUsage {
	u := nameUsage{
		compared: make(map[string]bool),
		scaled:   make(map[string]bool),
		bounded:  make(map[string]bool),
	}
	parser.Walk(tree.Root, func(n *sitter.Node) bool {
		var name string
		switch n.Type() {
		case "identifier":
			name = tree.Text(n)
		case "attribute":
			name = assignedName(n, tree.Source)
		default:
			return true
		}
		parent, _ := loadedParent(n)
		if parent == nil {
			return true
		}
		switch parent.Type() {
		case "comparison_operator":
			u.compared[name] = true
		case "binary_operator":
			switch parser.Operator(parent, tree.Source) {
			case "*", "/", "//", "%":
				u.scaled[name] = true
			}
		case "slice":
			u.bounded[name] = true
		}
		return n.Type() == "attribute"
	})
	return u
}

// explanation returns the comment documenting the literal: a trailing comment on its
// line or a comment block directly above its line or above its statement.
func explanation(tree *parser.Tree, lit *sitter.Node) string {
	line := parser.Line(lit)
	candidates := []string{tree.TrailingComment(line), tree.PrecedingComment(line)}
	if stmt := enclosingStatement(lit); stmt != nil {
		if start := parser.Line(stmt); start != line {
			candidates = append(candidates, tree.TrailingComment(start), tree.PrecedingComment(start))
		}
	}
	for _, c := range candidates {
		if isExplanatory(c) {
			return c
		}
	}
	return ""
}

func enclosingStatement(n *sitter.Node) *sitter.Node {
	for p := n; p != nil; p = p.Parent() {
		parent := p.Parent()
		if parent == nil {
			return nil
		}
		switch parent.Type() {
		case "block", "module":
			return p
		}
	}
	return nil
}

var commentDirectives = []string{"noqa", "type:", "pylint:", "pragma", "fmt:", "isort:", "mypy:", "nosec"}

// isExplanatory reports whether a comment contains prose rather than a tool directive
// or a bare number. Any word of three or more letters counts as prose.
func isExplanatory(comment string) bool {
	for _, line := range strings.Split(comment, "\n") {
		c := strings.ToLower(strings.TrimSpace(line))
		directive := false
		for _, d := range commentDirectives {
			if strings.HasPrefix(c, d) {
				directive = true
				break
			}
		}
		if directive {
			continue
		}
		run := 0
		for _, r := range c {
			if unicode.IsLetter(r) {
				run++
				if run >= 3 {
					return true
				}
			} else {
				run = 0
			}
		}
	}
	return false
}
