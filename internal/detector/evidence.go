package detector

import (
	"fmt"
	"strings"

	"darkmatter/internal/finding"
	"darkmatter/internal/parser"

	sitter "github.com/smacker/go-tree-sitter"
)

var defaultLoggingNames = []string{
	"log", "debug", "info", "warning", "warn", "error", "critical", "exception", "fatal",
	"print", "print_exc", "print_exception", "format_exc", "capture_exception",
	"capture_message", "report",
}

// catchAllTypes are exception filters that match every error.
var catchAllTypes = newNameSet([]string{"Exception", "BaseException"})

// SilentFailureDetector reports exception handlers that suppress diagnostic information.
type SilentFailureDetector struct {
	logging nameSet
}

func NewSilentFailureDetector(opts Options) *SilentFailureDetector {
	return &SilentFailureDetector{logging: newNameSet(defaultLoggingNames, opts.LoggingNames)}
}

func (d *SilentFailureDetector) Kind() finding.Kind { return finding.KindSilentFailure }

func (d *SilentFailureDetector) Detect(tree *parser.Tree) ([]finding.Finding, error) {
	var findings []finding.Finding

	parser.Walk(tree.Root, func(n *sitter.Node) bool {
		switch n.Type() {
		case "except_clause", "except_group_clause":
		default:
			return true
		}

		h := parseHandler(n, tree.Source)
		if h.body == nil {
			return true
		}
		if d.informative(h, tree.Source) {
			return true
		}

		catchAll := isCatchAll(h.filter, tree.Source)
		var sub finding.Subtype
		var sev finding.Severity
		switch {
		case catchAll && isNoOp(h.body):
			sub, sev = finding.SubtypeSwallowedException, finding.SeverityHigh
		case catchAll:
			sub, sev = finding.SubtypeCatchAllWithoutLogging, finding.SeverityMedium
		default:
			sub, sev = finding.SubtypeTypedSilentHandler, finding.SeverityLow
		}

		f := newFinding(tree, n, finding.KindSilentFailure, sub, sev)
		handled := "*"
		if h.filter != nil {
			handled = tree.Text(h.filter)
		}
		f.Message = fmt.Sprintf("handler for %s neither logs, re-raises nor uses the error", handled)
		f = f.WithMeta("handles", handled)
		if h.alias != "" {
			f = f.WithMeta("bound", h.alias)
		}
		findings = append(findings, f)
		return true
	})

	finding.Sort(findings)
	return findings, nil
}

type handler struct {
	filter *sitter.Node
	alias  string
	body   *sitter.Node
}

// parseHandler reads `except T as e:` in both the older positional grammar shape
// and the newer as_pattern shape.
func parseHandler(n *sitter.Node, src []byte) handler {
	var h handler
	var exprs []*sitter.Node
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		switch child.Type() {
		case "block":
			h.body = child
		case "comment":
		default:
			exprs = append(exprs, child)
		}
	}
	if len(exprs) == 0 {
		return h
	}
	if exprs[0].Type() == "as_pattern" {
		pattern := exprs[0]
		h.filter = pattern.NamedChild(0)
		if alias := pattern.ChildByFieldName("alias"); alias != nil {
			h.alias = strings.TrimSpace(alias.Content(src))
		}
		return h
	}
	h.filter = exprs[0]
	if len(exprs) > 1 {
		h.alias = exprs[1].Content(src)
	}
	return h
}

func isCatchAll(filter *sitter.Node, src []byte) bool {
	filter = parser.Unparen(filter)
	if filter == nil {
		return true
	}
	switch filter.Type() {
	case "identifier":
		return catchAllTypes.has(filter.Content(src))
	case "attribute":
		if attr := filter.ChildByFieldName("attribute"); attr != nil {
			return catchAllTypes.has(attr.Content(src))
		}
	case "tuple":
		for _, elem := range parser.Statements(filter) {
			if isCatchAll(elem, src) {
				return true
			}
		}
	}
	return false
}

// isNoOp reports whether a handler body only passes, loops on, or holds literals.
func isNoOp(body *sitter.Node) bool {
	for _, stmt := range parser.Statements(body) {
		switch stmt.Type() {
		case "pass_statement", "continue_statement", "break_statement":
			continue
		case "expression_statement":
			exprs := parser.Statements(stmt)
			if len(exprs) == 1 && (exprs[0].Type() == "ellipsis" || exprs[0].Type() == "string") {
				continue
			}
		}
		return false
	}
	return true
}

// informative reports whether the handler logs, re-raises or reads the caught error.
func (d *SilentFailureDetector) informative(h handler, src []byte) bool {
	found := false
	parser.Walk(h.body, func(n *sitter.Node) bool {
		if found {
			return false
		}
		switch n.Type() {
		case "raise_statement":
			found = true
		case "call":
			recv, name := parser.CallTarget(n, src)
			if d.logging.has(name) || isLoggerReceiver(recv) {
				found = true
			}
		case "identifier":
			if h.alias != "" && n.Content(src) == h.alias {
				found = true
			}
		}
		return !found
	})
	return found
}

func isLoggerReceiver(recv string) bool {
	r := strings.ToLower(recv)
	return r == "logging" || r == "log" || strings.HasSuffix(r, "logger") || r == "warnings" || r == "traceback"
}
