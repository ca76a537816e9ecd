package detector

import (
	"fmt"
	"strconv"
	"strings"

	"darkmatter/internal/finding"
	"darkmatter/internal/parser"

	sitter "github.com/smacker/go-tree-sitter"
)

// PhantomLoopDetector reports loops that claim unbounded iteration but always exit
// during their first pass.
type PhantomLoopDetector struct{}

func NewPhantomLoopDetector(Options) *PhantomLoopDetector {
	return &PhantomLoopDetector{}
}

func (d *PhantomLoopDetector) Kind() finding.Kind { return finding.KindPhantomLoop }

func (d *PhantomLoopDetector) Detect(tree *parser.Tree) ([]finding.Finding, error) {
	var findings []finding.Finding

	parser.Walk(tree.Root, func(n *sitter.Node) bool {
		var sub finding.Subtype
		switch n.Type() {
		case "while_statement":
			if !alwaysTrue(parser.Unparen(n.ChildByFieldName("condition")), tree.Source) {
				return true
			}
			sub = finding.SubtypeUnconditionalLoopExit
		case "for_statement":
			if !infiniteIterator(parser.Unparen(n.ChildByFieldName("right")), tree.Source) {
				return true
			}
			sub = finding.SubtypeInfiniteIteratorLoopExit
		default:
			return true
		}

		exit := immediateExit(n.ChildByFieldName("body"))
		if exit == "" {
			return true
		}
		f := newFinding(tree, n, finding.KindPhantomLoop, sub, finding.SeverityMedium)
		f.Message = fmt.Sprintf("loop claims infinity but %ss on its first pass", exit)
		findings = append(findings, f.WithMeta("exit", exit))
		return true
	})

	finding.Sort(findings)
	return findings, nil
}

// alwaysTrue reports whether a loop condition is a literal truthy value.
func alwaysTrue(cond *sitter.Node, src []byte) bool {
	if cond == nil {
		return false
	}
	switch cond.Type() {
	case "true":
		return true
	case "integer", "float":
		text := strings.ReplaceAll(cond.Content(src), "_", "")
		if v, err := strconv.ParseFloat(text, 64); err == nil {
			return v != 0
		}
		if v, err := strconv.ParseInt(text, 0, 64); err == nil {
			return v != 0
		}
	case "string":
		text := strings.TrimLeft(cond.Content(src), "rRbBuUfF")
		return len(strings.Trim(text, `"'`)) > 0
	}
	return false
}

// infiniteIterator recognises itertools.count(), itertools.cycle(x) and the
// single-argument itertools.repeat(x).
func infiniteIterator(iter *sitter.Node, src []byte) bool {
	if iter == nil || iter.Type() != "call" {
		return false
	}
	recv, name := parser.CallTarget(iter, src)
	if recv != "" && recv != "itertools" {
		return false
	}
	switch name {
	case "count", "cycle":
		return true
	case "repeat":
		return len(parser.Arguments(iter)) == 1
	}
	return false
}

// immediateExit scans the loop body's own statements in order and returns the
// terminator (break, return or raise) reached unconditionally on the first pass.
// A statement that may continue the loop before that point keeps it open.
func immediateExit(body *sitter.Node) string {
	for _, stmt := range parser.Statements(body) {
		switch stmt.Type() {
		case "break_statement":
			return "break"
		case "return_statement":
			return "return"
		case "raise_statement":
			return "raise"
		case "continue_statement":
			return ""
		}
		if continuesLoop(stmt) {
			return ""
		}
	}
	return ""
}

// continuesLoop reports whether stmt holds a continue that targets the enclosing loop.
func continuesLoop(stmt *sitter.Node) bool {
	found := false
	parser.Walk(stmt, func(n *sitter.Node) bool {
		if found || skipNested(n) {
			return false
		}
		switch n.Type() {
		case "continue_statement":
			found = true
			return false
		case "while_statement", "for_statement":
			return false
		}
		return true
	})
	return found
}
