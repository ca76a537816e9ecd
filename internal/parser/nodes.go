package parser

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// Walk visits n and its named descendants depth-first in source order.
// Returning false from fn skips the children of the visited node.
func Walk(n *sitter.Node, fn func(*sitter.Node) bool) {
	if n == nil {
		return
	}
	cursor := sitter.NewTreeCursor(n)
	defer cursor.Close()

	var visit func(*sitter.TreeCursor)
	visit = func(c *sitter.TreeCursor) {
		node := c.CurrentNode()
		if node.IsNamed() && !fn(node) {
			return
		}
		if c.GoToFirstChild() {
			visit(c)
			for c.GoToNextSibling() {
				visit(c)
			}
			c.GoToParent()
		}
	}
	visit(cursor)
}

// Line returns the 1-based line n starts on.
func Line(n *sitter.Node) int {
	return int(n.StartPoint().Row) + 1
}

// Column returns the 1-based column n starts on.
func Column(n *sitter.Node) int {
	return int(n.StartPoint().Column) + 1
}

// Statements returns the statements of a block, without comments.
func Statements(block *sitter.Node) []*sitter.Node {
	if block == nil {
		return nil
	}
	var stmts []*sitter.Node
	for i := 0; i < int(block.NamedChildCount()); i++ {
		child := block.NamedChild(i)
		if child.Type() == "comment" {
			continue
		}
		stmts = append(stmts, child)
	}
	return stmts
}

// Unparen strips any number of enclosing parentheses.
func Unparen(n *sitter.Node) *sitter.Node {
	for n != nil && n.Type() == "parenthesized_expression" && n.NamedChildCount() > 0 {
		n = n.NamedChild(0)
	}
	return n
}

// IsNumber reports whether n is an integer or float literal.
func IsNumber(n *sitter.Node) bool {
	if n == nil {
		return false
	}
	switch n.Type() {
	case "integer", "float":
		return true
	}
	return false
}

// Operator returns the operator token of a unary, binary, boolean or augmented
// assignment node.
func Operator(n *sitter.Node, src []byte) string {
	if op := n.ChildByFieldName("operator"); op != nil {
		return op.Content(src)
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if !child.IsNamed() {
			return child.Content(src)
		}
	}
	return ""
}

// CallTarget splits the callee of a call node into receiver and name:
// `log.info(x)` yields ("log", "info"), `run()` yields ("", "run").
func CallTarget(call *sitter.Node, src []byte) (receiver, name string) {
	fn := call.ChildByFieldName("function")
	if fn == nil {
		return "", ""
	}
	switch fn.Type() {
	case "identifier":
		return "", fn.Content(src)
	case "attribute":
		if obj := fn.ChildByFieldName("object"); obj != nil {
			receiver = obj.Content(src)
		}
		if attr := fn.ChildByFieldName("attribute"); attr != nil {
			name = attr.Content(src)
		}
		return receiver, name
	}
	return "", ""
}

// Arguments returns the positional and keyword argument nodes of a call.
func Arguments(call *sitter.Node) []*sitter.Node {
	args := call.ChildByFieldName("arguments")
	if args == nil || args.Type() != "argument_list" {
		return nil
	}
	return Statements(args)
}

// IsFunction reports whether n introduces a new function scope.
func IsFunction(n *sitter.Node) bool {
	switch n.Type() {
	case "function_definition", "lambda":
		return true
	}
	return false
}

// Scope labels the innermost definition enclosing n (n included): "module",
// "class:Name", "function:name" or "function:Class.method".
func Scope(n *sitter.Node, src []byte) string {
	var names []string
	kind := ""
	for p := n; p != nil; p = p.Parent() {
		switch p.Type() {
		case "function_definition", "class_definition":
			name := p.ChildByFieldName("name")
			if name == nil {
				continue
			}
			names = append([]string{name.Content(src)}, names...)
			if kind == "" {
				kind = "function"
				if p.Type() == "class_definition" {
					kind = "class"
				}
			}
		}
	}
	if len(names) == 0 {
		return "module"
	}
	return kind + ":" + strings.Join(names, ".")
}
