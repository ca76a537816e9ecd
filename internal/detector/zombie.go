package detector

import (
	"fmt"
	"strconv"
	"strings"

	"darkmatter/internal/finding"
	"darkmatter/internal/parser"

	sitter "github.com/smacker/go-tree-sitter"
)

// defaultSideEffectNames are callees whose value is conventionally ignored because
// they log, print, perform I/O or mutate their receiver.
var defaultSideEffectNames = []string{
	"print", "log", "debug", "info", "warning", "warn", "error", "critical", "exception", "fatal",
	"write", "writelines", "send", "sendall", "publish", "emit", "flush", "close",
	"append", "appendleft", "extend", "insert", "update", "delete", "remove", "discard",
	"pop", "popleft", "clear", "add", "setdefault", "sort", "reverse", "put", "put_nowait",
	"save", "commit", "rollback", "execute", "executemany",
	"sleep", "join", "start", "stop", "run", "wait", "exit", "kill", "terminate", "shutdown",
	"register", "notify", "seek", "mkdir", "makedirs", "unlink", "rmtree", "rename", "touch",
	"chmod", "raise_for_status", "main",
}

var sideEffectPrefixes = []string{
	"set_", "add_", "remove_", "delete_", "update_", "write_", "send_", "assert", "register_",
	"emit_", "notify_", "log_", "print_", "save_", "setup", "teardown", "__",
}

// DeadComputationDetector reports computed values that are never observed.
type DeadComputationDetector struct {
	sideEffects nameSet
}

func NewDeadComputationDetector(opts Options) *DeadComputationDetector {
	return &DeadComputationDetector{sideEffects: newNameSet(defaultSideEffectNames, opts.SideEffectNames)}
}

func (d *DeadComputationDetector) Kind() finding.Kind { return finding.KindDeadComputation }

func (d *DeadComputationDetector) Detect(tree *parser.Tree) ([]finding.Finding, error) {
	findings := d.discardedValues(tree)
	findings = append(findings, d.unusedResults(tree)...)
	findings = append(findings, emptyLoops(tree)...)
	findings = append(findings, d.noEffectFunctions(tree)...)
	finding.Sort(findings)
	return findings, nil
}

// discardedValues flags expression statements whose value is thrown away.
func (d *DeadComputationDetector) discardedValues(tree *parser.Tree) []finding.Finding {
	var findings []finding.Finding
	parser.Walk(tree.Root, func(n *sitter.Node) bool {
		if n.Type() != "expression_statement" {
			return true
		}
		exprs := parser.Statements(n)
		if len(exprs) != 1 {
			return false
		}
		expr := parser.Unparen(exprs[0])

		switch expr.Type() {
		case "call":
			recv, name := parser.CallTarget(expr, tree.Source)
			if name == "" || d.isSideEffect(recv, name) {
				return false
			}
			f := newFinding(tree, expr, finding.KindDeadComputation, finding.SubtypeDiscardedCall, finding.SeverityLow)
			f.Message = fmt.Sprintf("result of %s() is discarded", name)
			findings = append(findings, f.WithMeta("callee", name))
		case "binary_operator", "comparison_operator", "boolean_operator":
			f := newFinding(tree, expr, finding.KindDeadComputation, finding.SubtypeDiscardedExpression, finding.SeverityLow)
			f.Message = "computed value is neither assigned nor returned"
			findings = append(findings, f)
		}
		return false
	})
	return findings
}

func (d *DeadComputationDetector) isSideEffect(recv, name string) bool {
	if d.sideEffects.has(name) {
		return true
	}
	lower := strings.ToLower(name)
	for _, p := range sideEffectPrefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	r := strings.ToLower(recv)
	return r == "logging" || r == "log" || strings.HasSuffix(r, "logger") || strings.HasSuffix(r, "log")
}

// funcDef is a function that returns a value somewhere in its own body.
type funcDef struct {
	node   *sitter.Node
	name   string
	method bool
}

// unusedResults flags functions whose returned value is discarded by every call
// site in the file. Functions with no call site in the file, or referenced other
// than by a direct call, are assumed to be used elsewhere.
func (d *DeadComputationDetector) unusedResults(tree *parser.Tree) []finding.Finding {
	defs := valueReturningFunctions(tree)
	if len(defs) == 0 {
		return nil
	}
	sites := collectCallSites(tree)

	var findings []finding.Finding
	for _, def := range defs {
		key := siteKey{name: def.name, method: def.method}
		s, ok := sites[key]
		if !ok || s.escaped || s.calls == 0 || s.calls != s.discarded {
			continue
		}
		f := newFinding(tree, def.node, finding.KindDeadComputation, finding.SubtypeUnusedFunctionResult, finding.SeverityMedium)
		f.Message = fmt.Sprintf("every call to %s() in this file discards its result", def.name)
		f = f.WithMeta("callee", def.name)
		findings = append(findings, f.WithMeta("call_sites", strconv.Itoa(s.calls)))
	}
	return findings
}

func valueReturningFunctions(tree *parser.Tree) []funcDef {
	var defs []funcDef
	parser.Walk(tree.Root, func(n *sitter.Node) bool {
		if n.Type() != "function_definition" {
			return true
		}
		if p := n.Parent(); p != nil && p.Type() == "decorated_definition" {
			return true
		}
		nameNode := n.ChildByFieldName("name")
		if nameNode == nil {
			return true
		}
		if returnsValue(n.ChildByFieldName("body")) {
			defs = append(defs, funcDef{node: n, name: tree.Text(nameNode), method: isMethod(n)})
		}
		return true
	})
	return defs
}

// returnsValue reports whether a function body has a `return <value>` of its own.
// Generators are excluded: calling one without consuming it is a different smell.
func returnsValue(body *sitter.Node) bool {
	returns, yields := false, false
	parser.Walk(body, func(n *sitter.Node) bool {
		if skipNested(n) {
			return false
		}
		switch n.Type() {
		case "yield":
			yields = true
		case "return_statement":
			for _, v := range parser.Statements(n) {
				if v.Type() != "none" {
					returns = true
				}
			}
		}
		return true
	})
	return returns && !yields
}

func isMethod(def *sitter.Node) bool {
	block := def.Parent()
	if block == nil || block.Type() != "block" {
		return false
	}
	owner := block.Parent()
	return owner != nil && owner.Type() == "class_definition"
}

type siteKey struct {
	name   string
	method bool
}

type callSites struct {
	calls     int
	discarded int
	escaped   bool
}

// collectCallSites indexes plain calls `f(...)` under functions and attribute calls
// `x.f(...)` under methods. Any other reference to the name marks it escaped.
func collectCallSites(tree *parser.Tree) map[siteKey]*callSites {
	sites := make(map[siteKey]*callSites)
	get := func(k siteKey) *callSites {
		s, ok := sites[k]
		if !ok {
			s = &callSites{}
			sites[k] = s
		}
		return s
	}

	parser.Walk(tree.Root, func(n *sitter.Node) bool {
		switch n.Type() {
		case "identifier":
			parent := n.Parent()
			if parent == nil {
				return false
			}
			switch parent.Type() {
			case "function_definition", "class_definition":
				if name := parent.ChildByFieldName("name"); name != nil && sameNode(name, n) {
					return false
				}
			case "attribute":
				// the attribute half of x.f is handled on the attribute node
				if attr := parent.ChildByFieldName("attribute"); attr != nil && sameNode(attr, n) {
					return false
				}
			case "keyword_argument":
				if name := parent.ChildByFieldName("name"); name != nil && sameNode(name, n) {
					return false
				}
			}
			s := get(siteKey{name: tree.Text(n)})
			if call := calleeOf(n); call != nil {
				s.calls++
				if discardsResult(call) {
					s.discarded++
				}
			} else {
				s.escaped = true
			}
			return false

		case "attribute":
			attr := n.ChildByFieldName("attribute")
			if attr == nil {
				return true
			}
			s := get(siteKey{name: tree.Text(attr), method: true})
			if call := calleeOf(n); call != nil {
				s.calls++
				if discardsResult(call) {
					s.discarded++
				}
			} else {
				s.escaped = true
			}
			return true
		}
		return true
	})
	return sites
}

// calleeOf returns the call node when n is the function part of a call.
func calleeOf(n *sitter.Node) *sitter.Node {
	parent := n.Parent()
	if parent == nil || parent.Type() != "call" {
		return nil
	}
	fn := parent.ChildByFieldName("function")
	if fn == nil || !sameNode(fn, n) {
		return nil
	}
	return parent
}

// discardsResult reports whether a call is a statement of its own.
func discardsResult(call *sitter.Node) bool {
	parent := call.Parent()
	if parent != nil && parent.Type() == "await" {
		parent = parent.Parent()
	}
	return parent != nil && parent.Type() == "expression_statement" && len(parser.Statements(parent)) == 1
}

// emptyLoops flags for and while loops whose body only passes or continues.
func emptyLoops(tree *parser.Tree) []finding.Finding {
	var findings []finding.Finding
	parser.Walk(tree.Root, func(n *sitter.Node) bool {
		switch n.Type() {
		case "for_statement", "while_statement":
		default:
			return true
		}
		stmts := parser.Statements(n.ChildByFieldName("body"))
		if len(stmts) == 0 {
			return true
		}
		for _, stmt := range stmts {
			switch stmt.Type() {
			case "pass_statement", "continue_statement":
			default:
				return true
			}
		}
		f := newFinding(tree, n, finding.KindDeadComputation, finding.SubtypeEmptyLoop, finding.SeverityHigh)
		f.Message = "loop runs but its body does nothing"
		findings = append(findings, f)
		return true
	})
	return findings
}

// noEffectFunctions flags functions that neither return a value nor do anything
// observable: no side-effect call, no store through an attribute or subscript, no
// raise, yield, global or nonlocal. Decorated functions and stubs whose body is only
// a docstring, pass or ellipsis are left alone.
func (d *DeadComputationDetector) noEffectFunctions(tree *parser.Tree) []finding.Finding {
	var findings []finding.Finding
	parser.Walk(tree.Root, func(n *sitter.Node) bool {
		if n.Type() != "function_definition" {
			return true
		}
		if p := n.Parent(); p != nil && p.Type() == "decorated_definition" {
			return true
		}
		nameNode := n.ChildByFieldName("name")
		body := n.ChildByFieldName("body")
		if nameNode == nil || isStub(body) || returnsValue(body) || d.hasEffect(body, tree.Source) {
			return true
		}
		name := tree.Text(nameNode)
		f := newFinding(tree, n, finding.KindDeadComputation, finding.SubtypeNoEffectFunction, finding.SeverityMedium)
		f.Message = fmt.Sprintf("%s() runs but produces no result and no side effect", name)
		findings = append(findings, f.WithMeta("function", name))
		return true
	})
	return findings
}

func isStub(body *sitter.Node) bool {
	for _, stmt := range parser.Statements(body) {
		switch stmt.Type() {
		case "pass_statement":
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

// hasEffect reports whether a function body does something visible outside its own
// locals. Nested functions and classes are not inspected.
func (d *DeadComputationDetector) hasEffect(body *sitter.Node, src []byte) bool {
	found := false
	parser.Walk(body, func(n *sitter.Node) bool {
		if found || skipNested(n) {
			return false
		}
		switch n.Type() {
		case "raise_statement", "yield", "global_statement", "nonlocal_statement", "delete_statement", "await":
			found = true
		case "call":
			recv, name := parser.CallTarget(n, src)
			if name == "" || d.isSideEffect(recv, name) || isInstanceReceiver(recv) {
				found = true
			}
		case "assignment", "augmented_assignment":
			left := n.ChildByFieldName("left")
			if left != nil && storesThrough(left) {
				found = true
			}
		}
		return !found
	})
	return found
}

// isInstanceReceiver reports calls on self or cls, which may mutate the instance.
func isInstanceReceiver(recv string) bool {
	return recv == "self" || recv == "cls" || strings.HasPrefix(recv, "self.") || strings.HasPrefix(recv, "cls.")
}

// storesThrough reports whether an assignment target writes through an attribute
// or subscript, including inside tuple or list unpacking.
func storesThrough(target *sitter.Node) bool {
	switch target.Type() {
	case "attribute", "subscript":
		return true
	case "pattern_list", "tuple_pattern", "list_pattern", "tuple", "list", "parenthesized_expression":
		for i := 0; i < int(target.NamedChildCount()); i++ {
			if storesThrough(target.NamedChild(i)) {
				return true
			}
		}
	}
	return false
}
