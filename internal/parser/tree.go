package parser

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// Tree is a parsed source file with the helpers detectors need to read it.
type Tree struct {
	Path   string
	Source []byte
	Lines  []string
	Root   *sitter.Node

	st       *sitter.Tree
	comments map[int][]*sitter.Node // 0-based row -> comments starting on it
}

func newTree(path string, src []byte, st *sitter.Tree) *Tree {
	t := &Tree{
		Path:     path,
		Source:   src,
		Lines:    strings.Split(string(src), "\n"),
		Root:     st.RootNode(),
		st:       st,
		comments: make(map[int][]*sitter.Node),
	}
	Walk(t.Root, func(n *sitter.Node) bool {
		if n.Type() == "comment" {
			row := int(n.StartPoint().Row)
			t.comments[row] = append(t.comments[row], n)
		}
		return true
	})
	return t
}

// Close releases the underlying tree-sitter tree.
func (t *Tree) Close() {
	if t.st != nil {
		t.st.Close()
		t.st = nil
	}
}

// Text returns the source text of n.
func (t *Tree) Text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return n.Content(t.Source)
}

// LineText returns the trimmed text of a 1-based line.
func (t *Tree) LineText(line int) string {
	if line < 1 || line > len(t.Lines) {
		return ""
	}
	return strings.TrimSpace(t.Lines[line-1])
}

// TrailingComment returns the comment that follows code on the given 1-based line.
func (t *Tree) TrailingComment(line int) string {
	row := line - 1
	for _, c := range t.comments[row] {
		if int(c.StartPoint().Column) > indentOf(t.rawLine(row)) {
			return cleanComment(t.Text(c))
		}
	}
	return ""
}

// PrecedingComment returns the comment block that sits alone on the lines directly
// above the given 1-based line, joined with newlines.
func (t *Tree) PrecedingComment(line int) string {
	var commentLines []string
	for row := line - 2; row >= 0; row-- {
		c := t.standaloneComment(row)
		if c == nil {
			break
		}
		commentLines = append([]string{cleanComment(t.Text(c))}, commentLines...)
	}
	return strings.Join(commentLines, "\n")
}

func (t *Tree) standaloneComment(row int) *sitter.Node {
	for _, c := range t.comments[row] {
		if int(c.StartPoint().Column) == indentOf(t.rawLine(row)) {
			return c
		}
	}
	return nil
}

func (t *Tree) rawLine(row int) string {
	if row < 0 || row >= len(t.Lines) {
		return ""
	}
	return t.Lines[row]
}

func indentOf(line string) int {
	return len(line) - len(strings.TrimLeft(line, " \t"))
}

func cleanComment(raw string) string {
	return strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), "#"))
}
