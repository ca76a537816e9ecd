package parser

import (
	"context"
	"fmt"
	"os"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// Parser turns source text into syntax trees for one language.
type Parser struct {
	lang Language
}

// NewParser creates a parser for a given language.
func NewParser(lang string) (*Parser, error) {
	var l Language
	switch strings.ToLower(lang) {
	case "python", "py":
		l = PythonLanguage{}
	default:
		return nil, fmt.Errorf("unsupported language: %s", lang)
	}
	return &Parser{lang: l}, nil
}

// Language returns the name of the parser's grammar.
func (p *Parser) Language() string {
	return p.lang.Name()
}

// Extensions lists the file extensions the parser accepts.
func (p *Parser) Extensions() []string {
	return p.lang.Extensions()
}

// ParseFile reads and parses a single source file.
func (p *Parser) ParseFile(ctx context.Context, path string) (*Tree, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", path, err)
	}
	return p.Parse(ctx, path, src)
}

// Parse builds a Tree from src. A tree containing error or missing nodes is closed
// and reported as a *ParseError.
func (p *Parser) Parse(ctx context.Context, path string, src []byte) (*Tree, error) {
	// sitter.Parser is not safe for concurrent use, so every call gets its own.
	sp := sitter.NewParser()
	defer sp.Close()
	sp.SetLanguage(p.lang.GetLanguage())

	st, err := sp.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("failed to parse file %s: %w", path, err)
	}

	root := st.RootNode()
	if root.HasError() {
		perr := newParseError(path, firstError(root), src)
		st.Close()
		return nil, perr
	}

	return newTree(path, src, st), nil
}

// firstError returns the first error or missing node in document order.
func firstError(n *sitter.Node) *sitter.Node {
	if n.Type() == "ERROR" || n.IsMissing() {
		return n
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if child == nil || !child.HasError() && !child.IsMissing() {
			continue
		}
		if found := firstError(child); found != nil {
			return found
		}
	}
	return n
}
