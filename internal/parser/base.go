package parser

import (
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// Language defines what each supported grammar must provide.
type Language interface {
	Name() string
	GetLanguage() *sitter.Language
	Extensions() []string
}

// PythonLanguage implements Language for Python sources.
type PythonLanguage struct{}

func (PythonLanguage) Name() string { return "python" }

func (PythonLanguage) GetLanguage() *sitter.Language {
	return python.GetLanguage()
}

func (PythonLanguage) Extensions() []string {
	return []string{".py", ".pyi"}
}
