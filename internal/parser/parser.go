// Package parser provides tree-sitter based parsing for extracting
// symbols and dependencies from source code in the supported languages.
package parser

import (
	"context"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/agentmem/substrate/internal/errs"
)

// Language represents a supported programming language.
type Language string

const (
	LanguagePython     Language = "python"
	LanguageJavaScript Language = "javascript"
	LanguageTypeScript Language = "typescript"
	LanguageGo         Language = "go"
	LanguageRust       Language = "rust"
	LanguageJava       Language = "java"
	LanguageC          Language = "c"
	LanguageCPP        Language = "cpp"
	LanguageCSharp     Language = "csharp"
	LanguageRuby       Language = "ruby"
)

// SymbolKind represents the type of code symbol.
type SymbolKind string

const (
	SymbolFunction  SymbolKind = "function"
	SymbolClass     SymbolKind = "class"
	SymbolMethod    SymbolKind = "method"
	SymbolInterface SymbolKind = "interface"
	SymbolType      SymbolKind = "type"
	SymbolVariable  SymbolKind = "variable"
	SymbolConstant  SymbolKind = "constant"
	SymbolModule    SymbolKind = "module"
	SymbolTrait     SymbolKind = "trait"
	SymbolImpl      SymbolKind = "impl"
	SymbolStruct    SymbolKind = "struct"
	SymbolEnum      SymbolKind = "enum"
	SymbolNamespace SymbolKind = "namespace"
	SymbolProperty  SymbolKind = "property"
	SymbolField     SymbolKind = "field"
)

// Symbol represents a parsed code symbol. StartLine and EndLine are
// inclusive and 1-indexed. Signature is the smallest surface string that
// unambiguously identifies a callable; Doc is the doc comment immediately
// above the definition, if any.
type Symbol struct {
	Name      string     `json:"name"`
	Kind      SymbolKind `json:"kind"`
	FilePath  string     `json:"file_path"`
	StartLine int        `json:"start_line"`
	EndLine   int        `json:"end_line"`
	Content   string     `json:"content"`
	Doc       string     `json:"doc,omitempty"`
	Parent    string     `json:"parent,omitempty"`
	Signature string     `json:"signature,omitempty"`
	Exported  bool       `json:"exported"`
}

// DependencyKind represents the type of dependency a file declares.
type DependencyKind string

const (
	DependencyImports    DependencyKind = "imports"
	DependencyCalls      DependencyKind = "calls"
	DependencyExtends    DependencyKind = "extends"
	DependencyImplements DependencyKind = "implements"
)

// Dependency maps an intra-file source symbol (empty SourceName means
// module level) to a string reference: an import path for imports, a
// type or identifier name for calls/extends/implements.
type Dependency struct {
	Kind       DependencyKind `json:"kind"`
	SourceName string         `json:"source_name,omitempty"`
	SourceLine int            `json:"source_line,omitempty"`
	Target     string         `json:"target"`
}

// Result contains everything extracted from one file.
type Result struct {
	Language     Language
	Symbols      []Symbol
	Dependencies []Dependency
}

type extractFunc func(root *sitter.Node, source []byte, filePath string) ([]Symbol, []Dependency)

type grammar struct {
	language *sitter.Language
	extract  extractFunc
}

// grammars is the registry of per-language grammars. A language absent
// from this map fails Parse with UnsupportedLanguage.
func grammarFor(lang Language) (grammar, bool) {
	switch lang {
	case LanguagePython:
		return grammar{getPythonLanguage(), extractPython}, true
	case LanguageJavaScript:
		return grammar{getJavaScriptLanguage(), extractJavaScript}, true
	case LanguageTypeScript:
		return grammar{getTypeScriptLanguage(), extractTypeScript}, true
	case LanguageGo:
		return grammar{getGoLanguage(), extractGo}, true
	case LanguageRust:
		return grammar{getRustLanguage(), extractRust}, true
	case LanguageJava:
		return grammar{getJavaLanguage(), extractJava}, true
	case LanguageC:
		return grammar{getCLanguage(), extractC}, true
	case LanguageCPP:
		return grammar{getCPPLanguage(), extractCPP}, true
	case LanguageCSharp:
		return grammar{getCSharpLanguage(), extractCSharp}, true
	case LanguageRuby:
		return grammar{getRubyLanguage(), extractRuby}, true
	default:
		return grammar{}, false
	}
}

// Parser wraps tree-sitter for a specific language.
type Parser struct {
	language Language
	parser   *sitter.Parser
	extract  extractFunc
}

// NewParser creates a parser for the given language.
func NewParser(lang Language) (*Parser, error) {
	g, ok := grammarFor(lang)
	if !ok {
		return nil, errs.New(errs.UnsupportedLanguage, "no registered grammar for "+string(lang))
	}
	p := sitter.NewParser()
	p.SetLanguage(g.language)
	return &Parser{language: lang, parser: p, extract: g.extract}, nil
}

// Parse parses source code and extracts symbols and dependencies. An
// unparseable file yields zero symbols and zero dependencies, not an
// error; only a missing grammar is an error.
func (p *Parser) Parse(source []byte, filePath string) (*Result, error) {
	tree, err := p.parser.ParseCtx(context.Background(), nil, source)
	if err != nil {
		return &Result{Language: p.language}, nil
	}
	defer tree.Close()

	symbols, deps := p.extract(tree.RootNode(), source, filePath)
	return &Result{Language: p.language, Symbols: symbols, Dependencies: deps}, nil
}

// ParseFile parses content for path under a declared or detected
// language. For C-family headers it prefers C++ when C++ constructs
// parse, falling back to C.
func ParseFile(path string, source []byte, declared Language) (*Result, error) {
	lang := declared
	if lang == "" {
		detected, ok := DetectLanguage(path)
		if !ok {
			return nil, errs.New(errs.UnsupportedLanguage, "cannot detect language for "+path)
		}
		lang = detected
	}
	if lang == LanguageCPP && hasExtension(path, ".h") {
		return parseHeader(path, source)
	}
	p, err := NewParser(lang)
	if err != nil {
		return nil, err
	}
	return p.Parse(source, path)
}

// parseHeader resolves the shared .h extension: parse with the C++
// grammar first; keep that result only when C++-specific constructs
// appear, otherwise re-extract as plain C.
func parseHeader(path string, source []byte) (*Result, error) {
	cpp, err := NewParser(LanguageCPP)
	if err != nil {
		return nil, err
	}
	res, err := cpp.Parse(source, path)
	if err != nil {
		return nil, err
	}
	for _, s := range res.Symbols {
		switch s.Kind {
		case SymbolClass, SymbolNamespace, SymbolMethod:
			return res, nil
		}
	}
	c, err := NewParser(LanguageC)
	if err != nil {
		return nil, err
	}
	return c.Parse(source, path)
}

// DetectLanguage determines language from file extension.
func DetectLanguage(filePath string) (Language, bool) {
	switch {
	case hasExtension(filePath, ".py"):
		return LanguagePython, true
	case hasExtension(filePath, ".js", ".jsx", ".mjs"):
		return LanguageJavaScript, true
	case hasExtension(filePath, ".ts", ".tsx"):
		return LanguageTypeScript, true
	case hasExtension(filePath, ".go"):
		return LanguageGo, true
	case hasExtension(filePath, ".rs"):
		return LanguageRust, true
	case hasExtension(filePath, ".java"):
		return LanguageJava, true
	case hasExtension(filePath, ".c"):
		return LanguageC, true
	case hasExtension(filePath, ".cpp", ".cc", ".cxx", ".hpp", ".hh", ".h"):
		return LanguageCPP, true
	case hasExtension(filePath, ".cs"):
		return LanguageCSharp, true
	case hasExtension(filePath, ".rb"):
		return LanguageRuby, true
	default:
		return "", false
	}
}

func hasExtension(path string, exts ...string) bool {
	for _, ext := range exts {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}

// Shared tree helpers used by every language extractor.

func findChild(node *sitter.Node, nodeType string) *sitter.Node {
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.Type() == nodeType {
			return child
		}
	}
	return nil
}

func nodeContent(node *sitter.Node, source []byte) string {
	return string(source[node.StartByte():node.EndByte()])
}

func lineSpan(node *sitter.Node) (start, end int) {
	return int(node.StartPoint().Row) + 1, int(node.EndPoint().Row) + 1
}

// precedingComment collects the contiguous run of comment siblings
// immediately above node, which is the definition's doc comment in the
// C-family, Go, Rust, Java, and Ruby grammars.
func precedingComment(node *sitter.Node, source []byte, commentTypes ...string) string {
	if len(commentTypes) == 0 {
		commentTypes = []string{"comment"}
	}
	isComment := func(t string) bool {
		for _, ct := range commentTypes {
			if t == ct {
				return true
			}
		}
		return false
	}
	var parts []string
	prev := node.PrevNamedSibling()
	lastRow := int(node.StartPoint().Row)
	for prev != nil && isComment(prev.Type()) {
		// Only comments directly stacked above count as documentation.
		if int(prev.EndPoint().Row) < lastRow-1 {
			break
		}
		parts = append([]string{cleanComment(nodeContent(prev, source))}, parts...)
		lastRow = int(prev.StartPoint().Row)
		prev = prev.PrevNamedSibling()
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}

func cleanComment(s string) string {
	s = strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(s, "///"):
		s = strings.TrimPrefix(s, "///")
	case strings.HasPrefix(s, "//"):
		s = strings.TrimPrefix(s, "//")
	case strings.HasPrefix(s, "#"):
		s = strings.TrimPrefix(s, "#")
	case strings.HasPrefix(s, "/**"):
		s = strings.TrimSuffix(strings.TrimPrefix(s, "/**"), "*/")
	case strings.HasPrefix(s, "/*"):
		s = strings.TrimSuffix(strings.TrimPrefix(s, "/*"), "*/")
	}
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimPrefix(line, "* ")
		line = strings.TrimPrefix(line, "*")
		lines = append(lines, line)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// isCapitalized reports Go-style export by capital initial.
func isCapitalized(name string) bool {
	if name == "" {
		return false
	}
	c := name[0]
	return c >= 'A' && c <= 'Z'
}
