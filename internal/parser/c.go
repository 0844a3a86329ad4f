package parser

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/c"
)

func getCLanguage() *sitter.Language {
	return c.GetLanguage()
}

func extractC(root *sitter.Node, source []byte, filePath string) ([]Symbol, []Dependency) {
	var symbols []Symbol
	var deps []Dependency

	for i := 0; i < int(root.ChildCount()); i++ {
		node := root.Child(i)
		switch node.Type() {
		case "function_definition":
			sym := extractCFunction(node, source, filePath)
			symbols = append(symbols, sym)
			extractCCalls(node, source, sym.Name, &deps)

		case "struct_specifier", "enum_specifier", "union_specifier":
			kind := SymbolStruct
			if node.Type() == "enum_specifier" {
				kind = SymbolEnum
			}
			if sym, ok := cNamedSymbol(node, source, filePath, kind); ok {
				symbols = append(symbols, sym)
			}

		case "type_definition":
			if sym, ok := cTypedef(node, source, filePath); ok {
				symbols = append(symbols, sym)
			}

		case "declaration":
			// Top-level variable declarations; also catches
			// `struct Foo { ... } bar;` forms via their specifier child.
			if spec := findChild(node, "struct_specifier"); spec != nil {
				if sym, ok := cNamedSymbol(spec, source, filePath, SymbolStruct); ok {
					symbols = append(symbols, sym)
					continue
				}
			}
			if sym, ok := cTopLevelVariable(node, source, filePath); ok {
				symbols = append(symbols, sym)
			}

		case "preproc_include":
			target := ""
			if pathNode := findChild(node, "string_literal"); pathNode != nil {
				target = strings.Trim(nodeContent(pathNode, source), `"`)
			} else if pathNode := findChild(node, "system_lib_string"); pathNode != nil {
				target = strings.Trim(nodeContent(pathNode, source), "<>")
			}
			if target != "" {
				deps = append(deps, Dependency{
					Kind:       DependencyImports,
					SourceLine: int(node.StartPoint().Row) + 1,
					Target:     target,
				})
			}
		}
	}

	return symbols, deps
}

func extractCFunction(node *sitter.Node, source []byte, filePath string) Symbol {
	name := cDeclaratorName(findChild(node, "function_declarator"), source)
	signature := nodeContent(node, source)
	if body := findChild(node, "compound_statement"); body != nil {
		signature = strings.TrimSpace(string(source[node.StartByte():body.StartByte()]))
	}
	start, end := lineSpan(node)
	return Symbol{
		Name:      name,
		Kind:      SymbolFunction,
		FilePath:  filePath,
		StartLine: start,
		EndLine:   end,
		Content:   nodeContent(node, source),
		Doc:       precedingComment(node, source),
		Signature: signature,
		Exported:  !strings.HasPrefix(nodeContent(node, source), "static"),
	}
}

// cDeclaratorName digs the identifier out of a (possibly
// pointer-wrapped) declarator.
func cDeclaratorName(decl *sitter.Node, source []byte) string {
	if decl == nil {
		return ""
	}
	var find func(n *sitter.Node) string
	find = func(n *sitter.Node) string {
		if n.Type() == "identifier" {
			return nodeContent(n, source)
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			if name := find(n.Child(i)); name != "" {
				return name
			}
		}
		return ""
	}
	return find(decl)
}

func cNamedSymbol(node *sitter.Node, source []byte, filePath string, kind SymbolKind) (Symbol, bool) {
	nameNode := findChild(node, "type_identifier")
	if nameNode == nil {
		return Symbol{}, false // anonymous struct/enum
	}
	start, end := lineSpan(node)
	return Symbol{
		Name:      nodeContent(nameNode, source),
		Kind:      kind,
		FilePath:  filePath,
		StartLine: start,
		EndLine:   end,
		Content:   nodeContent(node, source),
		Doc:       precedingComment(node, source),
		Exported:  true,
	}, true
}

func cTypedef(node *sitter.Node, source []byte, filePath string) (Symbol, bool) {
	// The typedef'd name is the trailing type_identifier.
	var name string
	for i := int(node.ChildCount()) - 1; i >= 0; i-- {
		child := node.Child(i)
		if child.Type() == "type_identifier" {
			name = nodeContent(child, source)
			break
		}
	}
	if name == "" {
		return Symbol{}, false
	}
	start, end := lineSpan(node)
	return Symbol{
		Name:      name,
		Kind:      SymbolType,
		FilePath:  filePath,
		StartLine: start,
		EndLine:   end,
		Content:   nodeContent(node, source),
		Doc:       precedingComment(node, source),
		Exported:  true,
	}, true
}

func cTopLevelVariable(node *sitter.Node, source []byte, filePath string) (Symbol, bool) {
	// Skip function prototypes.
	if findChild(node, "function_declarator") != nil {
		return Symbol{}, false
	}
	var name string
	if decl := findChild(node, "init_declarator"); decl != nil {
		name = cDeclaratorName(decl, source)
	} else if id := findChild(node, "identifier"); id != nil {
		name = nodeContent(id, source)
	}
	if name == "" {
		return Symbol{}, false
	}
	text := nodeContent(node, source)
	kind := SymbolVariable
	if strings.HasPrefix(text, "const ") || strings.Contains(text, " const ") {
		kind = SymbolConstant
	}
	start, end := lineSpan(node)
	return Symbol{
		Name:      name,
		Kind:      kind,
		FilePath:  filePath,
		StartLine: start,
		EndLine:   end,
		Content:   text,
		Doc:       precedingComment(node, source),
		Exported:  !strings.HasPrefix(text, "static"),
	}, true
}

func extractCCalls(node *sitter.Node, source []byte, sourceName string, deps *[]Dependency) {
	body := findChild(node, "compound_statement")
	if body == nil {
		return
	}
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		for i := 0; i < int(n.ChildCount()); i++ {
			child := n.Child(i)
			if child.Type() == "call_expression" {
				if fn := child.Child(0); fn != nil && (fn.Type() == "identifier" || fn.Type() == "field_expression") {
					*deps = append(*deps, Dependency{
						Kind:       DependencyCalls,
						SourceName: sourceName,
						SourceLine: int(child.StartPoint().Row) + 1,
						Target:     nodeContent(fn, source),
					})
				}
			}
			walk(child)
		}
	}
	walk(body)
}
