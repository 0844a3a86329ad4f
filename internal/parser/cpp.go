package parser

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/cpp"
)

func getCPPLanguage() *sitter.Language {
	return cpp.GetLanguage()
}

// extractCPP covers the C++-only constructs (classes, namespaces,
// templates, methods) and shares the C extraction shapes for functions,
// structs, enums, typedefs, and includes — the cpp grammar reuses the C
// grammar's node names for those.
func extractCPP(root *sitter.Node, source []byte, filePath string) ([]Symbol, []Dependency) {
	var symbols []Symbol
	var deps []Dependency
	extractCPPScope(root, source, filePath, "", &symbols, &deps)
	return symbols, deps
}

func extractCPPScope(scope *sitter.Node, source []byte, filePath, parent string, symbols *[]Symbol, deps *[]Dependency) {
	for i := 0; i < int(scope.ChildCount()); i++ {
		node := scope.Child(i)
		switch node.Type() {
		case "function_definition":
			sym := extractCFunction(node, source, filePath)
			if parent != "" {
				sym.Kind = SymbolMethod
				sym.Parent = parent
			}
			// Qualified out-of-line method: void Foo::bar() { ... }
			if sym.Parent == "" && strings.Contains(sym.Signature, "::") {
				if qual := cppQualifier(sym.Signature); qual != "" {
					sym.Kind = SymbolMethod
					sym.Parent = qual
				}
			}
			*symbols = append(*symbols, sym)
			extractCCalls(node, source, sym.Name, deps)

		case "class_specifier":
			if sym, ok := cNamedSymbol(node, source, filePath, SymbolClass); ok {
				sym.Parent = parent
				*symbols = append(*symbols, sym)
				extractCPPBases(node, source, sym.Name, deps)
				if body := findChild(node, "field_declaration_list"); body != nil {
					extractCPPScope(body, source, filePath, sym.Name, symbols, deps)
				}
			}

		case "struct_specifier", "enum_specifier", "union_specifier":
			kind := SymbolStruct
			if node.Type() == "enum_specifier" {
				kind = SymbolEnum
			}
			if sym, ok := cNamedSymbol(node, source, filePath, kind); ok {
				sym.Parent = parent
				*symbols = append(*symbols, sym)
				if body := findChild(node, "field_declaration_list"); body != nil {
					extractCPPScope(body, source, filePath, sym.Name, symbols, deps)
				}
			}

		case "namespace_definition":
			name := ""
			if nameNode := findChild(node, "namespace_identifier"); nameNode != nil {
				name = nodeContent(nameNode, source)
			} else if nameNode := findChild(node, "identifier"); nameNode != nil {
				name = nodeContent(nameNode, source)
			}
			start, end := lineSpan(node)
			*symbols = append(*symbols, Symbol{
				Name:      name,
				Kind:      SymbolNamespace,
				FilePath:  filePath,
				StartLine: start,
				EndLine:   end,
				Content:   nodeContent(node, source),
				Doc:       precedingComment(node, source),
				Exported:  true,
			})
			if body := findChild(node, "declaration_list"); body != nil {
				extractCPPScope(body, source, filePath, parent, symbols, deps)
			}

		case "template_declaration":
			// Recurse into the templated declaration.
			extractCPPScope(node, source, filePath, parent, symbols, deps)

		case "type_definition":
			if sym, ok := cTypedef(node, source, filePath); ok {
				*symbols = append(*symbols, sym)
			}

		case "field_declaration":
			// Inside a class body: method prototypes and data members.
			if parent == "" {
				continue
			}
			if fdecl := findChild(node, "function_declarator"); fdecl != nil {
				name := cDeclaratorName(fdecl, source)
				start, end := lineSpan(node)
				*symbols = append(*symbols, Symbol{
					Name:      name,
					Kind:      SymbolMethod,
					FilePath:  filePath,
					StartLine: start,
					EndLine:   end,
					Content:   nodeContent(node, source),
					Doc:       precedingComment(node, source),
					Parent:    parent,
					Signature: strings.TrimSuffix(strings.TrimSpace(nodeContent(node, source)), ";"),
					Exported:  true,
				})
			} else if id := findChild(node, "field_identifier"); id != nil {
				start, end := lineSpan(node)
				*symbols = append(*symbols, Symbol{
					Name:      nodeContent(id, source),
					Kind:      SymbolField,
					FilePath:  filePath,
					StartLine: start,
					EndLine:   end,
					Content:   nodeContent(node, source),
					Parent:    parent,
					Exported:  true,
				})
			}

		case "declaration":
			if sym, ok := cTopLevelVariable(node, source, filePath); ok && parent == "" {
				*symbols = append(*symbols, sym)
			}

		case "preproc_include":
			target := ""
			if pathNode := findChild(node, "string_literal"); pathNode != nil {
				target = strings.Trim(nodeContent(pathNode, source), `"`)
			} else if pathNode := findChild(node, "system_lib_string"); pathNode != nil {
				target = strings.Trim(nodeContent(pathNode, source), "<>")
			}
			if target != "" {
				*deps = append(*deps, Dependency{
					Kind:       DependencyImports,
					SourceLine: int(node.StartPoint().Row) + 1,
					Target:     target,
				})
			}
		}
	}
}

// extractCPPBases records base classes from a base_class_clause.
func extractCPPBases(node *sitter.Node, source []byte, className string, deps *[]Dependency) {
	bases := findChild(node, "base_class_clause")
	if bases == nil {
		return
	}
	for i := 0; i < int(bases.ChildCount()); i++ {
		child := bases.Child(i)
		if child.Type() == "type_identifier" || child.Type() == "qualified_identifier" {
			*deps = append(*deps, Dependency{
				Kind:       DependencyExtends,
				SourceName: className,
				SourceLine: int(node.StartPoint().Row) + 1,
				Target:     nodeContent(child, source),
			})
		}
	}
}

// cppQualifier extracts "Foo" from a signature containing "Foo::bar".
func cppQualifier(signature string) string {
	idx := strings.Index(signature, "::")
	if idx <= 0 {
		return ""
	}
	head := signature[:idx]
	if sp := strings.LastIndexAny(head, " \t*&"); sp >= 0 {
		head = head[sp+1:]
	}
	return head
}
