package parser

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/csharp"
)

func getCSharpLanguage() *sitter.Language {
	return csharp.GetLanguage()
}

func extractCSharp(root *sitter.Node, source []byte, filePath string) ([]Symbol, []Dependency) {
	var symbols []Symbol
	var deps []Dependency
	extractCSharpScope(root, source, filePath, "", &symbols, &deps)
	return symbols, deps
}

func extractCSharpScope(scope *sitter.Node, source []byte, filePath, parent string, symbols *[]Symbol, deps *[]Dependency) {
	for i := 0; i < int(scope.ChildCount()); i++ {
		node := scope.Child(i)
		switch node.Type() {
		case "namespace_declaration", "file_scoped_namespace_declaration":
			name := ""
			for j := 0; j < int(node.ChildCount()); j++ {
				child := node.Child(j)
				if child.Type() == "qualified_name" || child.Type() == "identifier" {
					name = nodeContent(child, source)
					break
				}
			}
			start, end := lineSpan(node)
			*symbols = append(*symbols, Symbol{
				Name:      name,
				Kind:      SymbolNamespace,
				FilePath:  filePath,
				StartLine: start,
				EndLine:   end,
				Content:   nodeContent(node, source),
				Exported:  true,
			})
			if body := findChild(node, "declaration_list"); body != nil {
				extractCSharpScope(body, source, filePath, parent, symbols, deps)
			} else {
				// File-scoped namespaces keep declarations as siblings.
				extractCSharpScope(node, source, filePath, parent, symbols, deps)
			}

		case "class_declaration", "interface_declaration", "struct_declaration", "enum_declaration", "record_declaration":
			kind := SymbolClass
			switch node.Type() {
			case "interface_declaration":
				kind = SymbolInterface
			case "struct_declaration":
				kind = SymbolStruct
			case "enum_declaration":
				kind = SymbolEnum
			}
			sym := csharpNamedSymbol(node, source, filePath, kind)
			sym.Parent = parent
			*symbols = append(*symbols, sym)
			extractCSharpBases(node, source, sym.Name, deps)
			if body := findChild(node, "declaration_list"); body != nil {
				extractCSharpScope(body, source, filePath, sym.Name, symbols, deps)
			}

		case "method_declaration", "constructor_declaration":
			sym := csharpNamedSymbol(node, source, filePath, SymbolMethod)
			sym.Parent = parent
			sym.Signature = csharpSignature(node, source)
			*symbols = append(*symbols, sym)
			extractCSharpCalls(node, source, javaQualified(parent, sym.Name), deps)

		case "property_declaration":
			sym := csharpNamedSymbol(node, source, filePath, SymbolProperty)
			sym.Parent = parent
			*symbols = append(*symbols, sym)

		case "field_declaration":
			for j := 0; j < int(node.ChildCount()); j++ {
				vdecl := node.Child(j)
				if vdecl.Type() != "variable_declaration" {
					continue
				}
				collectCSharpDeclarators(vdecl, node, source, filePath, parent, symbols)
			}

		case "using_directive":
			target := strings.TrimSuffix(strings.TrimSpace(strings.TrimPrefix(nodeContent(node, source), "using")), ";")
			target = strings.TrimSpace(strings.TrimPrefix(target, "static"))
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

func csharpNamedSymbol(node *sitter.Node, source []byte, filePath string, kind SymbolKind) Symbol {
	name := ""
	if nameNode := findChild(node, "identifier"); nameNode != nil {
		name = nodeContent(nameNode, source)
	}
	start, end := lineSpan(node)
	return Symbol{
		Name:      name,
		Kind:      kind,
		FilePath:  filePath,
		StartLine: start,
		EndLine:   end,
		Content:   nodeContent(node, source),
		Doc:       precedingComment(node, source),
		Exported:  csharpIsPublic(node, source),
	}
}

// csharpIsPublic looks for the public modifier among the node's children.
func csharpIsPublic(node *sitter.Node, source []byte) bool {
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.Type() == "modifier" && nodeContent(child, source) == "public" {
			return true
		}
	}
	return false
}

func csharpSignature(node *sitter.Node, source []byte) string {
	for _, bodyType := range []string{"block", "arrow_expression_clause"} {
		if body := findChild(node, bodyType); body != nil {
			return strings.TrimSpace(string(source[node.StartByte():body.StartByte()]))
		}
	}
	return strings.TrimSuffix(strings.TrimSpace(nodeContent(node, source)), ";")
}

// extractCSharpBases records base types; C# does not syntactically
// distinguish a base class from interfaces, so interface-convention
// names (leading I + capital) are implements, the rest extends.
func extractCSharpBases(node *sitter.Node, source []byte, typeName string, deps *[]Dependency) {
	bases := findChild(node, "base_list")
	if bases == nil {
		return
	}
	for i := 0; i < int(bases.ChildCount()); i++ {
		child := bases.Child(i)
		if child.Type() != "identifier" && child.Type() != "qualified_name" && child.Type() != "generic_name" {
			continue
		}
		name := nodeContent(child, source)
		kind := DependencyExtends
		if len(name) >= 2 && name[0] == 'I' && name[1] >= 'A' && name[1] <= 'Z' {
			kind = DependencyImplements
		}
		*deps = append(*deps, Dependency{
			Kind:       kind,
			SourceName: typeName,
			SourceLine: int(node.StartPoint().Row) + 1,
			Target:     name,
		})
	}
}

func collectCSharpDeclarators(vdecl, fieldNode *sitter.Node, source []byte, filePath, parent string, symbols *[]Symbol) {
	for i := 0; i < int(vdecl.ChildCount()); i++ {
		decl := vdecl.Child(i)
		if decl.Type() != "variable_declarator" {
			continue
		}
		if nameNode := findChild(decl, "identifier"); nameNode != nil {
			start, end := lineSpan(fieldNode)
			*symbols = append(*symbols, Symbol{
				Name:      nodeContent(nameNode, source),
				Kind:      SymbolField,
				FilePath:  filePath,
				StartLine: start,
				EndLine:   end,
				Content:   nodeContent(fieldNode, source),
				Parent:    parent,
				Exported:  csharpIsPublic(fieldNode, source),
			})
		}
	}
}

func extractCSharpCalls(node *sitter.Node, source []byte, sourceName string, deps *[]Dependency) {
	body := findChild(node, "block")
	if body == nil {
		return
	}
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		for i := 0; i < int(n.ChildCount()); i++ {
			child := n.Child(i)
			if child.Type() == "invocation_expression" {
				if fn := child.Child(0); fn != nil {
					switch fn.Type() {
					case "identifier", "member_access_expression":
						*deps = append(*deps, Dependency{
							Kind:       DependencyCalls,
							SourceName: sourceName,
							SourceLine: int(child.StartPoint().Row) + 1,
							Target:     nodeContent(fn, source),
						})
					}
				}
			}
			walk(child)
		}
	}
	walk(body)
}
