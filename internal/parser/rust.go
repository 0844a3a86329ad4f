package parser

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/rust"
)

func getRustLanguage() *sitter.Language {
	return rust.GetLanguage()
}

func extractRust(root *sitter.Node, source []byte, filePath string) ([]Symbol, []Dependency) {
	var symbols []Symbol
	var deps []Dependency
	extractRustScope(root, source, filePath, "", &symbols, &deps)
	return symbols, deps
}

func extractRustScope(scope *sitter.Node, source []byte, filePath, parent string, symbols *[]Symbol, deps *[]Dependency) {
	for i := 0; i < int(scope.ChildCount()); i++ {
		node := scope.Child(i)
		switch node.Type() {
		case "function_item":
			kind := SymbolFunction
			if parent != "" {
				kind = SymbolMethod
			}
			sym := rustNamedSymbol(node, source, filePath, "identifier", kind)
			sym.Parent = parent
			sym.Signature = rustSignature(node, source)
			*symbols = append(*symbols, sym)
			extractRustCalls(node, source, sym.Name, deps)

		case "struct_item":
			*symbols = append(*symbols, rustNamedSymbol(node, source, filePath, "type_identifier", SymbolStruct))

		case "enum_item":
			*symbols = append(*symbols, rustNamedSymbol(node, source, filePath, "type_identifier", SymbolEnum))

		case "trait_item":
			sym := rustNamedSymbol(node, source, filePath, "type_identifier", SymbolTrait)
			*symbols = append(*symbols, sym)
			if body := findChild(node, "declaration_list"); body != nil {
				extractRustScope(body, source, filePath, sym.Name, symbols, deps)
			}

		case "impl_item":
			typeName := ""
			traitName := ""
			// `impl Trait for Type` has two type_identifiers; `impl Type`
			// has one. The last one is always the implementing type.
			for j := 0; j < int(node.ChildCount()); j++ {
				child := node.Child(j)
				if child.Type() == "type_identifier" || child.Type() == "generic_type" || child.Type() == "scoped_type_identifier" {
					if typeName != "" {
						traitName = typeName
					}
					typeName = nodeContent(child, source)
				}
			}
			name := typeName
			if traitName != "" {
				name = traitName + " for " + typeName
				*deps = append(*deps, Dependency{
					Kind:       DependencyImplements,
					SourceName: typeName,
					SourceLine: int(node.StartPoint().Row) + 1,
					Target:     traitName,
				})
			}
			start, end := lineSpan(node)
			*symbols = append(*symbols, Symbol{
				Name:      name,
				Kind:      SymbolImpl,
				FilePath:  filePath,
				StartLine: start,
				EndLine:   end,
				Content:   nodeContent(node, source),
				Doc:       precedingComment(node, source, "line_comment", "block_comment"),
				Exported:  true,
			})
			if body := findChild(node, "declaration_list"); body != nil {
				extractRustScope(body, source, filePath, typeName, symbols, deps)
			}

		case "mod_item":
			sym := rustNamedSymbol(node, source, filePath, "identifier", SymbolModule)
			*symbols = append(*symbols, sym)
			if body := findChild(node, "declaration_list"); body != nil {
				extractRustScope(body, source, filePath, parent, symbols, deps)
			}

		case "const_item":
			*symbols = append(*symbols, rustNamedSymbol(node, source, filePath, "identifier", SymbolConstant))

		case "static_item":
			*symbols = append(*symbols, rustNamedSymbol(node, source, filePath, "identifier", SymbolVariable))

		case "use_declaration":
			// use foo::bar::{a, b}; record the base path.
			target := strings.TrimSuffix(strings.TrimSpace(strings.TrimPrefix(nodeContent(node, source), "use")), ";")
			if idx := strings.Index(target, "::{"); idx > 0 {
				target = target[:idx]
			}
			if target != "" {
				*deps = append(*deps, Dependency{
					Kind:       DependencyImports,
					SourceLine: int(node.StartPoint().Row) + 1,
					Target:     strings.TrimSpace(target),
				})
			}
		}
	}
}

func rustNamedSymbol(node *sitter.Node, source []byte, filePath, nameType string, kind SymbolKind) Symbol {
	name := ""
	if nameNode := findChild(node, nameType); nameNode != nil {
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
		Doc:       precedingComment(node, source, "line_comment", "block_comment"),
		Exported:  findChild(node, "visibility_modifier") != nil,
	}
}

// rustSignature is the fn declaration up to the body block.
func rustSignature(node *sitter.Node, source []byte) string {
	if body := findChild(node, "block"); body != nil {
		return strings.TrimSpace(string(source[node.StartByte():body.StartByte()]))
	}
	return strings.TrimSuffix(nodeContent(node, source), ";")
}

func extractRustCalls(node *sitter.Node, source []byte, sourceName string, deps *[]Dependency) {
	body := findChild(node, "block")
	if body == nil {
		return
	}
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		for i := 0; i < int(n.ChildCount()); i++ {
			child := n.Child(i)
			if child.Type() == "function_item" || child.Type() == "closure_expression" {
				continue
			}
			if child.Type() == "call_expression" {
				if fn := child.Child(0); fn != nil {
					switch fn.Type() {
					case "identifier", "field_expression", "scoped_identifier":
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
