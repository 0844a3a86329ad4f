package parser

import (
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

func getTypeScriptLanguage() *sitter.Language {
	return typescript.GetLanguage()
}

// extractTypeScript reuses the JavaScript walker (the TS grammar shares
// its node names for functions, classes, and imports) and adds the
// TypeScript-only declaration forms on top.
func extractTypeScript(root *sitter.Node, source []byte, filePath string) ([]Symbol, []Dependency) {
	symbols, deps := extractJavaScript(root, source, filePath)

	cursor := sitter.NewTreeCursor(root)
	defer cursor.Close()
	extractTSNode(cursor, source, filePath, false, &symbols, &deps)

	return symbols, deps
}

func extractTSNode(
	cursor *sitter.TreeCursor,
	source []byte,
	filePath string,
	exported bool,
	symbols *[]Symbol,
	deps *[]Dependency,
) {
	node := cursor.CurrentNode()

	switch node.Type() {
	case "export_statement":
		for i := 0; i < int(node.ChildCount()); i++ {
			childCursor := sitter.NewTreeCursor(node.Child(i))
			extractTSNode(childCursor, source, filePath, true, symbols, deps)
			childCursor.Close()
		}
		return

	case "interface_declaration":
		sym := tsNamedSymbol(node, source, filePath, "type_identifier", SymbolInterface)
		sym.Exported = exported
		*symbols = append(*symbols, sym)
		// extends clause on interfaces
		if heritage := findChild(node, "extends_type_clause"); heritage != nil {
			for i := 0; i < int(heritage.ChildCount()); i++ {
				child := heritage.Child(i)
				if child.Type() == "type_identifier" || child.Type() == "nested_type_identifier" {
					*deps = append(*deps, Dependency{
						Kind:       DependencyExtends,
						SourceName: sym.Name,
						SourceLine: int(node.StartPoint().Row) + 1,
						Target:     nodeContent(child, source),
					})
				}
			}
		}
		return

	case "type_alias_declaration":
		sym := tsNamedSymbol(node, source, filePath, "type_identifier", SymbolType)
		sym.Exported = exported
		*symbols = append(*symbols, sym)
		return

	case "enum_declaration":
		sym := tsNamedSymbol(node, source, filePath, "identifier", SymbolEnum)
		sym.Exported = exported
		*symbols = append(*symbols, sym)
		return

	case "class_declaration":
		// implements_clause is TS-only; the JS walker already recorded
		// the class itself and its extends heritage.
		className := ""
		if nameNode := findChild(node, "type_identifier"); nameNode != nil {
			className = nodeContent(nameNode, source)
		} else if nameNode := findChild(node, "identifier"); nameNode != nil {
			className = nodeContent(nameNode, source)
		}
		if heritage := findChild(node, "class_heritage"); heritage != nil {
			if impl := findChild(heritage, "implements_clause"); impl != nil {
				for i := 0; i < int(impl.ChildCount()); i++ {
					child := impl.Child(i)
					if child.Type() == "type_identifier" || child.Type() == "nested_type_identifier" {
						*deps = append(*deps, Dependency{
							Kind:       DependencyImplements,
							SourceName: className,
							SourceLine: int(node.StartPoint().Row) + 1,
							Target:     nodeContent(child, source),
						})
					}
				}
			}
		}
	}

	if cursor.GoToFirstChild() {
		extractTSNode(cursor, source, filePath, exported, symbols, deps)
		for cursor.GoToNextSibling() {
			extractTSNode(cursor, source, filePath, exported, symbols, deps)
		}
		cursor.GoToParent()
	}
}

func tsNamedSymbol(node *sitter.Node, source []byte, filePath, nameType string, kind SymbolKind) Symbol {
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
		Doc:       precedingComment(node, source),
	}
}
