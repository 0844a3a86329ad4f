package parser

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
)

func getGoLanguage() *sitter.Language {
	return golang.GetLanguage()
}

func extractGo(root *sitter.Node, source []byte, filePath string) ([]Symbol, []Dependency) {
	var symbols []Symbol
	var deps []Dependency

	for i := 0; i < int(root.ChildCount()); i++ {
		node := root.Child(i)
		switch node.Type() {
		case "function_declaration":
			sym := extractGoFunction(node, source, filePath, SymbolFunction)
			symbols = append(symbols, sym)
			extractGoCalls(node, source, sym.Name, &deps)

		case "method_declaration":
			sym := extractGoFunction(node, source, filePath, SymbolMethod)
			if recv := findChild(node, "parameter_list"); recv != nil {
				sym.Parent = goReceiverType(recv, source)
			}
			symbols = append(symbols, sym)
			extractGoCalls(node, source, sym.Name, &deps)

		case "type_declaration":
			for j := 0; j < int(node.ChildCount()); j++ {
				spec := node.Child(j)
				if spec.Type() != "type_spec" {
					continue
				}
				sym := extractGoTypeSpec(node, spec, source, filePath)
				symbols = append(symbols, sym)
			}

		case "const_declaration", "var_declaration":
			kind := SymbolConstant
			specType := "const_spec"
			if node.Type() == "var_declaration" {
				kind = SymbolVariable
				specType = "var_spec"
			}
			extractGoValueSpecs(node, source, filePath, kind, specType, &symbols)

		case "import_declaration":
			extractGoImports(node, source, &deps)
		}
	}

	return symbols, deps
}

func extractGoFunction(node *sitter.Node, source []byte, filePath string, kind SymbolKind) Symbol {
	name := ""
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.Type() == "identifier" || child.Type() == "field_identifier" {
			name = nodeContent(child, source)
			break
		}
	}

	// Signature is the declaration line up to the body.
	signature := nodeContent(node, source)
	if body := findChild(node, "block"); body != nil {
		signature = strings.TrimSpace(string(source[node.StartByte():body.StartByte()]))
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
		Signature: signature,
		Exported:  isCapitalized(name),
	}
}

func extractGoTypeSpec(decl, spec *sitter.Node, source []byte, filePath string) Symbol {
	name := ""
	if nameNode := findChild(spec, "type_identifier"); nameNode != nil {
		name = nodeContent(nameNode, source)
	}
	kind := SymbolType
	if findChild(spec, "struct_type") != nil {
		kind = SymbolStruct
	} else if findChild(spec, "interface_type") != nil {
		kind = SymbolInterface
	}

	start, end := lineSpan(decl)
	return Symbol{
		Name:      name,
		Kind:      kind,
		FilePath:  filePath,
		StartLine: start,
		EndLine:   end,
		Content:   nodeContent(decl, source),
		Doc:       precedingComment(decl, source),
		Exported:  isCapitalized(name),
	}
}

func extractGoValueSpecs(node *sitter.Node, source []byte, filePath string, kind SymbolKind, specType string, symbols *[]Symbol) {
	doc := precedingComment(node, source)
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		for i := 0; i < int(n.ChildCount()); i++ {
			child := n.Child(i)
			if child.Type() == specType {
				if nameNode := findChild(child, "identifier"); nameNode != nil {
					name := nodeContent(nameNode, source)
					start, end := lineSpan(child)
					*symbols = append(*symbols, Symbol{
						Name:      name,
						Kind:      kind,
						FilePath:  filePath,
						StartLine: start,
						EndLine:   end,
						Content:   nodeContent(child, source),
						Doc:       doc,
						Exported:  isCapitalized(name),
					})
				}
			}
			walk(child)
		}
	}
	walk(node)
}

func extractGoImports(node *sitter.Node, source []byte, deps *[]Dependency) {
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		for i := 0; i < int(n.ChildCount()); i++ {
			child := n.Child(i)
			if child.Type() == "import_spec" {
				if pathNode := findChild(child, "interpreted_string_literal"); pathNode != nil {
					*deps = append(*deps, Dependency{
						Kind:       DependencyImports,
						SourceLine: int(child.StartPoint().Row) + 1,
						Target:     strings.Trim(nodeContent(pathNode, source), `"`),
					})
				}
			}
			walk(child)
		}
	}
	walk(node)
}

func extractGoCalls(node *sitter.Node, source []byte, sourceName string, deps *[]Dependency) {
	body := findChild(node, "block")
	if body == nil {
		return
	}
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		for i := 0; i < int(n.ChildCount()); i++ {
			child := n.Child(i)
			if child.Type() == "func_literal" {
				walk(child)
				continue
			}
			if child.Type() == "call_expression" {
				if fn := child.Child(0); fn != nil {
					switch fn.Type() {
					case "identifier", "selector_expression":
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

// goReceiverType pulls the receiver type name out of a method's
// receiver parameter list, stripping any pointer star.
func goReceiverType(recv *sitter.Node, source []byte) string {
	text := strings.Trim(nodeContent(recv, source), "()")
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	return strings.TrimPrefix(fields[len(fields)-1], "*")
}
