package parser

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
)

func getJavaScriptLanguage() *sitter.Language {
	return javascript.GetLanguage()
}

func extractJavaScript(root *sitter.Node, source []byte, filePath string) ([]Symbol, []Dependency) {
	var symbols []Symbol
	var deps []Dependency

	cursor := sitter.NewTreeCursor(root)
	defer cursor.Close()
	extractJSNode(cursor, source, filePath, "", false, &symbols, &deps)

	return symbols, deps
}

func extractJSNode(
	cursor *sitter.TreeCursor,
	source []byte,
	filePath, parent string,
	exported bool,
	symbols *[]Symbol,
	deps *[]Dependency,
) {
	node := cursor.CurrentNode()

	switch node.Type() {
	case "export_statement":
		// Whatever declaration the export wraps is exported.
		for i := 0; i < int(node.ChildCount()); i++ {
			child := node.Child(i)
			childCursor := sitter.NewTreeCursor(child)
			extractJSNode(childCursor, source, filePath, parent, true, symbols, deps)
			childCursor.Close()
		}
		return

	case "function_declaration", "generator_function_declaration":
		sym := extractJSFunction(node, source, filePath)
		sym.Exported = exported
		*symbols = append(*symbols, sym)
		extractJSCalls(node, source, sym.Name, deps)

	case "class_declaration":
		sym := extractJSClass(node, source, filePath)
		sym.Exported = exported
		*symbols = append(*symbols, sym)
		extractJSHeritage(node, source, sym.Name, deps)

		// Extract methods
		if body := findChild(node, "class_body"); body != nil {
			for i := 0; i < int(body.ChildCount()); i++ {
				child := body.Child(i)
				if child.Type() == "method_definition" {
					methodSym := extractJSMethod(child, source, filePath, sym.Name)
					*symbols = append(*symbols, methodSym)
					extractJSCalls(child, source, sym.Name+"."+methodSym.Name, deps)
				}
			}
		}
		return

	case "lexical_declaration", "variable_declaration":
		// Top-level const/let/var, including arrow-function bindings.
		if p := node.Parent(); p != nil && (p.Type() == "program" || p.Type() == "export_statement") {
			extractJSBindings(node, source, filePath, exported, symbols, deps)
		}

	case "import_statement":
		if sourceNode := findChild(node, "string"); sourceNode != nil {
			*deps = append(*deps, Dependency{
				Kind:       DependencyImports,
				SourceLine: int(node.StartPoint().Row) + 1,
				Target:     strings.Trim(nodeContent(sourceNode, source), `"'`),
			})
		}

	case "call_expression":
		// require('module') at any level
		if funcNode := node.Child(0); funcNode != nil && funcNode.Type() == "identifier" &&
			nodeContent(funcNode, source) == "require" {
			if args := findChild(node, "arguments"); args != nil {
				if strArg := findChild(args, "string"); strArg != nil {
					*deps = append(*deps, Dependency{
						Kind:       DependencyImports,
						SourceLine: int(node.StartPoint().Row) + 1,
						Target:     strings.Trim(nodeContent(strArg, source), `"'`),
					})
				}
			}
		}
	}

	if cursor.GoToFirstChild() {
		extractJSNode(cursor, source, filePath, parent, exported, symbols, deps)
		for cursor.GoToNextSibling() {
			extractJSNode(cursor, source, filePath, parent, exported, symbols, deps)
		}
		cursor.GoToParent()
	}
}

func extractJSFunction(node *sitter.Node, source []byte, filePath string) Symbol {
	name := ""
	if nameNode := findChild(node, "identifier"); nameNode != nil {
		name = nodeContent(nameNode, source)
	}

	signature := "function " + name
	if params := findChild(node, "formal_parameters"); params != nil {
		signature += nodeContent(params, source)
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
	}
}

func extractJSClass(node *sitter.Node, source []byte, filePath string) Symbol {
	// The TypeScript grammar names classes with type_identifier; plain
	// JavaScript uses identifier.
	name := ""
	if nameNode := findChild(node, "identifier"); nameNode != nil {
		name = nodeContent(nameNode, source)
	} else if nameNode := findChild(node, "type_identifier"); nameNode != nil {
		name = nodeContent(nameNode, source)
	}

	start, end := lineSpan(node)
	return Symbol{
		Name:      name,
		Kind:      SymbolClass,
		FilePath:  filePath,
		StartLine: start,
		EndLine:   end,
		Content:   nodeContent(node, source),
		Doc:       precedingComment(node, source),
	}
}

func extractJSMethod(
	node *sitter.Node,
	source []byte,
	filePath, parent string,
) Symbol {
	name := ""
	if nameNode := findChild(node, "property_identifier"); nameNode != nil {
		name = nodeContent(nameNode, source)
	}

	signature := name
	if params := findChild(node, "formal_parameters"); params != nil {
		signature += nodeContent(params, source)
	}

	start, end := lineSpan(node)
	return Symbol{
		Name:      name,
		Kind:      SymbolMethod,
		FilePath:  filePath,
		StartLine: start,
		EndLine:   end,
		Content:   nodeContent(node, source),
		Parent:    parent,
		Signature: signature,
		Exported:  true,
	}
}

// extractJSBindings records top-level const/let/var declarators as
// variable symbols; an arrow-function initializer makes it a function.
func extractJSBindings(node *sitter.Node, source []byte, filePath string, exported bool, symbols *[]Symbol, deps *[]Dependency) {
	isConst := strings.HasPrefix(nodeContent(node, source), "const")
	for i := 0; i < int(node.ChildCount()); i++ {
		decl := node.Child(i)
		if decl.Type() != "variable_declarator" {
			continue
		}
		nameNode := findChild(decl, "identifier")
		if nameNode == nil {
			continue
		}
		name := nodeContent(nameNode, source)
		kind := SymbolVariable
		if isConst {
			kind = SymbolConstant
		}
		if fn := findChild(decl, "arrow_function"); fn != nil {
			kind = SymbolFunction
			extractJSCalls(fn, source, name, deps)
		}
		start, end := lineSpan(node)
		*symbols = append(*symbols, Symbol{
			Name:      name,
			Kind:      kind,
			FilePath:  filePath,
			StartLine: start,
			EndLine:   end,
			Content:   nodeContent(node, source),
			Doc:       precedingComment(node, source),
			Exported:  exported,
		})
	}
}

// extractJSHeritage records extends dependencies from class_heritage.
func extractJSHeritage(node *sitter.Node, source []byte, className string, deps *[]Dependency) {
	heritage := findChild(node, "class_heritage")
	if heritage == nil {
		return
	}
	for i := 0; i < int(heritage.ChildCount()); i++ {
		child := heritage.Child(i)
		if child.Type() == "identifier" || child.Type() == "member_expression" {
			*deps = append(*deps, Dependency{
				Kind:       DependencyExtends,
				SourceName: className,
				SourceLine: int(node.StartPoint().Row) + 1,
				Target:     nodeContent(child, source),
			})
		}
	}
}

// extractJSCalls records calls dependencies inside a function or method
// body, skipping nested function definitions which own their own calls.
func extractJSCalls(node *sitter.Node, source []byte, sourceName string, deps *[]Dependency) {
	body := findChild(node, "statement_block")
	if body == nil {
		return
	}
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		for i := 0; i < int(n.ChildCount()); i++ {
			child := n.Child(i)
			switch child.Type() {
			case "function_declaration", "arrow_function", "function":
				continue
			case "call_expression":
				if funcNode := child.Child(0); funcNode != nil {
					target := jsCallTarget(funcNode, source)
					if target != "" && target != "require" {
						*deps = append(*deps, Dependency{
							Kind:       DependencyCalls,
							SourceName: sourceName,
							SourceLine: int(child.StartPoint().Row) + 1,
							Target:     target,
						})
					}
				}
			}
			walk(child)
		}
	}
	walk(body)
}

func jsCallTarget(node *sitter.Node, source []byte) string {
	switch node.Type() {
	case "identifier", "member_expression":
		return nodeContent(node, source)
	}
	return ""
}
