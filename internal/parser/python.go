package parser

import (
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

func getPythonLanguage() *sitter.Language {
	return python.GetLanguage()
}

func extractPython(root *sitter.Node, source []byte, filePath string) ([]Symbol, []Dependency) {
	var symbols []Symbol
	var deps []Dependency

	cursor := sitter.NewTreeCursor(root)
	defer cursor.Close()
	extractPythonNode(cursor, source, filePath, "", &symbols, &deps)

	return symbols, deps
}

func extractPythonNode(
	cursor *sitter.TreeCursor,
	source []byte,
	filePath, parent string,
	symbols *[]Symbol,
	deps *[]Dependency,
) {
	node := cursor.CurrentNode()

	switch node.Type() {
	case "function_definition":
		sym := extractPythonFunction(node, source, filePath, parent)
		*symbols = append(*symbols, sym)
		extractPythonCalls(node, source, sym.Name, deps)

		// Recurse into function body for nested functions
		if body := findChild(node, "block"); body != nil {
			bodyCursor := sitter.NewTreeCursor(body)
			defer bodyCursor.Close()
			extractPythonNode(bodyCursor, source, filePath, sym.Name, symbols, deps)
		}
		return

	case "class_definition":
		sym := extractPythonClass(node, source, filePath)
		*symbols = append(*symbols, sym)
		extractPythonBases(node, source, sym.Name, deps)

		// Extract methods within class
		if body := findChild(node, "block"); body != nil {
			for i := 0; i < int(body.ChildCount()); i++ {
				child := body.Child(i)
				if child.Type() == "function_definition" {
					methodSym := extractPythonFunction(child, source, filePath, sym.Name)
					methodSym.Kind = SymbolMethod
					*symbols = append(*symbols, methodSym)
					extractPythonCalls(child, source, sym.Name+"."+methodSym.Name, deps)
				}
			}
		}
		return

	case "import_statement":
		// import foo, bar
		for i := 0; i < int(node.ChildCount()); i++ {
			child := node.Child(i)
			if child.Type() == "dotted_name" || child.Type() == "aliased_import" {
				target := child
				if child.Type() == "aliased_import" {
					if dn := findChild(child, "dotted_name"); dn != nil {
						target = dn
					}
				}
				*deps = append(*deps, Dependency{
					Kind:       DependencyImports,
					SourceLine: int(node.StartPoint().Row) + 1,
					Target:     nodeContent(target, source),
				})
			}
		}

	case "import_from_statement":
		// from foo import bar / from . import foo
		if moduleNode := findChild(node, "dotted_name"); moduleNode != nil {
			*deps = append(*deps, Dependency{
				Kind:       DependencyImports,
				SourceLine: int(node.StartPoint().Row) + 1,
				Target:     nodeContent(moduleNode, source),
			})
		} else if moduleNode := findChild(node, "relative_import"); moduleNode != nil {
			*deps = append(*deps, Dependency{
				Kind:       DependencyImports,
				SourceLine: int(node.StartPoint().Row) + 1,
				Target:     nodeContent(moduleNode, source),
			})
		}

	case "expression_statement":
		// Top-level assignment: NAME = value becomes a variable symbol
		// (constant by Python convention when SHOUT_CASE).
		if parent == "" && node.Parent() != nil && node.Parent().Type() == "module" {
			if assign := findChild(node, "assignment"); assign != nil {
				if nameNode := findChild(assign, "identifier"); nameNode != nil {
					name := nodeContent(nameNode, source)
					kind := SymbolVariable
					if name == allUpper(name) {
						kind = SymbolConstant
					}
					start, end := lineSpan(node)
					*symbols = append(*symbols, Symbol{
						Name:      name,
						Kind:      kind,
						FilePath:  filePath,
						StartLine: start,
						EndLine:   end,
						Content:   nodeContent(node, source),
						Exported:  !hasUnderscorePrefix(name),
					})
				}
			}
		}
	}

	// Recurse into children
	if cursor.GoToFirstChild() {
		extractPythonNode(cursor, source, filePath, parent, symbols, deps)
		for cursor.GoToNextSibling() {
			extractPythonNode(cursor, source, filePath, parent, symbols, deps)
		}
		cursor.GoToParent()
	}
}

func extractPythonFunction(
	node *sitter.Node,
	source []byte,
	filePath, parent string,
) Symbol {
	name := ""
	if nameNode := findChild(node, "identifier"); nameNode != nil {
		name = nodeContent(nameNode, source)
	}

	docstring := ""
	if body := findChild(node, "block"); body != nil {
		if body.ChildCount() > 0 {
			firstStmt := body.Child(0)
			if firstStmt.Type() == "expression_statement" {
				if str := findChild(firstStmt, "string"); str != nil {
					docstring = cleanDocstring(nodeContent(str, source))
				}
			}
		}
	}

	// Build signature from parameters
	signature := "def " + name
	if params := findChild(node, "parameters"); params != nil {
		signature += nodeContent(params, source)
	}
	if retType := findChild(node, "type"); retType != nil {
		signature += " -> " + nodeContent(retType, source)
	}

	start, end := lineSpan(node)
	return Symbol{
		Name:      name,
		Kind:      SymbolFunction,
		FilePath:  filePath,
		StartLine: start,
		EndLine:   end,
		Content:   nodeContent(node, source),
		Doc:       docstring,
		Parent:    parent,
		Signature: signature,
		Exported:  !hasUnderscorePrefix(name),
	}
}

func extractPythonClass(node *sitter.Node, source []byte, filePath string) Symbol {
	name := ""
	if nameNode := findChild(node, "identifier"); nameNode != nil {
		name = nodeContent(nameNode, source)
	}

	docstring := ""
	if body := findChild(node, "block"); body != nil {
		if body.ChildCount() > 0 {
			firstStmt := body.Child(0)
			if firstStmt.Type() == "expression_statement" {
				if str := findChild(firstStmt, "string"); str != nil {
					docstring = cleanDocstring(nodeContent(str, source))
				}
			}
		}
	}

	start, end := lineSpan(node)
	return Symbol{
		Name:      name,
		Kind:      SymbolClass,
		FilePath:  filePath,
		StartLine: start,
		EndLine:   end,
		Content:   nodeContent(node, source),
		Doc:       docstring,
		Exported:  !hasUnderscorePrefix(name),
	}
}

// extractPythonBases records extends dependencies from a class's bases.
func extractPythonBases(node *sitter.Node, source []byte, className string, deps *[]Dependency) {
	argList := findChild(node, "argument_list")
	if argList == nil {
		return
	}
	for i := 0; i < int(argList.ChildCount()); i++ {
		child := argList.Child(i)
		if child.Type() == "identifier" || child.Type() == "attribute" {
			*deps = append(*deps, Dependency{
				Kind:       DependencyExtends,
				SourceName: className,
				SourceLine: int(node.StartPoint().Row) + 1,
				Target:     nodeContent(child, source),
			})
		}
	}
}

// extractPythonCalls records calls dependencies from a function body.
func extractPythonCalls(node *sitter.Node, source []byte, sourceName string, deps *[]Dependency) {
	body := findChild(node, "block")
	if body == nil {
		return
	}
	walkCalls(body, func(call *sitter.Node) {
		target := pythonCallTarget(call, source)
		if target != "" {
			*deps = append(*deps, Dependency{
				Kind:       DependencyCalls,
				SourceName: sourceName,
				SourceLine: int(call.StartPoint().Row) + 1,
				Target:     target,
			})
		}
	}, "call", "function_definition")
}

func pythonCallTarget(node *sitter.Node, source []byte) string {
	if node.ChildCount() == 0 {
		return ""
	}
	funcNode := node.Child(0)
	switch funcNode.Type() {
	case "identifier", "attribute":
		return nodeContent(funcNode, source)
	}
	return ""
}

// walkCalls visits every node of callType under root without descending
// into stopType nodes (nested definitions own their own calls).
func walkCalls(root *sitter.Node, visit func(*sitter.Node), callType, stopType string) {
	for i := 0; i < int(root.ChildCount()); i++ {
		child := root.Child(i)
		if child.Type() == stopType {
			continue
		}
		if child.Type() == callType {
			visit(child)
		}
		walkCalls(child, visit, callType, stopType)
	}
}

func cleanDocstring(s string) string {
	// Remove triple quotes
	if len(s) >= 6 && (s[:3] == `"""` || s[:3] == `'''`) {
		s = s[3 : len(s)-3]
	} else if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') {
		s = s[1 : len(s)-1]
	}
	return s
}

func hasUnderscorePrefix(name string) bool {
	return len(name) > 0 && name[0] == '_'
}

func allUpper(s string) string {
	out := []byte(s)
	for i, c := range out {
		if c >= 'a' && c <= 'z' {
			out[i] = c - 'a' + 'A'
		}
	}
	return string(out)
}
