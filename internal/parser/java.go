package parser

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/java"
)

func getJavaLanguage() *sitter.Language {
	return java.GetLanguage()
}

func extractJava(root *sitter.Node, source []byte, filePath string) ([]Symbol, []Dependency) {
	var symbols []Symbol
	var deps []Dependency
	extractJavaScope(root, source, filePath, "", &symbols, &deps)
	return symbols, deps
}

func extractJavaScope(scope *sitter.Node, source []byte, filePath, parent string, symbols *[]Symbol, deps *[]Dependency) {
	for i := 0; i < int(scope.ChildCount()); i++ {
		node := scope.Child(i)
		switch node.Type() {
		case "class_declaration", "interface_declaration", "enum_declaration":
			kind := SymbolClass
			switch node.Type() {
			case "interface_declaration":
				kind = SymbolInterface
			case "enum_declaration":
				kind = SymbolEnum
			}
			sym := javaNamedSymbol(node, source, filePath, kind)
			sym.Parent = parent
			*symbols = append(*symbols, sym)

			if super := findChild(node, "superclass"); super != nil {
				for j := 0; j < int(super.ChildCount()); j++ {
					child := super.Child(j)
					if child.Type() == "type_identifier" {
						*deps = append(*deps, Dependency{
							Kind:       DependencyExtends,
							SourceName: sym.Name,
							SourceLine: int(node.StartPoint().Row) + 1,
							Target:     nodeContent(child, source),
						})
					}
				}
			}
			if ifaces := findChild(node, "super_interfaces"); ifaces != nil {
				collectJavaTypeIdentifiers(ifaces, source, func(name string, line int) {
					*deps = append(*deps, Dependency{
						Kind:       DependencyImplements,
						SourceName: sym.Name,
						SourceLine: line,
						Target:     name,
					})
				})
			}

			for _, bodyType := range []string{"class_body", "interface_body", "enum_body"} {
				if body := findChild(node, bodyType); body != nil {
					extractJavaScope(body, source, filePath, sym.Name, symbols, deps)
				}
			}

		case "method_declaration", "constructor_declaration":
			sym := javaNamedSymbol(node, source, filePath, SymbolMethod)
			sym.Parent = parent
			sym.Signature = javaSignature(node, source)
			*symbols = append(*symbols, sym)
			extractJavaCalls(node, source, javaQualified(parent, sym.Name), deps)

		case "field_declaration":
			// One field_declaration may declare several variables.
			for j := 0; j < int(node.ChildCount()); j++ {
				decl := node.Child(j)
				if decl.Type() != "variable_declarator" {
					continue
				}
				if nameNode := findChild(decl, "identifier"); nameNode != nil {
					name := nodeContent(nameNode, source)
					start, end := lineSpan(node)
					*symbols = append(*symbols, Symbol{
						Name:      name,
						Kind:      SymbolField,
						FilePath:  filePath,
						StartLine: start,
						EndLine:   end,
						Content:   nodeContent(node, source),
						Parent:    parent,
						Exported:  javaIsPublic(node, source),
					})
				}
			}

		case "import_declaration":
			target := strings.TrimSuffix(strings.TrimSpace(strings.TrimPrefix(nodeContent(node, source), "import")), ";")
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

func javaNamedSymbol(node *sitter.Node, source []byte, filePath string, kind SymbolKind) Symbol {
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
		Doc:       precedingComment(node, source, "block_comment", "line_comment", "comment"),
		Exported:  javaIsPublic(node, source),
	}
}

// javaIsPublic checks the modifiers child for the public keyword.
func javaIsPublic(node *sitter.Node, source []byte) bool {
	mods := findChild(node, "modifiers")
	if mods == nil {
		return false
	}
	return strings.Contains(nodeContent(mods, source), "public")
}

// javaSignature is the declaration up to the method body.
func javaSignature(node *sitter.Node, source []byte) string {
	if body := findChild(node, "block"); body != nil {
		return strings.TrimSpace(string(source[node.StartByte():body.StartByte()]))
	}
	return strings.TrimSuffix(strings.TrimSpace(nodeContent(node, source)), ";")
}

func javaQualified(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "." + name
}

func collectJavaTypeIdentifiers(node *sitter.Node, source []byte, emit func(name string, line int)) {
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		for i := 0; i < int(n.ChildCount()); i++ {
			child := n.Child(i)
			if child.Type() == "type_identifier" {
				emit(nodeContent(child, source), int(child.StartPoint().Row)+1)
			}
			walk(child)
		}
	}
	walk(node)
}

func extractJavaCalls(node *sitter.Node, source []byte, sourceName string, deps *[]Dependency) {
	body := findChild(node, "block")
	if body == nil {
		return
	}
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		for i := 0; i < int(n.ChildCount()); i++ {
			child := n.Child(i)
			if child.Type() == "method_invocation" {
				// method_invocation text up to the argument list names the target.
				target := nodeContent(child, source)
				if args := findChild(child, "argument_list"); args != nil {
					target = strings.TrimSpace(string(source[child.StartByte():args.StartByte()]))
				}
				if target != "" {
					*deps = append(*deps, Dependency{
						Kind:       DependencyCalls,
						SourceName: sourceName,
						SourceLine: int(child.StartPoint().Row) + 1,
						Target:     target,
					})
				}
			}
			walk(child)
		}
	}
	walk(body)
}
