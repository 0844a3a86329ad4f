package parser

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/ruby"
)

func getRubyLanguage() *sitter.Language {
	return ruby.GetLanguage()
}

func extractRuby(root *sitter.Node, source []byte, filePath string) ([]Symbol, []Dependency) {
	var symbols []Symbol
	var deps []Dependency
	extractRubyScope(root, source, filePath, "", &symbols, &deps)
	return symbols, deps
}

func extractRubyScope(scope *sitter.Node, source []byte, filePath, parent string, symbols *[]Symbol, deps *[]Dependency) {
	for i := 0; i < int(scope.ChildCount()); i++ {
		node := scope.Child(i)
		switch node.Type() {
		case "method", "singleton_method":
			kind := SymbolFunction
			if parent != "" {
				kind = SymbolMethod
			}
			name := ""
			if nameNode := findChild(node, "identifier"); nameNode != nil {
				name = nodeContent(nameNode, source)
			}
			signature := "def " + name
			if params := findChild(node, "method_parameters"); params != nil {
				signature += nodeContent(params, source)
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
				Parent:    parent,
				Signature: signature,
				Exported:  true,
			})
			extractRubyCalls(node, source, javaQualified(parent, name), deps)

		case "class":
			name := ""
			if nameNode := findChild(node, "constant"); nameNode != nil {
				name = nodeContent(nameNode, source)
			}
			start, end := lineSpan(node)
			*symbols = append(*symbols, Symbol{
				Name:      name,
				Kind:      SymbolClass,
				FilePath:  filePath,
				StartLine: start,
				EndLine:   end,
				Content:   nodeContent(node, source),
				Doc:       precedingComment(node, source),
				Parent:    parent,
				Exported:  true,
			})
			if super := findChild(node, "superclass"); super != nil {
				for j := 0; j < int(super.ChildCount()); j++ {
					child := super.Child(j)
					if child.Type() == "constant" || child.Type() == "scope_resolution" {
						*deps = append(*deps, Dependency{
							Kind:       DependencyExtends,
							SourceName: name,
							SourceLine: int(node.StartPoint().Row) + 1,
							Target:     nodeContent(child, source),
						})
					}
				}
			}
			extractRubyScope(node, source, filePath, name, symbols, deps)

		case "module":
			name := ""
			if nameNode := findChild(node, "constant"); nameNode != nil {
				name = nodeContent(nameNode, source)
			}
			start, end := lineSpan(node)
			*symbols = append(*symbols, Symbol{
				Name:      name,
				Kind:      SymbolModule,
				FilePath:  filePath,
				StartLine: start,
				EndLine:   end,
				Content:   nodeContent(node, source),
				Doc:       precedingComment(node, source),
				Parent:    parent,
				Exported:  true,
			})
			extractRubyScope(node, source, filePath, name, symbols, deps)

		case "call":
			// require 'x' / require_relative 'x' / include Mixin
			method := ""
			if m := findChild(node, "identifier"); m != nil {
				method = nodeContent(m, source)
			}
			switch method {
			case "require", "require_relative":
				if args := findChild(node, "argument_list"); args != nil {
					if str := findChild(args, "string"); str != nil {
						*deps = append(*deps, Dependency{
							Kind:       DependencyImports,
							SourceLine: int(node.StartPoint().Row) + 1,
							Target:     strings.Trim(nodeContent(str, source), `"'`),
						})
					}
				}
			case "include", "extend":
				if args := findChild(node, "argument_list"); args != nil {
					if c := findChild(args, "constant"); c != nil {
						*deps = append(*deps, Dependency{
							Kind:       DependencyImplements,
							SourceName: parent,
							SourceLine: int(node.StartPoint().Row) + 1,
							Target:     nodeContent(c, source),
						})
					}
				}
			}

		case "body_statement":
			extractRubyScope(node, source, filePath, parent, symbols, deps)
		}
	}
}

func extractRubyCalls(node *sitter.Node, source []byte, sourceName string, deps *[]Dependency) {
	body := findChild(node, "body_statement")
	if body == nil {
		return
	}
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		for i := 0; i < int(n.ChildCount()); i++ {
			child := n.Child(i)
			if child.Type() == "method" {
				continue
			}
			if child.Type() == "call" {
				target := ""
				if m := findChild(child, "identifier"); m != nil {
					target = nodeContent(m, source)
				}
				if target != "" && target != "require" && target != "require_relative" {
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
