package pipeline

import (
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/repograph/repograph/internal/lang"
	"github.com/repograph/repograph/internal/parser"
)

// extractBaseClasses extracts superclass names from a class definition.
// Names come back exactly as written; resolution to qualified names
// happens after the definition barrier.
func extractBaseClasses(node *tree_sitter.Node, source []byte, language lang.Language) []string {
	switch language {
	case lang.Python:
		return pythonBases(node, source)
	case lang.Java:
		return javaBases(node, source)
	case lang.TypeScript, lang.TSX, lang.JavaScript:
		return tsBases(node, source)
	case lang.CPP:
		return cppBases(node, source)
	case lang.Scala:
		return scalaBases(node, source)
	case lang.CSharp:
		return csharpBases(node, source)
	case lang.PHP:
		return phpBases(node, source)
	case lang.Kotlin:
		return kotlinBases(node, source)
	}
	// Go, Rust, and Lua have no class inheritance.
	return nil
}

func pythonBases(node *tree_sitter.Node, source []byte) []string {
	superNode := node.ChildByFieldName("superclasses")
	if superNode == nil {
		return nil
	}
	var bases []string
	for i := uint(0); i < superNode.NamedChildCount(); i++ {
		child := superNode.NamedChild(i)
		if child == nil || child.Kind() == "keyword_argument" {
			continue
		}
		if name := parser.NodeText(child, source); name != "" {
			bases = append(bases, name)
		}
	}
	return bases
}

func javaBases(node *tree_sitter.Node, source []byte) []string {
	var bases []string
	if superNode := node.ChildByFieldName("superclass"); superNode != nil {
		// Raw text includes the "extends" keyword, so navigate to the
		// type_identifier child.
		if typeID := parser.FindChildByKind(superNode, "type_identifier"); typeID != nil {
			if name := parser.NodeText(typeID, source); name != "" {
				bases = append(bases, name)
			}
		}
	}
	if implNode := node.ChildByFieldName("interfaces"); implNode != nil {
		for i := uint(0); i < implNode.NamedChildCount(); i++ {
			child := implNode.NamedChild(i)
			if child == nil {
				continue
			}
			if name := stripTypeArgs(parser.NodeText(child, source)); name != "" {
				bases = append(bases, name)
			}
		}
	}
	return bases
}

func tsBases(node *tree_sitter.Node, source []byte) []string {
	var bases []string
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child == nil || child.Kind() != "class_heritage" {
			continue
		}
		for j := uint(0); j < child.ChildCount(); j++ {
			clause := child.Child(j)
			if clause == nil {
				continue
			}
			switch clause.Kind() {
			case "extends_clause", "implements_clause":
				for k := uint(0); k < clause.NamedChildCount(); k++ {
					base := clause.NamedChild(k)
					if base == nil {
						continue
					}
					if name := stripTypeArgs(parser.NodeText(base, source)); name != "" {
						bases = append(bases, name)
					}
				}
			case "identifier", "member_expression":
				// JS class_heritage carries a bare identifier without a
				// clause wrapper.
				if name := parser.NodeText(clause, source); name != "" {
					bases = append(bases, name)
				}
			}
		}
	}
	return bases
}

func cppBases(node *tree_sitter.Node, source []byte) []string {
	var bases []string
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child == nil || child.Kind() != "base_class_clause" {
			continue
		}
		for j := uint(0); j < child.NamedChildCount(); j++ {
			base := child.NamedChild(j)
			if base != nil && (base.Kind() == "type_identifier" || base.Kind() == "qualified_identifier") {
				if name := parser.NodeText(base, source); name != "" {
					bases = append(bases, name)
				}
			}
		}
	}
	return bases
}

func scalaBases(node *tree_sitter.Node, source []byte) []string {
	var bases []string
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child == nil || child.Kind() != "extends_clause" {
			continue
		}
		for j := uint(0); j < child.NamedChildCount(); j++ {
			typeNode := child.NamedChild(j)
			if typeNode != nil && typeNode.Kind() == "type_identifier" {
				if name := parser.NodeText(typeNode, source); name != "" {
					bases = append(bases, name)
				}
			}
		}
	}
	return bases
}

func csharpBases(node *tree_sitter.Node, source []byte) []string {
	baseList := parser.FindChildByKind(node, "base_list")
	if baseList == nil {
		return nil
	}
	var bases []string
	for i := uint(0); i < baseList.NamedChildCount(); i++ {
		child := baseList.NamedChild(i)
		if child == nil {
			continue
		}
		if name := stripTypeArgs(parser.NodeText(child, source)); name != "" {
			bases = append(bases, name)
		}
	}
	return bases
}

func phpBases(node *tree_sitter.Node, source []byte) []string {
	baseClause := parser.FindChildByKind(node, "base_clause")
	if baseClause == nil {
		return nil
	}
	var bases []string
	for i := uint(0); i < baseClause.NamedChildCount(); i++ {
		child := baseClause.NamedChild(i)
		if child != nil && (child.Kind() == "name" || child.Kind() == "qualified_name") {
			if name := parser.NodeText(child, source); name != "" {
				bases = append(bases, name)
			}
		}
	}
	return bases
}

func kotlinBases(node *tree_sitter.Node, source []byte) []string {
	var bases []string
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child == nil {
			continue
		}
		if child.Kind() == "delegation_specifier_list" || child.Kind() == "delegation_specifiers" {
			for j := uint(0); j < child.NamedChildCount(); j++ {
				spec := child.NamedChild(j)
				if spec == nil {
					continue
				}
				text := parser.NodeText(spec, source)
				// Strip constructor args: "Parent()" -> "Parent".
				if idx := strings.Index(text, "("); idx > 0 {
					text = text[:idx]
				}
				if text = strings.TrimSpace(text); text != "" {
					bases = append(bases, text)
				}
			}
		}
	}
	return bases
}

// stripTypeArgs drops generic arguments: "List<T>" -> "List".
func stripTypeArgs(name string) string {
	if idx := strings.IndexAny(name, "<["); idx > 0 {
		name = name[:idx]
	}
	return strings.TrimSpace(name)
}

// extractDocstring extracts the documentation for a definition node.
// Python uses the PEP 257 first-statement string; other languages scan
// backwards from the definition for comment lines.
func extractDocstring(node *tree_sitter.Node, source []byte, language lang.Language) string {
	if language == lang.Python {
		return pythonDocstring(node, source)
	}
	return commentDocstring(node, source, language)
}

func pythonDocstring(node *tree_sitter.Node, source []byte) string {
	body := node.ChildByFieldName("body")
	if body == nil || body.NamedChildCount() == 0 {
		return ""
	}
	first := body.NamedChild(0)
	if first == nil || first.Kind() != "expression_statement" || first.NamedChildCount() == 0 {
		return ""
	}
	strNode := first.NamedChild(0)
	if strNode == nil || strNode.Kind() != "string" {
		return ""
	}
	return cleanPythonDocstring(parser.NodeText(strNode, source))
}

func cleanPythonDocstring(s string) string {
	for _, delim := range []string{`"""`, `'''`} {
		if strings.HasPrefix(s, delim) && strings.HasSuffix(s, delim) && len(s) >= 6 {
			s = s[3 : len(s)-3]
			break
		}
	}
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// commentDocstring collects the run of // or # comment lines directly
// above the definition.
func commentDocstring(node *tree_sitter.Node, source []byte, language lang.Language) string {
	prefix := "//"
	switch language {
	case lang.Lua:
		prefix = "--"
	case lang.PHP:
		prefix = "//"
	}

	lines := strings.Split(string(source), "\n")
	row := int(node.StartPosition().Row)
	if row <= 0 || row > len(lines) {
		return ""
	}

	var doc []string
	for i := row - 1; i >= 0; i-- {
		trimmed := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(trimmed, prefix) {
			break
		}
		text := strings.TrimSpace(strings.TrimLeft(trimmed, prefix+"/!-"))
		doc = append([]string{text}, doc...)
	}
	return strings.TrimSpace(strings.Join(doc, "\n"))
}
