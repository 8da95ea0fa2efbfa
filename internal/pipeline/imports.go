package pipeline

import (
	"context"
	"log/slog"
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/repograph/repograph/internal/fqn"
	"github.com/repograph/repograph/internal/graph"
	"github.com/repograph/repograph/internal/lang"
	"github.com/repograph/repograph/internal/parser"
)

// parseImports collects a module's import bindings as alias -> raw
// target path. Targets stay unresolved strings here; passImports turns
// them into qualified names once the registry is complete.
func parseImports(root *tree_sitter.Node, source []byte, spec *lang.Spec, moduleQN, project string) map[string]string {
	imports := make(map[string]string)
	switch spec.Language {
	case lang.Python:
		parsePythonImports(root, source, moduleQN, imports)
	case lang.Go:
		parseGoImports(root, source, project, imports)
	case lang.JavaScript, lang.TypeScript, lang.TSX:
		parseJSImports(root, source, moduleQN, imports)
	case lang.Rust:
		parseRustImports(root, source, project, imports)
	case lang.Java, lang.Scala, lang.Kotlin:
		parseJavaStyleImports(root, source, imports)
	}
	if len(imports) == 0 {
		return nil
	}
	return imports
}

func parsePythonImports(root *tree_sitter.Node, source []byte, moduleQN string, imports map[string]string) {
	parser.Walk(root, func(node *tree_sitter.Node) bool {
		switch node.Kind() {
		case "import_statement":
			// import a.b, import a.b as c
			for i := uint(0); i < node.NamedChildCount(); i++ {
				child := node.NamedChild(i)
				if child == nil {
					continue
				}
				switch child.Kind() {
				case "dotted_name":
					target := parser.NodeText(child, source)
					imports[lastSegment(target)] = fqn.Normalize(target)
				case "aliased_import":
					name := child.ChildByFieldName("name")
					alias := child.ChildByFieldName("alias")
					if name != nil && alias != nil {
						imports[parser.NodeText(alias, source)] = fqn.Normalize(parser.NodeText(name, source))
					}
				}
			}
			return false
		case "import_from_statement":
			parsePythonFromImport(node, source, moduleQN, imports)
			return false
		}
		return true
	})
}

// parsePythonFromImport handles `from X import a, b as c`, including
// relative forms like `from ..pkg import x`.
func parsePythonFromImport(node *tree_sitter.Node, source []byte, moduleQN string, imports map[string]string) {
	modNode := node.ChildByFieldName("module_name")
	if modNode == nil {
		return
	}
	base := resolvePythonModuleRef(parser.NodeText(modNode, source), moduleQN)
	if base == "" {
		return
	}
	// Imported names follow the module_name child.
	sawModule := false
	for i := uint(0); i < node.NamedChildCount(); i++ {
		child := node.NamedChild(i)
		if child == nil {
			continue
		}
		if !sawModule {
			if child.Id() == modNode.Id() {
				sawModule = true
			}
			continue
		}
		switch child.Kind() {
		case "dotted_name", "identifier":
			name := parser.NodeText(child, source)
			imports[lastSegment(name)] = fqn.Join(base, fqn.Normalize(name))
		case "aliased_import":
			nameNode := child.ChildByFieldName("name")
			aliasNode := child.ChildByFieldName("alias")
			if nameNode != nil && aliasNode != nil {
				name := parser.NodeText(nameNode, source)
				imports[parser.NodeText(aliasNode, source)] = fqn.Join(base, fqn.Normalize(name))
			}
		case "wildcard_import":
			imports["*"] = base
		}
	}
}

// resolvePythonModuleRef resolves a from-import module reference. A
// leading-dot relative reference resolves against the importing
// module's package; one dot is the current package, each further dot
// climbs one level.
func resolvePythonModuleRef(ref, moduleQN string) string {
	if !strings.HasPrefix(ref, ".") {
		return fqn.Normalize(ref)
	}
	dots := 0
	for dots < len(ref) && ref[dots] == '.' {
		dots++
	}
	rest := ref[dots:]

	segs := fqn.Segments(moduleQN)
	// Drop the module's own name, then one more segment per extra dot.
	drop := dots
	if len(segs)-drop < 1 {
		return ""
	}
	base := fqn.Join(segs[:len(segs)-drop]...)
	if rest == "" {
		return base
	}
	return fqn.Join(base, fqn.Normalize(rest))
}

func parseGoImports(root *tree_sitter.Node, source []byte, project string, imports map[string]string) {
	parser.Walk(root, func(node *tree_sitter.Node) bool {
		if node.Kind() != "import_spec" {
			return node.Kind() == "source_file" || node.Kind() == "import_declaration" || node.Kind() == "import_spec_list"
		}
		pathNode := node.ChildByFieldName("path")
		if pathNode == nil {
			return false
		}
		importPath := strings.Trim(parser.NodeText(pathNode, source), `"`)
		alias := importPath[strings.LastIndex(importPath, "/")+1:]
		if nameNode := node.ChildByFieldName("name"); nameNode != nil {
			alias = parser.NodeText(nameNode, source)
		}
		// Dot and blank imports bind no usable name.
		if alias == "." || alias == "_" || alias == "" {
			return false
		}
		imports[alias] = resolveGoImportPath(importPath, project)
		return false
	})
}

// resolveGoImportPath maps a Go import path onto a qualified name. A
// path containing the project name as a segment is internal; the
// remainder after that segment becomes a project-relative name.
func resolveGoImportPath(importPath, project string) string {
	segs := strings.Split(importPath, "/")
	for i, seg := range segs {
		if seg == project {
			if i == len(segs)-1 {
				return project
			}
			return fqn.Join(append([]string{project}, segs[i+1:]...)...)
		}
	}
	return fqn.Normalize(importPath)
}

func parseJSImports(root *tree_sitter.Node, source []byte, moduleQN string, imports map[string]string) {
	parser.Walk(root, func(node *tree_sitter.Node) bool {
		if node.Kind() != "import_statement" {
			return node.Kind() == "program" || node.Kind() == "export_statement"
		}
		srcNode := node.ChildByFieldName("source")
		if srcNode == nil {
			return false
		}
		target := resolveJSModuleRef(strings.Trim(parser.NodeText(srcNode, source), `"'`), moduleQN)
		if target == "" {
			return false
		}
		clause := parser.FindChildByKind(node, "import_clause")
		if clause == nil {
			return false
		}
		for i := uint(0); i < clause.NamedChildCount(); i++ {
			child := clause.NamedChild(i)
			if child == nil {
				continue
			}
			switch child.Kind() {
			case "identifier":
				// Default import binds the module itself.
				imports[parser.NodeText(child, source)] = target
			case "namespace_import":
				if ident := parser.FindChildByKind(child, "identifier"); ident != nil {
					imports[parser.NodeText(ident, source)] = target
				}
			case "named_imports":
				for j := uint(0); j < child.NamedChildCount(); j++ {
					spec := child.NamedChild(j)
					if spec == nil || spec.Kind() != "import_specifier" {
						continue
					}
					nameNode := spec.ChildByFieldName("name")
					if nameNode == nil {
						continue
					}
					name := parser.NodeText(nameNode, source)
					alias := name
					if aliasNode := spec.ChildByFieldName("alias"); aliasNode != nil {
						alias = parser.NodeText(aliasNode, source)
					}
					imports[alias] = fqn.Join(target, name)
				}
			}
		}
		return false
	})
}

// resolveJSModuleRef resolves a JS import specifier. Relative paths
// resolve against the importing module's directory; bare specifiers are
// package references and stay as written.
func resolveJSModuleRef(ref, moduleQN string) string {
	if !strings.HasPrefix(ref, ".") {
		return fqn.Normalize(ref)
	}
	segs := fqn.Segments(moduleQN)
	if len(segs) == 0 {
		return ""
	}
	dir := segs[:len(segs)-1]
	for _, part := range strings.Split(ref, "/") {
		switch part {
		case ".", "":
		case "..":
			if len(dir) <= 1 {
				return ""
			}
			dir = dir[:len(dir)-1]
		default:
			part = strings.TrimSuffix(part, ".js")
			part = strings.TrimSuffix(part, ".ts")
			part = strings.TrimSuffix(part, ".tsx")
			part = strings.TrimSuffix(part, ".jsx")
			dir = append(dir, part)
		}
	}
	return fqn.Join(dir...)
}

func parseRustImports(root *tree_sitter.Node, source []byte, project string, imports map[string]string) {
	parser.Walk(root, func(node *tree_sitter.Node) bool {
		if node.Kind() != "use_declaration" {
			return node.Kind() == "source_file" || node.Kind() == "mod_item"
		}
		if arg := node.ChildByFieldName("argument"); arg != nil {
			collectRustUse(arg, source, project, "", imports)
		}
		return false
	})
}

// collectRustUse flattens a use tree into alias bindings. prefix is the
// already-walked path above the current node.
func collectRustUse(node *tree_sitter.Node, source []byte, project, prefix string, imports map[string]string) {
	join := func(s string) string {
		p := fqn.Normalize(s)
		if prefix != "" {
			p = fqn.Join(prefix, p)
		}
		return rustCratePath(p, project)
	}
	switch node.Kind() {
	case "identifier", "scoped_identifier", "crate", "self":
		target := join(parser.NodeText(node, source))
		imports[lastSegment(target)] = target
	case "use_as_clause":
		pathNode := node.ChildByFieldName("path")
		aliasNode := node.ChildByFieldName("alias")
		if pathNode != nil && aliasNode != nil {
			imports[parser.NodeText(aliasNode, source)] = join(parser.NodeText(pathNode, source))
		}
	case "scoped_use_list":
		pathNode := node.ChildByFieldName("path")
		listNode := node.ChildByFieldName("list")
		if pathNode == nil || listNode == nil {
			return
		}
		base := join(parser.NodeText(pathNode, source))
		for i := uint(0); i < listNode.NamedChildCount(); i++ {
			if child := listNode.NamedChild(i); child != nil {
				collectRustUse(child, source, project, base, imports)
			}
		}
	}
}

// rustCratePath rewrites a crate-rooted path to the project root.
func rustCratePath(p, project string) string {
	if p == "crate" {
		return project
	}
	if strings.HasPrefix(p, "crate.") {
		return project + strings.TrimPrefix(p, "crate")
	}
	return p
}

func parseJavaStyleImports(root *tree_sitter.Node, source []byte, imports map[string]string) {
	parser.Walk(root, func(node *tree_sitter.Node) bool {
		switch node.Kind() {
		case "import_declaration", "import_header":
			text := parser.NodeText(node, source)
			text = strings.TrimPrefix(text, "import")
			text = strings.TrimSuffix(strings.TrimSpace(text), ";")
			text = strings.TrimSpace(strings.TrimPrefix(text, "static"))
			if text == "" || strings.HasSuffix(text, "*") || strings.HasSuffix(text, "_") {
				return false
			}
			target := fqn.Normalize(text)
			imports[lastSegment(target)] = target
			return false
		}
		return true
	})
}

// passImports resolves each module's raw import targets against the
// registry and emits IMPORTS edges. A target that matches nothing in
// the project materializes an ExternalModule placeholder so the
// dependency is never silently dropped. Alias maps are rewritten in
// place to the resolved names for the call pass.
func (p *Pipeline) passImports(context.Context) error {
	edges, external := 0, 0
	for moduleQN, aliases := range p.importMaps {
		for alias, raw := range aliases {
			target, isExternal, err := p.resolveImportTarget(raw)
			if err != nil {
				return err
			}
			if target == "" {
				p.unresolvedImports.Add(1)
				slog.Debug("pass.imports.unresolved", "module", moduleQN, "target", raw)
				continue
			}
			if isExternal {
				external++
			}
			aliases[alias] = target
			props := map[string]any{}
			if alias != "*" && alias != lastSegment(target) {
				props["alias"] = alias
			}
			if err := p.emitRel(graph.Relationship{
				Type:       graph.RelImports,
				SourceQN:   moduleQN,
				TargetQN:   importEdgeTarget(p, target),
				Properties: props,
			}); err != nil {
				return err
			}
			edges++
		}
	}
	slog.Info("pass.imports.done", "edges", edges, "external", external,
		"unresolved", p.unresolvedImports.Load())
	return nil
}

// resolveImportTarget classifies a raw import target as internal or
// external. Internal targets come back project-qualified; external
// ones keep their bare path and get an ExternalModule node.
func (p *Pipeline) resolveImportTarget(raw string) (string, bool, error) {
	candidate := raw
	if !strings.HasPrefix(raw, p.ProjectName+fqn.Sep) && raw != p.ProjectName {
		candidate = fqn.Join(p.ProjectName, raw)
	}
	if _, ok := p.reg.Lookup(candidate); ok {
		return candidate, false, nil
	}
	if len(p.reg.Prefix(candidate)) > 0 {
		return candidate, false, nil
	}
	// A project-prefixed raw target that resolves to nothing was a
	// relative import of a missing module; fall through to external
	// only for bare targets.
	if candidate == raw {
		return "", false, nil
	}

	ext := fqn.Normalize(raw)
	err := p.emitEntity(graph.Entity{
		Kind:          graph.KindExternalModule,
		Project:       p.ProjectName,
		Name:          lastSegment(ext),
		QualifiedName: ext,
	})
	return ext, true, err
}

// importEdgeTarget maps a resolved import target onto the entity the
// IMPORTS edge should point at: the containing module for a definition
// target, the target itself otherwise.
func importEdgeTarget(p *Pipeline, target string) string {
	if _, ok := p.modules[target]; ok {
		return target
	}
	if def, ok := p.reg.Lookup(target); ok && def.ModuleQN != "" {
		return def.ModuleQN
	}
	return target
}
