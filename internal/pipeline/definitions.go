package pipeline

import (
	"context"
	"log/slog"
	"runtime"
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	"golang.org/x/sync/errgroup"

	"github.com/repograph/repograph/internal/discover"
	"github.com/repograph/repograph/internal/fqn"
	"github.com/repograph/repograph/internal/graph"
	"github.com/repograph/repograph/internal/lang"
	"github.com/repograph/repograph/internal/parser"
	"github.com/repograph/repograph/internal/registry"
)

// passDefinitions parses every file in parallel and registers each
// class, function, and method in the definition registry. The errgroup
// Wait is the barrier between definition collection and resolution: no
// import, inheritance, or call is resolved until it returns.
func (p *Pipeline) passDefinitions(ctx context.Context) error {
	if len(p.files) == 0 {
		return nil
	}
	workers := p.cfg.Analysis.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(p.files) {
		workers = len(p.files)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, f := range p.files {
		f := f
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			if err := p.extractFile(f); err != nil {
				// A file that cannot be read or parsed is skipped;
				// the rest of the repository still gets analyzed.
				slog.Warn("pass.definitions.file.err", "file", f.RelPath, "err", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("pass.definitions.done", "definitions", p.reg.Len())
	return nil
}

// extractFile processes a single file: definitions into the registry
// and sink, raw imports into the module's import map, superclass names
// into the pending class table.
func (p *Pipeline) extractFile(f discover.FileInfo) error {
	co, err := p.acquireTree(f)
	if err != nil {
		return err
	}
	defer co.Release()

	spec := lang.ForLanguage(f.Language)
	moduleQN := fqn.ModuleQN(p.ProjectName, f.RelPath)
	root := co.Tree.RootNode()

	ext := &extractor{
		p:          p,
		file:       f,
		spec:       spec,
		source:     co.Source,
		moduleQN:   moduleQN,
		classKinds: toSet(spec.ClassNodeTypes),
		funcKinds:  toSet(spec.FunctionNodeTypes),
	}
	if err := ext.walkScope(root, moduleQN, ""); err != nil {
		return err
	}

	imports := parseImports(root, co.Source, spec, moduleQN, p.ProjectName)
	if len(imports) > 0 {
		p.mu.Lock()
		p.importMaps[moduleQN] = imports
		p.mu.Unlock()
	}
	return nil
}

// extractor carries per-file state through the definition walk.
type extractor struct {
	p          *Pipeline
	file       discover.FileInfo
	spec       *lang.Spec
	source     []byte
	moduleQN   string
	classKinds map[string]bool
	funcKinds  map[string]bool
}

// walkScope descends through one lexical scope. ownerQN is the
// qualified name definitions in this scope are nested under; classQN is
// non-empty when the scope is a class body, which turns functions into
// methods.
func (e *extractor) walkScope(node *tree_sitter.Node, ownerQN, classQN string) error {
	for i := uint(0); i < node.NamedChildCount(); i++ {
		child := node.NamedChild(i)
		if child == nil {
			continue
		}
		target := child
		var decorators []string
		if child.Kind() == "decorated_definition" {
			decorators = pythonDecorators(child, e.source)
			target = child.ChildByFieldName("definition")
			if target == nil {
				continue
			}
		}

		switch {
		case e.classKinds[target.Kind()]:
			if err := e.extractClass(target, ownerQN, decorators); err != nil {
				return err
			}
		case e.funcKinds[target.Kind()]:
			if err := e.extractFunction(target, ownerQN, classQN, decorators); err != nil {
				return err
			}
		default:
			// Containers like bodies, blocks, and export statements are
			// walked through without opening a new scope.
			if err := e.walkScope(target, ownerQN, classQN); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *extractor) extractClass(node *tree_sitter.Node, ownerQN string, decorators []string) error {
	name := nodeName(node, e.source)
	if name == "" {
		return e.walkScope(node, ownerQN, "")
	}
	classQN := fqn.Join(ownerQN, name)

	props := map[string]any{}
	if len(decorators) == 0 {
		decorators = nodeDecorators(node, e.source, e.spec)
	}
	if len(decorators) > 0 {
		props["decorators"] = decorators
	}
	bases := extractBaseClasses(node, e.source, e.spec.Language)
	if len(bases) > 0 {
		props["base_classes"] = bases
	}
	if doc := extractDocstring(node, e.source, e.spec.Language); doc != "" {
		props["docstring"] = doc
	}

	if err := e.p.emitEntity(graph.Entity{
		Kind:          graph.KindClass,
		Project:       e.p.ProjectName,
		Name:          name,
		QualifiedName: classQN,
		FilePath:      e.file.RelPath,
		StartLine:     safeRowToLine(node.StartPosition().Row),
		EndLine:       safeRowToLine(node.EndPosition().Row),
		Properties:    props,
	}); err != nil {
		return err
	}
	if err := e.p.emitRel(graph.Relationship{
		Type:     graph.RelDefines,
		SourceQN: ownerQN,
		TargetQN: classQN,
	}); err != nil {
		return err
	}

	e.p.reg.Insert(registry.Definition{
		QualifiedName: classQN,
		Kind:          graph.KindClass,
		ModuleQN:      e.moduleQN,
		FilePath:      e.file.RelPath,
		StartLine:     safeRowToLine(node.StartPosition().Row),
		EndLine:       safeRowToLine(node.EndPosition().Row),
	})
	e.p.mu.Lock()
	e.p.classes[classQN] = classInfo{moduleQN: e.moduleQN, bases: bases}
	e.p.mu.Unlock()

	body := node.ChildByFieldName("body")
	if body == nil {
		body = node
	}
	return e.walkScope(body, classQN, classQN)
}

func (e *extractor) extractFunction(node *tree_sitter.Node, ownerQN, classQN string, decorators []string) error {
	name := nodeName(node, e.source)
	if name == "" {
		return nil
	}

	kind := graph.KindFunction
	relType := graph.RelDefines
	funcOwner := ownerQN
	funcClass := classQN

	// Go methods hang off a receiver type, not a lexical class scope.
	if e.spec.Language == lang.Go && node.Kind() == "method_declaration" {
		if recv := goReceiverType(node, e.source); recv != "" {
			funcClass = fqn.Join(e.moduleQN, recv)
			funcOwner = funcClass
		}
	}

	if funcClass != "" {
		kind = graph.KindMethod
		relType = graph.RelDefinesMethod
	}
	funcQN := fqn.Join(funcOwner, name)

	props := map[string]any{}
	if len(decorators) == 0 {
		decorators = nodeDecorators(node, e.source, e.spec)
	}
	if len(decorators) > 0 {
		props["decorators"] = decorators
	}
	if sig := functionSignature(node, e.source); sig != "" {
		props["signature"] = sig
	}
	if doc := extractDocstring(node, e.source, e.spec.Language); doc != "" {
		props["docstring"] = doc
	}
	props["is_exported"] = isExported(name, e.spec.Language)

	if err := e.p.emitEntity(graph.Entity{
		Kind:          kind,
		Project:       e.p.ProjectName,
		Name:          name,
		QualifiedName: funcQN,
		FilePath:      e.file.RelPath,
		StartLine:     safeRowToLine(node.StartPosition().Row),
		EndLine:       safeRowToLine(node.EndPosition().Row),
		Properties:    props,
	}); err != nil {
		return err
	}
	if err := e.p.emitRel(graph.Relationship{
		Type:     relType,
		SourceQN: funcOwner,
		TargetQN: funcQN,
	}); err != nil {
		return err
	}

	e.p.reg.Insert(registry.Definition{
		QualifiedName: funcQN,
		Kind:          kind,
		ModuleQN:      e.moduleQN,
		ClassQN:       funcClass,
		FilePath:      e.file.RelPath,
		StartLine:     safeRowToLine(node.StartPosition().Row),
		EndLine:       safeRowToLine(node.EndPosition().Row),
	})

	// Nested definitions live under the function's qualified name but
	// are plain functions, not methods.
	body := node.ChildByFieldName("body")
	if body == nil {
		return nil
	}
	return e.walkScope(body, funcQN, "")
}

// nodeName finds the declared name of a definition node. Anonymous
// function expressions pick up the name of the variable they are
// assigned to, so `const handler = () => {}` registers as "handler".
func nodeName(node *tree_sitter.Node, source []byte) string {
	if nameNode := node.ChildByFieldName("name"); nameNode != nil {
		return parser.NodeText(nameNode, source)
	}
	parent := node.Parent()
	if parent == nil {
		return ""
	}
	switch parent.Kind() {
	case "variable_declarator", "assignment", "assignment_statement", "pair", "public_field_definition":
		if nameNode := parent.ChildByFieldName("name"); nameNode != nil {
			return parser.NodeText(nameNode, source)
		}
		if nameNode := parent.ChildByFieldName("left"); nameNode != nil {
			return parser.NodeText(nameNode, source)
		}
		if nameNode := parent.ChildByFieldName("key"); nameNode != nil {
			return parser.NodeText(nameNode, source)
		}
	}
	return ""
}

// goReceiverType extracts the receiver type name from a Go
// method_declaration, stripping any pointer star.
func goReceiverType(node *tree_sitter.Node, source []byte) string {
	recv := node.ChildByFieldName("receiver")
	if recv == nil {
		return ""
	}
	var typeName string
	parser.Walk(recv, func(n *tree_sitter.Node) bool {
		if n.Kind() == "type_identifier" {
			typeName = parser.NodeText(n, source)
			return false
		}
		return true
	})
	return typeName
}

func functionSignature(node *tree_sitter.Node, source []byte) string {
	params := node.ChildByFieldName("parameters")
	if params == nil {
		return ""
	}
	sig := parser.NodeText(params, source)
	if len(sig) > 512 {
		sig = sig[:512]
	}
	return sig
}

// isExported reports whether a definition is part of the module's
// public surface, by each language's naming convention.
func isExported(name string, language lang.Language) bool {
	if name == "" {
		return false
	}
	switch language {
	case lang.Go:
		r := rune(name[0])
		return r >= 'A' && r <= 'Z'
	case lang.Python:
		return !strings.HasPrefix(name, "_")
	case lang.PHP, lang.Rust:
		return true
	default:
		return !strings.HasPrefix(name, "_") && !strings.HasPrefix(name, "#")
	}
}

// pythonDecorators collects decorator texts from a decorated_definition
// wrapper, without the leading @.
func pythonDecorators(node *tree_sitter.Node, source []byte) []string {
	var out []string
	for i := uint(0); i < node.NamedChildCount(); i++ {
		child := node.NamedChild(i)
		if child != nil && child.Kind() == "decorator" {
			out = append(out, strings.TrimPrefix(parser.NodeText(child, source), "@"))
		}
	}
	return out
}

// nodeDecorators collects annotation/attribute nodes attached to a
// definition for languages that nest them inside the declaration
// (Java/C# modifiers, TS decorators, Rust attributes).
func nodeDecorators(node *tree_sitter.Node, source []byte, spec *lang.Spec) []string {
	if len(spec.DecoratorNodeTypes) == 0 {
		return nil
	}
	kinds := toSet(spec.DecoratorNodeTypes)
	var out []string

	collect := func(n *tree_sitter.Node) {
		for i := uint(0); i < n.NamedChildCount(); i++ {
			child := n.NamedChild(i)
			if child != nil && kinds[child.Kind()] {
				out = append(out, strings.Trim(parser.NodeText(child, source), "@#[]"))
			}
		}
	}
	collect(node)
	if mods := parser.FindChildByKind(node, "modifiers"); mods != nil {
		collect(mods)
	}
	// Rust and C# attach attributes as preceding siblings.
	for prev := node.PrevNamedSibling(); prev != nil && kinds[prev.Kind()]; prev = prev.PrevNamedSibling() {
		out = append(out, strings.Trim(parser.NodeText(prev, source), "@#[]"))
	}
	return out
}
