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
)

// receiverAliases are the self-reference names that route a call into
// the enclosing class's method resolution order.
var receiverAliases = map[string]bool{"self": true, "this": true, "cls": true}

// passCalls walks every file a second time and resolves call sites
// against the completed registry. Trees usually come straight from the
// cache; evicted ones are re-parsed transparently. Every call either
// resolves to a definition, resolves to an external placeholder, or
// increments the unresolved counter — none disappear without a trace.
func (p *Pipeline) passCalls(ctx context.Context) error {
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
			if err := p.resolveFileCalls(f); err != nil {
				slog.Warn("pass.calls.file.err", "file", f.RelPath, "err", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("pass.calls.done",
		"edges", p.relCounts[graph.RelCalls].Load(),
		"unresolved", p.unresolvedCalls.Load())
	return nil
}

func (p *Pipeline) resolveFileCalls(f discover.FileInfo) error {
	co, err := p.acquireTree(f)
	if err != nil {
		return err
	}
	defer co.Release()

	moduleQN := fqn.ModuleQN(p.ProjectName, f.RelPath)
	p.mu.Lock()
	importMap := p.importMaps[moduleQN]
	p.mu.Unlock()

	spec := lang.ForLanguage(f.Language)
	w := &callWalker{
		p:          p,
		spec:       spec,
		source:     co.Source,
		moduleQN:   moduleQN,
		importMap:  importMap,
		classKinds: toSet(spec.ClassNodeTypes),
		funcKinds:  toSet(spec.FunctionNodeTypes),
		callKinds:  toSet(spec.CallNodeTypes),
	}
	return w.walk(co.Tree.RootNode(), moduleQN, "")
}

// callWalker tracks the lexical scope while scanning for call sites, so
// each call knows its enclosing function or method (the CALLS source)
// and its enclosing class (for self-dispatch).
type callWalker struct {
	p          *Pipeline
	spec       *lang.Spec
	source     []byte
	moduleQN   string
	importMap  map[string]string
	classKinds map[string]bool
	funcKinds  map[string]bool
	callKinds  map[string]bool
}

func (w *callWalker) walk(node *tree_sitter.Node, ownerQN, classQN string) error {
	for i := uint(0); i < node.NamedChildCount(); i++ {
		child := node.NamedChild(i)
		if child == nil {
			continue
		}
		target := child
		if child.Kind() == "decorated_definition" {
			if def := child.ChildByFieldName("definition"); def != nil {
				target = def
			}
		}

		switch {
		case w.classKinds[target.Kind()]:
			name := nodeName(target, w.source)
			if name == "" {
				if err := w.walk(target, ownerQN, classQN); err != nil {
					return err
				}
				continue
			}
			qn := fqn.Join(ownerQN, name)
			body := target.ChildByFieldName("body")
			if body == nil {
				body = target
			}
			if err := w.walk(body, qn, qn); err != nil {
				return err
			}
		case w.funcKinds[target.Kind()]:
			if err := w.enterFunction(target, ownerQN, classQN); err != nil {
				return err
			}
		default:
			if w.callKinds[target.Kind()] {
				if err := w.handleCall(target, ownerQN, classQN); err != nil {
					return err
				}
			}
			// Arguments can hold nested calls and lambdas; keep walking
			// inside either way.
			if err := w.walk(target, ownerQN, classQN); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *callWalker) enterFunction(node *tree_sitter.Node, ownerQN, classQN string) error {
	name := nodeName(node, w.source)
	if name == "" {
		// Anonymous function: calls inside attribute to the enclosing scope.
		if body := node.ChildByFieldName("body"); body != nil {
			return w.walk(body, ownerQN, classQN)
		}
		return nil
	}
	funcOwner := ownerQN
	funcClass := classQN
	if w.spec.Language == lang.Go && node.Kind() == "method_declaration" {
		if recv := goReceiverType(node, w.source); recv != "" {
			funcOwner = fqn.Join(w.moduleQN, recv)
			funcClass = funcOwner
		}
	}
	funcQN := fqn.Join(funcOwner, name)
	body := node.ChildByFieldName("body")
	if body == nil {
		return nil
	}
	// The class stays in scope inside the body: receiver calls made from
	// the method (and from closures it defines) dispatch through it.
	return w.walk(body, funcQN, funcClass)
}

func (w *callWalker) handleCall(node *tree_sitter.Node, ownerQN, classQN string) error {
	callee := extractCalleeName(node, w.source)
	if callee == "" {
		return nil
	}
	targetQN, external := w.resolve(callee, classQN)
	if targetQN == "" {
		w.p.unresolvedCalls.Add(1)
		slog.Debug("pass.calls.unresolved", "caller", ownerQN, "callee", callee)
		return nil
	}
	if external {
		if err := w.p.emitEntity(graph.Entity{
			Kind:          graph.KindExternalModule,
			Project:       w.p.ProjectName,
			Name:          lastSegment(targetQN),
			QualifiedName: targetQN,
		}); err != nil {
			return err
		}
	}
	return w.p.emitRel(graph.Relationship{
		Type:       graph.RelCalls,
		SourceQN:   ownerQN,
		TargetQN:   targetQN,
		Properties: map[string]any{"line": safeRowToLine(node.StartPosition().Row)},
	})
}

// resolve maps a callee expression to a target qualified name. Strategy
// order: receiver dispatch, import alias, same class, same module,
// unique simple name. The same-module check runs before the simple-name
// fallback so a local definition always beats a same-named one
// elsewhere in the project.
func (w *callWalker) resolve(callee, classQN string) (string, bool) {
	callee = fqn.Normalize(callee)
	segs := fqn.Segments(callee)
	if len(segs) == 0 {
		return "", false
	}
	reg := w.p.reg

	if receiverAliases[segs[0]] {
		if classQN == "" || len(segs) != 2 {
			return "", false
		}
		if def, ok := reg.ResolveMethod(classQN, segs[1]); ok {
			return def.QualifiedName, false
		}
		return "", false
	}

	if resolved, ok := w.importMap[segs[0]]; ok {
		candidate := resolved
		if len(segs) > 1 {
			candidate = fqn.Join(append([]string{resolved}, segs[1:]...)...)
		}
		if def, ok := reg.Lookup(candidate); ok {
			return def.QualifiedName, false
		}
		if w.isExternalQN(resolved) {
			return candidate, true
		}
		return "", false
	}

	if classQN != "" && len(segs) == 1 {
		if def, ok := reg.ResolveMethod(classQN, segs[0]); ok {
			return def.QualifiedName, false
		}
	}

	if def, ok := reg.Lookup(fqn.Join(w.moduleQN, callee)); ok {
		return def.QualifiedName, false
	}
	simple := segs[len(segs)-1]
	if len(segs) > 1 {
		if def, ok := reg.Lookup(fqn.Join(w.moduleQN, simple)); ok {
			return def.QualifiedName, false
		}
	}

	// Last resort: a project-unique simple name, counting only
	// definitions a call can actually target. Modules and packages share
	// the namespace but are never call targets.
	var match string
	for _, qn := range reg.BySimpleName(simple) {
		def, ok := reg.Lookup(qn)
		if !ok || !callableKind(def.Kind) {
			continue
		}
		if match != "" {
			return "", false
		}
		match = qn
	}
	if match != "" {
		return match, false
	}
	return "", false
}

func callableKind(k graph.Kind) bool {
	switch k {
	case graph.KindFunction, graph.KindMethod, graph.KindClass:
		return true
	}
	return false
}

func (w *callWalker) isExternalQN(qn string) bool {
	return qn != w.p.ProjectName && !strings.HasPrefix(qn, w.p.ProjectName+fqn.Sep)
}

// extractCalleeName pulls the called expression's name out of a call
// node. Dotted receivers stay attached ("obj.method"); calls through
// computed expressions yield nothing.
func extractCalleeName(node *tree_sitter.Node, source []byte) string {
	var text string
	switch {
	case node.ChildByFieldName("function") != nil:
		text = parser.NodeText(node.ChildByFieldName("function"), source)
	case node.ChildByFieldName("name") != nil:
		// Java method_invocation keeps receiver and name in separate fields.
		text = parser.NodeText(node.ChildByFieldName("name"), source)
		if obj := node.ChildByFieldName("object"); obj != nil {
			text = parser.NodeText(obj, source) + "." + text
		}
	default:
		if first := node.NamedChild(0); first != nil {
			text = parser.NodeText(first, source)
		}
	}
	if text == "" || strings.ContainsAny(text, "()[] \n\t") {
		return ""
	}
	return text
}
