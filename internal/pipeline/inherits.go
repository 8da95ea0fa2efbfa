package pipeline

import (
	"context"
	"log/slog"

	"github.com/repograph/repograph/internal/fqn"
	"github.com/repograph/repograph/internal/graph"
)

// passInherits resolves the raw superclass names recorded during the
// definition pass and emits INHERITS edges. Resolution runs after the
// barrier, so a subclass declared before its parent in file order still
// links. Resolved parent lists also feed the registry's method
// resolution order, which the call and override passes depend on.
func (p *Pipeline) passInherits(context.Context) error {
	edges := 0
	for classQN, info := range p.classes {
		var parentQNs []string
		for _, base := range info.bases {
			parentQN := p.resolveClassRef(base, info.moduleQN)
			if parentQN == "" {
				p.unresolvedBases.Add(1)
				slog.Debug("pass.inherits.unresolved", "class", classQN, "base", base)
				continue
			}
			parentQNs = append(parentQNs, parentQN)
			if err := p.emitRel(graph.Relationship{
				Type:     graph.RelInherits,
				SourceQN: classQN,
				TargetQN: parentQN,
			}); err != nil {
				return err
			}
			edges++
		}
		if len(parentQNs) > 0 {
			p.reg.SetParents(classQN, parentQNs)
		}
	}
	slog.Info("pass.inherits.done", "edges", edges, "unresolved", p.unresolvedBases.Load())
	return nil
}

// resolveClassRef resolves a superclass name written in a class
// declaration: import alias first, then a sibling in the same module,
// then a unique simple name anywhere in the project.
func (p *Pipeline) resolveClassRef(name, moduleQN string) string {
	name = fqn.Normalize(name)
	segs := fqn.Segments(name)
	if len(segs) == 0 {
		return ""
	}

	if aliases, ok := p.importMaps[moduleQN]; ok {
		if resolved, ok := aliases[segs[0]]; ok {
			candidate := resolved
			if len(segs) > 1 {
				candidate = fqn.Join(append([]string{resolved}, segs[1:]...)...)
			}
			if def, ok := p.reg.Lookup(candidate); ok && def.Kind == graph.KindClass {
				return def.QualifiedName
			}
			// Alias points outside the project; the subclass still records
			// the dependency but no INHERITS edge is drawn to a phantom.
			return ""
		}
	}

	if def, ok := p.reg.Lookup(fqn.Join(moduleQN, name)); ok && def.Kind == graph.KindClass {
		return def.QualifiedName
	}

	simple := segs[len(segs)-1]
	var match string
	for _, qn := range p.reg.BySimpleName(simple) {
		def, ok := p.reg.Lookup(qn)
		if !ok || def.Kind != graph.KindClass {
			continue
		}
		if match != "" {
			return "" // ambiguous
		}
		match = qn
	}
	return match
}

// passOverrides walks every method and checks whether any ancestor
// class in the resolved hierarchy defines a method of the same name.
func (p *Pipeline) passOverrides(context.Context) error {
	edges := 0
	for _, def := range p.reg.Prefix(p.ProjectName) {
		if def.Kind != graph.KindMethod || def.ClassQN == "" {
			continue
		}
		name := lastSegment(def.QualifiedName)
		overridden, ok := p.reg.OverriddenMethod(def.ClassQN, name)
		if !ok {
			continue
		}
		if err := p.emitRel(graph.Relationship{
			Type:     graph.RelOverrides,
			SourceQN: def.QualifiedName,
			TargetQN: overridden.QualifiedName,
		}); err != nil {
			return err
		}
		edges++
	}
	slog.Info("pass.overrides.done", "edges", edges)
	return nil
}
