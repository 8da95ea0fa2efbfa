// Package registry indexes every definition discovered during a run under
// its fully qualified name. The index is a segment-keyed trie so exact
// lookup and prefix enumeration are both O(depth); a simple-name index
// sits alongside for heuristic resolution when no exact match exists.
//
// A Registry is scoped to a single analysis run. Inserts are true upserts
// keyed by the full qualified name and safe to call concurrently from
// parsing workers.
package registry

import (
	"sort"
	"strings"
	"sync"

	"github.com/repograph/repograph/internal/fqn"
	"github.com/repograph/repograph/internal/graph"
)

// Definition is the value stored for a qualified name.
type Definition struct {
	QualifiedName string
	Kind          graph.Kind
	ModuleQN      string // qualified name of the containing module
	ClassQN       string // qualified name of the containing class, methods only
	FilePath      string
	StartLine     int
	EndLine       int
}

type trieNode struct {
	children map[string]*trieNode
	def      *Definition
}

// Registry is the qualified-name trie plus the simple-name index and the
// class-inheritance map.
type Registry struct {
	mu      sync.RWMutex
	root    *trieNode
	count   int
	simple  map[string]map[string]struct{} // simple name -> set of qualified names
	parents map[string][]string            // class qn -> ordered parent qns
}

func New() *Registry {
	return &Registry{
		root:    &trieNode{children: make(map[string]*trieNode)},
		simple:  make(map[string]map[string]struct{}),
		parents: make(map[string][]string),
	}
}

// Insert registers a definition under its qualified name. Separators are
// normalized so "a::b::c" and "a.b.c" land on the same key. Inserting a
// name that already exists replaces its definition in place; it never
// creates a duplicate entry.
func (r *Registry) Insert(def Definition) {
	def.QualifiedName = fqn.Normalize(def.QualifiedName)
	segs := fqn.Segments(def.QualifiedName)
	if len(segs) == 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	n := r.root
	for _, seg := range segs {
		child, ok := n.children[seg]
		if !ok {
			child = &trieNode{children: make(map[string]*trieNode)}
			n.children[seg] = child
		}
		n = child
	}
	if n.def == nil {
		r.count++
	}
	d := def
	n.def = &d

	name := segs[len(segs)-1]
	set, ok := r.simple[name]
	if !ok {
		set = make(map[string]struct{})
		r.simple[name] = set
	}
	set[def.QualifiedName] = struct{}{}
}

// Lookup returns the definition for an exact qualified name.
func (r *Registry) Lookup(qn string) (Definition, bool) {
	segs := fqn.Segments(qn)

	r.mu.RLock()
	defer r.mu.RUnlock()

	n := r.walk(segs)
	if n == nil || n.def == nil {
		return Definition{}, false
	}
	return *n.def, true
}

// Prefix returns all definitions whose qualified name starts with the
// given prefix segments, sorted by qualified name.
func (r *Registry) Prefix(prefix string) []Definition {
	segs := fqn.Segments(prefix)

	r.mu.RLock()
	defer r.mu.RUnlock()

	n := r.walk(segs)
	if n == nil {
		return nil
	}
	var out []Definition
	collect(n, &out)
	sort.Slice(out, func(i, j int) bool { return out[i].QualifiedName < out[j].QualifiedName })
	return out
}

func (r *Registry) walk(segs []string) *trieNode {
	n := r.root
	for _, seg := range segs {
		child, ok := n.children[seg]
		if !ok {
			return nil
		}
		n = child
	}
	return n
}

func collect(n *trieNode, out *[]Definition) {
	if n.def != nil {
		*out = append(*out, *n.def)
	}
	for _, child := range n.children {
		collect(child, out)
	}
}

// BySimpleName returns the qualified names registered under an
// unqualified name, sorted for determinism.
func (r *Registry) BySimpleName(name string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set, ok := r.simple[name]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(set))
	for qn := range set {
		out = append(out, qn)
	}
	sort.Strings(out)
	return out
}

// SetParents records a class's ordered parent list. Order is
// method-resolution order and is preserved.
func (r *Registry) SetParents(classQN string, parentQNs []string) {
	classQN = fqn.Normalize(classQN)
	normalized := make([]string, len(parentQNs))
	for i, p := range parentQNs {
		normalized[i] = fqn.Normalize(p)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.parents[classQN] = normalized
}

// Parents returns a class's direct parents in declaration order.
func (r *Registry) Parents(classQN string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.parents[fqn.Normalize(classQN)]
}

// ResolveMethod walks a class's ancestry in method-resolution order and
// returns the qualified name of the nearest definition of methodName.
// The class's own definition is checked first, then each parent
// depth-first in declaration order.
func (r *Registry) ResolveMethod(classQN, methodName string) (Definition, bool) {
	classQN = fqn.Normalize(classQN)

	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	return r.resolveMethodLocked(classQN, methodName, seen)
}

func (r *Registry) resolveMethodLocked(classQN, methodName string, seen map[string]struct{}) (Definition, bool) {
	if _, ok := seen[classQN]; ok {
		return Definition{}, false
	}
	seen[classQN] = struct{}{}

	if n := r.walk(strings.Split(classQN+fqn.Sep+methodName, fqn.Sep)); n != nil && n.def != nil {
		return *n.def, true
	}
	for _, parent := range r.parents[classQN] {
		if def, ok := r.resolveMethodLocked(parent, methodName, seen); ok {
			return def, true
		}
	}
	return Definition{}, false
}

// OverriddenMethod returns the ancestor definition a method overrides,
// skipping the class's own definition. Used to emit override edges.
func (r *Registry) OverriddenMethod(classQN, methodName string) (Definition, bool) {
	classQN = fqn.Normalize(classQN)

	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := map[string]struct{}{classQN: {}}
	for _, parent := range r.parents[classQN] {
		if def, ok := r.resolveMethodLocked(parent, methodName, seen); ok {
			return def, true
		}
	}
	return Definition{}, false
}

// Len returns the number of registered definitions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}
