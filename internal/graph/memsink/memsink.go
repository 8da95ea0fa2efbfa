// Package memsink holds the graph in memory. It backs tests and
// in-process consumers that want the result without serialization.
package memsink

import (
	"context"
	"sync"

	"github.com/repograph/repograph/internal/graph"
)

// Sink accumulates entities and relationships in dedupe maps.
// Safe for concurrent use.
type Sink struct {
	mu       sync.Mutex
	entities map[string]graph.Entity
	rels     map[string]graph.Relationship
}

func New() *Sink {
	return &Sink{
		entities: make(map[string]graph.Entity),
		rels:     make(map[string]graph.Relationship),
	}
}

func (s *Sink) EnsureEntity(e graph.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := graph.EntityKey(e.Kind, e.QualifiedName)
	if _, ok := s.entities[key]; !ok {
		s.entities[key] = e
	}
	return nil
}

func (s *Sink) EnsureRelationship(r graph.Relationship) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := graph.RelKey(r.Type, r.SourceQN, r.TargetQN)
	if _, ok := s.rels[key]; !ok {
		s.rels[key] = r
	}
	return nil
}

func (s *Sink) Flush(ctx context.Context) error { return ctx.Err() }

func (s *Sink) Close() error { return nil }

// Entities returns a snapshot of all ensured entities.
func (s *Sink) Entities() []graph.Entity {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]graph.Entity, 0, len(s.entities))
	for _, e := range s.entities {
		out = append(out, e)
	}
	return out
}

// Relationships returns a snapshot of all ensured relationships.
func (s *Sink) Relationships() []graph.Relationship {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]graph.Relationship, 0, len(s.rels))
	for _, r := range s.rels {
		out = append(out, r)
	}
	return out
}

// EntitiesByKind filters the snapshot by kind.
func (s *Sink) EntitiesByKind(kind graph.Kind) []graph.Entity {
	var out []graph.Entity
	for _, e := range s.Entities() {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// RelationshipsByType filters the snapshot by relationship type.
func (s *Sink) RelationshipsByType(t graph.RelType) []graph.Relationship {
	var out []graph.Relationship
	for _, r := range s.Relationships() {
		if r.Type == t {
			out = append(out, r)
		}
	}
	return out
}

// FindEntity returns the entity with the given kind and qualified name.
func (s *Sink) FindEntity(kind graph.Kind, qn string) (graph.Entity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entities[graph.EntityKey(kind, qn)]
	return e, ok
}

// HasRelationship reports whether the exact edge was ensured.
func (s *Sink) HasRelationship(t graph.RelType, source, target string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.rels[graph.RelKey(t, source, target)]
	return ok
}
