package sqlsink

import (
	"context"
	"testing"

	"github.com/repograph/repograph/internal/graph"
)

func TestFlushIdempotent(t *testing.T) {
	s, err := OpenMemory("proj")
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer s.Close()

	ent := graph.Entity{Kind: graph.KindFunction, Project: "proj", Name: "f", QualifiedName: "proj.a.f", FilePath: "a.py", StartLine: 1, EndLine: 2}
	callee := graph.Entity{Kind: graph.KindFunction, Project: "proj", Name: "g", QualifiedName: "proj.b.g", FilePath: "b.py", StartLine: 1, EndLine: 2}

	for i := 0; i < 3; i++ {
		if err := s.EnsureEntity(ent); err != nil {
			t.Fatalf("EnsureEntity: %v", err)
		}
		if err := s.EnsureEntity(callee); err != nil {
			t.Fatalf("EnsureEntity: %v", err)
		}
		if err := s.EnsureRelationship(graph.Relationship{Type: graph.RelCalls, SourceQN: "proj.a.f", TargetQN: "proj.b.g"}); err != nil {
			t.Fatalf("EnsureRelationship: %v", err)
		}
	}

	if err := s.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	// Flushing again must not duplicate anything.
	if err := s.Flush(context.Background()); err != nil {
		t.Fatalf("second Flush: %v", err)
	}

	nodes, err := s.CountNodes()
	if err != nil {
		t.Fatalf("CountNodes: %v", err)
	}
	if nodes != 2 {
		t.Errorf("nodes = %d, want 2", nodes)
	}
	calls, err := s.CountEdgesByType(graph.RelCalls)
	if err != nil {
		t.Fatalf("CountEdgesByType: %v", err)
	}
	if calls != 1 {
		t.Errorf("CALLS edges = %d, want 1", calls)
	}
}

// A package directory with an index module yields two entities sharing
// one qualified name. They must collapse to a single row, and edges
// ensured against that name must land on that row even when other nodes
// were inserted in between and the database is flushed more than once.
func TestFlushSharedQualifiedNameEdgeTargets(t *testing.T) {
	s, err := OpenMemory("proj")
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer s.Close()

	ents := []graph.Entity{
		{Kind: graph.KindProject, Project: "proj", Name: "proj", QualifiedName: "proj"},
		{Kind: graph.KindModule, Project: "proj", Name: "zz", QualifiedName: "proj.zz", FilePath: "zz.py"},
		{Kind: graph.KindPackage, Project: "proj", Name: "pkg", QualifiedName: "proj.pkg", FilePath: "pkg"},
		{Kind: graph.KindModule, Project: "proj", Name: "pkg", QualifiedName: "proj.pkg", FilePath: "pkg/__init__.py"},
	}
	for _, e := range ents {
		if err := s.EnsureEntity(e); err != nil {
			t.Fatalf("EnsureEntity %s: %v", e.QualifiedName, err)
		}
	}
	if err := s.EnsureRelationship(graph.Relationship{Type: graph.RelContainsPackage, SourceQN: "proj", TargetQN: "proj.pkg"}); err != nil {
		t.Fatalf("EnsureRelationship: %v", err)
	}
	if err := s.EnsureRelationship(graph.Relationship{Type: graph.RelContainsModule, SourceQN: "proj", TargetQN: "proj.zz"}); err != nil {
		t.Fatalf("EnsureRelationship: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := s.Flush(context.Background()); err != nil {
			t.Fatalf("Flush %d: %v", i, err)
		}
	}

	nodes, err := s.CountNodes()
	if err != nil {
		t.Fatalf("CountNodes: %v", err)
	}
	if nodes != 3 {
		t.Errorf("nodes = %d, want 3 (shared qualified name collapses)", nodes)
	}

	var source, target string
	err = s.db.QueryRow(`
		SELECT src.qualified_name, dst.qualified_name
		FROM edges
		JOIN nodes src ON edges.source_id = src.id
		JOIN nodes dst ON edges.target_id = dst.id
		WHERE edges.type = ?`, string(graph.RelContainsPackage)).Scan(&source, &target)
	if err != nil {
		t.Fatalf("query edge endpoints: %v", err)
	}
	if source != "proj" || target != "proj.pkg" {
		t.Errorf("CONTAINS_PACKAGE endpoints = %s -> %s, want proj -> proj.pkg", source, target)
	}

	err = s.db.QueryRow(`
		SELECT src.qualified_name, dst.qualified_name
		FROM edges
		JOIN nodes src ON edges.source_id = src.id
		JOIN nodes dst ON edges.target_id = dst.id
		WHERE edges.type = ?`, string(graph.RelContainsModule)).Scan(&source, &target)
	if err != nil {
		t.Fatalf("query edge endpoints: %v", err)
	}
	if source != "proj" || target != "proj.zz" {
		t.Errorf("CONTAINS_MODULE endpoints = %s -> %s, want proj -> proj.zz", source, target)
	}
}

func TestFindNodeByQN(t *testing.T) {
	s, err := OpenMemory("proj")
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer s.Close()

	if err := s.EnsureEntity(graph.Entity{
		Kind: graph.KindClass, Project: "proj", Name: "Widget",
		QualifiedName: "proj.ui.Widget", FilePath: "ui.py", StartLine: 3, EndLine: 20,
		Properties: map[string]any{"decorators": []string{"dataclass"}},
	}); err != nil {
		t.Fatalf("EnsureEntity: %v", err)
	}
	if err := s.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	e, err := s.FindNodeByQN("proj.ui.Widget")
	if err != nil {
		t.Fatalf("FindNodeByQN: %v", err)
	}
	if e.Kind != graph.KindClass || e.Name != "Widget" || e.StartLine != 3 {
		t.Errorf("unexpected entity: %+v", e)
	}
	if _, ok := e.Properties["decorators"]; !ok {
		t.Error("decorators property missing")
	}
}
