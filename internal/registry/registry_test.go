package registry

import (
	"fmt"
	"sync"
	"testing"

	"github.com/repograph/repograph/internal/graph"
)

func def(qn string, kind graph.Kind) Definition {
	return Definition{QualifiedName: qn, Kind: kind}
}

func TestInsertLookup(t *testing.T) {
	r := New()
	r.Insert(def("proj.pkg.mod.f", graph.KindFunction))

	got, ok := r.Lookup("proj.pkg.mod.f")
	if !ok {
		t.Fatal("Lookup miss")
	}
	if got.QualifiedName != "proj.pkg.mod.f" {
		t.Errorf("qn = %q", got.QualifiedName)
	}
	if _, ok := r.Lookup("proj.pkg.mod.g"); ok {
		t.Error("expected miss for unregistered name")
	}
	// Intermediate trie nodes are not definitions.
	if _, ok := r.Lookup("proj.pkg"); ok {
		t.Error("expected miss for intermediate segment")
	}
}

func TestSeparatorAgnosticLookup(t *testing.T) {
	r := New()
	r.Insert(def("crate::models::Account", graph.KindClass))

	if _, ok := r.Lookup("crate.models.Account"); !ok {
		t.Error("dot lookup should hit a ::-inserted name")
	}
	if _, ok := r.Lookup("crate/models/Account"); !ok {
		t.Error("slash lookup should hit a ::-inserted name")
	}
}

func TestInsertIsUpsert(t *testing.T) {
	r := New()
	r.Insert(Definition{QualifiedName: "p.m.f", Kind: graph.KindFunction, StartLine: 1})
	r.Insert(Definition{QualifiedName: "p.m.f", Kind: graph.KindFunction, StartLine: 9})

	if r.Len() != 1 {
		t.Errorf("Len = %d, want 1", r.Len())
	}
	got, _ := r.Lookup("p.m.f")
	if got.StartLine != 9 {
		t.Errorf("StartLine = %d, want latest insert", got.StartLine)
	}
}

func TestPrefix(t *testing.T) {
	r := New()
	r.Insert(def("p.a.f", graph.KindFunction))
	r.Insert(def("p.a.g", graph.KindFunction))
	r.Insert(def("p.b.h", graph.KindFunction))

	got := r.Prefix("p.a")
	if len(got) != 2 {
		t.Fatalf("Prefix returned %d, want 2", len(got))
	}
	if got[0].QualifiedName != "p.a.f" || got[1].QualifiedName != "p.a.g" {
		t.Errorf("unexpected order: %v", got)
	}
	if r.Prefix("p.zzz") != nil {
		t.Error("missing prefix should return nil")
	}
}

func TestBySimpleName(t *testing.T) {
	r := New()
	r.Insert(def("p.a.process", graph.KindFunction))
	r.Insert(def("p.b.process", graph.KindFunction))

	got := r.BySimpleName("process")
	if len(got) != 2 || got[0] != "p.a.process" || got[1] != "p.b.process" {
		t.Errorf("BySimpleName = %v", got)
	}
}

func TestConcurrentInsertLosesNothing(t *testing.T) {
	r := New()
	const workers = 8
	const perWorker = 200

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				qn := fmt.Sprintf("p.mod%d.fn%d", w, i)
				r.Insert(def(qn, graph.KindFunction))
			}
		}(w)
	}
	wg.Wait()

	if r.Len() != workers*perWorker {
		t.Errorf("Len = %d, want %d", r.Len(), workers*perWorker)
	}
	for w := 0; w < workers; w++ {
		for i := 0; i < perWorker; i++ {
			qn := fmt.Sprintf("p.mod%d.fn%d", w, i)
			if _, ok := r.Lookup(qn); !ok {
				t.Fatalf("lost entry %s", qn)
			}
		}
	}
}

func TestResolveMethodWalksMRO(t *testing.T) {
	r := New()
	// class C(A, B); A defines run, B defines run and stop.
	r.Insert(def("p.m.A.run", graph.KindMethod))
	r.Insert(def("p.m.B.run", graph.KindMethod))
	r.Insert(def("p.m.B.stop", graph.KindMethod))
	r.SetParents("p.m.C", []string{"p.m.A", "p.m.B"})

	got, ok := r.ResolveMethod("p.m.C", "run")
	if !ok || got.QualifiedName != "p.m.A.run" {
		t.Errorf("run resolved to %v, want p.m.A.run (first parent wins)", got.QualifiedName)
	}
	got, ok = r.ResolveMethod("p.m.C", "stop")
	if !ok || got.QualifiedName != "p.m.B.stop" {
		t.Errorf("stop resolved to %v, want p.m.B.stop", got.QualifiedName)
	}
	if _, ok := r.ResolveMethod("p.m.C", "missing"); ok {
		t.Error("expected miss for undefined method")
	}
}

func TestResolveMethodOwnClassFirst(t *testing.T) {
	r := New()
	r.Insert(def("p.m.Base.run", graph.KindMethod))
	r.Insert(def("p.m.Child.run", graph.KindMethod))
	r.SetParents("p.m.Child", []string{"p.m.Base"})

	got, _ := r.ResolveMethod("p.m.Child", "run")
	if got.QualifiedName != "p.m.Child.run" {
		t.Errorf("resolved %q, want own definition", got.QualifiedName)
	}

	over, ok := r.OverriddenMethod("p.m.Child", "run")
	if !ok || over.QualifiedName != "p.m.Base.run" {
		t.Errorf("OverriddenMethod = %v, want p.m.Base.run", over.QualifiedName)
	}
}

func TestResolveMethodCyclicInheritance(t *testing.T) {
	r := New()
	r.SetParents("p.m.A", []string{"p.m.B"})
	r.SetParents("p.m.B", []string{"p.m.A"})

	if _, ok := r.ResolveMethod("p.m.A", "run"); ok {
		t.Error("cycle should terminate with a miss")
	}
}
