package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/repograph/repograph/internal/graph"
	"github.com/repograph/repograph/internal/graph/memsink"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func runPipeline(t *testing.T, repo string) (*Pipeline, *memsink.Sink) {
	t.Helper()
	sink := memsink.New()
	p := New(repo, sink, nil)
	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	return p, sink
}

func TestForwardReferenceResolvesRegardlessOfFileOrder(t *testing.T) {
	// The caller's file is analyzed before the callee's in one layout
	// and after it in the other; the barrier between the definition and
	// call passes must make both produce the same single CALLS edge.
	cases := []struct{ caller, callee string }{
		{"a.py", "z.py"},
		{"z.py", "a.py"},
	}
	for _, tc := range cases {
		repo := t.TempDir()
		calleeMod := tc.callee[:len(tc.callee)-3]
		writeFile(t, repo, tc.caller, "from "+calleeMod+" import g\n\ndef f():\n    g()\n")
		writeFile(t, repo, tc.callee, "def g():\n    pass\n")

		p, sink := runPipeline(t, repo)
		callerQN := p.ProjectName + "." + tc.caller[:len(tc.caller)-3] + ".f"
		calleeQN := p.ProjectName + "." + calleeMod + ".g"

		if !sink.HasRelationship(graph.RelCalls, callerQN, calleeQN) {
			t.Fatalf("%s -> %s: missing CALLS %s -> %s", tc.caller, tc.callee, callerQN, calleeQN)
		}
		if n := len(sink.RelationshipsByType(graph.RelCalls)); n != 1 {
			t.Fatalf("%s -> %s: want 1 CALLS edge, got %d", tc.caller, tc.callee, n)
		}
		if p.UnresolvedCalls() != 0 {
			t.Fatalf("unresolved calls: %d", p.UnresolvedCalls())
		}
	}
}

func TestAliasedImportResolvesToOriginalName(t *testing.T) {
	repo := t.TempDir()
	writeFile(t, repo, "foo.py", "def baz():\n    pass\n")
	writeFile(t, repo, "main.py", "import foo as bar\n\nbar.baz()\n")

	p, sink := runPipeline(t, repo)
	if !sink.HasRelationship(graph.RelCalls, p.ProjectName+".main", p.ProjectName+".foo.baz") {
		t.Fatal("aliased call did not resolve to foo.baz")
	}
	if !sink.HasRelationship(graph.RelImports, p.ProjectName+".main", p.ProjectName+".foo") {
		t.Fatal("missing IMPORTS edge main -> foo")
	}
}

func TestExternalCallMaterializesPlaceholder(t *testing.T) {
	repo := t.TempDir()
	writeFile(t, repo, "main.py", "import requests\n\nrequests.get(\"https://x\")\n")

	p, sink := runPipeline(t, repo)
	if _, ok := sink.FindEntity(graph.KindExternalModule, "requests"); !ok {
		t.Fatal("missing ExternalModule placeholder for requests")
	}
	if _, ok := sink.FindEntity(graph.KindExternalModule, "requests.get"); !ok {
		t.Fatal("missing ExternalModule placeholder for requests.get")
	}
	if !sink.HasRelationship(graph.RelCalls, p.ProjectName+".main", "requests.get") {
		t.Fatal("missing CALLS edge to external placeholder")
	}
	if !sink.HasRelationship(graph.RelImports, p.ProjectName+".main", "requests") {
		t.Fatal("missing IMPORTS edge to external placeholder")
	}
	if p.UnresolvedCalls() != 0 {
		t.Fatalf("external call counted as unresolved: %d", p.UnresolvedCalls())
	}
}

func TestSameModuleDefinitionBeatsSimpleNameFallback(t *testing.T) {
	repo := t.TempDir()
	writeFile(t, repo, "util.py", "def helper():\n    pass\n")
	writeFile(t, repo, "main.py", "def helper():\n    pass\n\ndef run():\n    helper()\n")

	p, sink := runPipeline(t, repo)
	if !sink.HasRelationship(graph.RelCalls, p.ProjectName+".main.run", p.ProjectName+".main.helper") {
		t.Fatal("call should resolve to the same-module helper")
	}
	if sink.HasRelationship(graph.RelCalls, p.ProjectName+".main.run", p.ProjectName+".util.helper") {
		t.Fatal("call resolved across modules despite local definition")
	}
}

func TestRepeatedRunIsIdempotent(t *testing.T) {
	repo := t.TempDir()
	writeFile(t, repo, "pkg/__init__.py", "")
	writeFile(t, repo, "pkg/mod.py", "class C:\n    def m(self):\n        pass\n\ndef f():\n    C().m()\n")

	sink := memsink.New()
	for i := 0; i < 2; i++ {
		p := New(repo, sink, nil)
		if err := p.Run(context.Background()); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}
	entities := len(sink.Entities())
	rels := len(sink.Relationships())

	p := New(repo, sink, nil)
	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("third run: %v", err)
	}
	if len(sink.Entities()) != entities || len(sink.Relationships()) != rels {
		t.Fatalf("re-ingestion grew the graph: %d->%d entities, %d->%d relationships",
			entities, len(sink.Entities()), rels, len(sink.Relationships()))
	}
}

func TestInheritanceAndOverrides(t *testing.T) {
	repo := t.TempDir()
	writeFile(t, repo, "base.py", "class Animal:\n    def speak(self):\n        pass\n")
	writeFile(t, repo, "dog.py", `from base import Animal

class Dog(Animal):
    def speak(self):
        pass

    def run(self):
        self.speak()
`)

	p, sink := runPipeline(t, repo)
	animal := p.ProjectName + ".base.Animal"
	dog := p.ProjectName + ".dog.Dog"

	if !sink.HasRelationship(graph.RelInherits, dog, animal) {
		t.Fatal("missing INHERITS Dog -> Animal")
	}
	if !sink.HasRelationship(graph.RelOverrides, dog+".speak", animal+".speak") {
		t.Fatal("missing OVERRIDES Dog.speak -> Animal.speak")
	}
	// self.speak() dispatches to the override on Dog, not the base.
	if !sink.HasRelationship(graph.RelCalls, dog+".run", dog+".speak") {
		t.Fatal("missing CALLS Dog.run -> Dog.speak")
	}
	if sink.HasRelationship(graph.RelCalls, dog+".run", animal+".speak") {
		t.Fatal("self call skipped the override")
	}
}

func TestInheritedMethodResolvesThroughHierarchy(t *testing.T) {
	repo := t.TempDir()
	writeFile(t, repo, "base.py", "class Base:\n    def ping(self):\n        pass\n")
	writeFile(t, repo, "child.py", `from base import Base

class Child(Base):
    def go(self):
        self.ping()
`)

	p, sink := runPipeline(t, repo)
	if !sink.HasRelationship(graph.RelCalls,
		p.ProjectName+".child.Child.go", p.ProjectName+".base.Base.ping") {
		t.Fatal("inherited method call did not walk up the hierarchy")
	}
}

func TestSelfCallDispatchesWithinClass(t *testing.T) {
	repo := t.TempDir()
	writeFile(t, repo, "svc.py", `class Service:
    def start(self):
        self.configure()

    def configure(self):
        pass
`)

	p, sink := runPipeline(t, repo)
	service := p.ProjectName + ".svc.Service"
	if !sink.HasRelationship(graph.RelCalls, service+".start", service+".configure") {
		t.Fatal("missing CALLS Service.start -> Service.configure")
	}
	if p.UnresolvedCalls() != 0 {
		t.Fatalf("unresolved calls: %d", p.UnresolvedCalls())
	}
}

func TestRelativeImportOfMissingModuleIsCounted(t *testing.T) {
	repo := t.TempDir()
	writeFile(t, repo, "pkg/__init__.py", "")
	writeFile(t, repo, "pkg/a.py", "from .ghost import thing\n")

	p, sink := runPipeline(t, repo)
	if p.UnresolvedImports() != 1 {
		t.Fatalf("unresolved imports = %d, want 1", p.UnresolvedImports())
	}
	// The missing sibling is inside the project, so it must not
	// masquerade as an external dependency.
	for _, e := range sink.Entities() {
		if e.Kind == graph.KindExternalModule {
			t.Fatalf("unexpected external placeholder %s", e.QualifiedName)
		}
	}
}

func TestModuleNameNeverSatisfiesCallFallback(t *testing.T) {
	repo := t.TempDir()
	writeFile(t, repo, "report.py", "pass\n")
	writeFile(t, repo, "main.py", "report()\n")

	p, sink := runPipeline(t, repo)
	// "report" only names a module; the call must stay unresolved
	// rather than produce a CALLS edge into a Module node.
	if sink.HasRelationship(graph.RelCalls, p.ProjectName+".main", p.ProjectName+".report") {
		t.Fatal("call resolved to a module")
	}
	if p.UnresolvedCalls() != 1 {
		t.Fatalf("unresolved calls = %d, want 1", p.UnresolvedCalls())
	}
}

func TestFunctionWinsFallbackOverSameNamedModule(t *testing.T) {
	repo := t.TempDir()
	writeFile(t, repo, "build.py", "pass\n")
	writeFile(t, repo, "tasks.py", "def build():\n    pass\n")
	writeFile(t, repo, "main.py", "build()\n")

	p, sink := runPipeline(t, repo)
	// The module build.py shares the simple name but only the function
	// is a viable call target, so the fallback still has a unique match.
	if !sink.HasRelationship(graph.RelCalls, p.ProjectName+".main", p.ProjectName+".tasks.build") {
		t.Fatal("missing CALLS main -> tasks.build")
	}
}

func TestStructurePassClassifiesDirectories(t *testing.T) {
	repo := t.TempDir()
	writeFile(t, repo, "pkg/__init__.py", "")
	writeFile(t, repo, "pkg/mod.py", "def f():\n    pass\n")
	writeFile(t, repo, "scripts/run.py", "def main():\n    pass\n")

	p, sink := runPipeline(t, repo)
	if _, ok := sink.FindEntity(graph.KindProject, p.ProjectName); !ok {
		t.Fatal("missing Project entity")
	}
	if _, ok := sink.FindEntity(graph.KindPackage, p.ProjectName+".pkg"); !ok {
		t.Fatal("pkg with __init__.py should be a Package")
	}
	if _, ok := sink.FindEntity(graph.KindFolder, p.ProjectName+".scripts"); !ok {
		t.Fatal("scripts without indicator should be a Folder")
	}
	if !sink.HasRelationship(graph.RelContainsPackage, p.ProjectName, p.ProjectName+".pkg") {
		t.Fatal("missing CONTAINS_PACKAGE edge")
	}
	if !sink.HasRelationship(graph.RelContainsFolder, p.ProjectName, p.ProjectName+".scripts") {
		t.Fatal("missing CONTAINS_FOLDER edge")
	}
	if !sink.HasRelationship(graph.RelContainsModule, p.ProjectName+".pkg", p.ProjectName+".pkg.mod") {
		t.Fatal("missing CONTAINS_MODULE edge")
	}
	// __init__.py collapses onto the package name, so pkg is both a
	// Package and a Module qualified name.
	if _, ok := sink.FindEntity(graph.KindModule, p.ProjectName+".pkg"); !ok {
		t.Fatal("missing Module entity for pkg/__init__.py")
	}
}

func TestGoMethodsAttachToReceiverType(t *testing.T) {
	repo := t.TempDir()
	writeFile(t, repo, "server.go", `package server

type Server struct{}

func (s *Server) Start() error {
	return s.init()
}

func (s *Server) init() error {
	return nil
}
`)

	p, sink := runPipeline(t, repo)
	class := p.ProjectName + ".server.Server"
	if _, ok := sink.FindEntity(graph.KindClass, class); !ok {
		t.Fatal("missing Class entity for receiver type")
	}
	if _, ok := sink.FindEntity(graph.KindMethod, class+".Start"); !ok {
		t.Fatal("missing Method entity for Start")
	}
	if !sink.HasRelationship(graph.RelDefinesMethod, class, class+".Start") {
		t.Fatal("missing DEFINES_METHOD edge")
	}
	start, _ := sink.FindEntity(graph.KindMethod, class+".Start")
	if exported, _ := start.Properties["is_exported"].(bool); !exported {
		t.Fatal("Start should be exported")
	}
}

func TestManifestDependenciesEmitted(t *testing.T) {
	repo := t.TempDir()
	writeFile(t, repo, "requirements.txt", "requests>=2.0\n")
	writeFile(t, repo, "app.py", "def main():\n    pass\n")

	p, sink := runPipeline(t, repo)
	if _, ok := sink.FindEntity(graph.KindExternalPackage, "requests"); !ok {
		t.Fatal("missing ExternalPackage for requests")
	}
	if !sink.HasRelationship(graph.RelDependsOnExternal, p.ProjectName, "requests") {
		t.Fatal("missing DEPENDS_ON_EXTERNAL edge")
	}
}

func TestSyntaxErrorFileIsSkippedNotFatal(t *testing.T) {
	repo := t.TempDir()
	writeFile(t, repo, "good.py", "def ok():\n    pass\n")
	writeFile(t, repo, "bad.py", "def broken(:\n")

	p, sink := runPipeline(t, repo)
	if _, ok := sink.FindEntity(graph.KindFunction, p.ProjectName+".good.ok"); !ok {
		t.Fatal("healthy file should still be analyzed")
	}
}

func TestProjectNameFromPath(t *testing.T) {
	cases := map[string]string{
		"/tmp/checkouts/my-repo":     "my-repo",
		"/tmp/checkouts/my.repo.git": "my-repo",
		"repo name":                  "repo-name",
	}
	for in, want := range cases {
		if got := ProjectNameFromPath(in); got != want {
			t.Errorf("ProjectNameFromPath(%q) = %q, want %q", in, got, want)
		}
	}
}
