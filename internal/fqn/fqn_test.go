package fqn

import (
	"reflect"
	"testing"
)

func TestNormalize(t *testing.T) {
	cases := []struct{ in, want string }{
		{"a.b.c", "a.b.c"},
		{"a/b/c", "a.b.c"},
		{"a::b::c", "a.b.c"},
		{"a\\b\\c", "a.b.c"},
		{"crate::mod::Type.method", "crate.mod.Type.method"},
		{".leading.trailing.", "leading.trailing"},
		{"", ""},
	}
	for _, c := range cases {
		if got := Normalize(c.in); got != c.want {
			t.Errorf("Normalize(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestSegments(t *testing.T) {
	got := Segments("a::b/c.d")
	want := []string{"a", "b", "c", "d"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Segments = %v, want %v", got, want)
	}
	if Segments("") != nil {
		t.Error("Segments(\"\") should be nil")
	}
}

func TestCompute(t *testing.T) {
	cases := []struct {
		project, relPath, name string
		want                   string
	}{
		{"proj", "pkg/service.py", "ProcessOrder", "proj.pkg.service.ProcessOrder"},
		{"proj", "pkg/__init__.py", "helper", "proj.pkg.helper"},
		{"proj", "src/index.ts", "render", "proj.src.render"},
		{"proj", "main.go", "", "proj.main"},
	}
	for _, c := range cases {
		if got := Compute(c.project, c.relPath, c.name); got != c.want {
			t.Errorf("Compute(%q, %q, %q) = %q, want %q", c.project, c.relPath, c.name, got, c.want)
		}
	}
}

func TestFolderQN(t *testing.T) {
	if got := FolderQN("proj", "a/b"); got != "proj.a.b" {
		t.Errorf("FolderQN = %q", got)
	}
	if got := FolderQN("proj", "."); got != "proj" {
		t.Errorf("FolderQN(.) = %q", got)
	}
}
