package discover

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/repograph/repograph/internal/lang"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func relPaths(files []FileInfo) map[string]lang.Language {
	out := make(map[string]lang.Language, len(files))
	for _, f := range files {
		out[f.RelPath] = f.Language
	}
	return out
}

func TestDiscoverFindsSupportedFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "main.py"), "x = 1\n")
	writeFile(t, filepath.Join(dir, "src", "lib.rs"), "fn main() {}\n")
	writeFile(t, filepath.Join(dir, "README.md"), "# readme\n")
	writeFile(t, filepath.Join(dir, "a.pyc"), "")

	files, err := Discover(context.Background(), dir, nil)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	got := relPaths(files)
	if len(got) != 2 {
		t.Fatalf("found %d files, want 2: %v", len(got), got)
	}
	if got["main.py"] != lang.Python {
		t.Errorf("main.py language = %v", got["main.py"])
	}
	if got["src/lib.rs"] != lang.Rust {
		t.Errorf("src/lib.rs language = %v", got["src/lib.rs"])
	}
}

func TestDiscoverSkipsIgnoredDirs(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "app.py"), "x = 1\n")
	writeFile(t, filepath.Join(dir, "node_modules", "dep", "index.js"), "module.exports = {}\n")
	writeFile(t, filepath.Join(dir, ".git", "hook.py"), "x = 1\n")

	files, err := Discover(context.Background(), dir, nil)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(files) != 1 || files[0].RelPath != "app.py" {
		t.Errorf("files = %v, want only app.py", relPaths(files))
	}
}

func TestDiscoverHonorsIgnoreFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, IgnoreFileName), "generated/\n*.gen.py\n")
	writeFile(t, filepath.Join(dir, "app.py"), "x = 1\n")
	writeFile(t, filepath.Join(dir, "schema.gen.py"), "x = 1\n")
	writeFile(t, filepath.Join(dir, "generated", "stub.py"), "x = 1\n")

	files, err := Discover(context.Background(), dir, nil)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(files) != 1 || files[0].RelPath != "app.py" {
		t.Errorf("files = %v, want only app.py", relPaths(files))
	}
}

func TestDiscoverExtraIgnores(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "keep.py"), "x = 1\n")
	writeFile(t, filepath.Join(dir, "skip_me.py"), "x = 1\n")

	files, err := Discover(context.Background(), dir, &Options{ExtraIgnores: []string{"skip_*.py"}})
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(files) != 1 || files[0].RelPath != "keep.py" {
		t.Errorf("files = %v, want only keep.py", relPaths(files))
	}
}

func TestDiscoverCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Discover(ctx, t.TempDir(), nil); err == nil {
		t.Error("expected context error")
	}
}
