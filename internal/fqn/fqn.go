// Package fqn builds and normalizes qualified names for graph entities.
//
// Qualified names are globally unique within a run. Local entities are
// prefixed by project name; external entities are not. Per-language
// separators (".", "/", "::", "\") normalize to a canonical "." so
// registry lookups are language-agnostic.
package fqn

import (
	"path/filepath"
	"strings"
)

// Sep is the canonical internal separator all qualified names use.
const Sep = "."

var separators = []string{"::", "/", "\\", "."}

// Normalize rewrites a qualified name built with any language separator
// into the canonical internal form. "a::b::c", "a/b/c" and "a.b.c" all
// normalize to "a.b.c".
func Normalize(qn string) string {
	for _, sep := range separators {
		if sep == Sep {
			continue
		}
		qn = strings.ReplaceAll(qn, sep, Sep)
	}
	return strings.Trim(qn, Sep)
}

// Segments splits a normalized qualified name into its path segments.
func Segments(qn string) []string {
	qn = Normalize(qn)
	if qn == "" {
		return nil
	}
	return strings.Split(qn, Sep)
}

// Join builds a qualified name from already-normalized segments,
// skipping empties.
func Join(parts ...string) string {
	out := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, Sep)
}

// Compute returns the canonical qualified name for a named definition.
// Format: <project>.<rel_path_parts_dotted>.<name>
// Examples:
//   - myproject.cmd.server.main.HandleRequest
//   - myproject.pkg.service.ProcessOrder
func Compute(project, relPath, name string) string {
	relPath = strings.TrimSuffix(relPath, filepath.Ext(relPath))
	parts := strings.Split(filepath.ToSlash(relPath), "/")

	// Python package files and JS/TS barrel files name the directory,
	// not themselves.
	if len(parts) > 0 && (parts[len(parts)-1] == "__init__" || parts[len(parts)-1] == "index") {
		parts = parts[:len(parts)-1]
	}

	all := append([]string{project}, parts...)
	if name != "" {
		all = append(all, name)
	}
	return Normalize(strings.Join(all, Sep))
}

// ModuleQN returns the qualified name for a module (source file).
func ModuleQN(project, relPath string) string {
	return Compute(project, relPath, "")
}

// FolderQN returns the qualified name for a folder.
func FolderQN(project, relDir string) string {
	if relDir == "." || relDir == "" {
		return project
	}
	parts := strings.Split(filepath.ToSlash(relDir), "/")
	return Normalize(strings.Join(append([]string{project}, parts...), Sep))
}
