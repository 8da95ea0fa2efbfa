// Package graph defines the typed entities and relationships a repository
// analysis produces, and the Sink interface backends implement to receive
// them.
package graph

import "context"

// Kind identifies an entity type.
type Kind string

const (
	KindProject         Kind = "Project"
	KindPackage         Kind = "Package"
	KindFolder          Kind = "Folder"
	KindModule          Kind = "Module"
	KindClass           Kind = "Class"
	KindFunction        Kind = "Function"
	KindMethod          Kind = "Method"
	KindExternalPackage Kind = "ExternalPackage"
	KindExternalModule  Kind = "ExternalModule"
)

// RelType identifies a relationship type.
type RelType string

const (
	RelContainsPackage    RelType = "CONTAINS_PACKAGE"
	RelContainsFolder     RelType = "CONTAINS_FOLDER"
	RelContainsModule     RelType = "CONTAINS_MODULE"
	RelDefines            RelType = "DEFINES"
	RelDefinesMethod      RelType = "DEFINES_METHOD"
	RelInherits           RelType = "INHERITS"
	RelOverrides          RelType = "OVERRIDES"
	RelImports            RelType = "IMPORTS"
	RelCalls              RelType = "CALLS"
	RelDependsOnExternal  RelType = "DEPENDS_ON_EXTERNAL"
)

// Entity is a graph node. Identity is (Kind, QualifiedName); ensuring the
// same identity twice is a no-op, never a duplicate. Local entities carry
// the project name as their qualified-name prefix; external placeholders
// do not, and have no file path.
type Entity struct {
	Kind          Kind
	Project       string
	Name          string
	QualifiedName string
	FilePath      string
	StartLine     int
	EndLine       int
	Properties    map[string]any
}

// Relationship is a directed edge between two entities, addressed by
// qualified name. Sinks deduplicate on (source, target, type).
type Relationship struct {
	Type       RelType
	SourceQN   string
	TargetQN   string
	Properties map[string]any
}

// Sink receives entities and relationships during a run and commits them
// on Flush. Ensure calls are idempotent. A Flush error is fatal for the
// repository being ingested.
//
// Implementations must not assume both endpoints of a relationship were
// ensured before the relationship itself; the pipeline guarantees every
// endpoint is ensured at some point before Flush.
type Sink interface {
	EnsureEntity(e Entity) error
	EnsureRelationship(r Relationship) error
	Flush(ctx context.Context) error
	Close() error
}

// EntityKey is the identity key for dedupe maps.
func EntityKey(kind Kind, qn string) string {
	return string(kind) + "\x00" + qn
}

// RelKey is the dedupe key for relationships.
func RelKey(t RelType, source, target string) string {
	return string(t) + "\x00" + source + "\x00" + target
}
