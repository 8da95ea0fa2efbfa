// Package jsonsink serializes the graph to a single JSON file with nodes,
// relationships, and metadata sections. Output is deterministic apart from
// the export timestamp: node ids are assigned in (kind, qualified name)
// order at Flush and relationships are sorted by (from, type, to), so two
// runs over the same tree produce the same graph regardless of the order
// concurrent passes delivered the writes.
package jsonsink

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/repograph/repograph/internal/graph"
)

type node struct {
	ID         int            `json:"node_id"`
	Labels     []string       `json:"labels"`
	Properties map[string]any `json:"properties"`
}

type relationship struct {
	FromID     int            `json:"from_id"`
	ToID       int            `json:"to_id"`
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties"`
}

type pendingRel struct {
	fromKey string
	toKey   string
	typ     graph.RelType
	props   map[string]any
}

type metadata struct {
	TotalNodes         int    `json:"total_nodes"`
	TotalRelationships int    `json:"total_relationships"`
	ExportedAt         string `json:"exported_at"`
}

type document struct {
	Nodes         []node         `json:"nodes"`
	Relationships []relationship `json:"relationships"`
	Metadata      metadata       `json:"metadata"`
}

// Sink buffers the graph and writes it out on Flush.
// Safe for concurrent use.
type Sink struct {
	mu    sync.Mutex
	path  string
	nodes map[string]graph.Entity
	rels  map[string]pendingRel
}

func New(path string) *Sink {
	return &Sink{
		path:  path,
		nodes: make(map[string]graph.Entity),
		rels:  make(map[string]pendingRel),
	}
}

func (s *Sink) EnsureEntity(e graph.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := graph.EntityKey(e.Kind, e.QualifiedName)
	if _, ok := s.nodes[key]; ok {
		return nil
	}
	s.nodes[key] = e
	return nil
}

func (s *Sink) EnsureRelationship(r graph.Relationship) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := graph.RelKey(r.Type, r.SourceQN, r.TargetQN)
	if _, ok := s.rels[key]; ok {
		return nil
	}
	s.rels[key] = pendingRel{
		fromKey: r.SourceQN,
		toKey:   r.TargetQN,
		typ:     r.Type,
		props:   r.Properties,
	}
	return nil
}

// Flush resolves relationship endpoints to node IDs and writes the file.
// Relationships whose endpoints were never ensured are logged and counted;
// the pipeline's placeholder rule means this indicates a caller bug.
func (s *Sink) Flush(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	// IDs are assigned after sorting, so they depend only on the graph's
	// contents, never on the order concurrent passes ensured the nodes.
	entities := make([]graph.Entity, 0, len(s.nodes))
	for _, e := range s.nodes {
		entities = append(entities, e)
	}
	sort.Slice(entities, func(i, j int) bool {
		if entities[i].Kind != entities[j].Kind {
			return entities[i].Kind < entities[j].Kind
		}
		return entities[i].QualifiedName < entities[j].QualifiedName
	})

	// Endpoint lookup is by qualified name regardless of kind. When two
	// kinds share a qualified name (a package and its index module) the
	// first node in sorted order wins, so the choice is stable.
	qnToID := make(map[string]int, len(entities))
	nodes := make([]node, 0, len(entities))
	for i, e := range entities {
		if _, ok := qnToID[e.QualifiedName]; !ok {
			qnToID[e.QualifiedName] = i
		}
		nodes = append(nodes, node{
			ID:         i,
			Labels:     []string{string(e.Kind)},
			Properties: nodeProps(e),
		})
	}

	var skipped int
	rels := make([]relationship, 0, len(s.rels))
	for _, pr := range s.rels {
		fromID, okFrom := qnToID[pr.fromKey]
		toID, okTo := qnToID[pr.toKey]
		if !okFrom || !okTo {
			slog.Debug("jsonsink.rel.skip", "from", pr.fromKey, "to", pr.toKey, "type", pr.typ)
			skipped++
			continue
		}
		props := pr.props
		if props == nil {
			props = map[string]any{}
		}
		rels = append(rels, relationship{
			FromID:     fromID,
			ToID:       toID,
			Type:       string(pr.typ),
			Properties: props,
		})
	}
	sort.Slice(rels, func(i, j int) bool {
		if rels[i].FromID != rels[j].FromID {
			return rels[i].FromID < rels[j].FromID
		}
		if rels[i].Type != rels[j].Type {
			return rels[i].Type < rels[j].Type
		}
		return rels[i].ToID < rels[j].ToID
	})
	if skipped > 0 {
		slog.Warn("jsonsink.rels.unresolved", "count", skipped)
	}

	doc := document{
		Nodes:         nodes,
		Relationships: rels,
		Metadata: metadata{
			TotalNodes:         len(nodes),
			TotalRelationships: len(rels),
			ExportedAt:         time.Now().UTC().Format(time.RFC3339),
		},
	}

	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir output dir: %w", err)
		}
	}
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal graph: %w", err)
	}
	if err := os.WriteFile(s.path, b, 0o644); err != nil {
		return fmt.Errorf("write graph file: %w", err)
	}

	slog.Info("jsonsink.flush", "nodes", len(nodes), "relationships", len(rels), "path", s.path)
	return nil
}

func (s *Sink) Close() error { return nil }

func nodeProps(e graph.Entity) map[string]any {
	props := map[string]any{
		"name":           e.Name,
		"qualified_name": e.QualifiedName,
	}
	if e.Project != "" {
		props["project"] = e.Project
	}
	if e.FilePath != "" {
		props["path"] = e.FilePath
	}
	if e.StartLine > 0 {
		props["start_line"] = e.StartLine
		props["end_line"] = e.EndLine
	}
	for k, v := range e.Properties {
		if v != nil {
			props[k] = v
		}
	}
	return props
}
