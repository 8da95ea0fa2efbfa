// Package sqlsink persists the graph to SQLite. Entities and
// relationships are buffered during the run and committed in a single
// transaction on Flush: nodes are upserted first (collecting qualified
// name → row id), then edges are resolved against those ids and inserted
// with dedupe on (source, target, type).
package sqlsink

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/repograph/repograph/internal/graph"
)

const schema = `
CREATE TABLE IF NOT EXISTS projects (
	name TEXT PRIMARY KEY,
	indexed_at TEXT NOT NULL,
	root_path TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS nodes (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	project TEXT NOT NULL,
	label TEXT NOT NULL,
	name TEXT NOT NULL,
	qualified_name TEXT NOT NULL,
	file_path TEXT DEFAULT '',
	start_line INTEGER DEFAULT 0,
	end_line INTEGER DEFAULT 0,
	properties TEXT DEFAULT '{}',
	UNIQUE(project, qualified_name)
);

CREATE INDEX IF NOT EXISTS idx_nodes_label ON nodes(project, label);
CREATE INDEX IF NOT EXISTS idx_nodes_name ON nodes(project, name);
CREATE INDEX IF NOT EXISTS idx_nodes_file ON nodes(project, file_path);

CREATE TABLE IF NOT EXISTS edges (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	project TEXT NOT NULL,
	source_id INTEGER NOT NULL REFERENCES nodes(id) ON DELETE CASCADE,
	target_id INTEGER NOT NULL REFERENCES nodes(id) ON DELETE CASCADE,
	type TEXT NOT NULL,
	properties TEXT DEFAULT '{}',
	UNIQUE(source_id, target_id, type)
);

CREATE INDEX IF NOT EXISTS idx_edges_source ON edges(source_id, type);
CREATE INDEX IF NOT EXISTS idx_edges_target ON edges(target_id, type);
CREATE INDEX IF NOT EXISTS idx_edges_type ON edges(project, type);
`

// Sink buffers graph writes and commits them transactionally on Flush.
// Safe for concurrent Ensure calls.
type Sink struct {
	mu       sync.Mutex
	db       *sql.DB
	project  string
	entities map[string]graph.Entity
	rels     map[string]graph.Relationship
}

// Open opens or creates a SQLite database at path.
func Open(path, project string) (*Sink, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=ON")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &Sink{
		db:       db,
		project:  project,
		entities: make(map[string]graph.Entity),
		rels:     make(map[string]graph.Relationship),
	}, nil
}

// OpenMemory opens an in-memory database (for testing).
func OpenMemory(project string) (*Sink, error) {
	return Open(":memory:", project)
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

// Flush writes all buffered entities and relationships in one transaction.
func (s *Sink) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	// Fixed upsert order: when two kinds collapse onto one qualified
	// name (a package and its index module) the last writer keeps the
	// label, so that writer must not depend on map iteration order.
	ordered := make([]graph.Entity, 0, len(s.entities))
	for _, e := range s.entities {
		ordered = append(ordered, e)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].QualifiedName != ordered[j].QualifiedName {
			return ordered[i].QualifiedName < ordered[j].QualifiedName
		}
		return ordered[i].Kind < ordered[j].Kind
	})

	qnToID := make(map[string]int64, len(ordered))
	for _, e := range ordered {
		id, err := upsertNode(tx, s.project, e)
		if err != nil {
			return err
		}
		qnToID[e.QualifiedName] = id
	}

	var skipped int
	for _, r := range s.rels {
		sourceID, okS := qnToID[r.SourceQN]
		targetID, okT := qnToID[r.TargetQN]
		if !okS || !okT {
			slog.Debug("sqlsink.rel.skip", "from", r.SourceQN, "to", r.TargetQN, "type", r.Type)
			skipped++
			continue
		}
		if err := insertEdge(tx, s.project, sourceID, targetID, r); err != nil {
			return err
		}
	}
	if skipped > 0 {
		slog.Warn("sqlsink.rels.unresolved", "count", skipped)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	slog.Info("sqlsink.flush", "nodes", len(s.entities), "edges", len(s.rels)-skipped, "project", s.project)
	return nil
}

func (s *Sink) Close() error {
	return s.db.Close()
}

// upsertNode inserts or updates a node (dedup by qualified_name) and
// returns the row id. RETURNING yields the touched row's id on both the
// insert and the conflict-update path; LastInsertId would report the
// previous insert's rowid when the statement took the update path.
func upsertNode(tx *sql.Tx, project string, e graph.Entity) (int64, error) {
	var id int64
	err := tx.QueryRow(`
		INSERT INTO nodes (project, label, name, qualified_name, file_path, start_line, end_line, properties)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(project, qualified_name) DO UPDATE SET
			label=excluded.label, name=excluded.name, file_path=excluded.file_path,
			start_line=excluded.start_line, end_line=excluded.end_line, properties=excluded.properties
		RETURNING id`,
		project, string(e.Kind), e.Name, e.QualifiedName, e.FilePath, e.StartLine, e.EndLine, marshalProps(e.Properties)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert node %s: %w", e.QualifiedName, err)
	}
	return id, nil
}

func insertEdge(tx *sql.Tx, project string, sourceID, targetID int64, r graph.Relationship) error {
	_, err := tx.Exec(`
		INSERT INTO edges (project, source_id, target_id, type, properties)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(source_id, target_id, type) DO UPDATE SET properties=excluded.properties`,
		project, sourceID, targetID, string(r.Type), marshalProps(r.Properties))
	if err != nil {
		return fmt.Errorf("insert edge: %w", err)
	}
	return nil
}

func marshalProps(props map[string]any) string {
	if props == nil {
		return "{}"
	}
	b, err := json.Marshal(props)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// CountNodes returns the number of stored nodes for the sink's project.
func (s *Sink) CountNodes() (int, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM nodes WHERE project=?", s.project).Scan(&n)
	return n, err
}

// CountEdgesByType returns the number of stored edges of a given type.
func (s *Sink) CountEdgesByType(t graph.RelType) (int, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM edges WHERE project=? AND type=?", s.project, string(t)).Scan(&n)
	return n, err
}

// FindNodeByQN returns the stored entity for a qualified name.
func (s *Sink) FindNodeByQN(qn string) (graph.Entity, error) {
	var (
		e     graph.Entity
		label string
		props string
	)
	err := s.db.QueryRow(`SELECT label, name, qualified_name, file_path, start_line, end_line, properties
		FROM nodes WHERE project=? AND qualified_name=?`, s.project, qn).
		Scan(&label, &e.Name, &e.QualifiedName, &e.FilePath, &e.StartLine, &e.EndLine, &props)
	if err != nil {
		return graph.Entity{}, err
	}
	e.Kind = graph.Kind(label)
	e.Project = s.project
	if err := json.Unmarshal([]byte(props), &e.Properties); err != nil {
		e.Properties = map[string]any{}
	}
	return e, nil
}
