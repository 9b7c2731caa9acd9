// Package postgres implements the production Graph Port backend: a
// PostgreSQL database with the Apache AGE property-graph extension. The
// files table and ast_edge_guard table are plain relational tables;
// AstNode/FileVersion/PARENT_OF/OCCURS_IN/NEXT_VERSION live in the AGE
// graph, reached through ag_catalog.cypher(...).
package postgres

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agentic-research/astgraph/api"
)

// querier is the subset of *pgxpool.Pool / pgx.Tx every method in this
// package needs, letting the same Store type serve as both the root
// handle and the transactional handle WithTx hands to its callback —
// mirroring the sqlite backend's execer seam.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is the Postgres+AGE Graph Port.
type Store struct {
	pool *pgxpool.Pool
	q    querier // root handle: pool; transactional handle: a pgx.Tx
}

// Open connects a pool to dsn. Call EnsureReady before first use.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	return &Store{pool: pool, q: pool}, nil
}

func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// EnsureReady creates the AGE extension, the astgraph graph, the files
// table and the ast_edge_guard table. Idempotent; safe to call
// concurrently.
func (s *Store) EnsureReady(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS age`,
		`LOAD 'age'`,
		`SET search_path = public, ag_catalog, "$user"`,
	}
	for _, stmt := range stmts {
		if _, err := s.q.Exec(ctx, stmt); err != nil {
			// age may already be loaded, or the extension may require
			// superuser on first CREATE; both are non-fatal here — the
			// graph-existence check below is what gates readiness.
			continue
		}
	}

	var count int
	if err := s.q.QueryRow(ctx,
		`SELECT count(*) FROM ag_catalog.ag_graph WHERE name = $1`, graphName,
	).Scan(&count); err != nil {
		return api.Wrap(api.ErrBackendFailure, err, "check graph existence")
	}
	if count == 0 {
		if _, err := s.q.Exec(ctx, fmt.Sprintf(`SELECT create_graph('%s')`, graphName)); err != nil {
			return api.Wrap(api.ErrBackendFailure, err, "create graph")
		}
	}

	ddl := []string{
		`CREATE TABLE IF NOT EXISTS files (
			id UUID PRIMARY KEY,
			name TEXT NOT NULL,
			full_path TEXT NOT NULL,
			suffix TEXT NOT NULL,
			content BYTEA NOT NULL,
			content_hash TEXT NOT NULL,
			created TIMESTAMPTZ NOT NULL,
			last_modified TIMESTAMPTZ NOT NULL,
			UNIQUE (full_path, content_hash)
		)`,
		`CREATE TABLE IF NOT EXISTS ast_edge_guard (
			parent_id BIGINT NOT NULL,
			child_id BIGINT NOT NULL,
			child_index INT NOT NULL,
			PRIMARY KEY (parent_id, child_id),
			UNIQUE (parent_id, child_index)
		)`,
	}
	for _, stmt := range ddl {
		if _, err := s.q.Exec(ctx, stmt); err != nil {
			return api.Wrap(api.ErrBackendFailure, err, "ensure schema")
		}
	}
	return nil
}

func contentHash(content []byte) string {
	h := sha256.Sum256(content)
	return hex.EncodeToString(h[:])
}

func (s *Store) PersistFile(ctx context.Context, fullPath string, content []byte, created, modified time.Time) (string, error) {
	hash := contentHash(content)

	var existing string
	err := s.q.QueryRow(ctx,
		`SELECT id FROM files WHERE full_path = $1 AND content_hash = $2`, fullPath, hash,
	).Scan(&existing)
	if err == nil {
		return existing, nil
	}
	if err != pgx.ErrNoRows {
		return "", api.Wrap(api.ErrBackendFailure, err, "lookup file record")
	}

	id := uuid.NewString()
	_, err = s.q.Exec(ctx,
		`INSERT INTO files (id, name, full_path, suffix, content, content_hash, created, last_modified)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (full_path, content_hash) DO NOTHING`,
		id, filepath.Base(fullPath), fullPath, filepath.Ext(fullPath), content, hash, created, modified,
	)
	if err != nil {
		return "", api.Wrap(api.ErrBackendFailure, err, "insert file record")
	}
	return id, nil
}

func (s *Store) LookupNodesBySpan(ctx context.Context, spanKeys []string) (map[string]int64, error) {
	out := make(map[string]int64, len(spanKeys))
	for _, key := range spanKeys {
		cypher := fmt.Sprintf("MATCH (n:AstNode {span_key: '%s'}) RETURN id(n) LIMIT 1", escapeStr(key))
		rows, err := fetchCypher(ctx, s.q, cypher, 1)
		if err != nil {
			return nil, api.Wrap(api.ErrBackendFailure, err, "lookup node by span")
		}
		if len(rows) > 0 {
			out[key] = parseAgtypeInt(rows[0][0])
		}
	}
	return out, nil
}

func (s *Store) LookupNodesByShape(ctx context.Context, shapeHashes []string) (map[string]int64, error) {
	out := make(map[string]int64, len(shapeHashes))
	for _, hash := range shapeHashes {
		cypher := fmt.Sprintf("MATCH (n:AstNode {shape_hash: '%s'}) RETURN id(n) LIMIT 1", escapeStr(hash))
		rows, err := fetchCypher(ctx, s.q, cypher, 1)
		if err != nil {
			return nil, api.Wrap(api.ErrBackendFailure, err, "lookup node by shape")
		}
		if len(rows) > 0 {
			out[hash] = parseAgtypeInt(rows[0][0])
		}
	}
	return out, nil
}

var nodePropKeys = []string{"file_uuid", "type", "start_byte", "end_byte", "start_row", "start_col", "end_row", "end_col", "span_key", "shape_hash"}

func (s *Store) CreateAstNodes(ctx context.Context, props []api.NodeProps) ([]int64, error) {
	ids := make([]int64, len(props))
	for i, p := range props {
		m := map[string]any{
			"file_uuid": p.FileUUID, "type": p.Type,
			"start_byte": int64(p.StartByte), "end_byte": int64(p.EndByte),
			"start_row": int64(p.StartRow), "start_col": int64(p.StartCol),
			"end_row": int64(p.EndRow), "end_col": int64(p.EndCol),
			"span_key": p.SpanKey, "shape_hash": p.ShapeHash,
		}
		cypher := fmt.Sprintf("CREATE (n:AstNode %s) RETURN id(n)", cypherProps(nodePropKeys, m))
		rows, err := fetchCypher(ctx, s.q, cypher, 1)
		if err != nil {
			return nil, api.Wrap(api.ErrBackendFailure, err, "create ast node")
		}
		ids[i] = parseAgtypeInt(rows[0][0])
	}
	return ids, nil
}

// EdgeGuardInsert upserts the relational guard table; callers run it
// before the PARENT_OF edge is ever MERGEd into the graph.
func (s *Store) EdgeGuardInsert(ctx context.Context, edges []api.ParentEdge) error {
	for _, e := range edges {
		var existingIndex int
		err := s.q.QueryRow(ctx,
			`SELECT child_index FROM ast_edge_guard WHERE parent_id = $1 AND child_id = $2`, e.ParentID, e.ChildID,
		).Scan(&existingIndex)
		if err == nil {
			continue // conflict on (parent_id, child_id): silently ignored
		}
		if err != pgx.ErrNoRows {
			return api.Wrap(api.ErrBackendFailure, err, "check edge guard")
		}

		var clash int
		err = s.q.QueryRow(ctx,
			`SELECT 1 FROM ast_edge_guard WHERE parent_id = $1 AND child_index = $2`, e.ParentID, e.ChildIndex,
		).Scan(&clash)
		if err == nil {
			return api.Wrap(api.ErrOrderingConflict, nil, "duplicate child_index under parent")
		}
		if err != pgx.ErrNoRows {
			return api.Wrap(api.ErrBackendFailure, err, "check edge guard uniqueness")
		}

		if _, err := s.q.Exec(ctx,
			`INSERT INTO ast_edge_guard (parent_id, child_id, child_index) VALUES ($1, $2, $3)`,
			e.ParentID, e.ChildID, e.ChildIndex,
		); err != nil {
			return api.Wrap(api.ErrBackendFailure, err, "insert edge guard")
		}
	}
	return nil
}

func (s *Store) UpsertParentEdges(ctx context.Context, edges []api.ParentEdge) error {
	for _, e := range edges {
		cypher := fmt.Sprintf(
			"MATCH (p) WHERE id(p) = %d MATCH (c) WHERE id(c) = %d "+
				"MERGE (p)-[edge:PARENT_OF]->(c) SET edge.child_index = %d RETURN id(edge)",
			e.ParentID, e.ChildID, e.ChildIndex)
		if err := execCypher(ctx, s.q, cypher); err != nil {
			return api.Wrap(api.ErrBackendFailure, err, "upsert parent edge")
		}
	}
	return nil
}

func (s *Store) UpsertFileVersion(ctx context.Context, commitID, fileUUID, path, language string, info api.VersionInfo) (int64, error) {
	cypher := fmt.Sprintf(
		"MERGE (fv:FileVersion {commit_id: '%s', file_uuid: '%s', path: '%s'}) "+
			"SET fv.language = '%s', fv.ts = '%s', fv.author = '%s', fv.branch = '%s' "+
			"RETURN id(fv)",
		escapeStr(commitID), escapeStr(fileUUID), escapeStr(path),
		escapeStr(language), escapeStr(info.Timestamp), escapeStr(info.Author), escapeStr(info.Branch))
	rows, err := fetchCypher(ctx, s.q, cypher, 1)
	if err != nil {
		return 0, api.Wrap(api.ErrBackendFailure, err, "upsert file version")
	}
	if len(rows) == 0 {
		return 0, api.Wrap(api.ErrBackendFailure, nil, "upsert file version returned no row")
	}
	return parseAgtypeInt(rows[0][0]), nil
}

func (s *Store) LinkPreviousVersion(ctx context.Context, prevCommitID string, curVersionID int64, path string) error {
	cypher := fmt.Sprintf(
		"MATCH (prev:FileVersion {commit_id: '%s', path: '%s'}) MATCH (cur) WHERE id(cur) = %d "+
			"MERGE (prev)-[r:NEXT_VERSION]->(cur) RETURN id(r)",
		escapeStr(prevCommitID), escapeStr(path), curVersionID)
	rows, err := fetchCypher(ctx, s.q, cypher, 1)
	if err != nil {
		return api.Wrap(api.ErrBackendFailure, err, "link previous version")
	}
	_ = rows // no match is a no-op, same as the MATCH yielding zero rows in AGE
	return nil
}

func (s *Store) UpsertOccurrences(ctx context.Context, fileVersionID int64, commitID, fileUUID string, occs []api.Occurrence) error {
	for _, o := range occs {
		cypher := fmt.Sprintf(
			"MATCH (n) WHERE id(n) = %d MATCH (fv) WHERE id(fv) = %d "+
				"MERGE (n)-[r:OCCURS_IN {commit_id: '%s', file_uuid: '%s', start_byte: %d, end_byte: %d}]->(fv) "+
				"RETURN id(r)",
			o.NodeID, fileVersionID, escapeStr(commitID), escapeStr(fileUUID), o.StartByte, o.EndByte)
		if err := execCypher(ctx, s.q, cypher); err != nil {
			return api.Wrap(api.ErrBackendFailure, err, "upsert occurrence")
		}
	}
	return nil
}

// WithTx opens a real pgx transaction; the guard-table inserts and the
// PARENT_OF MERGEs run inside the same transaction, so the guard and its
// graph mirror cannot diverge on a partial failure.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx api.GraphPort) error) error {
	pgxTx, err := s.pool.Begin(ctx)
	if err != nil {
		return api.Wrap(api.ErrBackendFailure, err, "begin transaction")
	}
	txStore := &Store{pool: s.pool, q: pgxTx}

	if err := fn(ctx, txStore); err != nil {
		_ = pgxTx.Rollback(ctx)
		return err
	}
	if err := pgxTx.Commit(ctx); err != nil {
		return api.Wrap(api.ErrBackendFailure, err, "commit transaction")
	}
	return nil
}

func (s *Store) RunReadQuery(ctx context.Context, query string, columns int) ([][]any, error) {
	rows, err := fetchCypher(ctx, s.q, query, columns)
	if err != nil {
		return nil, api.Wrap(api.ErrBackendFailure, err, "run read query")
	}
	out := make([][]any, len(rows))
	for i, r := range rows {
		vals := make([]any, len(r))
		for j, v := range r {
			vals[j] = v
		}
		out[i] = vals
	}
	return out, nil
}

var _ api.GraphPort = (*Store)(nil)
