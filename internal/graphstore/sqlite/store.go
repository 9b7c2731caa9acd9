// Package sqlite implements a real, on-disk Graph Port backend over
// database/sql and modernc.org/sqlite: the relational files table and
// the ast_edge_guard guard table, plus the property-graph entities
// (AstNode, FileVersion, PARENT_OF, OCCURS_IN, NEXT_VERSION) mirrored as
// ordinary relational tables. WithTx opens a real *sql.Tx rather than
// the in-memory backend's mutex section.
package sqlite

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"time"

	"github.com/RoaringBitmap/roaring"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/agentic-research/astgraph/api"
	"github.com/agentic-research/astgraph/internal/graphstore/sqlite/shapesvtab"
)

// Store is the SQLite-backed Graph Port. A Store value is either the root
// handle (exec is the *sql.DB) or a transactional handle opened by WithTx
// (exec wraps a *sql.Tx); both satisfy api.GraphPort.
type Store struct {
	path    string
	sqldb   *sql.DB // non-nil only on the root handle; Close/EnsureReady use it
	exec    execer
	shapes  *shapesvtab.ShapesModule
}

// execer is the subset of *sql.DB / *sql.Tx every query in this package
// needs; it lets the same methods serve both the root Store and a
// transactional one.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Open creates (or reuses) the SQLite database file at path and registers
// the shape-sharing virtual table module. Call EnsureReady before first use.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite allows one writer at a time

	shapes, err := shapesvtab.Register()
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: set journal_mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: set foreign_keys: %w", err)
	}

	return &Store{path: path, sqldb: db, exec: db, shapes: shapes}, nil
}

func (s *Store) Close() error {
	if s.sqldb != nil {
		return s.sqldb.Close()
	}
	return nil
}

// EnsureReady creates the schema and the shape_hash virtual table if
// absent. Idempotent; safe to call concurrently (CREATE TABLE IF NOT
// EXISTS / CREATE VIRTUAL TABLE IF NOT EXISTS are themselves idempotent).
func (s *Store) EnsureReady(ctx context.Context) error {
	if _, err := s.exec.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("sqlite: ensure schema: %w", err)
	}
	s.shapes.RegisterDB(shapesDBID, s.sqldb)
	createVtab := fmt.Sprintf("CREATE VIRTUAL TABLE IF NOT EXISTS shape_shares USING astgraph_shapes(%s)", shapesDBID)
	if _, err := s.exec.ExecContext(ctx, createVtab); err != nil {
		return fmt.Errorf("sqlite: create shape_shares vtab: %w", err)
	}
	return nil
}

// shapesDBID is the fixed argument CREATE VIRTUAL TABLE passes to the
// astgraph_shapes module so it can find its backing *sql.DB; one Store
// per process, so a constant id is sufficient (ShapesModule keys its
// registration map by this string, not by a real database name).
const shapesDBID = "astgraph_main"

func contentHash(content []byte) string {
	h := sha256.Sum256(content)
	return hex.EncodeToString(h[:])
}

func (s *Store) PersistFile(ctx context.Context, fullPath string, content []byte, created, modified time.Time) (string, error) {
	hash := contentHash(content)

	var existing string
	err := s.exec.QueryRowContext(ctx,
		`SELECT id FROM files WHERE full_path = ? AND content_hash = ?`, fullPath, hash,
	).Scan(&existing)
	if err == nil {
		return existing, nil
	}
	if err != sql.ErrNoRows {
		return "", api.Wrap(api.ErrBackendFailure, err, "lookup file record")
	}

	id := uuid.NewString()
	_, err = s.exec.ExecContext(ctx,
		`INSERT INTO files (id, name, full_path, suffix, content, content_hash, created_at, modified_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, filepath.Base(fullPath), fullPath, filepath.Ext(fullPath), content, hash,
		created.UTC().Unix(), modified.UTC().Unix(),
	)
	if err != nil {
		return "", api.Wrap(api.ErrBackendFailure, err, "insert file record")
	}
	return id, nil
}

func (s *Store) LookupNodesBySpan(ctx context.Context, spanKeys []string) (map[string]int64, error) {
	out := make(map[string]int64, len(spanKeys))
	for _, chunk := range chunkStrings(spanKeys, api.BatchSize) {
		if len(chunk) == 0 {
			continue
		}
		q, args := inQuery(`SELECT span_key, id FROM ast_nodes WHERE span_key IN (`, chunk)
		rows, err := s.exec.QueryContext(ctx, q, args...)
		if err != nil {
			return nil, api.Wrap(api.ErrBackendFailure, err, "lookup nodes by span")
		}
		if err := scanKV(rows, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Store) LookupNodesByShape(ctx context.Context, shapeHashes []string) (map[string]int64, error) {
	out := make(map[string]int64, len(shapeHashes))
	for _, chunk := range chunkStrings(shapeHashes, api.BatchSize) {
		if len(chunk) == 0 {
			continue
		}
		// shape_owner records the first vertex id ever created for a given
		// shape_hash, so a structural match always adopts the oldest
		// vertex. The shape_shares vtab answers the reverse "who else
		// shares this shape" question for SharedShapes; it is not needed
		// for this lookup.
		q, args := inQuery(`SELECT shape_hash, node_id FROM shape_owner WHERE shape_hash IN (`, chunk)
		rows, err := s.exec.QueryContext(ctx, q, args...)
		if err != nil {
			return nil, api.Wrap(api.ErrBackendFailure, err, "lookup nodes by shape")
		}
		if err := scanKV(rows, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Store) CreateAstNodes(ctx context.Context, props []api.NodeProps) ([]int64, error) {
	ids := make([]int64, len(props))
	for i, p := range props {
		res, err := s.exec.ExecContext(ctx,
			`INSERT INTO ast_nodes (span_key, shape_hash, type, file_uuid, start_byte, end_byte, start_row, start_col, end_row, end_col)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			p.SpanKey, p.ShapeHash, p.Type, p.FileUUID, p.StartByte, p.EndByte, p.StartRow, p.StartCol, p.EndRow, p.EndCol,
		)
		if err != nil {
			return nil, api.Wrap(api.ErrBackendFailure, err, "create ast node")
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, api.Wrap(api.ErrBackendFailure, err, "read new node id")
		}
		ids[i] = id

		if _, err := s.exec.ExecContext(ctx,
			`INSERT OR IGNORE INTO shape_owner (shape_hash, node_id) VALUES (?, ?)`, p.ShapeHash, id,
		); err != nil {
			return nil, api.Wrap(api.ErrBackendFailure, err, "record shape owner")
		}
		if err := s.addShapeRef(ctx, p.ShapeHash, id); err != nil {
			return nil, api.Wrap(api.ErrBackendFailure, err, "index shape reference")
		}
	}
	return ids, nil
}

func (s *Store) EdgeGuardInsert(ctx context.Context, edges []api.ParentEdge) error {
	for _, e := range edges {
		var existingIndex int
		err := s.exec.QueryRowContext(ctx,
			`SELECT child_index FROM ast_edge_guard WHERE parent_id = ? AND child_id = ?`, e.ParentID, e.ChildID,
		).Scan(&existingIndex)
		if err == nil {
			continue // conflict on (parent_id, child_id): silently ignored
		}
		if err != sql.ErrNoRows {
			return api.Wrap(api.ErrBackendFailure, err, "check edge guard")
		}

		var clash int64
		err = s.exec.QueryRowContext(ctx,
			`SELECT 1 FROM ast_edge_guard WHERE parent_id = ? AND child_index = ?`, e.ParentID, e.ChildIndex,
		).Scan(&clash)
		if err == nil {
			return api.Wrap(api.ErrOrderingConflict, nil, "duplicate child_index under parent")
		}
		if err != sql.ErrNoRows {
			return api.Wrap(api.ErrBackendFailure, err, "check edge guard uniqueness")
		}

		if _, err := s.exec.ExecContext(ctx,
			`INSERT INTO ast_edge_guard (parent_id, child_id, child_index) VALUES (?, ?, ?)`,
			e.ParentID, e.ChildID, e.ChildIndex,
		); err != nil {
			return api.Wrap(api.ErrBackendFailure, err, "insert edge guard")
		}
	}
	return nil
}

func (s *Store) UpsertParentEdges(ctx context.Context, edges []api.ParentEdge) error {
	for _, e := range edges {
		_, err := s.exec.ExecContext(ctx,
			`INSERT INTO parent_of (parent_id, child_id, child_index) VALUES (?, ?, ?)
			 ON CONFLICT (parent_id, child_id) DO UPDATE SET child_index = excluded.child_index`,
			e.ParentID, e.ChildID, e.ChildIndex,
		)
		if err != nil {
			return api.Wrap(api.ErrBackendFailure, err, "upsert parent edge")
		}
	}
	return nil
}

func (s *Store) UpsertFileVersion(ctx context.Context, commitID, fileUUID, path, language string, info api.VersionInfo) (int64, error) {
	_, err := s.exec.ExecContext(ctx,
		`INSERT INTO file_versions (commit_id, file_uuid, path, language, author, ts, branch)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (commit_id, file_uuid, path)
		 DO UPDATE SET language = excluded.language, author = excluded.author, ts = excluded.ts, branch = excluded.branch`,
		commitID, fileUUID, path, language, info.Author, info.Timestamp, info.Branch,
	)
	if err != nil {
		return 0, api.Wrap(api.ErrBackendFailure, err, "upsert file version")
	}
	var id int64
	if err := s.exec.QueryRowContext(ctx,
		`SELECT id FROM file_versions WHERE commit_id = ? AND file_uuid = ? AND path = ?`,
		commitID, fileUUID, path,
	).Scan(&id); err != nil {
		return 0, api.Wrap(api.ErrBackendFailure, err, "read file version id")
	}
	return id, nil
}

func (s *Store) LinkPreviousVersion(ctx context.Context, prevCommitID string, curVersionID int64, path string) error {
	var prevID int64
	err := s.exec.QueryRowContext(ctx,
		`SELECT id FROM file_versions WHERE commit_id = ? AND path = ?`, prevCommitID, path,
	).Scan(&prevID)
	if err == sql.ErrNoRows {
		return nil // no-op: no such prior FileVersion
	}
	if err != nil {
		return api.Wrap(api.ErrBackendFailure, err, "lookup previous file version")
	}
	_, err = s.exec.ExecContext(ctx,
		`INSERT INTO next_version (prev_id, next_id) VALUES (?, ?)
		 ON CONFLICT (prev_id) DO UPDATE SET next_id = excluded.next_id`,
		prevID, curVersionID,
	)
	if err != nil {
		return api.Wrap(api.ErrBackendFailure, err, "link next version")
	}
	return nil
}

func (s *Store) UpsertOccurrences(ctx context.Context, fileVersionID int64, commitID, fileUUID string, occs []api.Occurrence) error {
	for _, o := range occs {
		_, err := s.exec.ExecContext(ctx,
			`INSERT INTO occurs_in (file_version_id, node_id, commit_id, file_uuid, start_byte, end_byte)
			 VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT (file_version_id, node_id) DO UPDATE SET start_byte = excluded.start_byte, end_byte = excluded.end_byte`,
			fileVersionID, o.NodeID, commitID, fileUUID, o.StartByte, o.EndByte,
		)
		if err != nil {
			return api.Wrap(api.ErrBackendFailure, err, "upsert occurrence")
		}
	}
	return nil
}

// WithTx opens a real *sql.Tx and hands the caller a Store whose exec
// field is that transaction; every write in fn commits or rolls back
// together.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx api.GraphPort) error) error {
	sqlTx, err := s.sqldb.BeginTx(ctx, nil)
	if err != nil {
		return api.Wrap(api.ErrBackendFailure, err, "begin transaction")
	}
	txStore := &Store{path: s.path, exec: sqlTx, shapes: s.shapes, sqldb: s.sqldb}

	if err := fn(ctx, txStore); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return api.Wrap(api.ErrBackendFailure, err, "commit transaction")
	}
	return nil
}

func (s *Store) RunReadQuery(ctx context.Context, query string, columns int) ([][]any, error) {
	rows, err := s.exec.QueryContext(ctx, query)
	if err != nil {
		return nil, api.Wrap(api.ErrBackendFailure, err, "run read query")
	}
	defer rows.Close()

	out := make([][]any, 0)
	for rows.Next() {
		vals := make([]any, columns)
		ptrs := make([]any, columns)
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, api.Wrap(api.ErrBackendFailure, err, "scan read query row")
		}
		out = append(out, vals)
	}
	return out, rows.Err()
}

// addShapeRef folds node id into the roaring bitmap backing shape_refs for
// shapeHash — the write side of the shape_shares virtual table's read-only
// xBestIndex/xFilter cursor (internal/graphstore/sqlite/shapesvtab).
func (s *Store) addShapeRef(ctx context.Context, shapeHash string, nodeID int64) error {
	var blob []byte
	err := s.exec.QueryRowContext(ctx, `SELECT bitmap FROM shape_refs WHERE shape_hash = ?`, shapeHash).Scan(&blob)
	rb := roaring.New()
	switch err {
	case nil:
		if uerr := rb.UnmarshalBinary(blob); uerr != nil {
			return fmt.Errorf("unmarshal shape bitmap: %w", uerr)
		}
	case sql.ErrNoRows:
	default:
		return fmt.Errorf("read shape bitmap: %w", err)
	}

	rb.Add(uint32(nodeID))
	out, merr := rb.MarshalBinary()
	if merr != nil {
		return fmt.Errorf("marshal shape bitmap: %w", merr)
	}

	_, err = s.exec.ExecContext(ctx,
		`INSERT INTO shape_refs (shape_hash, bitmap) VALUES (?, ?)
		 ON CONFLICT (shape_hash) DO UPDATE SET bitmap = excluded.bitmap`,
		shapeHash, out,
	)
	return err
}

var _ api.GraphPort = (*Store)(nil)

func chunkStrings(items []string, size int) [][]string {
	if len(items) == 0 {
		return nil
	}
	var out [][]string
	for len(items) > 0 {
		n := size
		if n > len(items) {
			n = len(items)
		}
		out = append(out, items[:n])
		items = items[n:]
	}
	return out
}

func inQuery(prefix string, items []string) (string, []any) {
	args := make([]any, len(items))
	q := prefix
	for i, it := range items {
		if i > 0 {
			q += ", "
		}
		q += "?"
		args[i] = it
	}
	q += ")"
	return q, args
}

func scanKV(rows *sql.Rows, out map[string]int64) error {
	defer rows.Close()
	for rows.Next() {
		var k string
		var v int64
		if err := rows.Scan(&k, &v); err != nil {
			return api.Wrap(api.ErrBackendFailure, err, "scan lookup row")
		}
		out[k] = v
	}
	return rows.Err()
}
