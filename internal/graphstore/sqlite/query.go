package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/agentic-research/astgraph/api"
)

// ListFiles is the keyset-paginated files listing, ordered by
// (full_path, rowid). SQLite lacks native row-value comparison in older
// builds, so the two-column comparison is expanded by hand.
func (s *Store) ListFiles(ctx context.Context, limit int, after, before *api.Cursor) ([]api.FileListing, *api.Cursor, *api.Cursor, error) {
	if limit < 1 {
		limit = 1
	}
	if limit > 1000 {
		limit = 1000
	}

	var (
		rows *sql.Rows
		err  error
	)
	switch {
	case after != nil:
		rows, err = s.exec.QueryContext(ctx,
			`SELECT rowid, full_path, suffix FROM files
			 WHERE full_path > ? OR (full_path = ? AND rowid > ?)
			 ORDER BY full_path, rowid LIMIT ?`,
			after.Sort, after.Sort, after.ID, limit+1)
	case before != nil:
		rows, err = s.exec.QueryContext(ctx,
			`SELECT rowid, full_path, suffix FROM (
			   SELECT rowid, full_path, suffix FROM files
			   WHERE full_path < ? OR (full_path = ? AND rowid < ?)
			   ORDER BY full_path DESC, rowid DESC LIMIT ?
			 ) sub ORDER BY full_path, rowid`,
			before.Sort, before.Sort, before.ID, limit+1)
	default:
		rows, err = s.exec.QueryContext(ctx,
			`SELECT rowid, full_path, suffix FROM files ORDER BY full_path, rowid LIMIT ?`, limit+1)
	}
	if err != nil {
		return nil, nil, nil, api.Wrap(api.ErrBackendFailure, err, "list files")
	}
	defer rows.Close()

	var out []api.FileListing
	for rows.Next() {
		var f api.FileListing
		if err := rows.Scan(&f.ID, &f.FullPath, &f.Suffix); err != nil {
			return nil, nil, nil, api.Wrap(api.ErrBackendFailure, err, "scan file row")
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, nil, api.Wrap(api.ErrBackendFailure, err, "iterate file rows")
	}

	var next, prev *api.Cursor
	hasMore := len(out) > limit
	if hasMore {
		if before != nil {
			// A "before" page keeps the rows closest to the cursor.
			out = out[len(out)-limit:]
		} else {
			out = out[:limit]
		}
	}
	if len(out) > 0 {
		if hasMore || before != nil {
			last := out[len(out)-1]
			next = &api.Cursor{Sort: last.FullPath, ID: last.ID}
		}
		if after != nil || (before != nil && hasMore) {
			first := out[0]
			prev = &api.Cursor{Sort: first.FullPath, ID: first.ID}
		}
	}
	return out, next, prev, nil
}

func (s *Store) NodeTypes(ctx context.Context, filePath string, limit int) ([]string, error) {
	var rows *sql.Rows
	var err error
	if filePath == "" {
		rows, err = s.exec.QueryContext(ctx, `SELECT DISTINCT type FROM ast_nodes ORDER BY type`)
	} else {
		rows, err = s.exec.QueryContext(ctx,
			`SELECT DISTINCT n.type FROM ast_nodes n
			 JOIN occurs_in o ON o.node_id = n.id
			 JOIN file_versions fv ON fv.id = o.file_version_id
			 WHERE fv.path = ? ORDER BY n.type`, filePath)
	}
	if err != nil {
		return nil, api.Wrap(api.ErrBackendFailure, err, "node types")
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, api.Wrap(api.ErrBackendFailure, err, "scan node type")
		}
		out = append(out, t)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, rows.Err()
}

func (s *Store) NodesByType(ctx context.Context, nodeType, filePath string, limit int, after *api.Cursor) ([]api.NodeDetail, *api.Cursor, error) {
	var afterByte uint32
	var afterSpan string
	if after != nil {
		if len(after.Sort) < 11 {
			return nil, nil, api.Invalid("malformed nodes_by_type cursor")
		}
		if _, err := fmt.Sscanf(after.Sort[:10], "%010d", &afterByte); err != nil {
			return nil, nil, api.Invalid("malformed nodes_by_type cursor")
		}
		afterSpan = after.Sort[11:]
	}

	query := `SELECT id, span_key, shape_hash, type, file_uuid, start_byte, end_byte, start_row, start_col, end_row, end_col
		FROM ast_nodes n WHERE n.type = ?`
	args := []any{nodeType}
	if filePath != "" {
		query += ` AND EXISTS (SELECT 1 FROM occurs_in o JOIN file_versions fv ON fv.id = o.file_version_id
			WHERE o.node_id = n.id AND fv.path = ?)`
		args = append(args, filePath)
	}
	if after != nil {
		query += ` AND (start_byte > ? OR (start_byte = ? AND span_key > ?))`
		args = append(args, afterByte, afterByte, afterSpan)
	}
	query += ` ORDER BY start_byte, span_key LIMIT ?`
	args = append(args, limit+1)

	rows, err := s.exec.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, nil, api.Wrap(api.ErrBackendFailure, err, "nodes by type")
	}
	defer rows.Close()

	var out []api.NodeDetail
	for rows.Next() {
		var n api.NodeDetail
		if err := rows.Scan(&n.VertexID, &n.SpanKey, &n.ShapeHash, &n.Type, &n.FileUUID,
			&n.StartByte, &n.EndByte, &n.StartRow, &n.StartCol, &n.EndRow, &n.EndCol); err != nil {
			return nil, nil, api.Wrap(api.ErrBackendFailure, err, "scan node detail")
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, api.Wrap(api.ErrBackendFailure, err, "iterate nodes by type")
	}

	var next *api.Cursor
	if limit > 0 && len(out) > limit {
		out = out[:limit]
		last := out[len(out)-1]
		next = &api.Cursor{Sort: fmt.Sprintf("%010d", last.StartByte) + "\x00" + last.SpanKey, ID: last.VertexID}
	}
	return out, next, nil
}

func (s *Store) Children(ctx context.Context, spanKey string, limit int) ([]api.ChildRef, error) {
	var parentID int64
	err := s.exec.QueryRowContext(ctx, `SELECT id FROM ast_nodes WHERE span_key = ?`, spanKey).Scan(&parentID)
	if err == sql.ErrNoRows {
		return nil, api.Wrap(api.ErrNotFound, nil, "span_key not found")
	}
	if err != nil {
		return nil, api.Wrap(api.ErrBackendFailure, err, "lookup span for children")
	}

	rows, err := s.exec.QueryContext(ctx,
		`SELECT p.child_index, c.id, c.span_key, c.type
		 FROM parent_of p JOIN ast_nodes c ON c.id = p.child_id
		 WHERE p.parent_id = ? ORDER BY p.child_index LIMIT ?`, parentID, limit)
	if err != nil {
		return nil, api.Wrap(api.ErrBackendFailure, err, "query children")
	}
	defer rows.Close()

	var out []api.ChildRef
	for rows.Next() {
		var c api.ChildRef
		if err := rows.Scan(&c.ChildIndex, &c.VertexID, &c.SpanKey, &c.Type); err != nil {
			return nil, api.Wrap(api.ErrBackendFailure, err, "scan child")
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) Statistics(ctx context.Context) (api.Statistics, error) {
	var stats api.Statistics
	row := s.exec.QueryRowContext(ctx, `SELECT
		(SELECT COUNT(*) FROM files),
		(SELECT COUNT(*) FROM ast_nodes),
		(SELECT COUNT(*) FROM parent_of),
		(SELECT COUNT(*) FROM occurs_in)`)
	if err := row.Scan(&stats.Files, &stats.AstNodes, &stats.ParentOf, &stats.OccursIn); err != nil {
		return api.Statistics{}, api.Wrap(api.ErrBackendFailure, err, "statistics")
	}
	return stats, nil
}

func (s *Store) LanguageDistribution(ctx context.Context) ([]api.CountRow, error) {
	return s.countRows(ctx, `SELECT language, COUNT(*) FROM file_versions GROUP BY language ORDER BY COUNT(*) DESC, language`, 0)
}

func (s *Store) NodeTypeCounts(ctx context.Context, limit int) ([]api.CountRow, error) {
	return s.countRows(ctx, `SELECT type, COUNT(*) FROM ast_nodes GROUP BY type ORDER BY COUNT(*) DESC, type`, limit)
}

func (s *Store) FileNodeCounts(ctx context.Context, limit int) ([]api.CountRow, error) {
	return s.countRows(ctx,
		`SELECT fv.path, COUNT(*) FROM occurs_in o JOIN file_versions fv ON fv.id = o.file_version_id
		 GROUP BY fv.path ORDER BY COUNT(*) DESC, fv.path`, limit)
}

// SharedShapes reads through the shape_shares virtual table: one roaring
// bitmap per shape_hash, one bit per sharing node id, so the aggregation
// never scans ast_nodes.
func (s *Store) SharedShapes(ctx context.Context, limit int) ([]api.CountRow, error) {
	return s.countRows(ctx,
		`SELECT shape_hash, COUNT(*) c FROM shape_shares GROUP BY shape_hash HAVING COUNT(*) > 1 ORDER BY c DESC, shape_hash`, limit)
}

func (s *Store) countRows(ctx context.Context, query string, limit int) ([]api.CountRow, error) {
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := s.exec.QueryContext(ctx, query)
	if err != nil {
		return nil, api.Wrap(api.ErrBackendFailure, err, "aggregate query")
	}
	defer rows.Close()

	var out []api.CountRow
	for rows.Next() {
		var c api.CountRow
		if err := rows.Scan(&c.Label, &c.Count); err != nil {
			return nil, api.Wrap(api.ErrBackendFailure, err, "scan aggregate row")
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) FileRootNodes(ctx context.Context, filePath string, limit int, nodeType string) ([]api.NodeDetail, error) {
	query := `SELECT n.id, n.span_key, n.shape_hash, n.type, n.file_uuid, n.start_byte, n.end_byte, n.start_row, n.start_col, n.end_row, n.end_col
		FROM ast_nodes n
		JOIN occurs_in o ON o.node_id = n.id
		JOIN file_versions fv ON fv.id = o.file_version_id
		WHERE fv.path = ? AND NOT EXISTS (SELECT 1 FROM parent_of p WHERE p.child_id = n.id)`
	args := []any{filePath}
	if nodeType != "" {
		query += ` AND n.type = ?`
		args = append(args, nodeType)
	}
	query += ` ORDER BY n.start_byte LIMIT ?`
	args = append(args, limit)

	rows, err := s.exec.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, api.Wrap(api.ErrBackendFailure, err, "file root nodes")
	}
	defer rows.Close()

	var out []api.NodeDetail
	for rows.Next() {
		var n api.NodeDetail
		if err := rows.Scan(&n.VertexID, &n.SpanKey, &n.ShapeHash, &n.Type, &n.FileUUID,
			&n.StartByte, &n.EndByte, &n.StartRow, &n.StartCol, &n.EndRow, &n.EndCol); err != nil {
			return nil, api.Wrap(api.ErrBackendFailure, err, "scan root node")
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *Store) NodeDetailByKey(ctx context.Context, spanKey string) (api.NodeDetail, error) {
	var n api.NodeDetail
	err := s.exec.QueryRowContext(ctx,
		`SELECT id, span_key, shape_hash, type, file_uuid, start_byte, end_byte, start_row, start_col, end_row, end_col
		 FROM ast_nodes WHERE span_key = ?`, spanKey,
	).Scan(&n.VertexID, &n.SpanKey, &n.ShapeHash, &n.Type, &n.FileUUID,
		&n.StartByte, &n.EndByte, &n.StartRow, &n.StartCol, &n.EndRow, &n.EndCol)
	if err == sql.ErrNoRows {
		return api.NodeDetail{}, api.Wrap(api.ErrNotFound, nil, "span_key not found")
	}
	if err != nil {
		return api.NodeDetail{}, api.Wrap(api.ErrBackendFailure, err, "node detail")
	}
	return n, nil
}

var _ api.QueryPort = (*Store)(nil)
