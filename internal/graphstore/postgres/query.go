package postgres

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/agentic-research/astgraph/api"
)

// fileRowID turns a files.id UUID into a stable int64, the same
// hash-in-place trick the in-memory backend's hash63 uses, so
// api.FileListing.ID stays a plain int64 across every backend even though
// Postgres's primary key is a UUID.
func fileRowID(uuidStr string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(uuidStr))
	return int64(h.Sum64() >> 1)
}

// ListFiles is a relational keyset page over the files table, ordered by
// (full_path, id).
func (s *Store) ListFiles(ctx context.Context, limit int, after, before *api.Cursor) ([]api.FileListing, *api.Cursor, *api.Cursor, error) {
	if limit < 1 {
		limit = 1
	}
	if limit > 1000 {
		limit = 1000
	}

	type row struct {
		id, fullPath, suffix string
	}

	fetch := func(sql string, args ...any) ([]row, error) {
		rs, err := s.q.Query(ctx, sql, args...)
		if err != nil {
			return nil, err
		}
		defer rs.Close()
		var out []row
		for rs.Next() {
			var r row
			if err := rs.Scan(&r.id, &r.fullPath, &r.suffix); err != nil {
				return nil, err
			}
			out = append(out, r)
		}
		return out, rs.Err()
	}

	// The cursor id is a client-side hash of the UUID (fileRowID), which
	// SQL cannot reproduce, so rows tied on the cursor's path are fetched
	// as a group and cut here; the rest of the page comes from the
	// neighbouring paths with an ordinary keyset comparison.
	var rows []row
	var err error
	switch {
	case after != nil:
		var tie []row
		tie, err = fetch(`SELECT id, full_path, suffix FROM files WHERE full_path = $1 ORDER BY id::text`, after.Sort)
		if err != nil {
			break
		}
		cut := len(tie)
		for i, r := range tie {
			if fileRowID(r.id) == after.ID {
				cut = i + 1
				break
			}
		}
		rows = tie[cut:]
		if len(rows) < limit+1 {
			var rest []row
			rest, err = fetch(
				`SELECT id, full_path, suffix FROM files
				 WHERE full_path > $1
				 ORDER BY full_path, id::text LIMIT $2`,
				after.Sort, limit+1-len(rows))
			if err != nil {
				break
			}
			rows = append(rows, rest...)
		}
	case before != nil:
		var tie []row
		tie, err = fetch(`SELECT id, full_path, suffix FROM files WHERE full_path = $1 ORDER BY id::text`, before.Sort)
		if err != nil {
			break
		}
		cut := 0
		for i, r := range tie {
			if fileRowID(r.id) == before.ID {
				cut = i
				break
			}
		}
		rows = tie[:cut]
		if len(rows) < limit+1 {
			var front []row
			front, err = fetch(
				`SELECT id, full_path, suffix FROM (
				   SELECT id, full_path, suffix FROM files
				   WHERE full_path < $1
				   ORDER BY full_path DESC, id::text DESC LIMIT $2
				 ) sub ORDER BY full_path, id::text`,
				before.Sort, limit+1-len(rows))
			if err != nil {
				break
			}
			rows = append(front, rows...)
		}
	default:
		rows, err = fetch(`SELECT id, full_path, suffix FROM files ORDER BY full_path, id::text LIMIT $1`, limit+1)
	}
	if err != nil {
		return nil, nil, nil, api.Wrap(api.ErrBackendFailure, err, "list files")
	}

	out := make([]api.FileListing, len(rows))
	for i, r := range rows {
		out[i] = api.FileListing{ID: fileRowID(r.id), FullPath: r.fullPath, Suffix: r.suffix}
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
	var cypher string
	if filePath == "" {
		cypher = "MATCH (n:AstNode) RETURN DISTINCT n.type"
	} else {
		cypher = fmt.Sprintf(
			"MATCH (n:AstNode)-[:OCCURS_IN]->(fv:FileVersion {path: '%s'}) RETURN DISTINCT n.type",
			escapeStr(filePath))
	}
	rows, err := fetchCypher(ctx, s.q, cypher, 1)
	if err != nil {
		return nil, api.Wrap(api.ErrBackendFailure, err, "node types")
	}
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, unquoteAgtype(r[0]))
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *Store) NodesByType(ctx context.Context, nodeType, filePath string, limit int, after *api.Cursor) ([]api.NodeDetail, *api.Cursor, error) {
	cypher := fmt.Sprintf("MATCH (n:AstNode {type: '%s'})", escapeStr(nodeType))
	if filePath != "" {
		cypher += fmt.Sprintf("-[:OCCURS_IN]->(:FileVersion {path: '%s'})", escapeStr(filePath))
	}
	cypher += " RETURN id(n), n.span_key, n.shape_hash, n.file_uuid, n.start_byte, n.end_byte, n.start_row, n.start_col, n.end_row, n.end_col ORDER BY n.start_byte, n.span_key"

	rows, err := fetchCypher(ctx, s.q, cypher, 10)
	if err != nil {
		return nil, nil, api.Wrap(api.ErrBackendFailure, err, "nodes by type")
	}

	var out []api.NodeDetail
	for _, r := range rows {
		n := api.NodeDetail{
			VertexID:  parseAgtypeInt(r[0]),
			SpanKey:   unquoteAgtype(r[1]),
			ShapeHash: unquoteAgtype(r[2]),
			Type:      nodeType,
			FileUUID:  unquoteAgtype(r[3]),
			StartByte: uint32(parseAgtypeInt(r[4])),
			EndByte:   uint32(parseAgtypeInt(r[5])),
			StartRow:  uint32(parseAgtypeInt(r[6])),
			StartCol:  uint32(parseAgtypeInt(r[7])),
			EndRow:    uint32(parseAgtypeInt(r[8])),
			EndCol:    uint32(parseAgtypeInt(r[9])),
		}
		if after != nil {
			sortKey := fmt.Sprintf("%010d", n.StartByte) + "\x00" + n.SpanKey
			if sortKey <= after.Sort {
				continue
			}
		}
		out = append(out, n)
		if limit > 0 && len(out) >= limit {
			break
		}
	}

	var next *api.Cursor
	if limit > 0 && len(out) == limit {
		last := out[len(out)-1]
		next = &api.Cursor{Sort: fmt.Sprintf("%010d", last.StartByte) + "\x00" + last.SpanKey, ID: last.VertexID}
	}
	return out, next, nil
}

func (s *Store) Children(ctx context.Context, spanKey string, limit int) ([]api.ChildRef, error) {
	cypher := fmt.Sprintf(
		"MATCH (p:AstNode {span_key: '%s'})-[e:PARENT_OF]->(c:AstNode) "+
			"RETURN e.child_index, id(c), c.span_key, c.type ORDER BY e.child_index",
		escapeStr(spanKey))
	rows, err := fetchCypher(ctx, s.q, cypher, 4)
	if err != nil {
		return nil, api.Wrap(api.ErrBackendFailure, err, "children")
	}
	if len(rows) == 0 {
		// Distinguish "span has no children" from "span does not exist".
		existsRows, err := fetchCypher(ctx, s.q, fmt.Sprintf("MATCH (p:AstNode {span_key: '%s'}) RETURN id(p) LIMIT 1", escapeStr(spanKey)), 1)
		if err != nil {
			return nil, api.Wrap(api.ErrBackendFailure, err, "check span existence")
		}
		if len(existsRows) == 0 {
			return nil, api.Wrap(api.ErrNotFound, nil, "span_key not found")
		}
		return nil, nil
	}

	out := make([]api.ChildRef, 0, len(rows))
	for _, r := range rows {
		out = append(out, api.ChildRef{
			ChildIndex: int(parseAgtypeInt(r[0])),
			VertexID:   parseAgtypeInt(r[1]),
			SpanKey:    unquoteAgtype(r[2]),
			Type:       unquoteAgtype(r[3]),
		})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *Store) Statistics(ctx context.Context) (api.Statistics, error) {
	var stats api.Statistics
	if err := s.q.QueryRow(ctx, `SELECT COUNT(*) FROM files`).Scan(&stats.Files); err != nil {
		return api.Statistics{}, api.Wrap(api.ErrBackendFailure, err, "count files")
	}
	for _, c := range []struct {
		cypher string
		dst    *int64
	}{
		{"MATCH (n:AstNode) RETURN count(n)", &stats.AstNodes},
		{"MATCH ()-[e:PARENT_OF]->() RETURN count(e)", &stats.ParentOf},
		{"MATCH ()-[e:OCCURS_IN]->() RETURN count(e)", &stats.OccursIn},
	} {
		rows, err := fetchCypher(ctx, s.q, c.cypher, 1)
		if err != nil {
			return api.Statistics{}, api.Wrap(api.ErrBackendFailure, err, "aggregate statistics")
		}
		if len(rows) > 0 {
			*c.dst = parseAgtypeInt(rows[0][0])
		}
	}
	return stats, nil
}

func (s *Store) LanguageDistribution(ctx context.Context) ([]api.CountRow, error) {
	return s.countRowsCypher(ctx, "MATCH (fv:FileVersion) RETURN fv.language, count(fv) ORDER BY count(fv) DESC, fv.language", 0)
}

func (s *Store) NodeTypeCounts(ctx context.Context, limit int) ([]api.CountRow, error) {
	return s.countRowsCypher(ctx, "MATCH (n:AstNode) RETURN n.type, count(n) ORDER BY count(n) DESC, n.type", limit)
}

func (s *Store) FileNodeCounts(ctx context.Context, limit int) ([]api.CountRow, error) {
	return s.countRowsCypher(ctx,
		"MATCH (n:AstNode)-[:OCCURS_IN]->(fv:FileVersion) RETURN fv.path, count(n) ORDER BY count(n) DESC, fv.path", limit)
}

func (s *Store) SharedShapes(ctx context.Context, limit int) ([]api.CountRow, error) {
	return s.countRowsCypher(ctx,
		"MATCH (n:AstNode) WITH n.shape_hash AS sh, count(n) AS c WHERE c > 1 RETURN sh, c ORDER BY c DESC, sh", limit)
}

func (s *Store) countRowsCypher(ctx context.Context, cypher string, limit int) ([]api.CountRow, error) {
	rows, err := fetchCypher(ctx, s.q, cypher, 2)
	if err != nil {
		return nil, api.Wrap(api.ErrBackendFailure, err, "aggregate query")
	}
	out := make([]api.CountRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, api.CountRow{Label: unquoteAgtype(r[0]), Count: parseAgtypeInt(r[1])})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *Store) FileRootNodes(ctx context.Context, filePath string, limit int, nodeType string) ([]api.NodeDetail, error) {
	cypher := fmt.Sprintf(
		"MATCH (n:AstNode)-[:OCCURS_IN]->(fv:FileVersion {path: '%s'}) WHERE NOT (()-[:PARENT_OF]->(n))",
		escapeStr(filePath))
	if nodeType != "" {
		cypher = fmt.Sprintf(
			"MATCH (n:AstNode {type: '%s'})-[:OCCURS_IN]->(fv:FileVersion {path: '%s'}) WHERE NOT (()-[:PARENT_OF]->(n))",
			escapeStr(nodeType), escapeStr(filePath))
	}
	cypher += " RETURN id(n), n.span_key, n.shape_hash, n.type, n.file_uuid, n.start_byte, n.end_byte, n.start_row, n.start_col, n.end_row, n.end_col ORDER BY n.start_byte"

	rows, err := fetchCypher(ctx, s.q, cypher, 11)
	if err != nil {
		return nil, api.Wrap(api.ErrBackendFailure, err, "file root nodes")
	}
	out := make([]api.NodeDetail, 0, len(rows))
	for _, r := range rows {
		out = append(out, api.NodeDetail{
			VertexID:  parseAgtypeInt(r[0]),
			SpanKey:   unquoteAgtype(r[1]),
			ShapeHash: unquoteAgtype(r[2]),
			Type:      unquoteAgtype(r[3]),
			FileUUID:  unquoteAgtype(r[4]),
			StartByte: uint32(parseAgtypeInt(r[5])),
			EndByte:   uint32(parseAgtypeInt(r[6])),
			StartRow:  uint32(parseAgtypeInt(r[7])),
			StartCol:  uint32(parseAgtypeInt(r[8])),
			EndRow:    uint32(parseAgtypeInt(r[9])),
			EndCol:    uint32(parseAgtypeInt(r[10])),
		})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *Store) NodeDetailByKey(ctx context.Context, spanKey string) (api.NodeDetail, error) {
	cypher := fmt.Sprintf(
		"MATCH (n:AstNode {span_key: '%s'}) RETURN id(n), n.span_key, n.shape_hash, n.type, n.file_uuid, n.start_byte, n.end_byte, n.start_row, n.start_col, n.end_row, n.end_col",
		escapeStr(spanKey))
	rows, err := fetchCypher(ctx, s.q, cypher, 11)
	if err != nil {
		return api.NodeDetail{}, api.Wrap(api.ErrBackendFailure, err, "node detail")
	}
	if len(rows) == 0 {
		return api.NodeDetail{}, api.Wrap(api.ErrNotFound, nil, "span_key not found")
	}
	r := rows[0]
	return api.NodeDetail{
		VertexID:  parseAgtypeInt(r[0]),
		SpanKey:   unquoteAgtype(r[1]),
		ShapeHash: unquoteAgtype(r[2]),
		Type:      unquoteAgtype(r[3]),
		FileUUID:  unquoteAgtype(r[4]),
		StartByte: uint32(parseAgtypeInt(r[5])),
		EndByte:   uint32(parseAgtypeInt(r[6])),
		StartRow:  uint32(parseAgtypeInt(r[7])),
		StartCol:  uint32(parseAgtypeInt(r[8])),
		EndRow:    uint32(parseAgtypeInt(r[9])),
		EndCol:    uint32(parseAgtypeInt(r[10])),
	}, nil
}

var _ api.QueryPort = (*Store)(nil)
