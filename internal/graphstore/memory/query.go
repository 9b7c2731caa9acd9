package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/agentic-research/astgraph/api"
)

func (s *Store) ListFiles(ctx context.Context, limit int, after, before *api.Cursor) ([]api.FileListing, *api.Cursor, *api.Cursor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit < 1 {
		limit = 1
	}
	if limit > 1000 {
		limit = 1000
	}

	all := make([]api.FileListing, 0, len(s.filesByID))
	for id, rec := range s.filesByID {
		all = append(all, api.FileListing{ID: hash63(id), FullPath: rec.FullPath, Suffix: rec.Suffix})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].FullPath != all[j].FullPath {
			return all[i].FullPath < all[j].FullPath
		}
		return all[i].ID < all[j].ID
	})

	n := len(all)
	start, end := 0, n

	switch {
	case after != nil:
		i := 0
		for i < n && !rowAfter(all[i], after) {
			i++
		}
		start = i
		if start+limit < end {
			end = start + limit
		}
	case before != nil:
		i := 0
		for i < n && rowBefore(all[i], before) {
			i++
		}
		end = i
		start = end - limit
		if start < 0 {
			start = 0
		}
	default:
		if limit < end {
			end = limit
		}
	}

	page := all[start:end]

	var next, prev *api.Cursor
	if end < n && len(page) > 0 {
		last := page[len(page)-1]
		next = &api.Cursor{Sort: last.FullPath, ID: last.ID}
	}
	if start > 0 && len(page) > 0 {
		first := page[0]
		prev = &api.Cursor{Sort: first.FullPath, ID: first.ID}
	}

	return page, next, prev, nil
}

func rowAfter(row api.FileListing, c *api.Cursor) bool {
	if row.FullPath != c.Sort {
		return row.FullPath > c.Sort
	}
	return row.ID > c.ID
}

func rowBefore(row api.FileListing, c *api.Cursor) bool {
	if row.FullPath != c.Sort {
		return row.FullPath < c.Sort
	}
	return row.ID < c.ID
}

// hash63 derives a stable int64 row id from a FileRecord's string UUID so
// the in-memory backend can satisfy the same (sortValue, int64 id) keyset
// contract the SQLite backend meets natively with its numeric rowid (the
// Postgres backend also hashes its UUID key client-side, see fileRowID).
func hash63(uuidStr string) int64 {
	var h uint64 = 1469598103934665603
	for i := 0; i < len(uuidStr); i++ {
		h ^= uint64(uuidStr[i])
		h *= 1099511628211
	}
	return int64(h &^ (1 << 63))
}

func (s *Store) NodeTypes(ctx context.Context, filePath string, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := map[string]bool{}
	var out []string
	add := func(t string) {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}

	if filePath == "" {
		for _, n := range s.nodes {
			add(n.Type)
		}
	} else {
		for fvID, fv := range s.fileVersions {
			if fv.path != filePath {
				continue
			}
			for nodeID := range s.occursBy[fvID] {
				add(s.nodes[nodeID].Type)
			}
		}
	}

	sort.Strings(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) NodesByType(ctx context.Context, nodeType, filePath string, limit int, after *api.Cursor) ([]api.NodeDetail, *api.Cursor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matchFV map[int64]bool
	if filePath != "" {
		matchFV = map[int64]bool{}
		for fvID, fv := range s.fileVersions {
			if fv.path == filePath {
				matchFV[fvID] = true
			}
		}
	}

	var rows []api.NodeDetail
	for id, n := range s.nodes {
		if n.Type != nodeType {
			continue
		}
		if matchFV != nil {
			inFile := false
			for fvID := range s.nodeOccursIn[id] {
				if matchFV[fvID] {
					inFile = true
					break
				}
			}
			if !inFile {
				continue
			}
		}
		rows = append(rows, toDetail(id, n))
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].StartByte != rows[j].StartByte {
			return rows[i].StartByte < rows[j].StartByte
		}
		return rows[i].SpanKey < rows[j].SpanKey
	})

	if after != nil {
		i := 0
		for i < len(rows) && !nodeAfter(rows[i], after) {
			i++
		}
		rows = rows[i:]
	}

	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
		last := rows[len(rows)-1]
		next := &api.Cursor{Sort: cursorSort(last), ID: last.VertexID}
		return rows, next, nil
	}
	return rows, nil, nil
}

// cursorSort renders StartByte zero-padded so lexical string comparison of
// the composite sort key agrees with numeric order on StartByte.
func cursorSort(n api.NodeDetail) string {
	return fmt.Sprintf("%010d", n.StartByte) + "\x00" + n.SpanKey
}

func nodeAfter(n api.NodeDetail, c *api.Cursor) bool {
	return cursorSort(n) > c.Sort || (cursorSort(n) == c.Sort && n.VertexID > c.ID)
}

func toDetail(id int64, n api.NodeProps) api.NodeDetail {
	return api.NodeDetail{
		VertexID:  id,
		SpanKey:   n.SpanKey,
		ShapeHash: n.ShapeHash,
		Type:      n.Type,
		FileUUID:  n.FileUUID,
		StartByte: n.StartByte,
		EndByte:   n.EndByte,
		StartRow:  n.StartRow,
		StartCol:  n.StartCol,
		EndRow:    n.EndRow,
		EndCol:    n.EndCol,
	}
}

func (s *Store) Children(ctx context.Context, spanKey string, limit int) ([]api.ChildRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	parentID, ok := s.nodeBySpan[spanKey]
	if !ok {
		return nil, api.Wrap(api.ErrNotFound, nil, "span_key not found")
	}
	edges := s.parentOf[parentID]
	out := make([]api.ChildRef, 0, len(edges))
	for _, e := range edges {
		child := s.nodes[e.ChildID]
		out = append(out, api.ChildRef{
			ChildIndex: e.ChildIndex,
			VertexID:   e.ChildID,
			SpanKey:    child.SpanKey,
			Type:       child.Type,
		})
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) Statistics(ctx context.Context) (api.Statistics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var parentOfCount, occursInCount int64
	for _, edges := range s.parentOf {
		parentOfCount += int64(len(edges))
	}
	for _, m := range s.occursBy {
		occursInCount += int64(len(m))
	}

	return api.Statistics{
		Files:    int64(len(s.filesByID)),
		AstNodes: int64(len(s.nodes)),
		ParentOf: parentOfCount,
		OccursIn: occursInCount,
	}, nil
}

func (s *Store) LanguageDistribution(ctx context.Context) ([]api.CountRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := map[string]int64{}
	for _, fv := range s.fileVersions {
		counts[fv.language]++
	}
	return sortedCounts(counts, 0), nil
}

func (s *Store) NodeTypeCounts(ctx context.Context, limit int) ([]api.CountRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := map[string]int64{}
	for _, n := range s.nodes {
		counts[n.Type]++
	}
	return sortedCounts(counts, limit), nil
}

func (s *Store) FileNodeCounts(ctx context.Context, limit int) ([]api.CountRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := map[string]int64{}
	for fvID, fv := range s.fileVersions {
		counts[fv.path] += int64(len(s.occursBy[fvID]))
	}
	return sortedCounts(counts, limit), nil
}

func (s *Store) SharedShapes(ctx context.Context, limit int) ([]api.CountRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := map[string]int64{}
	for _, n := range s.nodes {
		counts[n.ShapeHash]++
	}
	var out []api.CountRow
	for k, v := range counts {
		if v > 1 {
			out = append(out, api.CountRow{Label: k, Count: v})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) FileRootNodes(ctx context.Context, filePath string, limit int, nodeType string) ([]api.NodeDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []api.NodeDetail
	for fvID, fv := range s.fileVersions {
		if fv.path != filePath {
			continue
		}
		for nodeID := range s.occursBy[fvID] {
			if s.childHasParent[nodeID] {
				continue
			}
			n := s.nodes[nodeID]
			if nodeType != "" && n.Type != nodeType {
				continue
			}
			out = append(out, toDetail(nodeID, n))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartByte < out[j].StartByte })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) NodeDetailByKey(ctx context.Context, spanKey string) (api.NodeDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.nodeBySpan[spanKey]
	if !ok {
		return api.NodeDetail{}, api.Wrap(api.ErrNotFound, nil, "span_key not found")
	}
	return toDetail(id, s.nodes[id]), nil
}

func sortedCounts(counts map[string]int64, limit int) []api.CountRow {
	out := make([]api.CountRow, 0, len(counts))
	for k, v := range counts {
		out = append(out, api.CountRow{Label: k, Count: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Label < out[j].Label
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
