// Package memory implements the in-memory Graph Port backend. It exists
// primarily so the Ingest Orchestrator and its invariants can be
// exercised without a database; every vertex and edge lives in plain
// maps behind one mutex.
package memory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agentic-research/astgraph/api"
)

type fileVersionRecord struct {
	id                       int64
	commitID, fileUUID, path string
	language                 string
	info                     api.VersionInfo
}

type edgeKey struct{ a, b int64 }

// Store is the in-memory Graph Port. All state lives behind mu; there is
// no sharding — correctness and testability, not throughput, are the goal.
type Store struct {
	mu sync.Mutex

	// FileRecord state, deduplicated on (full_path, content_hash).
	filesByID map[string]api.FileRecord
	fileDedup map[string]string // full_path+"\x00"+content_hash -> id

	// FileVersion state.
	fileVersions    map[int64]*fileVersionRecord
	fileVersionKey  map[string]int64 // commit_id+"\x00"+file_uuid+"\x00"+path -> id
	fvByPathCommit  map[string]int64 // path+"\x00"+commit_id -> id, for link_previous_version
	nextFVID        int64
	nextVersionEdge map[int64]int64 // prev FV id -> cur FV id

	// AstNode state.
	nodes       map[int64]api.NodeProps
	nodeBySpan  map[string]int64
	nodeByShape map[string]int64
	nextNodeID  int64

	// PARENT_OF state: the guard table and its mirror, written together.
	guardPK        map[edgeKey]int         // (parent,child) -> child_index, idempotent insert
	guardUnique    map[edgeKey]int64       // (parent,child_index) -> child_id, fatal conflict
	parentOf       map[int64][]api.ParentEdge // parent -> ordered (by child_index) edges
	childHasParent map[int64]bool

	// OCCURS_IN state.
	occursBy     map[int64]map[int64]api.Occurrence // fileVersionID -> nodeID -> occurrence
	nodeOccursIn map[int64]map[int64]bool           // nodeID -> set of fileVersionIDs
}

// New returns an empty Store, ready for use.
func New() *Store {
	return &Store{
		filesByID:       make(map[string]api.FileRecord),
		fileDedup:       make(map[string]string),
		fileVersions:    make(map[int64]*fileVersionRecord),
		fileVersionKey:  make(map[string]int64),
		fvByPathCommit:  make(map[string]int64),
		nextVersionEdge: make(map[int64]int64),
		nodes:           make(map[int64]api.NodeProps),
		nodeBySpan:      make(map[string]int64),
		nodeByShape:     make(map[string]int64),
		guardPK:         make(map[edgeKey]int),
		guardUnique:     make(map[edgeKey]int64),
		parentOf:        make(map[int64][]api.ParentEdge),
		childHasParent:  make(map[int64]bool),
		occursBy:        make(map[int64]map[int64]api.Occurrence),
		nodeOccursIn:    make(map[int64]map[int64]bool),
	}
}

func (s *Store) EnsureReady(ctx context.Context) error { return nil }

func (s *Store) Close() error { return nil }

func contentHash(content []byte) string {
	h := sha256.Sum256(content)
	return hex.EncodeToString(h[:])
}

func (s *Store) PersistFile(ctx context.Context, fullPath string, content []byte, created, modified time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hash := contentHash(content)
	key := fullPath + "\x00" + hash
	if id, ok := s.fileDedup[key]; ok {
		return id, nil
	}

	id := uuid.NewString()
	rec := api.FileRecord{
		ID:           id,
		Name:         filepath.Base(fullPath),
		FullPath:     fullPath,
		Suffix:       filepath.Ext(fullPath),
		Content:      content,
		ContentHash:  hash,
		Created:      created,
		LastModified: modified,
	}
	s.filesByID[id] = rec
	s.fileDedup[key] = id
	return id, nil
}

func (s *Store) LookupNodesBySpan(ctx context.Context, spanKeys []string) (map[string]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int64, len(spanKeys))
	for _, k := range spanKeys {
		if id, ok := s.nodeBySpan[k]; ok {
			out[k] = id
		}
	}
	return out, nil
}

func (s *Store) LookupNodesByShape(ctx context.Context, shapeHashes []string) (map[string]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int64, len(shapeHashes))
	for _, h := range shapeHashes {
		if id, ok := s.nodeByShape[h]; ok {
			out[h] = id
		}
	}
	return out, nil
}

func (s *Store) CreateAstNodes(ctx context.Context, props []api.NodeProps) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int64, len(props))
	for i, p := range props {
		s.nextNodeID++
		id := s.nextNodeID
		s.nodes[id] = p
		s.nodeBySpan[p.SpanKey] = id
		if _, exists := s.nodeByShape[p.ShapeHash]; !exists {
			s.nodeByShape[p.ShapeHash] = id
		}
		ids[i] = id
	}
	return ids, nil
}

func (s *Store) EdgeGuardInsert(ctx context.Context, edges []api.ParentEdge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range edges {
		pk := edgeKey{e.ParentID, e.ChildID}
		if _, exists := s.guardPK[pk]; exists {
			continue // conflict on (parent_id, child_id): silently ignored
		}
		uk := edgeKey{e.ParentID, int64(e.ChildIndex)}
		if existingChild, taken := s.guardUnique[uk]; taken && existingChild != e.ChildID {
			return api.Wrap(api.ErrOrderingConflict, nil, "duplicate child_index under parent")
		}
		s.guardPK[pk] = e.ChildIndex
		s.guardUnique[uk] = e.ChildID
	}
	return nil
}

func (s *Store) UpsertParentEdges(ctx context.Context, edges []api.ParentEdge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range edges {
		list := s.parentOf[e.ParentID]
		found := false
		for i := range list {
			if list[i].ChildID == e.ChildID {
				list[i].ChildIndex = e.ChildIndex
				found = true
				break
			}
		}
		if !found {
			list = append(list, e)
		}
		sort.Slice(list, func(i, j int) bool { return list[i].ChildIndex < list[j].ChildIndex })
		s.parentOf[e.ParentID] = list
		s.childHasParent[e.ChildID] = true
	}
	return nil
}

func (s *Store) UpsertFileVersion(ctx context.Context, commitID, fileUUID, path, language string, info api.VersionInfo) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := commitID + "\x00" + fileUUID + "\x00" + path
	if id, ok := s.fileVersionKey[key]; ok {
		rec := s.fileVersions[id]
		rec.language = language
		rec.info = info
		return id, nil
	}

	s.nextFVID++
	id := s.nextFVID
	rec := &fileVersionRecord{id: id, commitID: commitID, fileUUID: fileUUID, path: path, language: language, info: info}
	s.fileVersions[id] = rec
	s.fileVersionKey[key] = id
	s.fvByPathCommit[path+"\x00"+commitID] = id
	return id, nil
}

func (s *Store) LinkPreviousVersion(ctx context.Context, prevCommitID string, curVersionID int64, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prevID, ok := s.fvByPathCommit[path+"\x00"+prevCommitID]
	if !ok {
		return nil // no-op: no such prior FileVersion
	}
	s.nextVersionEdge[prevID] = curVersionID
	return nil
}

func (s *Store) UpsertOccurrences(ctx context.Context, fileVersionID int64, commitID, fileUUID string, occs []api.Occurrence) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.occursBy[fileVersionID]
	if !ok {
		m = make(map[int64]api.Occurrence)
		s.occursBy[fileVersionID] = m
	}
	for _, o := range occs {
		m[o.NodeID] = o
		set, ok := s.nodeOccursIn[o.NodeID]
		if !ok {
			set = make(map[int64]bool)
			s.nodeOccursIn[o.NodeID] = set
		}
		set[fileVersionID] = true
	}
	return nil
}

// WithTx for the in-memory backend is a single critical section guarded by
// the store's own mutex: there is no separate transactional object, so the
// handle passed to fn is the store itself. Since there is no underlying
// database transaction to roll back, WithTx snapshots every mutable map
// before running fn and restores the snapshot verbatim if fn returns an
// error — giving this backend the same all-or-nothing guarantee the SQL
// backends get from a real transaction.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx api.GraphPort) error) error {
	s.mu.Lock()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	if err := fn(ctx, s); err != nil {
		s.mu.Lock()
		s.restoreLocked(snap)
		s.mu.Unlock()
		return err
	}
	return nil
}

// storeSnapshot holds a deep copy of every map Store mutates during an
// ingest transaction.
type storeSnapshot struct {
	filesByID map[string]api.FileRecord
	fileDedup map[string]string

	fileVersions    map[int64]*fileVersionRecord
	fileVersionKey  map[string]int64
	fvByPathCommit  map[string]int64
	nextFVID        int64
	nextVersionEdge map[int64]int64

	nodes       map[int64]api.NodeProps
	nodeBySpan  map[string]int64
	nodeByShape map[string]int64
	nextNodeID  int64

	guardPK        map[edgeKey]int
	guardUnique    map[edgeKey]int64
	parentOf       map[int64][]api.ParentEdge
	childHasParent map[int64]bool

	occursBy     map[int64]map[int64]api.Occurrence
	nodeOccursIn map[int64]map[int64]bool
}

// snapshotLocked must be called with s.mu held.
func (s *Store) snapshotLocked() storeSnapshot {
	snap := storeSnapshot{
		filesByID:       make(map[string]api.FileRecord, len(s.filesByID)),
		fileDedup:       make(map[string]string, len(s.fileDedup)),
		fileVersions:    make(map[int64]*fileVersionRecord, len(s.fileVersions)),
		fileVersionKey:  make(map[string]int64, len(s.fileVersionKey)),
		fvByPathCommit:  make(map[string]int64, len(s.fvByPathCommit)),
		nextFVID:        s.nextFVID,
		nextVersionEdge: make(map[int64]int64, len(s.nextVersionEdge)),
		nodes:           make(map[int64]api.NodeProps, len(s.nodes)),
		nodeBySpan:      make(map[string]int64, len(s.nodeBySpan)),
		nodeByShape:     make(map[string]int64, len(s.nodeByShape)),
		nextNodeID:      s.nextNodeID,
		guardPK:         make(map[edgeKey]int, len(s.guardPK)),
		guardUnique:     make(map[edgeKey]int64, len(s.guardUnique)),
		parentOf:        make(map[int64][]api.ParentEdge, len(s.parentOf)),
		childHasParent:  make(map[int64]bool, len(s.childHasParent)),
		occursBy:        make(map[int64]map[int64]api.Occurrence, len(s.occursBy)),
		nodeOccursIn:    make(map[int64]map[int64]bool, len(s.nodeOccursIn)),
	}
	for k, v := range s.filesByID {
		snap.filesByID[k] = v
	}
	for k, v := range s.fileDedup {
		snap.fileDedup[k] = v
	}
	for k, v := range s.fileVersions {
		cp := *v
		snap.fileVersions[k] = &cp
	}
	for k, v := range s.fileVersionKey {
		snap.fileVersionKey[k] = v
	}
	for k, v := range s.fvByPathCommit {
		snap.fvByPathCommit[k] = v
	}
	for k, v := range s.nextVersionEdge {
		snap.nextVersionEdge[k] = v
	}
	for k, v := range s.nodes {
		snap.nodes[k] = v
	}
	for k, v := range s.nodeBySpan {
		snap.nodeBySpan[k] = v
	}
	for k, v := range s.nodeByShape {
		snap.nodeByShape[k] = v
	}
	for k, v := range s.guardPK {
		snap.guardPK[k] = v
	}
	for k, v := range s.guardUnique {
		snap.guardUnique[k] = v
	}
	for k, v := range s.parentOf {
		cp := make([]api.ParentEdge, len(v))
		copy(cp, v)
		snap.parentOf[k] = cp
	}
	for k, v := range s.childHasParent {
		snap.childHasParent[k] = v
	}
	for k, v := range s.occursBy {
		inner := make(map[int64]api.Occurrence, len(v))
		for ik, iv := range v {
			inner[ik] = iv
		}
		snap.occursBy[k] = inner
	}
	for k, v := range s.nodeOccursIn {
		inner := make(map[int64]bool, len(v))
		for ik, iv := range v {
			inner[ik] = iv
		}
		snap.nodeOccursIn[k] = inner
	}
	return snap
}

// restoreLocked must be called with s.mu held; it replaces every mutable
// field of s with the contents of snap, undoing whatever fn mutated.
func (s *Store) restoreLocked(snap storeSnapshot) {
	s.filesByID = snap.filesByID
	s.fileDedup = snap.fileDedup
	s.fileVersions = snap.fileVersions
	s.fileVersionKey = snap.fileVersionKey
	s.fvByPathCommit = snap.fvByPathCommit
	s.nextFVID = snap.nextFVID
	s.nextVersionEdge = snap.nextVersionEdge
	s.nodes = snap.nodes
	s.nodeBySpan = snap.nodeBySpan
	s.nodeByShape = snap.nodeByShape
	s.nextNodeID = snap.nextNodeID
	s.guardPK = snap.guardPK
	s.guardUnique = snap.guardUnique
	s.parentOf = snap.parentOf
	s.childHasParent = snap.childHasParent
	s.occursBy = snap.occursBy
	s.nodeOccursIn = snap.nodeOccursIn
}

func (s *Store) RunReadQuery(ctx context.Context, query string, columns int) ([][]any, error) {
	// The in-memory backend has no query engine of its own; run_read_query
	// exists for the SQLite and Postgres backends, which can execute
	// arbitrary read-only SQL/Cypher. Here it always returns no rows,
	// which is enough for the read-only guard's own tests (it never reaches
	// this call) and keeps the interface total.
	return nil, nil
}

var _ api.GraphPort = (*Store)(nil)
