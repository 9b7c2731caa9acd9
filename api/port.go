package api

import (
	"context"
	"time"
)

// BatchSize bounds bulk Graph Port operations. All batches of a single
// ingest run in one transaction (see GraphPort.WithTx).
const BatchSize = 200

// GraphPort is the abstract storage contract the Ingest Orchestrator
// depends on. Every operation is a suspension point: it takes a
// context.Context and may be cancelled there. The interface is the seam
// between the Orchestrator and whichever of the three backends
// (in-memory, SQLite, Postgres+AGE) is wired in.
type GraphPort interface {
	// EnsureReady creates the extension/graph/guard table if absent.
	// Idempotent; safe to call concurrently.
	EnsureReady(ctx context.Context) error

	// PersistFile dedups on (full_path, content_hash) and returns the
	// existing FileRecord UUID when the pair is already present.
	PersistFile(ctx context.Context, fullPath string, content []byte, created, modified time.Time) (string, error)

	// LookupNodesBySpan resolves span keys to existing vertex ids. Misses
	// are simply absent from the result map.
	LookupNodesBySpan(ctx context.Context, spanKeys []string) (map[string]int64, error)

	// LookupNodesByShape resolves shape hashes to an existing vertex id
	// for the structural-fallback sharing path. Misses are absent from
	// the result map.
	LookupNodesByShape(ctx context.Context, shapeHashes []string) (map[string]int64, error)

	// CreateAstNodes creates one AstNode vertex per entry of props, in
	// order, and returns the new vertex ids in the same order.
	CreateAstNodes(ctx context.Context, props []NodeProps) ([]int64, error)

	// EdgeGuardInsert upserts into the ast_edge_guard table. A conflict on
	// (parent_id, child_id) is silently ignored (idempotent re-creation);
	// a conflict on (parent_id, child_index) is ErrOrderingConflict.
	EdgeGuardInsert(ctx context.Context, edges []ParentEdge) error

	// UpsertParentEdges MERGEs on (parent_id, child_id) and sets
	// child_index. Idempotent.
	UpsertParentEdges(ctx context.Context, edges []ParentEdge) error

	// UpsertFileVersion MERGEs on (commit_id, file_uuid, path) and
	// refreshes metadata, returning the FileVersion vertex id.
	UpsertFileVersion(ctx context.Context, commitID, fileUUID, path, language string, info VersionInfo) (int64, error)

	// LinkPreviousVersion MERGEs a NEXT_VERSION edge from the FileVersion
	// matched on (prevCommitID, path) to curVersionID. No-op if no such
	// prior FileVersion exists.
	LinkPreviousVersion(ctx context.Context, prevCommitID string, curVersionID int64, path string) error

	// UpsertOccurrences MERGEs one OCCURS_IN edge per occurrence from the
	// node to fileVersionID, carrying commitID/fileUUID/byte range.
	UpsertOccurrences(ctx context.Context, fileVersionID int64, commitID, fileUUID string, occs []Occurrence) error

	// WithTx runs fn with a transactional handle to this port; all writes
	// performed through the handle passed to fn commit together or roll
	// back together. The in-memory backend's handle is itself, guarded by
	// a mutex; the SQLite and Postgres backends open a real transaction.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx GraphPort) error) error

	// RunReadQuery executes an opaque, already-validated read-only query
	// and returns its rows. columns is the expected column count.
	RunReadQuery(ctx context.Context, query string, columns int) ([][]any, error)

	// QueryPort exposes the query projections against this backend.
	QueryPort

	// Close releases backend resources (connections, sidecar files).
	Close() error
}

// QueryPort is the read-only traversal surface consumed by external
// surfaces (CLI, HTTP, dashboards) — never by the Orchestrator's write
// path. Implemented by every GraphPort backend.
type QueryPort interface {
	ListFiles(ctx context.Context, limit int, after, before *Cursor) ([]FileListing, *Cursor, *Cursor, error)
	NodeTypes(ctx context.Context, filePath string, limit int) ([]string, error)
	NodesByType(ctx context.Context, nodeType, filePath string, limit int, after *Cursor) ([]NodeDetail, *Cursor, error)
	Children(ctx context.Context, spanKey string, limit int) ([]ChildRef, error)
	Statistics(ctx context.Context) (Statistics, error)
	LanguageDistribution(ctx context.Context) ([]CountRow, error)
	NodeTypeCounts(ctx context.Context, limit int) ([]CountRow, error)
	FileNodeCounts(ctx context.Context, limit int) ([]CountRow, error)
	SharedShapes(ctx context.Context, limit int) ([]CountRow, error)
	FileRootNodes(ctx context.Context, filePath string, limit int, nodeType string) ([]NodeDetail, error)
	NodeDetailByKey(ctx context.Context, spanKey string) (NodeDetail, error)
}

// Cursor is the decoded form of the opaque keyset pagination token: a
// sort value paired with a tie-breaking id. See internal/cursor for the
// base64/JSON encoding.
type Cursor struct {
	Sort string
	ID   int64
}
