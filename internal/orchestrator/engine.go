// Package orchestrator implements the ingest pipeline: it drives a single
// file through language resolution, parsing, tree collection, identity
// resolution, and the transactional write into a Graph Port backend.
// Cancellation rides on context.Context and the backend's transaction;
// there is no separate scheduler type.
package orchestrator

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/agentic-research/astgraph/api"
	"github.com/agentic-research/astgraph/internal/collector"
	"github.com/agentic-research/astgraph/internal/gitinfo"
	"github.com/agentic-research/astgraph/internal/parser"
)

// state names the stages an ingest passes through. It exists purely for
// structured logging; control flow is ordinary Go error propagation, not
// a switch over these values.
type state string

const (
	stateInit              state = "INIT"
	stateLangOK            state = "LANG_OK"
	stateFilePersisted     state = "FILE_PERSISTED"
	stateParsed            state = "PARSED"
	stateCollected         state = "COLLECTED"
	stateTxOpen            state = "TX_OPEN"
	stateFVMerged          state = "FV_MERGED"
	stateIDsResolved       state = "IDS_RESOLVED"
	stateNodesCreated      state = "NODES_CREATED"
	stateEdgesWired        state = "EDGES_WIRED"
	stateOccurrencesWired  state = "OCCURRENCES_WIRED"
	stateCommitted         state = "COMMITTED"
	stateDone              state = "DONE"
	stateTxRolledBack      state = "TX_ROLLED_BACK"
	stateFailed            state = "FAILED"
)

// Request describes one ingest: a file on disk or an inline code buffer.
// Exactly one of Path or Code must describe the source; Code requires
// Language.
type Request struct {
	Path     string
	Code     []byte
	Language string
}

// Engine is the Ingest Orchestrator. StructuralFallback toggles the
// shape_hash sharing fallback of identity resolution; it defaults on.
type Engine struct {
	Store              api.GraphPort
	Logger             zerolog.Logger
	StructuralFallback bool
}

// New returns an Engine with structural fallback enabled, the default.
func New(store api.GraphPort, logger zerolog.Logger) *Engine {
	return &Engine{Store: store, Logger: logger, StructuralFallback: true}
}

// Ingest runs the full pipeline for one file or inline code buffer and
// returns its file_uuid and resolved language once the transaction
// commits. A failed ingest leaves the graph unchanged except for a
// possible, deduplicated FileRecord insert.
func (e *Engine) Ingest(ctx context.Context, req Request) (api.IngestResult, error) {
	st := stateInit
	log := e.Logger.With().Str("component", "orchestrator").Logger()

	if req.Path == "" && req.Code == nil {
		return api.IngestResult{}, api.Invalid("either a path or inline code must be provided")
	}
	if req.Code != nil && req.Language == "" {
		return api.IngestResult{}, api.Invalid("inline code requires an explicit language")
	}

	// 1. Language resolution.
	lang, err := parser.Resolve(req.Language, req.Path)
	if err != nil {
		return api.IngestResult{}, api.Wrap(api.ErrInvalidInput, err, "resolve language")
	}
	st = stateLangOK

	// Materialize inline code as a temp file; cleaned up on every exit path.
	path := req.Path
	content := req.Code
	tempCreated := false
	if req.Code != nil {
		tmpPath, err := parser.WriteTempSource(lang, req.Code)
		if err != nil {
			return api.IngestResult{}, api.Wrap(api.ErrBackendFailure, err, "materialize inline code")
		}
		path = tmpPath
		tempCreated = true
		defer func() {
			if tempCreated {
				_ = os.Remove(path)
			}
		}()
	} else {
		raw, err := os.ReadFile(path)
		if err != nil {
			return api.IngestResult{}, api.Wrap(api.ErrInvalidInput, err, "read source file")
		}
		content = raw
	}

	created, modified := statTimes(path)

	// 2. File persistence.
	fileUUID, err := e.Store.PersistFile(ctx, path, content, created, modified)
	if err != nil {
		st = stateFailed
		log.Error().Str("state", string(st)).Err(err).Msg("persist file failed")
		return api.IngestResult{}, api.Wrap(api.ErrBackendFailure, err, "persist file")
	}
	st = stateFilePersisted

	// 3. Parsing.
	root, err := parser.Parse(ctx, lang, content)
	if err != nil {
		st = stateFailed
		return api.IngestResult{}, api.Wrap(api.ErrBackendFailure, err, "parse source")
	}
	st = stateParsed

	// 4. Tree collection.
	tree := collector.Collect(root, fileUUID, content)
	st = stateCollected

	// 5. Version metadata.
	info, ok, err := gitinfo.CommitInfo(ctx, path)
	if err != nil {
		return api.IngestResult{}, api.Wrap(api.ErrBackendFailure, err, "git info")
	}
	if !ok {
		info = api.LocalVersionInfo(time.Now())
	}
	commitID := info.CommitID

	var prevCommitID string
	havePrev := false
	if commitID != "local" {
		prevCommitID, havePrev, err = gitinfo.PrevCommit(ctx, path, commitID)
		if err != nil {
			return api.IngestResult{}, api.Wrap(api.ErrBackendFailure, err, "prev commit")
		}
	}

	// 6. Transactional persistence.
	st = stateTxOpen
	txErr := e.Store.WithTx(ctx, func(ctx context.Context, tx api.GraphPort) error {
		fvID, err := tx.UpsertFileVersion(ctx, commitID, fileUUID, path, lang, info)
		if err != nil {
			return api.Wrap(api.ErrBackendFailure, err, "upsert file version")
		}
		st = stateFVMerged

		if havePrev {
			if err := tx.LinkPreviousVersion(ctx, prevCommitID, fvID, path); err != nil {
				return api.Wrap(api.ErrBackendFailure, err, "link previous version")
			}
		}

		resolved, err := e.resolveIdentities(ctx, tx, tree.Nodes)
		if err != nil {
			return err
		}
		st = stateIDsResolved

		if err := e.createMissing(ctx, tx, tree.Nodes, resolved); err != nil {
			return err
		}
		st = stateNodesCreated

		if err := e.wireEdges(ctx, tx, tree.Edges, resolved); err != nil {
			return err
		}
		st = stateEdgesWired

		if err := e.wireOccurrences(ctx, tx, fvID, commitID, fileUUID, tree.Occurrences, resolved); err != nil {
			return err
		}
		st = stateOccurrencesWired

		return nil
	})

	if txErr != nil {
		st = stateTxRolledBack
		log.Error().Str("state", string(st)).Err(txErr).Str("path", path).Msg("ingest rolled back")
		return api.IngestResult{}, txErr
	}

	st = stateDone
	log.Debug().Str("state", string(st)).Str("file_uuid", fileUUID).Str("language", lang).Msg("ingest complete")

	return api.IngestResult{FileUUID: fileUUID, Language: lang}, nil
}

func statTimes(path string) (created, modified time.Time) {
	info, err := os.Stat(path)
	if err != nil {
		now := time.Now()
		return now, now
	}
	return info.ModTime(), info.ModTime()
}

// resolveIdentities maps collected nodes to existing vertex ids: span_key
// lookup first, shape_hash fallback second, each as its own complete
// batch pass — so sibling subtrees created within this same ingest never
// resolve against each other (only against vertices that already existed
// before this ingest began).
func (e *Engine) resolveIdentities(ctx context.Context, tx api.GraphPort, nodes []api.CollectedNode) (map[int]int64, error) {
	resolved := make(map[int]int64, len(nodes))

	spanKeys := make([]string, len(nodes))
	for i, n := range nodes {
		spanKeys[i] = n.SpanKey
	}
	for _, part := range batch(spanKeys, api.BatchSize) {
		m, err := tx.LookupNodesBySpan(ctx, part)
		if err != nil {
			return nil, api.Wrap(api.ErrBackendFailure, err, "lookup nodes by span")
		}
		for i, n := range nodes {
			if id, ok := m[n.SpanKey]; ok {
				resolved[i] = id
			}
		}
	}

	if !e.StructuralFallback {
		return resolved, nil
	}

	var unresolvedShapes []string
	for i, n := range nodes {
		if _, done := resolved[i]; !done {
			unresolvedShapes = append(unresolvedShapes, n.ShapeHash)
		}
	}
	for _, part := range batch(unresolvedShapes, api.BatchSize) {
		m, err := tx.LookupNodesByShape(ctx, part)
		if err != nil {
			return nil, api.Wrap(api.ErrBackendFailure, err, "lookup nodes by shape")
		}
		for i, n := range nodes {
			if _, done := resolved[i]; done {
				continue
			}
			if id, ok := m[n.ShapeHash]; ok {
				resolved[i] = id
			}
		}
	}

	return resolved, nil
}

// createMissing batch-creates vertices for every node resolveIdentities did
// not resolve, in collector order, recording their new ids into resolved.
func (e *Engine) createMissing(ctx context.Context, tx api.GraphPort, nodes []api.CollectedNode, resolved map[int]int64) error {
	var missingIdx []int
	var props []api.NodeProps
	for i, n := range nodes {
		if _, done := resolved[i]; done {
			continue
		}
		missingIdx = append(missingIdx, i)
		props = append(props, api.NodeProps{
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
		})
	}

	offset := 0
	for _, part := range batch(props, api.BatchSize) {
		ids, err := tx.CreateAstNodes(ctx, part)
		if err != nil {
			return api.Wrap(api.ErrBackendFailure, err, "create ast nodes")
		}
		for j, id := range ids {
			resolved[missingIdx[offset+j]] = id
		}
		offset += len(part)
	}
	return nil
}

// wireEdges translates collector-local indices to vertex ids and wires
// the guard table before the PARENT_OF MERGE. Both run in the same
// transaction, so the guard and its graph mirror cannot diverge on a
// partial failure.
func (e *Engine) wireEdges(ctx context.Context, tx api.GraphPort, edges []api.CollectedEdge, resolved map[int]int64) error {
	parentEdges := make([]api.ParentEdge, len(edges))
	for i, ed := range edges {
		parentEdges[i] = api.ParentEdge{
			ParentID:   resolved[ed.ParentIndex],
			ChildID:    resolved[ed.ChildIndex],
			ChildIndex: ed.ChildOrder,
		}
	}

	for _, part := range batch(parentEdges, api.BatchSize) {
		if err := tx.EdgeGuardInsert(ctx, part); err != nil {
			if errors.Is(err, api.ErrOrderingConflict) {
				return err
			}
			return api.Wrap(api.ErrBackendFailure, err, "edge guard insert")
		}
	}
	for _, part := range batch(parentEdges, api.BatchSize) {
		if err := tx.UpsertParentEdges(ctx, part); err != nil {
			return api.Wrap(api.ErrBackendFailure, err, "upsert parent edges")
		}
	}
	return nil
}

func (e *Engine) wireOccurrences(ctx context.Context, tx api.GraphPort, fvID int64, commitID, fileUUID string, occs []api.CollectedOccurrence, resolved map[int]int64) error {
	out := make([]api.Occurrence, len(occs))
	for i, o := range occs {
		out[i] = api.Occurrence{NodeID: resolved[o.NodeIndex], StartByte: o.StartByte, EndByte: o.EndByte}
	}
	for _, part := range batch(out, api.BatchSize) {
		if err := tx.UpsertOccurrences(ctx, fvID, commitID, fileUUID, part); err != nil {
			return api.Wrap(api.ErrBackendFailure, err, "upsert occurrences")
		}
	}
	return nil
}
