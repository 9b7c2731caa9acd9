// Package query implements the read-only query projections as a thin,
// backend-agnostic layer over whichever api.GraphPort is wired in: it
// translates opaque cursor tokens to/from api.Cursor, and gates free-form
// queries through GuardReadOnly before they ever reach RunReadQuery.
package query

import (
	"context"

	"github.com/agentic-research/astgraph/api"
	"github.com/agentic-research/astgraph/internal/cursor"
)

// Projections is the external-facing read API: CLI, HTTP and dashboard
// surfaces all call through here rather than touching a GraphPort directly.
type Projections struct {
	port api.GraphPort
}

// New wraps a backend's GraphPort as a Projections surface.
func New(port api.GraphPort) *Projections {
	return &Projections{port: port}
}

// FilePage is one page of list_files, with string cursor tokens rather
// than api.Cursor values — the shape every external surface actually wants.
type FilePage struct {
	Files []api.FileListing
	Next  *string
	Prev  *string
}

func (p *Projections) ListFiles(ctx context.Context, limit int, after, before string) (FilePage, error) {
	afterC, err := cursor.DecodeQuery(after)
	if err != nil {
		return FilePage{}, err
	}
	beforeC, err := cursor.DecodeQuery(before)
	if err != nil {
		return FilePage{}, err
	}
	files, next, prev, err := p.port.ListFiles(ctx, limit, afterC, beforeC)
	if err != nil {
		return FilePage{}, err
	}
	return FilePage{Files: files, Next: cursor.EncodeCursor(next), Prev: cursor.EncodeCursor(prev)}, nil
}

func (p *Projections) NodeTypes(ctx context.Context, filePath string, limit int) ([]string, error) {
	return p.port.NodeTypes(ctx, filePath, limit)
}

// NodePage is one page of nodes_by_type.
type NodePage struct {
	Nodes []api.NodeDetail
	Next  *string
}

func (p *Projections) NodesByType(ctx context.Context, nodeType, filePath string, limit int, after string) (NodePage, error) {
	afterC, err := cursor.DecodeQuery(after)
	if err != nil {
		return NodePage{}, err
	}
	nodes, next, err := p.port.NodesByType(ctx, nodeType, filePath, limit, afterC)
	if err != nil {
		return NodePage{}, err
	}
	return NodePage{Nodes: nodes, Next: cursor.EncodeCursor(next)}, nil
}

func (p *Projections) Children(ctx context.Context, spanKey string, limit int) ([]api.ChildRef, error) {
	return p.port.Children(ctx, spanKey, limit)
}

func (p *Projections) Statistics(ctx context.Context) (api.Statistics, error) {
	return p.port.Statistics(ctx)
}

func (p *Projections) LanguageDistribution(ctx context.Context) ([]api.CountRow, error) {
	return p.port.LanguageDistribution(ctx)
}

func (p *Projections) NodeTypeCounts(ctx context.Context, limit int) ([]api.CountRow, error) {
	return p.port.NodeTypeCounts(ctx, limit)
}

func (p *Projections) FileNodeCounts(ctx context.Context, limit int) ([]api.CountRow, error) {
	return p.port.FileNodeCounts(ctx, limit)
}

func (p *Projections) SharedShapes(ctx context.Context, limit int) ([]api.CountRow, error) {
	return p.port.SharedShapes(ctx, limit)
}

func (p *Projections) FileRootNodes(ctx context.Context, filePath string, limit int, nodeType string) ([]api.NodeDetail, error) {
	return p.port.FileRootNodes(ctx, filePath, limit, nodeType)
}

func (p *Projections) NodeDetail(ctx context.Context, spanKey string) (api.NodeDetail, error) {
	return p.port.NodeDetailByKey(ctx, spanKey)
}

// RunQuery executes a free-form read-only query after gating it through
// GuardReadOnly — the only path by which untrusted query text reaches a
// backend's RunReadQuery.
func (p *Projections) RunQuery(ctx context.Context, rawQuery string, columns int) ([][]any, error) {
	if err := GuardReadOnly(rawQuery); err != nil {
		return nil, err
	}
	return p.port.RunReadQuery(ctx, rawQuery, columns)
}
