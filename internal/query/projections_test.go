package query

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/astgraph/api"
	"github.com/agentic-research/astgraph/internal/graphstore/memory"
)

func TestProjections_ListFilesRoundTripsCursorTokens(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	now := time.Now()
	_, _ = s.PersistFile(ctx, "/a.py", []byte("a"), now, now)
	_, _ = s.PersistFile(ctx, "/b.py", []byte("b"), now, now)

	p := New(s)
	page, err := p.ListFiles(ctx, 1, "", "")
	require.NoError(t, err)
	require.Len(t, page.Files, 1)
	require.NotNil(t, page.Next)

	page2, err := p.ListFiles(ctx, 1, *page.Next, "")
	require.NoError(t, err)
	require.Len(t, page2.Files, 1)
	assert.NotEqual(t, page.Files[0].FullPath, page2.Files[0].FullPath)
}

func TestProjections_ListFilesRejectsMalformedCursor(t *testing.T) {
	s := memory.New()
	p := New(s)
	_, err := p.ListFiles(context.Background(), 10, "not-base64!!", "")
	assert.ErrorIs(t, err, api.ErrInvalidInput)
}

func TestProjections_RunQueryRejectsWrites(t *testing.T) {
	s := memory.New()
	p := New(s)
	_, err := p.RunQuery(context.Background(), "MATCH (n) DELETE n", 1)
	assert.ErrorIs(t, err, api.ErrInvalidInput)
}

func TestProjections_RunQueryAllowsReads(t *testing.T) {
	s := memory.New()
	p := New(s)
	rows, err := p.RunQuery(context.Background(), "MATCH (n) RETURN n", 1)
	require.NoError(t, err)
	assert.Nil(t, rows)
}

func TestProjections_StatisticsPassesThrough(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	_, err := s.CreateAstNodes(ctx, []api.NodeProps{{SpanKey: "s1"}})
	require.NoError(t, err)

	p := New(s)
	stats, err := p.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.AstNodes)
}
