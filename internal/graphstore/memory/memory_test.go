package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/astgraph/api"
)

func TestPersistFile_DedupsOnPathAndContentHash(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now()

	id1, err := s.PersistFile(ctx, "/a.py", []byte("x = 1"), now, now)
	require.NoError(t, err)
	id2, err := s.PersistFile(ctx, "/a.py", []byte("x = 1"), now, now)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	id3, err := s.PersistFile(ctx, "/a.py", []byte("x = 2"), now, now)
	require.NoError(t, err)
	assert.NotEqual(t, id1, id3)
}

func TestCreateAstNodes_ReturnsIDsInOrder(t *testing.T) {
	s := New()
	ctx := context.Background()
	ids, err := s.CreateAstNodes(ctx, []api.NodeProps{
		{SpanKey: "f:a:0:1", ShapeHash: "h1", Type: "a"},
		{SpanKey: "f:b:1:2", ShapeHash: "h2", Type: "b"},
	})
	require.NoError(t, err)
	require.Len(t, ids, 2)
	assert.NotEqual(t, ids[0], ids[1])

	got, err := s.LookupNodesBySpan(ctx, []string{"f:a:0:1", "f:b:1:2", "missing"})
	require.NoError(t, err)
	assert.Equal(t, ids[0], got["f:a:0:1"])
	assert.Equal(t, ids[1], got["f:b:1:2"])
	_, ok := got["missing"]
	assert.False(t, ok)
}

func TestEdgeGuardInsert_OrderingConflict(t *testing.T) {
	s := New()
	ctx := context.Background()

	err := s.EdgeGuardInsert(ctx, []api.ParentEdge{{ParentID: 1, ChildID: 2, ChildIndex: 0}})
	require.NoError(t, err)

	// same (parent,child) with a different index is silently ignored on the PK
	err = s.EdgeGuardInsert(ctx, []api.ParentEdge{{ParentID: 1, ChildID: 2, ChildIndex: 5}})
	require.NoError(t, err)

	// different child claiming the same (parent, child_index) is fatal
	err = s.EdgeGuardInsert(ctx, []api.ParentEdge{{ParentID: 1, ChildID: 3, ChildIndex: 0}})
	require.Error(t, err)
	assert.ErrorIs(t, err, api.ErrOrderingConflict)
}

func TestUpsertParentEdges_OrderedByChildIndex(t *testing.T) {
	s := New()
	ctx := context.Background()

	ids, err := s.CreateAstNodes(ctx, []api.NodeProps{
		{SpanKey: "parent", Type: "block"},
		{SpanKey: "child-a", Type: "identifier"},
		{SpanKey: "child-b", Type: "integer"},
	})
	require.NoError(t, err)
	parentID, childA, childB := ids[0], ids[1], ids[2]

	require.NoError(t, s.UpsertParentEdges(ctx, []api.ParentEdge{
		{ParentID: parentID, ChildID: childB, ChildIndex: 1},
		{ParentID: parentID, ChildID: childA, ChildIndex: 0},
	}))

	children, err := s.Children(ctx, "parent", 0)
	require.NoError(t, err)
	require.Len(t, children, 2)
	assert.Equal(t, 0, children[0].ChildIndex)
	assert.Equal(t, "child-a", children[0].SpanKey)
	assert.Equal(t, 1, children[1].ChildIndex)
	assert.Equal(t, "child-b", children[1].SpanKey)

	_, err = s.Children(ctx, "unknown", 0)
	assert.ErrorIs(t, err, api.ErrNotFound)
}

func TestUpsertFileVersion_MergeOnKeyRefreshesMetadata(t *testing.T) {
	s := New()
	ctx := context.Background()
	id1, err := s.UpsertFileVersion(ctx, "c1", "f1", "/a.py", "python", api.VersionInfo{Author: "alice"})
	require.NoError(t, err)
	id2, err := s.UpsertFileVersion(ctx, "c1", "f1", "/a.py", "python", api.VersionInfo{Author: "bob"})
	require.NoError(t, err)
	assert.Equal(t, id1, id2)
}

func TestLinkPreviousVersion_NoopWhenNoPrior(t *testing.T) {
	s := New()
	ctx := context.Background()
	curID, err := s.UpsertFileVersion(ctx, "c2", "f1", "/a.py", "python", api.VersionInfo{})
	require.NoError(t, err)
	require.NoError(t, s.LinkPreviousVersion(ctx, "c1", curID, "/a.py"))
}

func TestListFiles_KeysetPaginationRoundTrip(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now()
	_, _ = s.PersistFile(ctx, "/a.py", []byte("a"), now, now)
	_, _ = s.PersistFile(ctx, "/b.py", []byte("b"), now, now)
	_, _ = s.PersistFile(ctx, "/c.py", []byte("c"), now, now)

	page1, next1, prev1, err := s.ListFiles(ctx, 2, nil, nil)
	require.NoError(t, err)
	require.Len(t, page1, 2)
	assert.Equal(t, "/a.py", page1[0].FullPath)
	assert.Equal(t, "/b.py", page1[1].FullPath)
	require.NotNil(t, next1)
	assert.Nil(t, prev1)

	page2, next2, prev2, err := s.ListFiles(ctx, 2, next1, nil)
	require.NoError(t, err)
	require.Len(t, page2, 1)
	assert.Equal(t, "/c.py", page2[0].FullPath)
	assert.Nil(t, next2)
	require.NotNil(t, prev2)

	page3, _, _, err := s.ListFiles(ctx, 2, nil, prev2)
	require.NoError(t, err)
	require.Len(t, page3, 2)
	assert.Equal(t, "/a.py", page3[0].FullPath)
	assert.Equal(t, "/b.py", page3[1].FullPath)
}

func TestStatistics_ReflectsCreatedState(t *testing.T) {
	s := New()
	ctx := context.Background()
	ids, err := s.CreateAstNodes(ctx, []api.NodeProps{{SpanKey: "s1"}, {SpanKey: "s2"}})
	require.NoError(t, err)
	require.NoError(t, s.UpsertParentEdges(ctx, []api.ParentEdge{{ParentID: ids[1], ChildID: ids[0], ChildIndex: 0}}))

	stats, err := s.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.AstNodes)
	assert.Equal(t, int64(1), stats.ParentOf)
}

func TestWithTx_RollsBackAllWritesOnError(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.WithTx(ctx, func(ctx context.Context, tx api.GraphPort) error {
		ids, err := tx.CreateAstNodes(ctx, []api.NodeProps{{SpanKey: "keep", Type: "module"}})
		require.NoError(t, err)
		require.NoError(t, tx.UpsertOccurrences(ctx, 1, "c1", "f1", []api.Occurrence{{NodeID: ids[0]}}))
		return nil
	}))
	statsBefore, err := s.Statistics(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), statsBefore.AstNodes)

	txErr := s.WithTx(ctx, func(ctx context.Context, tx api.GraphPort) error {
		_, err := tx.CreateAstNodes(ctx, []api.NodeProps{{SpanKey: "doomed-a", ShapeHash: "h"}, {SpanKey: "doomed-b", ShapeHash: "h2"}})
		require.NoError(t, err)
		require.NoError(t, tx.UpsertOccurrences(ctx, 2, "c2", "f2", []api.Occurrence{{NodeID: 99}}))
		require.NoError(t, tx.EdgeGuardInsert(ctx, []api.ParentEdge{{ParentID: 1, ChildID: 2, ChildIndex: 0}}))
		return tx.EdgeGuardInsert(ctx, []api.ParentEdge{{ParentID: 1, ChildID: 3, ChildIndex: 0}})
	})
	require.Error(t, txErr)
	assert.ErrorIs(t, txErr, api.ErrOrderingConflict)

	statsAfter, err := s.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, statsBefore, statsAfter)

	_, err = s.LookupNodesBySpan(ctx, []string{"doomed-a"})
	require.NoError(t, err)
	got, _ := s.LookupNodesBySpan(ctx, []string{"doomed-a", "keep"})
	_, doomedExists := got["doomed-a"]
	assert.False(t, doomedExists)
	_, keptExists := got["keep"]
	assert.True(t, keptExists)
}

var _ api.GraphPort = (*Store)(nil)
