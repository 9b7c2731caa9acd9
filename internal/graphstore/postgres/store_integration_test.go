//go:build integration
// +build integration

package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/agentic-research/astgraph/api"
)

func setupIntegrationStore(ctx context.Context, t *testing.T) *Store {
	req := testcontainers.ContainerRequest{
		Image:        "apache/age:release_PG15_1.5.0",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "testuser",
			"POSTGRES_PASSWORD": "testpass",
			"POSTGRES_DB":       "astgraph_test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://testuser:testpass@%s:%s/astgraph_test?sslmode=disable", host, port.Port())

	var store *Store
	for i := 0; i < 30; i++ {
		store, err = Open(ctx, dsn)
		if err == nil {
			break
		}
		time.Sleep(time.Second)
	}
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.EnsureReady(ctx))
	return store
}

func TestIntegration_PersistFile_DedupsOnPathAndContentHash(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	store := setupIntegrationStore(ctx, t)
	now := time.Now()

	id1, err := store.PersistFile(ctx, "/a.py", []byte("x = 1"), now, now)
	require.NoError(t, err)
	id2, err := store.PersistFile(ctx, "/a.py", []byte("x = 1"), now, now)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)
}

func TestIntegration_CreateAstNodes_ResolvableBySpanAndShape(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	store := setupIntegrationStore(ctx, t)

	ids, err := store.CreateAstNodes(ctx, []api.NodeProps{
		{SpanKey: "f:a:0:1", ShapeHash: "h1", Type: "a"},
		{SpanKey: "f:b:1:2", ShapeHash: "h2", Type: "b"},
	})
	require.NoError(t, err)
	require.Len(t, ids, 2)

	bySpan, err := store.LookupNodesBySpan(ctx, []string{"f:a:0:1", "missing"})
	require.NoError(t, err)
	assert.Equal(t, ids[0], bySpan["f:a:0:1"])
	_, ok := bySpan["missing"]
	assert.False(t, ok)

	byShape, err := store.LookupNodesByShape(ctx, []string{"h2"})
	require.NoError(t, err)
	assert.Equal(t, ids[1], byShape["h2"])
}

func TestIntegration_EdgeGuardInsert_OrderingConflict(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	store := setupIntegrationStore(ctx, t)

	require.NoError(t, store.EdgeGuardInsert(ctx, []api.ParentEdge{{ParentID: 1, ChildID: 2, ChildIndex: 0}}))
	require.NoError(t, store.EdgeGuardInsert(ctx, []api.ParentEdge{{ParentID: 1, ChildID: 2, ChildIndex: 0}}))

	err := store.EdgeGuardInsert(ctx, []api.ParentEdge{{ParentID: 1, ChildID: 3, ChildIndex: 0}})
	assert.ErrorIs(t, err, api.ErrOrderingConflict)
}

func TestIntegration_WithTx_RollsBackOnError(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	store := setupIntegrationStore(ctx, t)

	txErr := store.WithTx(ctx, func(ctx context.Context, tx api.GraphPort) error {
		if _, err := tx.CreateAstNodes(ctx, []api.NodeProps{{SpanKey: "f:rollback:0:1", ShapeHash: "hr", Type: "a"}}); err != nil {
			return err
		}
		return api.Wrap(api.ErrBackendFailure, nil, "simulated failure")
	})
	require.Error(t, txErr)

	got, err := store.LookupNodesBySpan(ctx, []string{"f:rollback:0:1"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestIntegration_ListFiles_KeysetPagination(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	store := setupIntegrationStore(ctx, t)
	now := time.Now()

	for _, p := range []string{"/a.py", "/b.py", "/c.py"} {
		_, err := store.PersistFile(ctx, p, []byte(p), now, now)
		require.NoError(t, err)
	}

	page1, next, prev, err := store.ListFiles(ctx, 2, nil, nil)
	require.NoError(t, err)
	require.Len(t, page1, 2)
	assert.Equal(t, "/a.py", page1[0].FullPath)
	assert.Equal(t, "/b.py", page1[1].FullPath)
	assert.Nil(t, prev)
	require.NotNil(t, next)

	page2, next2, _, err := store.ListFiles(ctx, 2, next, nil)
	require.NoError(t, err)
	require.Len(t, page2, 1)
	assert.Equal(t, "/c.py", page2[0].FullPath)
	assert.Nil(t, next2)
}
