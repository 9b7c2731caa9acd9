package collector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/astgraph/api"
	"github.com/agentic-research/astgraph/internal/identity"
)

func TestCollect_EmptyFile(t *testing.T) {
	root := &api.ParsedNode{Type: "module", StartByte: 0, EndByte: 0}
	tree := Collect(root, "file-1", nil)

	require.Len(t, tree.Nodes, 1)
	assert.Equal(t, "module", tree.Nodes[0].Type)
	assert.Equal(t, uint32(0), tree.Nodes[0].StartByte)
	assert.Equal(t, uint32(0), tree.Nodes[0].EndByte)
	assert.Empty(t, tree.Edges)
	require.Len(t, tree.Occurrences, 1)
}

func TestCollect_ChildrenPrecedeParentAndOrderIsPreserved(t *testing.T) {
	src := []byte("x = 1")
	ident := &api.ParsedNode{Type: "identifier", StartByte: 0, EndByte: 1}
	num := &api.ParsedNode{Type: "integer", StartByte: 4, EndByte: 5}
	stmt := &api.ParsedNode{Type: "expression_statement", StartByte: 0, EndByte: 5, Children: []*api.ParsedNode{ident, num}}
	root := &api.ParsedNode{Type: "module", StartByte: 0, EndByte: 5, Children: []*api.ParsedNode{stmt}}

	tree := Collect(root, "file-1", src)
	require.Len(t, tree.Nodes, 4)

	byType := map[string]int{}
	for _, n := range tree.Nodes {
		byType[n.Type] = n.Index
	}
	assert.Less(t, byType["identifier"], byType["expression_statement"])
	assert.Less(t, byType["integer"], byType["expression_statement"])
	assert.Less(t, byType["expression_statement"], byType["module"])

	// expression_statement has two children in order: identifier (0), integer (1)
	var stmtEdges []api.CollectedEdge
	for _, e := range tree.Edges {
		if e.ParentIndex == byType["expression_statement"] {
			stmtEdges = append(stmtEdges, e)
		}
	}
	require.Len(t, stmtEdges, 2)
	assert.Equal(t, 0, stmtEdges[0].ChildOrder)
	assert.Equal(t, byType["identifier"], stmtEdges[0].ChildIndex)
	assert.Equal(t, 1, stmtEdges[1].ChildOrder)
	assert.Equal(t, byType["integer"], stmtEdges[1].ChildIndex)
}

func TestCollect_OccurrenceCompleteness(t *testing.T) {
	src := []byte("pass")
	leaf := &api.ParsedNode{Type: "pass_statement", StartByte: 0, EndByte: 4}
	root := &api.ParsedNode{Type: "module", StartByte: 0, EndByte: 4, Children: []*api.ParsedNode{leaf}}

	tree := Collect(root, "f1", src)
	assert.Equal(t, len(tree.Nodes), len(tree.Occurrences))
	for _, occ := range tree.Occurrences {
		n := tree.Nodes[occ.NodeIndex]
		assert.Equal(t, n.StartByte, occ.StartByte)
		assert.Equal(t, n.EndByte, occ.EndByte)
	}
}

func TestCollect_IdenticalSiblingSubtreesShareShapeHash(t *testing.T) {
	src := []byte("pass\npass\n")
	a := &api.ParsedNode{Type: "pass_statement", StartByte: 0, EndByte: 4}
	b := &api.ParsedNode{Type: "pass_statement", StartByte: 5, EndByte: 9}
	root := &api.ParsedNode{Type: "module", StartByte: 0, EndByte: 9, Children: []*api.ParsedNode{a, b}}

	tree := Collect(root, "f1", src)
	var hashes []string
	var spans []string
	for _, n := range tree.Nodes {
		if n.Type == "pass_statement" {
			hashes = append(hashes, n.ShapeHash)
			spans = append(spans, n.SpanKey)
		}
	}
	require.Len(t, hashes, 2)
	assert.Equal(t, hashes[0], hashes[1])
	assert.NotEqual(t, spans[0], spans[1])
}

func TestCollect_ShapeHashMatchesIdentityPackageDirectly(t *testing.T) {
	src := []byte("1")
	leaf := &api.ParsedNode{Type: "integer", StartByte: 0, EndByte: 1}
	tree := Collect(leaf, "f1", src)
	want := identity.ShapeHash("integer", []byte("1"), nil)
	require.Len(t, tree.Nodes, 1)
	assert.Equal(t, want, tree.Nodes[0].ShapeHash)
}

func TestCollect_DeepChainDoesNotOverflowStack(t *testing.T) {
	const depth = 50000
	var cur *api.ParsedNode
	for i := depth - 1; i >= 0; i-- {
		n := &api.ParsedNode{Type: "wrapper", StartByte: 0, EndByte: 1}
		if cur != nil {
			n.Children = []*api.ParsedNode{cur}
		}
		cur = n
	}
	tree := Collect(cur, "f1", []byte("x"))
	assert.Len(t, tree.Nodes, depth)
}
