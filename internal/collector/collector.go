// Package collector flattens a parsed tree, in a single post-order
// traversal, into the three parallel arrays the Ingest Orchestrator
// consumes. It does no I/O and touches no global state, and it walks
// with an explicit stack rather than language-level recursion so a
// pathologically deep parse tree cannot blow the goroutine stack.
package collector

import (
	"github.com/agentic-research/astgraph/api"
	"github.com/agentic-research/astgraph/internal/identity"
)

// frame is one level of the explicit traversal stack.
type frame struct {
	node         *api.ParsedNode
	nextChild    int   // index into node.Children not yet pushed
	childIndices []int // node-array indices of already-finished children, in order
}

// Collect flattens root into post-order nodes/edges/occurrences for the
// file identified by fileUUID, whose full bytes are source. Children
// always appear before their parent in the returned Nodes slice, and a
// parent's PARENT_OF edges are emitted with ChildOrder 0..N-1 in the
// original tree order.
func Collect(root *api.ParsedNode, fileUUID string, source []byte) api.CollectedTree {
	var tree api.CollectedTree
	if root == nil {
		return tree
	}

	shapeOf := make([]string, 0, 64)
	stack := []*frame{{node: root}}

	for len(stack) > 0 {
		top := stack[len(stack)-1]

		if top.nextChild < len(top.node.Children) {
			child := top.node.Children[top.nextChild]
			top.nextChild++
			stack = append(stack, &frame{node: child})
			continue
		}

		// All children of top are finished; finalize top itself.
		stack = stack[:len(stack)-1]

		node := top.node
		childHashes := make([]string, len(top.childIndices))
		for i, idx := range top.childIndices {
			childHashes[i] = shapeOf[idx]
		}

		slice := sourceSlice(source, node.StartByte, node.EndByte)
		shape := identity.ShapeHash(node.Type, slice, childHashes)
		span := identity.SpanKey(fileUUID, node.Type, node.StartByte, node.EndByte)

		selfIdx := len(tree.Nodes)
		tree.Nodes = append(tree.Nodes, api.CollectedNode{
			Index:     selfIdx,
			SpanKey:   span,
			ShapeHash: shape,
			Type:      node.Type,
			StartByte: node.StartByte,
			EndByte:   node.EndByte,
			StartRow:  node.StartRow,
			StartCol:  node.StartCol,
			EndRow:    node.EndRow,
			EndCol:    node.EndCol,
			FileUUID:  fileUUID,
		})
		tree.Occurrences = append(tree.Occurrences, api.CollectedOccurrence{
			NodeIndex: selfIdx,
			StartByte: node.StartByte,
			EndByte:   node.EndByte,
		})
		for order, childIdx := range top.childIndices {
			tree.Edges = append(tree.Edges, api.CollectedEdge{
				ParentIndex: selfIdx,
				ChildIndex:  childIdx,
				ChildOrder:  order,
			})
		}
		shapeOf = append(shapeOf, shape)

		if len(stack) > 0 {
			parent := stack[len(stack)-1]
			parent.childIndices = append(parent.childIndices, selfIdx)
		}
	}

	return tree
}

// sourceSlice returns source[start:end], clamped to the buffer's bounds so
// a parser reporting a byte range past EOF (which should not happen, but
// is not this package's job to validate) never panics.
func sourceSlice(source []byte, start, end uint32) []byte {
	n := uint32(len(source))
	if start > n {
		start = n
	}
	if end > n {
		end = n
	}
	if end < start {
		end = start
	}
	return source[start:end]
}
