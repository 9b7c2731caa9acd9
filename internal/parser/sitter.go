package parser

import (
	"context"
	"fmt"
	"os"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/agentic-research/astgraph/api"
)

// Parse runs the tree-sitter frontend for canonicalLanguage over source
// and returns the uniform ParsedNode tree. Parsing is total: the ERROR
// nodes tree-sitter inserts for malformed input are returned like any
// other node, so the Orchestrator never sees a parse failure.
func Parse(ctx context.Context, canonicalLanguage string, source []byte) (*api.ParsedNode, error) {
	lang, err := grammar(canonicalLanguage)
	if err != nil {
		return nil, err
	}

	p := sitter.NewParser()
	p.SetLanguage(lang)

	tree, err := p.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("tree-sitter parse: %w", err)
	}
	return convert(tree.RootNode()), nil
}

// convert walks a *sitter.Node tree into the package-neutral ParsedNode
// shape the collector consumes, with an explicit stack for the same
// deep-tree reason the collector walks iteratively. Only named children
// are kept, so punctuation and other anonymous grammar tokens never
// become graph vertices.
func convert(root *sitter.Node) *api.ParsedNode {
	if root == nil {
		return nil
	}

	type frame struct {
		src *sitter.Node
		dst *api.ParsedNode
	}

	out := newParsedNode(root)
	stack := []frame{{src: root, dst: out}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		count := int(f.src.NamedChildCount())
		if count == 0 {
			continue
		}
		f.dst.Children = make([]*api.ParsedNode, count)
		for i := 0; i < count; i++ {
			child := f.src.NamedChild(i)
			dst := newParsedNode(child)
			f.dst.Children[i] = dst
			stack = append(stack, frame{src: child, dst: dst})
		}
	}
	return out
}

func newParsedNode(n *sitter.Node) *api.ParsedNode {
	return &api.ParsedNode{
		Type:      n.Type(),
		StartByte: n.StartByte(),
		EndByte:   n.EndByte(),
		StartRow:  n.StartPoint().Row,
		StartCol:  n.StartPoint().Column,
		EndRow:    n.EndPoint().Row,
		EndCol:    n.EndPoint().Column,
	}
}

// WriteTempSource materializes inline code as a temp file with the
// canonical language's conventional extension, so that downstream path-
// based tooling (extension detection, git lookups) has something to look
// at. Callers must remove the returned path, success or failure; the
// Orchestrator does so in a deferred cleanup.
func WriteTempSource(canonicalLanguage string, code []byte) (string, error) {
	ext := DefaultExtension(canonicalLanguage)
	if ext == "" {
		ext = ".txt"
	}
	f, err := os.CreateTemp("", "astgraph-*"+ext)
	if err != nil {
		return "", fmt.Errorf("create temp source file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if _, err := f.Write(code); err != nil {
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("write temp source file: %w", err)
	}
	return f.Name(), nil
}
