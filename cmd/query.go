package cmd

import (
	"context"
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/agentic-research/astgraph/internal/query"
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Read-only projections over the graph",
}

var (
	queryLimit    int
	queryFilePath string
	queryNodeType string
	queryAfter    string
	queryBefore   string
)

func init() {
	statisticsCmd := &cobra.Command{
		Use:   "statistics",
		Short: "Vertex and edge counts",
		RunE:  runQuery(func(ctx context.Context, p *query.Projections) (any, error) { return p.Statistics(ctx) }),
	}

	filesCmd := &cobra.Command{
		Use:   "files",
		Short: "List ingested files (keyset paginated)",
		RunE: runQuery(func(ctx context.Context, p *query.Projections) (any, error) {
			return p.ListFiles(ctx, queryLimit, queryAfter, queryBefore)
		}),
	}
	filesCmd.Flags().StringVar(&queryAfter, "after", "", "Opaque cursor token from a previous page")
	filesCmd.Flags().StringVar(&queryBefore, "before", "", "Opaque cursor token paging backwards")

	nodeTypesCmd := &cobra.Command{
		Use:   "node-types",
		Short: "Distinct AstNode types, optionally scoped to one file",
		RunE: runQuery(func(ctx context.Context, p *query.Projections) (any, error) {
			return p.NodeTypes(ctx, queryFilePath, queryLimit)
		}),
	}
	nodeTypesCmd.Flags().StringVar(&queryFilePath, "file", "", "Restrict to nodes occurring in this file path")

	nodesByTypeCmd := &cobra.Command{
		Use:   "nodes-by-type [type]",
		Short: "Nodes of a given type (keyset paginated)",
		Args:  cobra.ExactArgs(1),
	}
	nodesByTypeCmd.Flags().StringVar(&queryFilePath, "file", "", "Restrict to nodes occurring in this file path")
	nodesByTypeCmd.Flags().StringVar(&queryAfter, "after", "", "Opaque cursor token from a previous page")
	nodesByTypeCmd.RunE = func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()
		page, err := query.New(store).NodesByType(ctx, args[0], queryFilePath, queryLimit, queryAfter)
		if err != nil {
			return err
		}
		return printJSON(page)
	}

	childrenCmd := &cobra.Command{
		Use:   "children [span_key]",
		Short: "Ordered PARENT_OF children of a span",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			store, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()
			out, err := query.New(store).Children(ctx, args[0], queryLimit)
			if err != nil {
				return err
			}
			return printJSON(out)
		},
	}

	languageDistCmd := &cobra.Command{
		Use:   "language-distribution",
		Short: "FileVersion count by language",
		RunE: runQuery(func(ctx context.Context, p *query.Projections) (any, error) {
			return p.LanguageDistribution(ctx)
		}),
	}

	nodeTypeCountsCmd := &cobra.Command{
		Use:   "node-type-counts",
		Short: "AstNode count by type",
		RunE: runQuery(func(ctx context.Context, p *query.Projections) (any, error) {
			return p.NodeTypeCounts(ctx, queryLimit)
		}),
	}

	fileNodeCountsCmd := &cobra.Command{
		Use:   "file-node-counts",
		Short: "AstNode count by occurring file",
		RunE: runQuery(func(ctx context.Context, p *query.Projections) (any, error) {
			return p.FileNodeCounts(ctx, queryLimit)
		}),
	}

	sharedShapesCmd := &cobra.Command{
		Use:   "shared-shapes",
		Short: "shape_hash values shared by more than one AstNode",
		RunE: runQuery(func(ctx context.Context, p *query.Projections) (any, error) {
			return p.SharedShapes(ctx, queryLimit)
		}),
	}

	fileRootsCmd := &cobra.Command{
		Use:   "file-roots",
		Short: "AstNodes in a file with no PARENT_OF parent",
		RunE: runQuery(func(ctx context.Context, p *query.Projections) (any, error) {
			return p.FileRootNodes(ctx, queryFilePath, queryLimit, queryNodeType)
		}),
	}
	fileRootsCmd.Flags().StringVar(&queryFilePath, "file", "", "File path")
	fileRootsCmd.Flags().StringVar(&queryNodeType, "type", "", "Restrict to this node type")
	_ = fileRootsCmd.MarkFlagRequired("file")

	nodeDetailCmd := &cobra.Command{
		Use:   "node-detail [span_key]",
		Short: "Full property row for one span_key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			store, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()
			out, err := query.New(store).NodeDetail(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(out)
		},
	}

	var cypherColumns int
	cypherCmd := &cobra.Command{
		Use:   "cypher [query]",
		Short: "Run a free-form read-only Cypher query through the write-keyword guard",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			store, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()
			rows, err := query.New(store).RunQuery(ctx, args[0], cypherColumns)
			if err != nil {
				return err
			}
			return printJSON(rows)
		},
	}
	cypherCmd.Flags().IntVar(&cypherColumns, "columns", 1, "Expected column count of the RETURN clause")
	queryCmd.AddCommand(cypherCmd)

	for _, c := range []*cobra.Command{
		statisticsCmd, filesCmd, nodeTypesCmd, nodesByTypeCmd, childrenCmd,
		languageDistCmd, nodeTypeCountsCmd, fileNodeCountsCmd, sharedShapesCmd,
		fileRootsCmd, nodeDetailCmd,
	} {
		c.Flags().IntVar(&queryLimit, "limit", 100, "Maximum rows to return")
		queryCmd.AddCommand(c)
	}
}

// runQuery adapts a Projections-calling closure into a cobra RunE, the
// shared plumbing every projection subcommand uses except those taking a
// positional argument (nodes-by-type, children, node-detail, cypher).
func runQuery(fn func(ctx context.Context, p *query.Projections) (any, error)) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		out, err := fn(ctx, query.New(store))
		if err != nil {
			return err
		}
		return printJSON(out)
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
