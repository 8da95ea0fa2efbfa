// Command repograph builds code graphs from repository checkouts.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/repograph/repograph/internal/batch"
	"github.com/repograph/repograph/internal/config"
	"github.com/repograph/repograph/internal/graph"
	"github.com/repograph/repograph/internal/graph/jsonsink"
	"github.com/repograph/repograph/internal/graph/sqlsink"
	"github.com/repograph/repograph/internal/lang"
	"github.com/repograph/repograph/internal/parser"
	"github.com/repograph/repograph/internal/pipeline"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var verbose bool
	root := &cobra.Command{
		Use:           "repograph",
		Short:         "Build a code graph from a repository checkout",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(*cobra.Command, []string) {
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
				Level: level,
			})))
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	root.AddCommand(newIndexCmd(), newBatchCmd(), newASTCmd())
	return root
}

func newIndexCmd() *cobra.Command {
	var (
		out     string
		format  string
		workers int
	)
	cmd := &cobra.Command{
		Use:   "index <repo-path>",
		Short: "Analyze one repository and write its graph",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo := args[0]
			cfg := config.Load(repo)
			if workers > 0 {
				cfg.Analysis.Workers = workers
			}

			project := pipeline.ProjectNameFromPath(repo)
			if out == "" {
				ext := ".json"
				if format == "sqlite" {
					ext = ".db"
				}
				out = project + ext
			}

			sink, err := openSink(format, out, project)
			if err != nil {
				return err
			}
			defer sink.Close()

			if err := pipeline.New(repo, sink, cfg).Run(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "graph written to %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output path (default: <project>.json)")
	cmd.Flags().StringVarP(&format, "format", "f", "json", "output format: json or sqlite")
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "parallel parse workers (default: NumCPU)")
	return cmd
}

func openSink(format, out, project string) (graph.Sink, error) {
	switch format {
	case "json":
		return jsonsink.New(out), nil
	case "sqlite":
		return sqlsink.Open(out, project)
	default:
		return nil, fmt.Errorf("unknown format %q (want json or sqlite)", format)
	}
}

func newBatchCmd() *cobra.Command {
	var (
		outputDir  string
		workers    int
		maxRetries int
	)
	cmd := &cobra.Command{
		Use:   "batch <repo-list-file>",
		Short: "Analyze many repositories, one JSON graph each",
		Long: "Reads a file with one repository path per line and analyzes them in\n" +
			"parallel. Progress is persisted next to the output, so an interrupted\n" +
			"run picks up where it left off.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repos, err := batch.ReadRepoList(args[0])
			if err != nil {
				return err
			}
			r := batch.NewRunner(outputDir)
			if workers > 0 {
				r.Workers = workers
			}
			if maxRetries > 0 {
				r.MaxRetries = maxRetries
			}
			results, err := r.Run(cmd.Context(), repos)
			if err != nil {
				return err
			}
			failed := 0
			for _, res := range results {
				if res.Err != "" {
					failed++
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "processed %d repositories, %d failed\n", len(results), failed)
			if failed > 0 {
				return fmt.Errorf("%d repositories failed", failed)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&outputDir, "output-dir", "o", "graphs", "directory for graph files")
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "repositories processed in parallel")
	cmd.Flags().IntVar(&maxRetries, "max-retries", 0, "attempts before a repository is given up")
	return cmd
}

func newASTCmd() *cobra.Command {
	return &cobra.Command{
		Use:    "ast <file>",
		Short:  "Dump a source file's syntax tree",
		Hidden: true,
		Args:   cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			language, ok := lang.LanguageForExtension(filepath.Ext(path))
			if !ok {
				return fmt.Errorf("unsupported file type: %s", path)
			}
			source, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			tree, err := parser.Parse(language, source)
			if err != nil {
				return err
			}
			defer tree.Close()
			printAST(cmd.OutOrStdout(), tree.RootNode(), source, 0)
			return nil
		},
	}
}

func printAST(w io.Writer, node *tree_sitter.Node, source []byte, indent int) {
	if node == nil {
		return
	}
	text := string(source[node.StartByte():node.EndByte()])
	if len(text) > 60 {
		text = text[:60] + "..."
	}
	text = strings.ReplaceAll(text, "\n", "\\n")
	fmt.Fprintf(w, "%s%s %q\n", strings.Repeat("  ", indent), node.Kind(), text)
	for i := uint(0); i < node.ChildCount(); i++ {
		printAST(w, node.Child(i), source, indent+1)
	}
}
