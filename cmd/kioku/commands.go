package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/kioku/internal/cli"
	"github.com/hyperjump/kioku/internal/extract"
	"github.com/hyperjump/kioku/internal/models"
	"github.com/hyperjump/kioku/internal/privacy"
	"github.com/hyperjump/kioku/internal/ranking"
	"github.com/hyperjump/kioku/internal/server"
	"github.com/hyperjump/kioku/internal/watcher"
)

const (
	searchModeHybrid    = "hybrid"
	searchModeMaterials = "materials"
	searchModeConcepts  = "concepts"
)

// buildSearchQuery joins all positional args with spaces so multi-word queries
// work the same with or without shell quoting.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// readText returns the joined args, or stdin when there are none or the only arg is "-".
func readText(in io.Reader, args []string) (string, error) {
	if len(args) > 0 && !(len(args) == 1 && args[0] == "-") {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return string(data), nil
}

// parseOptionalSourceType parses s, allowing an empty value.
func parseOptionalSourceType(s string) (models.SourceType, error) {
	if s == "" {
		return "", nil
	}
	return models.ParseSourceType(s)
}

func newWatcher(c *Components, ownerID string, dirs []string) (*watcher.Watcher, error) {
	return watcher.New(c.Indexer, watcher.Options{
		Directories: dirs,
		Extensions:  c.Config.Watch.Extensions,
		Recursive:   c.Config.Watch.RecursiveOrDefault(),
		OwnerID:     ownerID,
	}, watcher.WithLogger(c.Logger))
}

func newServerCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "server",
		Short: "Start the HTTP API",
		Long:  "Start the HTTP API. When watch.owner_id is configured, watched directories are indexed and kept in sync.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			c, err := initializeComponents(ctx, opts)
			if err != nil {
				return err
			}
			defer c.Close()

			var srvOpts []server.Option
			if owner := c.Config.Watch.OwnerID; owner != "" {
				w, err := newWatcher(c, owner, c.Config.Watch.Directories)
				if err != nil {
					return err
				}
				if err := w.Start(ctx); err != nil {
					return err
				}
				defer w.Stop()
				go func() {
					n := w.Sync()
					c.Logger.Info("initial sync complete", zap.Int("files", n))
				}()
				srvOpts = append(srvOpts, server.WithWatcher(w, c.ConfigPath))
			} else if len(c.Config.Watch.Directories) > 0 {
				c.Logger.Warn("watch directories configured without watch.owner_id; watching disabled")
			}

			srv := server.NewServer(c.Engine, c.Indexer, c.Anonymizer, c.Config, c.Logger, srvOpts...)
			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
			}
			c.Logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Stop(shutdownCtx)
		},
	}
}

func newIndexCmd(opts *globalOptions) *cobra.Command {
	var (
		ownerID    string
		sourceID   string
		sourceType string
		subject    string
		tags       []string
		format     string
	)
	cmd := &cobra.Command{
		Use:   "index <file|directory|->",
		Short: "Index a file, a directory or text from stdin",
		Long: `Index content for an owner.

A file is extracted and indexed as a material whose source id is derived from its path,
unless --source-id is given. A directory indexes every supported file beneath it.
"-" reads text from stdin and requires --source-id.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outFormat, err := cli.ParseOutputFormat(format)
			if err != nil {
				return err
			}
			st, err := models.ParseSourceType(sourceType)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			c, err := initializeComponents(ctx, opts)
			if err != nil {
				return err
			}
			defer c.Close()

			target := args[0]
			input := models.MaterialInput{
				OwnerID:    ownerID,
				SourceType: st,
				SourceID:   sourceID,
				Subject:    subject,
				Tags:       tags,
			}
			var res *models.IndexResult
			switch {
			case target == "-":
				if sourceID == "" {
					return models.NewValidationError("--source-id is required when reading stdin")
				}
				if input.Content, err = readText(cmd.InOrStdin(), nil); err != nil {
					return err
				}
				res, err = c.Indexer.IndexMaterial(ctx, input)
			default:
				info, statErr := os.Stat(target)
				if statErr != nil {
					return fmt.Errorf("stat %s: %w", target, statErr)
				}
				if info.IsDir() {
					n, err := c.Indexer.IndexDirectory(ctx, ownerID, target, c.Config.Watch.Extensions)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d file(s) from %s\n", n, target)
					return nil
				}
				if sourceID == "" {
					res, err = c.Indexer.IndexFile(ctx, ownerID, target)
					break
				}
				if input.Content, err = extract.NewExtractor().Extract(target); err != nil {
					return err
				}
				res, err = c.Indexer.IndexMaterial(ctx, input)
			}
			if err != nil {
				return err
			}
			return cli.WriteIndexResult(cmd.OutOrStdout(), res, outFormat)
		},
	}
	cmd.Flags().StringVar(&ownerID, "owner", "", "owner id")
	cmd.Flags().StringVar(&sourceID, "source-id", "", "source id (derived from the path for files when empty)")
	cmd.Flags().StringVar(&sourceType, "type", string(models.SourceMaterial), "source type: material, flashcard, studykit, message or conversation_summary")
	cmd.Flags().StringVar(&subject, "subject", "", "subject label")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "tag to attach (repeatable)")
	cmd.Flags().StringVar(&format, "format", "text", "output format: text or json")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

func newSummaryCmd(opts *globalOptions) *cobra.Command {
	var (
		ownerID   string
		maestroID string
		topics    []string
	)
	cmd := &cobra.Command{
		Use:   "summary <conversation-id> [text|-]",
		Short: "Index or replace a conversation summary",
		Long:  "Index the summary of a conversation, replacing any earlier one. Without text, the summary is read from stdin.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readText(cmd.InOrStdin(), args[1:])
			if err != nil {
				return err
			}
			c, err := initializeComponents(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer c.Close()

			var meta *models.SummaryMetadata
			if maestroID != "" || len(topics) > 0 {
				meta = &models.SummaryMetadata{MaestroID: maestroID, Topics: topics}
			}
			id, err := c.Indexer.IndexConversationSummary(cmd.Context(), args[0], ownerID, text, meta)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Summary indexed: %s\n", id)
			return nil
		},
	}
	cmd.Flags().StringVar(&ownerID, "owner", "", "owner id")
	cmd.Flags().StringVar(&maestroID, "maestro", "", "tutor id recorded with the summary")
	cmd.Flags().StringSliceVar(&topics, "topic", nil, "topic discussed (repeatable)")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

type searchFlags struct {
	ownerID        string
	mode           string
	limit          int
	sourceType     string
	subject        string
	semanticWeight float64
	minScore       float64
	minSimilarity  float64
	exclude        []string
	rerank         bool
	topK           int
	format         string
}

// rerankOptions returns the reranker options for a search, or nil when reranking is off.
func (f *searchFlags) rerankOptions(cfg ranking.Options, enabled bool) *ranking.Options {
	if !f.rerank && !enabled {
		return nil
	}
	if f.topK > 0 {
		cfg.TopK = f.topK
	}
	return &cfg
}

// changedFloat returns v when the flag was set on the command line and nil otherwise,
// so unset flags fall back to the configured defaults while an explicit 0 is kept.
func changedFloat(cmd *cobra.Command, name string, v float64) *float64 {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	return models.Float64(v)
}

func newSearchCmd(opts *globalOptions) *cobra.Command {
	f := &searchFlags{}
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search indexed content",
		Long: `Search indexed content. The query is all remaining arguments joined by spaces.

Modes:
  hybrid     semantic and keyword retrieval fused by --semantic-weight (default)
  materials  semantic similarity over materials only
  concepts   semantic similarity over flashcards and study kits`,
		Example: `  kioku search --owner u1 newton laws of motion
  kioku search --owner u1 --rerank --top-k 5 "orbital mechanics"
  kioku search --owner u1 --mode concepts --format json photosynthesis`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := buildSearchQuery(args)
			if query == "" {
				return models.NewValidationError("query cannot be empty")
			}
			outFormat, err := cli.ParseOutputFormat(f.format)
			if err != nil {
				return err
			}
			st, err := parseOptionalSourceType(f.sourceType)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			c, err := initializeComponents(ctx, opts)
			if err != nil {
				return err
			}
			defer c.Close()

			similar := models.SimilarQuery{
				OwnerID:          f.ownerID,
				Query:            query,
				Limit:            f.limit,
				MinSimilarity:    changedFloat(cmd, "min-similarity", f.minSimilarity),
				Subject:          f.subject,
				ExcludeSourceIDs: f.exclude,
			}
			out := cmd.OutOrStdout()
			switch f.mode {
			case searchModeHybrid:
				resp, err := c.Engine.Search(ctx, models.HybridQuery{
					OwnerID:          f.ownerID,
					Query:            query,
					Limit:            f.limit,
					MinScore:         changedFloat(cmd, "min-score", f.minScore),
					SemanticWeight:   changedFloat(cmd, "semantic-weight", f.semanticWeight),
					SourceType:       st,
					Subject:          f.subject,
					ExcludeSourceIDs: f.exclude,
				}, f.rerankOptions(c.Config.Rerank.Options(), c.Config.Rerank.Enabled))
				if err != nil {
					return err
				}
				return cli.WriteSearchResults(out, resp, outFormat)
			case searchModeMaterials:
				results, err := c.Engine.FindSimilarMaterials(ctx, similar)
				if err != nil {
					return err
				}
				return cli.WriteSimilarResults(out, results, outFormat)
			case searchModeConcepts:
				results, err := c.Engine.FindRelatedConcepts(ctx, models.ConceptQuery{SimilarQuery: similar})
				if err != nil {
					return err
				}
				return cli.WriteSimilarResults(out, results, outFormat)
			default:
				return fmt.Errorf("unknown search mode %q; use hybrid, materials or concepts", f.mode)
			}
		},
	}
	cmd.Flags().StringVar(&f.ownerID, "owner", "", "owner id")
	cmd.Flags().StringVar(&f.mode, "mode", searchModeHybrid, "search mode: hybrid, materials or concepts")
	cmd.Flags().IntVar(&f.limit, "limit", 0, "maximum results (config default when 0)")
	cmd.Flags().StringVar(&f.sourceType, "type", "", "restrict hybrid search to a source type")
	cmd.Flags().StringVar(&f.subject, "subject", "", "restrict to a subject")
	cmd.Flags().Float64Var(&f.semanticWeight, "semantic-weight", 0, "weight of the semantic score in [0,1], 0 for keyword only (config default when unset)")
	cmd.Flags().Float64Var(&f.minScore, "min-score", 0, "minimum fused score for hybrid results (config default when unset)")
	cmd.Flags().Float64Var(&f.minSimilarity, "min-similarity", 0, "minimum cosine similarity for materials and concepts (config default when unset)")
	cmd.Flags().StringSliceVar(&f.exclude, "exclude", nil, "source id to leave out (repeatable)")
	cmd.Flags().BoolVar(&f.rerank, "rerank", false, "rerank hybrid results")
	cmd.Flags().IntVar(&f.topK, "top-k", 0, "keep only the best k reranked results")
	cmd.Flags().StringVar(&f.format, "format", "text", "output format: text or json")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

func newDeleteCmd(opts *globalOptions) *cobra.Command {
	var ownerID, sourceType, sourceID string
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete indexed records for an owner, optionally narrowed by type and source id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := parseOptionalSourceType(sourceType)
			if err != nil {
				return err
			}
			c, err := initializeComponents(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer c.Close()
			n, err := c.Indexer.DeleteSource(cmd.Context(), models.Scope{OwnerID: ownerID, SourceType: st, SourceID: sourceID})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d record(s)\n", n)
			return nil
		},
	}
	cmd.Flags().StringVar(&ownerID, "owner", "", "owner id")
	cmd.Flags().StringVar(&sourceType, "type", "", "source type")
	cmd.Flags().StringVar(&sourceID, "source-id", "", "source id")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

// statusReport is what the status command prints.
type statusReport struct {
	Records    int    `json:"records"`
	SizeBytes  int64  `json:"size_bytes"`
	Backend    string `json:"backend"`
	Native     bool   `json:"native"`
	IndexKind  string `json:"index_kind"`
	Dimensions int    `json:"embedding_dimensions"`
	Provider   string `json:"embedding_provider"`
	Model      string `json:"embedding_model"`
	Configured bool   `json:"embedding_configured"`
}

func (r statusReport) writeText(w io.Writer) {
	fmt.Fprintf(w, "records:              %d\n", r.Records)
	fmt.Fprintf(w, "size_bytes:           %d\n", r.SizeBytes)
	fmt.Fprintf(w, "backend:              %s (native: %t, index: %s)\n", r.Backend, r.Native, r.IndexKind)
	fmt.Fprintf(w, "embedding_dimensions: %d\n", r.Dimensions)
	fmt.Fprintf(w, "embedding_provider:   %s\n", r.Provider)
	fmt.Fprintf(w, "embedding_model:      %s\n", r.Model)
	fmt.Fprintf(w, "embedding_configured: %t\n", r.Configured)
}

func newStatusCmd(opts *globalOptions) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show store and embedding status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			outFormat, err := cli.ParseOutputFormat(format)
			if err != nil {
				return err
			}
			c, err := initializeComponents(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer c.Close()
			count, err := c.Store.Count(cmd.Context())
			if err != nil {
				return err
			}
			info := c.Store.Info()
			report := statusReport{
				Records:    count,
				SizeBytes:  c.Store.SizeBytes(),
				Backend:    info.Name,
				Native:     info.Native,
				IndexKind:  string(info.IndexKind),
				Dimensions: c.Store.Dimensions(),
				Provider:   c.Config.Embedding.Provider,
				Model:      c.Embedder.Model(),
				Configured: c.Embedder.IsConfigured(),
			}
			if outFormat == cli.OutputJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			report.writeText(cmd.OutOrStdout())
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "text", "output format: text or json")
	return cmd
}

func newWatchCmd(opts *globalOptions) *cobra.Command {
	var (
		ownerID      string
		syncExisting bool
	)
	cmd := &cobra.Command{
		Use:   "watch <directory>...",
		Short: "Index directories and keep them indexed until interrupted",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			c, err := initializeComponents(ctx, opts)
			if err != nil {
				return err
			}
			defer c.Close()
			if ownerID == "" {
				ownerID = c.Config.Watch.OwnerID
			}
			w, err := newWatcher(c, ownerID, args)
			if err != nil {
				return err
			}
			if err := w.Start(ctx); err != nil {
				return err
			}
			defer w.Stop()
			if syncExisting {
				n := w.Sync()
				fmt.Fprintf(cmd.OutOrStdout(), "Synced %d file(s)\n", n)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Watching %s (Ctrl+C to stop)\n", strings.Join(w.Directories(), ", "))
			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().StringVar(&ownerID, "owner", "", "owner id (defaults to watch.owner_id)")
	cmd.Flags().BoolVar(&syncExisting, "sync", true, "index files already present before watching")
	return cmd
}

func newAnonymizeCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "anonymize [text|-]",
		Short: "Replace personal data in text with placeholders",
		Long:  "Replace personal data such as emails, phone numbers and identity numbers with placeholders. Without text, reads stdin.",
		RunE: func(cmd *cobra.Command, args []string) error {
			outFormat, err := cli.ParseOutputFormat(format)
			if err != nil {
				return err
			}
			text, err := readText(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			res := privacy.NewAnonymizer().Anonymize(text)
			if outFormat == cli.OutputJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			fmt.Fprintln(cmd.OutOrStdout(), strings.TrimRight(res.Content, "\n"))
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "text", "output format: text or json")
	return cmd
}
