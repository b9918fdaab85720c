// Package main is the kioku CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/kioku/internal/config"
	"github.com/hyperjump/kioku/internal/embedding"
	"github.com/hyperjump/kioku/internal/indexer"
	"github.com/hyperjump/kioku/internal/privacy"
	"github.com/hyperjump/kioku/internal/search"
	"github.com/hyperjump/kioku/internal/vector"
	"github.com/hyperjump/kioku/pkg/utils"
)

var version = "dev"

// globalOptions are the flags shared by every subcommand.
type globalOptions struct {
	configPath string
	debug      bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:           "kioku",
		Short:         "Privacy-aware retrieval for study materials",
		Long:          "kioku chunks, anonymizes and embeds study content, and answers hybrid semantic and keyword queries over it.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", config.DefaultPath(), "config file path")
	root.PersistentFlags().BoolVar(&opts.debug, "debug", false, "enable debug logging")

	root.AddCommand(
		newServerCmd(opts),
		newIndexCmd(opts),
		newSummaryCmd(opts),
		newSearchCmd(opts),
		newDeleteCmd(opts),
		newStatusCmd(opts),
		newWatchCmd(opts),
		newAnonymizeCmd(),
	)
	return root
}

// loadConfig loads the config at path. When path is the default and a config.yaml
// exists in the working directory, that file is used instead so a checkout runs
// with its own settings. It returns the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == config.DefaultPath() {
		if cwd, err := os.Getwd(); err == nil {
			local := filepath.Join(cwd, "config.yaml")
			if _, err := os.Stat(local); err == nil {
				path = local
			}
		}
	}
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// Components holds initialized services.
type Components struct {
	Config     *config.Config
	ConfigPath string
	Logger     *zap.Logger
	Anonymizer *privacy.Anonymizer
	Embedder   embedding.Embedder
	Store      *vector.Store
	Engine     *search.Engine
	Indexer    *indexer.Indexer
}

// Close releases the indexer pool, the embedder and the datastore.
func (c *Components) Close() {
	if c.Indexer != nil {
		c.Indexer.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Store != nil {
		if err := c.Store.Close(); err != nil {
			c.Logger.Warn("failed to close store", zap.Error(err))
		}
	}
	_ = c.Logger.Sync()
}

func initializeComponents(ctx context.Context, opts *globalOptions) (*Components, error) {
	cfg, configPath, err := loadConfig(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	debug := cfg.Debug || opts.debug
	logger, err := utils.NewLogger(debug)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	logger.Debug("config loaded", zap.String("config_path", configPath), zap.Bool("debug", debug))

	var embedder embedding.Embedder = embedding.New(embedding.ClientConfig{
		Provider:   cfg.Embedding.Provider,
		Endpoint:   cfg.Embedding.Endpoint,
		APIKey:     cfg.Embedding.APIKey,
		Deployment: cfg.Embedding.Deployment,
		APIVersion: cfg.Embedding.APIVersion,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Timeout:    time.Duration(cfg.Embedding.TimeoutSeconds) * time.Second,
	},
		embedding.WithLogger(logger),
		embedding.WithRateLimit(cfg.Embedding.RateLimit, cfg.Embedding.RateBurst),
	)
	embedder = embedding.NewCachedEmbedder(embedder, cfg.Embedding.CacheSize)
	if !embedder.IsConfigured() {
		logger.Warn("embedding provider is not configured; embedding calls will fail",
			zap.String("provider", cfg.Embedding.Provider))
	}

	backend, err := vector.Open(ctx, cfg.Store.DSN, cfg.Embedding.Dimensions, vector.NewCapabilityCache())
	if err != nil {
		_ = logger.Sync()
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	anonymizer := privacy.NewAnonymizer()
	store := vector.NewStore(backend, anonymizer, cfg.Embedding.Dimensions, vector.WithStoreLogger(logger))
	info := store.Info()
	logger.Info("vector store opened",
		zap.String("backend", info.Name),
		zap.Bool("native", info.Native),
		zap.String("index_kind", string(info.IndexKind)))

	privacyOpts := privacy.Options{
		ForceAnonymization: cfg.Privacy.ForceAnonymization,
		StoreContentHash:   cfg.Privacy.StoreContentHash,
	}
	gate := privacy.NewEmbedder(embedder, anonymizer, privacy.WithLogger(logger))
	idx, err := indexer.NewIndexer(store, gate,
		indexer.WithLogger(logger),
		indexer.WithWorkers(cfg.Indexing.Workers),
		indexer.WithPrivacyOptions(privacyOpts),
		indexer.WithChunkOptions(indexer.ChunkOptions{
			MaxChunkSize:      cfg.Chunking.MaxChunkSize,
			Overlap:           cfg.Chunking.Overlap,
			RespectParagraphs: cfg.Chunking.RespectParagraphsOrDefault(),
		}),
	)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	engine := search.NewEngine(store, gate, &cfg.Search,
		search.WithLogger(logger),
		search.WithPrivacyOptions(privacyOpts))

	return &Components{
		Config:     cfg,
		ConfigPath: configPath,
		Logger:     logger,
		Anonymizer: anonymizer,
		Embedder:   embedder,
		Store:      store,
		Engine:     engine,
		Indexer:    idx,
	}, nil
}
