package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/text-searcher/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/text-searcher/internal/loader"
	"github.com/Adithya-Monish-Kumar-K/text-searcher/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/text-searcher/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/text-searcher/pkg/logger"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	file       string
	unit       string
}

func newRootCmd() *cobra.Command {
	var g globalFlags
	root := &cobra.Command{
		Use:           "indexer",
		Short:         "Build the word index offline and query it",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&g.configPath, "config", "", "path to config file (defaults apply when empty)")
	root.PersistentFlags().StringVar(&g.file, "file", "", "index this file instead of the configured document")
	root.PersistentFlags().StringVar(&g.unit, "unit", "", "context unit override: slots or words")

	root.AddCommand(newSearchCmd(&g), newStatsCmd(&g))
	return root
}

func newSearchCmd(g *globalFlags) *cobra.Command {
	var (
		contextWords int
		matches      bool
	)
	cmd := &cobra.Command{
		Use:   "search WORD...",
		Short: "Print the context windows of each word",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, built, err := build(cmd, g)
			if err != nil {
				return err
			}
			k := cfg.Search.DefaultContextWords
			if cmd.Flags().Changed("context") {
				k = contextWords
			}
			exec := executor.New(built.Index, cfg.Search.MaxContextWords, nil)
			results := make([]*executor.SearchResult, 0, len(args))
			for _, word := range args {
				res, err := exec.Execute(cmd.Context(), word, k, matches)
				if err != nil {
					return fmt.Errorf("searching %q: %w", word, err)
				}
				results = append(results, res)
			}
			return writeJSON(cmd.OutOrStdout(), results)
		},
	}
	cmd.Flags().IntVar(&contextWords, "context", 0, "context width (default from config)")
	cmd.Flags().BoolVar(&matches, "matches", false, "include match positions")
	return cmd
}

func newStatsCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print token and vocabulary counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, built, err := build(cmd, g)
			if err != nil {
				return err
			}
			stats := built.Index.Stats()
			return writeJSON(cmd.OutOrStdout(), map[string]any{
				"source":         built.Source,
				"fingerprint":    built.Fingerprint,
				"size_bytes":     built.SizeBytes,
				"tokens":         stats.Tokens,
				"word_tokens":    stats.WordTokens,
				"distinct_words": stats.DistinctWords,
				"context_unit":   built.Index.ContextUnit().String(),
			})
		},
	}
}

// build loads config, applies flag overrides and indexes the document.
func build(cmd *cobra.Command, g *globalFlags) (*config.Config, *indexer.Result, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, nil, err
	}
	slog.SetDefault(logger.New(cmd.ErrOrStderr(), cfg.Logging.Level, "text"))

	if g.file != "" {
		cfg.Document = config.DocumentConfig{Source: config.SourceFile, Path: g.file}
	}
	if g.unit != "" {
		cfg.Search.ContextUnit = g.unit
	}
	if cfg.Document.Source != config.SourceFile {
		return nil, nil, fmt.Errorf("indexer only reads files; use --file or the searcher service for %q", cfg.Document.Source)
	}

	l, err := loader.New(cfg.Document, nil)
	if err != nil {
		return nil, nil, err
	}
	engine, err := indexer.NewEngine(l, cfg.Search, nil, nil)
	if err != nil {
		return nil, nil, err
	}
	built, err := engine.Build(cmd.Context())
	if err != nil {
		return nil, nil, err
	}
	return cfg, built, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
