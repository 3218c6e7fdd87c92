package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/RichardoC/portfolio-chat/internal/config"
	"github.com/RichardoC/portfolio-chat/internal/db"
)

const defaultChunkSize = 1500

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	var configFile string

	cmd := &cobra.Command{
		Use:          "portfolio-ingest [files...]",
		Short:        "Load knowledge documents into the local vector store",
		Args:         cobra.MinimumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v, configFile)
			if err != nil {
				return err
			}
			logger, err := cfg.NewLogger()
			if err != nil {
				return err
			}
			defer logger.Sync()

			replace, _ := cmd.Flags().GetBool("replace")
			size, _ := cmd.Flags().GetInt("chunk-size")
			return ingest(cmd.Context(), cfg, logger, args, replace, size)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&configFile, "config", "", "path to a config file")
	flags.String("store", "", "vector store id (defaults to vector_store_id)")
	flags.String("db-path", "", "sqlite database path")
	flags.Bool("replace", false, "drop the store's documents before loading")
	flags.Int("chunk-size", defaultChunkSize, "maximum characters per stored chunk")
	_ = v.BindPFlag("vector_store_id", flags.Lookup("store"))
	_ = v.BindPFlag("db_path", flags.Lookup("db-path"))
	return cmd
}

func ingest(ctx context.Context, cfg *config.Config, logger *zap.Logger, paths []string, replace bool, size int) (err error) {
	if cfg.VectorStoreID == "" {
		return fmt.Errorf("%w: no vector store id given", config.ErrMisconfigured)
	}

	database, err := db.New(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, database.Close()) }()

	if replace {
		n, err := database.DeleteStore(ctx, cfg.VectorStoreID)
		if err != nil {
			return fmt.Errorf("failed to clear store: %w", err)
		}
		logger.Info("cleared store", zap.String("store_id", cfg.VectorStoreID), zap.Int64("documents", n))
	}

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		chunks := chunk(string(data), size)
		for _, c := range chunks {
			doc := &db.Document{StoreID: cfg.VectorStoreID, Source: filepath.Base(path), Content: c}
			if err := database.SaveDocument(ctx, doc); err != nil {
				return fmt.Errorf("failed to save %s: %w", path, err)
			}
		}
		logger.Info("ingested file", zap.String("path", path), zap.Int("chunks", len(chunks)))
	}

	total, err := database.CountDocuments(ctx, cfg.VectorStoreID)
	if err != nil {
		return err
	}
	logger.Info("store ready", zap.String("store_id", cfg.VectorStoreID), zap.Int("documents", total))
	return nil
}

// chunk groups paragraphs into pieces of at most size bytes. A paragraph
// longer than size is split on line boundaries, then hard-cut on rune
// boundaries; a single rune wider than size becomes its own chunk.
func chunk(text string, size int) []string {
	if size <= 0 {
		size = defaultChunkSize
	}
	var (
		chunks []string
		cur    strings.Builder
	)
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			chunks = append(chunks, s)
		}
		cur.Reset()
	}
	add := func(piece, sep string) {
		if cur.Len() > 0 && cur.Len()+len(sep)+len(piece) > size {
			flush()
		}
		if cur.Len() > 0 {
			cur.WriteString(sep)
		}
		cur.WriteString(piece)
	}

	text = strings.ReplaceAll(text, "\r\n", "\n")
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if len(para) <= size {
			add(para, "\n\n")
			continue
		}
		flush()
		for _, line := range strings.Split(para, "\n") {
			for len(line) > size {
				flush()
				cut := size
				for cut > 0 && !utf8.RuneStart(line[cut]) {
					cut--
				}
				if cut == 0 {
					// size is narrower than the first rune.
					_, cut = utf8.DecodeRuneInString(line)
				}
				chunks = append(chunks, line[:cut])
				line = line[cut:]
			}
			add(line, "\n")
		}
		flush()
	}
	flush()
	return chunks
}
