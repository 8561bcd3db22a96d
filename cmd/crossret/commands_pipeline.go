package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/crossret/internal/dataset"
	dbRedis "github.com/kailas-cloud/crossret/internal/db/redis"
	"github.com/kailas-cloud/crossret/internal/domain/split"
	"github.com/kailas-cloud/crossret/internal/usecase/encode"
	indexuc "github.com/kailas-cloud/crossret/internal/usecase/index"
	"github.com/kailas-cloud/crossret/internal/usecase/search"
)

// =============================================================================
// Encode
// =============================================================================

func buildEncodeCmd(a *app) *cobra.Command {
	var (
		typ       string
		sp        string
		shardID   int
		shardNum  int
		encoder   string
		batchSize int
		workers   int
		dtype     string
		prompt    string
		output    string
	)
	cmd := &cobra.Command{
		Use:   "encode",
		Short: "Embed one shard of the text or image corpus",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			t, err := encode.ParseType(typ)
			if err != nil {
				return err
			}
			var s split.Split
			if sp != "" {
				if s, err = split.Parse(sp); err != nil {
					return err
				}
			}

			repo, idColumn := a.cfg.Dataset.Inputs, dataset.TextIDColumn
			if repo == "" {
				repo = a.cfg.Dataset.Texts
			}
			if t == encode.TypeImage {
				repo, idColumn = a.cfg.Dataset.Images, dataset.ImageIDColumn
			}
			atomic, err := a.openAtomic(ctx, repo, idColumn, s != "")
			if err != nil {
				return err
			}

			var store *dbRedis.Store
			if a.cfg.Embedding.Cache {
				if store, err = a.openRedis(ctx); err != nil {
					return err
				}
				defer store.Close()
			}

			ec := a.cfg.Embedding
			if cmd.Flags().Changed("batch-size") {
				ec.BatchSize = batchSize
			}
			if cmd.Flags().Changed("workers") {
				ec.Workers = workers
			}
			if cmd.Flags().Changed("dtype") {
				ec.DType = dtype
			}
			if cmd.Flags().Changed("prompt") {
				ec.Prompt = prompt
			}
			if output == "" {
				output = filepath.Join(a.cfg.Dataset.OutputDir, "embeddings")
			}

			svc := encode.New(encode.FromAtomic(atomic), a.embedder(store, encoder), encode.Config{
				OutputDir: output,
				BatchSize: ec.BatchSize,
				Workers:   ec.Workers,
				DType:     ec.DType,
				Prompt:    ec.Prompt,
				Progress:  a.progress(),
			}, a.logger)

			res, err := svc.Encode(ctx, encode.Request{Type: t, Split: s, ShardID: shardID, ShardNum: shardNum})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.MatrixPath)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&typ, "type", "text", "Corpus to encode: text or image")
	f.StringVar(&sp, "split", "", "Restrict to a split (default: every row)")
	f.IntVar(&shardID, "shard-id", 0, "Shard index")
	f.IntVar(&shardNum, "shard-num", 1, "Number of shards")
	f.StringVar(&encoder, "encoder", "", "Embedding model (default: embedding.model)")
	f.IntVar(&batchSize, "batch-size", 0, "Inputs per embedding request")
	f.IntVar(&workers, "workers", 0, "Concurrent embedding requests")
	f.StringVar(&dtype, "dtype", "", "Encoder precision: fp32, fp16, bf16")
	f.StringVar(&prompt, "prompt", "", "Text prepended to every text input")
	f.StringVar(&output, "output", "", "Embedding root (default: <output_dir>/embeddings)")
	return cmd
}

// =============================================================================
// Index
// =============================================================================

func buildIndexCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Build BM25 and dense indexes",
	}
	cmd.AddCommand(buildIndexLexicalCmd(a), buildIndexDenseCmd(a))
	return cmd
}

func (a *app) indexConfig(output string) indexuc.Config {
	return indexuc.Config{
		OutputDir:   a.outputDir(output),
		BatchSize:   a.cfg.Index.BatchSize,
		HNSWM:       a.cfg.Index.HNSWM,
		EFConstruct: a.cfg.Index.HNSWEFConstruct,
		Progress:    a.progress(),
	}
}

func buildIndexLexicalCmd(a *app) *cobra.Command {
	var (
		setting string
		sp      string
		backend string
		output  string
	)
	cmd := &cobra.Command{
		Use:   "lexical",
		Short: "Index the text and image collections of a setting",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, s, err := parseSetting(setting, sp)
			if err != nil {
				return err
			}
			lex, release, err := a.lexicalIndex(cmd.Context(), backend)
			if err != nil {
				return err
			}
			defer release()

			handles, err := indexuc.New(lex, nil, a.indexConfig(output), a.logger).BuildLexical(cmd.Context(), st, s)
			if err != nil {
				return err
			}
			for _, h := range handles {
				fmt.Fprintln(cmd.OutOrStdout(), h.Dir)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&setting, "setting", "small", "Index setting: small, base, large")
	f.StringVar(&sp, "split", "validation", "Split of the small setting")
	f.StringVar(&backend, "backend", "", "Lexical backend: elasticsearch or redis (default: index.lexical_backend)")
	f.StringVar(&output, "output", "", "Output root (default: dataset.output_dir)")
	return cmd
}

func buildIndexDenseCmd(a *app) *cobra.Command {
	var (
		embeddings string
		index      string
		typ        string
	)
	cmd := &cobra.Command{
		Use:   "dense",
		Short: "Load an embedding directory into a vector index",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if embeddings == "" || index == "" {
				return fmt.Errorf("--embeddings and --index are required")
			}
			if typ == "" {
				typ = a.cfg.Index.VectorType
			}
			store, err := a.openRedis(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			svc := indexuc.New(nil, a.vectorIndex(store), a.indexConfig(""), a.logger)
			h, err := svc.BuildDense(cmd.Context(), indexuc.DenseRequest{
				EmbeddingDir: embeddings,
				Index:        index,
				Type:         typ,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), h.Dir)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&embeddings, "embeddings", "", "Embedding directory with shard files")
	f.StringVar(&index, "index", "", "Handle path prefix, e.g. indexes/clip.images")
	f.StringVar(&typ, "type", "", "Vector index type: flat or hnsw (default: index.vector_type)")
	return cmd
}

// =============================================================================
// Search
// =============================================================================

func buildSearchCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Produce TREC run files",
	}
	cmd.AddCommand(buildSearchLexicalCmd(a), buildSearchDenseCmd(a), buildSearchFuseCmd(a))
	return cmd
}

func (a *app) searchConfig(output string) search.Config {
	return search.Config{
		OutputDir: a.outputDir(output),
		Threads:   a.cfg.Search.Threads,
		BatchSize: a.cfg.Search.BatchSize,
		Tag:       a.cfg.Search.Tag,
		Progress:  a.progress(),
	}
}

func buildSearchLexicalCmd(a *app) *cobra.Command {
	var (
		setting string
		sp      string
		backend string
		hits    int
		output  string
	)
	cmd := &cobra.Command{
		Use:   "lexical",
		Short: "Run the t2i and i2t BM25 topics of a split",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, s, err := parseSetting(setting, sp)
			if err != nil {
				return err
			}
			if hits <= 0 {
				hits = a.cfg.Search.LexicalHits
			}
			lex, release, err := a.lexicalIndex(cmd.Context(), backend)
			if err != nil {
				return err
			}
			defer release()

			svc := search.New(lex, nil, a.searchConfig(output), a.logger)
			paths, err := svc.SearchLexical(cmd.Context(), search.LexicalRequest{Split: s, Setting: st, Hits: hits})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), strings.Join(paths, "\n"))
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&setting, "setting", "small", "Index setting: small, base, large")
	f.StringVar(&sp, "split", "validation", "Topic split")
	f.StringVar(&backend, "backend", "", "Lexical backend (default: index.lexical_backend)")
	f.IntVar(&hits, "hits", 0, "Hits per topic (default: search.lexical_hits)")
	f.StringVar(&output, "output", "", "Output root (default: dataset.output_dir)")
	return cmd
}

func buildSearchDenseCmd(a *app) *cobra.Command {
	var req search.DenseRequest
	cmd := &cobra.Command{
		Use:   "dense",
		Short: "Search a dense index with topic embeddings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if req.Index == "" || req.Topics == "" {
				return fmt.Errorf("--index and --topics are required")
			}
			if req.Hits <= 0 {
				req.Hits = a.cfg.Search.DenseHits
			}
			store, err := a.openRedis(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			svc := search.New(nil, a.vectorIndex(store), a.searchConfig(""), a.logger)
			path, err := svc.SearchDense(cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&req.Index, "index", "", "Dense index handle directory")
	f.StringVar(&req.Topics, "topics", "", "Topic embedding directory")
	f.IntVar(&req.Hits, "hits", 0, "Hits per topic (default: search.dense_hits)")
	f.StringVar(&req.Output, "output", "", "Run file (default: <output_dir>/runs/run.<output-tag>.clip.txt)")
	f.StringVar(&req.OutputTag, "output-tag", search.DefaultOutputTag, "Tag of the default run file name")
	return cmd
}

func buildSearchFuseCmd(a *app) *cobra.Command {
	var req search.FuseRequest
	cmd := &cobra.Command{
		Use:   "fuse <run> <run> [run...]",
		Short: "Combine runs of the same topics by reciprocal rank fusion",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if req.Output == "" {
				return fmt.Errorf("--output is required")
			}
			if req.Hits <= 0 {
				req.Hits = a.cfg.Search.LexicalHits
			}
			req.Runs = args
			if err := search.New(nil, nil, a.searchConfig(""), a.logger).Fuse(cmd.Context(), req); err != nil {
				return err
			}
			a.logger.Info("Runs fused", zap.Strings("runs", args), zap.String("output", req.Output))
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&req.Output, "output", "", "Fused run file")
	f.IntVar(&req.Hits, "hits", 0, "Hits per topic (default: search.lexical_hits)")
	f.IntVar(&req.K, "k", 60, "RRF rank constant")
	return cmd
}

func parseSetting(setting, sp string) (split.Setting, split.Split, error) {
	st, err := split.ParseSetting(setting)
	if err != nil {
		return "", "", err
	}
	var s split.Split
	if sp != "" {
		if s, err = split.Parse(sp); err != nil {
			return "", "", err
		}
	}
	return st, s, nil
}
