package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/crossret/internal/dataset"
	"github.com/kailas-cloud/crossret/internal/db/elastic"
	dbRedis "github.com/kailas-cloud/crossret/internal/db/redis"
	"github.com/kailas-cloud/crossret/internal/usecase/baseline"
	"github.com/kailas-cloud/crossret/internal/usecase/convert"
	"github.com/kailas-cloud/crossret/internal/usecase/evaluate"
	"github.com/kailas-cloud/crossret/internal/usecase/health"
	indexuc "github.com/kailas-cloud/crossret/internal/usecase/index"
	"github.com/kailas-cloud/crossret/internal/usecase/qrels"
	"github.com/kailas-cloud/crossret/internal/usecase/search"
)

// =============================================================================
// Evaluate
// =============================================================================

func buildEvaluateCmd(a *app) *cobra.Command {
	var (
		runs   []string
		qrelsF string
		report string
		cfg    evaluate.Config
	)
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Score run files against a qrels file (nDCG, MRR, recall)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(runs) == 0 || qrelsF == "" {
				return fmt.Errorf("--run and --qrels are required")
			}
			svc := evaluate.New(cfg, a.logger)
			reports := make([]evaluate.Report, 0, len(runs))
			for _, r := range runs {
				rep, err := svc.Evaluate(r, qrelsF)
				if err != nil {
					return fmt.Errorf("evaluate %s: %w", r, err)
				}
				reports = append(reports, rep)
			}
			printReports(cmd, reports)
			if report != "" {
				return evaluate.WriteReport(report, reports)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringArrayVar(&runs, "run", nil, "Run file (repeatable)")
	f.StringVar(&qrelsF, "qrels", "", "Qrels file")
	f.StringVar(&report, "report", "", "Write the scores as JSON")
	f.BoolVar(&cfg.Complete, "complete", false, "Score judged queries missing from the run as 0")
	f.IntVar(&cfg.NDCGAt, "ndcg-at", 10, "nDCG cutoff")
	f.IntVar(&cfg.MRRAt, "mrr-at", 10, "MRR cutoff")
	f.IntVar(&cfg.RecallAt, "recall-at", 1000, "Recall cutoff")
	return cmd
}

func printReports(cmd *cobra.Command, reports []evaluate.Report) {
	if len(reports) == 0 {
		return
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	r0 := reports[0]
	fmt.Fprintf(tw, "run\tqueries\tnDCG@%d\tMRR@%d\tR@%d\n", r0.NDCGAt, r0.MRRAt, r0.RecallAt)
	for _, r := range reports {
		fmt.Fprintf(tw, "%s\t%d\t%.4f\t%.4f\t%.4f\n", filepath.Base(r.Run), r.Queries, r.NDCG, r.MRR, r.Recall)
	}
	_ = tw.Flush()
}

// =============================================================================
// BM25 Baseline
// =============================================================================

func buildBaselineCmd(a *app) *cobra.Command {
	var (
		backend string
		output  string
		noEval  bool
		report  string
	)
	cmd := &cobra.Command{
		Use:   "bm25-baseline",
		Short: "Run qrels, convert, index and search for the BM25 baselines",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			outDir := a.outputDir(output)

			images, err := dataset.OpenCorpus(a.cfg.Dataset.DataDir, a.cfg.Dataset.Images)
			if err != nil {
				return err
			}
			texts, err := dataset.OpenCorpus(a.cfg.Dataset.DataDir, a.cfg.Dataset.Texts)
			if err != nil {
				return err
			}
			lex, release, err := a.lexicalIndex(ctx, backend)
			if err != nil {
				return err
			}
			defer release()

			source := a.qrelsSource()
			var ev baseline.Evaluator
			if !noEval {
				ev = evaluate.New(evaluate.Config{}, a.logger)
			}
			svc := baseline.New(outDir,
				qrels.New(source, a.logger),
				convert.New(source, images, texts, a.convertConfig(output), a.logger),
				indexuc.New(lex, nil, a.indexConfig(output), a.logger),
				search.New(lex, nil, a.searchConfig(output), a.logger),
				ev,
				a.logger,
			)

			res, err := svc.Run(ctx)
			if err != nil {
				return err
			}
			for _, r := range res.Runs {
				fmt.Fprintln(cmd.OutOrStdout(), r)
			}
			printReports(cmd, res.Reports)
			if report != "" && len(res.Reports) > 0 {
				return evaluate.WriteReport(report, res.Reports)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&backend, "backend", "", "Lexical backend (default: index.lexical_backend)")
	f.StringVar(&output, "output", "", "Output root (default: dataset.output_dir)")
	f.BoolVar(&noEval, "no-eval", false, "Skip scoring the validation runs")
	f.StringVar(&report, "report", "", "Write the scores as JSON")
	return cmd
}

// =============================================================================
// Publish
// =============================================================================

func buildPublishCmd(a *app) *cobra.Command {
	var (
		dir     string
		presign time.Duration
	)
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Upload collections, qrels and runs to the artifact bucket",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			root := a.outputDir(dir)
			if _, err := os.Stat(root); err != nil {
				return fmt.Errorf("publish %s: %w", root, err)
			}
			p, err := a.publisher()
			if err != nil {
				return err
			}
			keys, err := p.PublishDir(ctx, root)
			if err != nil {
				return err
			}
			for _, k := range keys {
				if presign <= 0 {
					fmt.Fprintln(cmd.OutOrStdout(), k)
					continue
				}
				u, err := p.Presign(ctx, k, presign)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", k, u)
			}
			a.logger.Info("Published", zap.Int("objects", len(keys)), zap.String("bucket", a.cfg.Artifacts.Bucket))
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "Directory to upload (default: dataset.output_dir)")
	cmd.Flags().DurationVar(&presign, "presign", 0, "Print presigned download URLs valid for this long")
	return cmd
}

// =============================================================================
// Check
// =============================================================================

func buildCheckCmd(a *app) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Probe redis, elasticsearch, the embedding API and the artifact bucket",
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc := health.New(timeout, a.logger)

			if len(a.cfg.Database.Addrs) > 0 {
				store, err := dbRedis.NewStore(dbRedis.Config{
					Addrs:    a.cfg.Database.Addrs,
					Password: a.cfg.Database.Password,
				})
				if err != nil {
					svc.Add("redis", failing(err))
				} else {
					defer store.Close()
					svc.Add("redis", store)
				}
			}
			if es := a.cfg.Elasticsearch; len(es.Addresses) > 0 {
				c, err := elastic.NewClient(elastic.Config{
					Addresses: es.Addresses,
					Username:  es.Username,
					Password:  es.Password,
				})
				if err != nil {
					svc.Add("elasticsearch", failing(err))
				} else {
					svc.Add("elasticsearch", health.CheckerFunc(c.Ping))
				}
			}
			if a.cfg.Embedding.BaseURL != "" {
				svc.Add("embedding", a.embeddingProvider(""))
			}
			if a.cfg.Artifacts.Endpoint != "" {
				p, err := a.publisher()
				if err != nil {
					svc.Add("artifacts", failing(err))
				} else {
					svc.Add("artifacts", p)
				}
			}

			rep := svc.Check(cmd.Context())
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			names := make([]string, 0, len(rep.Checks))
			for name := range rep.Checks {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", name, rep.Checks[name], rep.Errors[name])
			}
			_ = tw.Flush()
			if rep.Status != health.Healthy {
				return fmt.Errorf("health: %s", rep.Status)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "Per-check timeout")
	return cmd
}

func failing(err error) health.Checker {
	return health.CheckerFunc(func(context.Context) error { return err })
}
