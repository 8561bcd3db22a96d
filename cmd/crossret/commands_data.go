package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/crossret/internal/dataset"
	"github.com/kailas-cloud/crossret/internal/domain/split"
	"github.com/kailas-cloud/crossret/internal/usecase/convert"
	"github.com/kailas-cloud/crossret/internal/usecase/lookup"
	"github.com/kailas-cloud/crossret/internal/usecase/qrels"
)

// =============================================================================
// Dataset Commands
// =============================================================================

func buildDownloadCmd(a *app) *cobra.Command {
	var (
		only     []string
		maxFiles int
	)
	cmd := &cobra.Command{
		Use:   "download",
		Short: "Fetch the Images, Texts and Qrels parquet exports",
		RunE: func(cmd *cobra.Command, _ []string) error {
			hub := dataset.NewHub(a.cfg.Dataset.HubURL, a.cfg.Dataset.Token, a.cfg.Dataset.DataDir, a.logger,
				dataset.WithProgress(a.progress()))

			type job struct{ name, repo, split string }
			var jobs []job
			for _, what := range only {
				switch what {
				case "images":
					jobs = append(jobs, job{what, a.cfg.Dataset.Images, dataset.CorpusSplit})
				case "texts":
					jobs = append(jobs, job{what, a.cfg.Dataset.Texts, dataset.CorpusSplit})
				case "inputs":
					jobs = append(jobs, job{what, a.cfg.Dataset.Inputs, dataset.CorpusSplit})
				case "qrels":
					for _, sp := range split.Judged() {
						jobs = append(jobs, job{what, a.cfg.Dataset.Qrels, sp.String()})
					}
				default:
					return fmt.Errorf("unknown dataset %q (images, texts, inputs, qrels)", what)
				}
			}

			for _, j := range jobs {
				paths, err := hub.Download(cmd.Context(), j.repo, j.split, maxFiles)
				if err != nil {
					return fmt.Errorf("%s: %w", j.name, err)
				}
				a.logger.Info("Dataset ready",
					zap.String("repo", j.repo),
					zap.String("split", j.split),
					zap.Int("files", len(paths)),
				)
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&only, "only", []string{"images", "texts", "qrels"}, "Datasets to fetch")
	cmd.Flags().IntVar(&maxFiles, "max-files", 0, "Fetch at most this many parquet files per split (0 = all)")
	return cmd
}

func buildQrelsCmd(a *app) *cobra.Command {
	var (
		splits []string
		output string
	)
	cmd := &cobra.Command{
		Use:   "qrels",
		Short: "Write the projected t2i and i2t qrels of judged splits",
		RunE: func(cmd *cobra.Command, _ []string) error {
			sps, err := parseSplits(splits)
			if err != nil {
				return err
			}
			svc := qrels.New(a.qrelsSource(), a.logger)
			_, err = svc.Write(cmd.Context(), a.outputDir(output), sps)
			return err
		},
	}
	cmd.Flags().StringSliceVar(&splits, "split", []string{"train", "validation", "test"}, "Splits to project")
	cmd.Flags().StringVar(&output, "output", "", "Output root (default: dataset.output_dir)")
	return cmd
}

func buildConvertCmd(a *app) *cobra.Command {
	var (
		splits []string
		fields []string
		output string
	)
	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Flatten corpus rows of a split into JSONL collections",
		RunE: func(cmd *cobra.Command, _ []string) error {
			sps, err := parseSplits(splits)
			if err != nil {
				return err
			}
			fs := make([]convert.Field, 0, len(fields))
			for _, f := range fields {
				pf, err := convert.ParseField(f)
				if err != nil {
					return err
				}
				fs = append(fs, pf)
			}

			images, err := dataset.OpenCorpus(a.cfg.Dataset.DataDir, a.cfg.Dataset.Images)
			if err != nil {
				return err
			}
			texts, err := dataset.OpenCorpus(a.cfg.Dataset.DataDir, a.cfg.Dataset.Texts)
			if err != nil {
				return err
			}
			svc := convert.New(a.qrelsSource(), images, texts, a.convertConfig(output), a.logger)

			for _, sp := range sps {
				for _, f := range fs {
					if _, err := svc.Convert(cmd.Context(), sp, f); err != nil {
						return err
					}
				}
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&splits, "split", []string{"validation"}, "Splits: train, validation, test, other")
	cmd.Flags().StringSliceVar(&fields, "field", []string{"text", "image_caption"}, "Fields: text, image_caption")
	cmd.Flags().StringVar(&output, "output", "", "Output root (default: dataset.output_dir)")
	return cmd
}

func (a *app) convertConfig(output string) convert.Config {
	return convert.Config{
		OutputDir:    a.outputDir(output),
		Language:     a.cfg.Collection.Language,
		MaxTokens:    a.cfg.Collection.MaxTokens,
		LinesPerPart: a.cfg.Collection.LinesPerPart,
	}
}

func buildLookupCmd(a *app) *cobra.Command {
	var (
		kind string
		keep bool
	)
	cmd := &cobra.Command{
		Use:   "lookup <id>",
		Short: "Print a corpus record by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, idColumn := a.cfg.Dataset.Texts, dataset.TextIDColumn
			var drop []string
			switch kind {
			case "text":
			case "image":
				repo, idColumn = a.cfg.Dataset.Images, dataset.ImageIDColumn
				drop = []string{"image.bytes"}
			default:
				return fmt.Errorf("unknown kind %q (text, image)", kind)
			}
			if keep {
				drop = nil
			}

			atomic, err := a.openAtomic(cmd.Context(), repo, idColumn, false)
			if err != nil {
				return err
			}
			data, err := lookup.New(atomic, drop, a.logger).JSON(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "text", "Record kind: text or image")
	cmd.Flags().BoolVar(&keep, "binary", false, "Keep raw image bytes")
	return cmd
}

func parseSplits(names []string) ([]split.Split, error) {
	out := make([]split.Split, 0, len(names))
	for _, n := range names {
		sp, err := split.Parse(n)
		if err != nil {
			return nil, err
		}
		out = append(out, sp)
	}
	return out, nil
}
