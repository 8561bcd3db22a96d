// Package convert flattens corpus records into JSONL collections.
package convert

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/crossret/internal/dataset"
	"github.com/kailas-cloud/crossret/internal/domain"
	"github.com/kailas-cloud/crossret/internal/domain/document"
	"github.com/kailas-cloud/crossret/internal/domain/qrel"
	"github.com/kailas-cloud/crossret/internal/domain/record"
	"github.com/kailas-cloud/crossret/internal/domain/split"
	"github.com/kailas-cloud/crossret/internal/logger"
	"github.com/kailas-cloud/crossret/internal/metrics"
	"github.com/kailas-cloud/crossret/internal/repository/collection"
	"github.com/kailas-cloud/crossret/internal/textnorm"
)

// Field selects which corpus is converted.
type Field string

// Convertible fields.
const (
	FieldText         Field = "text"
	FieldImageCaption Field = "image_caption"
)

// Fields returns both fields.
func Fields() []Field {
	return []Field{FieldText, FieldImageCaption}
}

// ParseField validates a field name.
func ParseField(s string) (Field, error) {
	switch Field(s) {
	case FieldText, FieldImageCaption:
		return Field(s), nil
	default:
		return "", fmt.Errorf("unknown encode field %q", s)
	}
}

// Columns not worth flattening: binary payloads and metadata.
var (
	imageDrop = []string{"image", "image_url"}
	textDrop  = []string{"media", "category", "source_id", "page_url"}
)

// Config holds conversion settings.
type Config struct {
	OutputDir    string
	Language     string
	MaxTokens    int
	LinesPerPart int
	Normalize    textnorm.Func // nil means textnorm.Default()
}

// Service converts corpus tables into collections.
type Service struct {
	qrels  QrelsSource
	images RowSource
	texts  RowSource
	cfg    Config
	logger *zap.Logger
}

// New creates a convert service.
func New(qrels QrelsSource, images, texts RowSource, cfg Config, logger *zap.Logger) *Service {
	if cfg.Normalize == nil {
		cfg.Normalize = textnorm.Default()
	}
	return &Service{qrels: qrels, images: images, texts: texts, cfg: cfg, logger: logger}
}

// Convert writes the collection of one split and field. Rows are kept when
// their id is judged in the split; for Other, when it is judged in none.
// Returns the written files.
func (s *Service) Convert(ctx context.Context, sp split.Split, f Field) ([]string, error) {
	stage := "convert_" + string(f)
	defer logger.Timed(s.logger, stage, zap.String("split", sp.String()))()
	start := time.Now()

	set, err := s.qrels.Qrels(ctx)
	if err != nil {
		return nil, fmt.Errorf("load qrels: %w", err)
	}

	var (
		src    RowSource
		policy document.Policy
		drop   []string
		path   string
	)
	switch f {
	case FieldImageCaption:
		src, drop = s.images, imageDrop
		policy = document.ImagePolicy(dataset.ImageIDColumn, s.cfg.Normalize)
		if s.cfg.Language != "" {
			policy.Language = s.cfg.Language
		}
		path = collection.ImagePath(s.cfg.OutputDir, sp)
	case FieldText:
		src, drop = s.texts, textDrop
		policy = document.TextPolicy(dataset.TextIDColumn, s.cfg.Normalize)
		path = collection.TextPath(s.cfg.OutputDir, sp)
	default:
		return nil, fmt.Errorf("unknown encode field %q", f)
	}

	keep, err := filter(set, sp, policy.IDColumn)
	if err != nil {
		return nil, err
	}

	var docs []document.Document
	err = src.Scan(ctx, dataset.ScanOptions{Drop: drop}, func(_ int, rec record.Record) error {
		id, err := rec.ID(policy.IDColumn)
		if err != nil {
			return err
		}
		if !keep(id) {
			return nil
		}
		docs = append(docs, document.Flatten(rec, policy).Truncate(s.cfg.MaxTokens))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", f, err)
	}

	paths, err := collection.SaveMaybeSharded(docs, path, s.cfg.LinesPerPart)
	if err != nil {
		return nil, fmt.Errorf("save collection: %w", err)
	}
	metrics.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())

	s.logger.Info("Collection written",
		zap.String("split", sp.String()),
		zap.String("field", string(f)),
		zap.Int("documents", len(docs)),
		zap.Strings("files", paths),
	)
	return paths, nil
}

// filter builds the id predicate of a split.
func filter(set *qrel.Set, sp split.Split, column string) (func(string) bool, error) {
	qcol := qrel.ColumnTextID
	if column == dataset.ImageIDColumn {
		qcol = qrel.ColumnImageID
	}
	switch {
	case sp == split.Other:
		judged := set.IDs(qcol, split.Judged()...)
		return func(id string) bool { _, ok := judged[id]; return !ok }, nil
	case sp.IsJudged():
		ids := set.IDs(qcol, sp)
		return func(id string) bool { _, ok := ids[id]; return ok }, nil
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidSplit, sp)
	}
}
