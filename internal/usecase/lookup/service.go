// Package lookup fetches single corpus records by id.
package lookup

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/crossret/internal/domain/record"
)

// Finder reads a record by id.
type Finder interface {
	GetByID(ctx context.Context, id string) (record.Record, error)
}

// Service looks up records.
type Service struct {
	finder Finder
	drop   []string
	logger *zap.Logger
}

// New creates a lookup service. Columns in drop (e.g. raw image bytes) are
// left out of the result.
func New(f Finder, drop []string, logger *zap.Logger) *Service {
	return &Service{finder: f, drop: drop, logger: logger}
}

// Get returns the record with the given id.
func (s *Service) Get(ctx context.Context, id string) (record.Record, error) {
	rec, err := s.finder.GetByID(ctx, id)
	if err != nil {
		return record.Record{}, err
	}
	s.logger.Debug("Record found", zap.String("id", id), zap.Int("fields", rec.Len()))
	return rec.Without(s.dropped(rec)...), nil
}

// dropped expands drop to the nested leaves of struct columns (image.bytes).
func (s *Service) dropped(rec record.Record) []string {
	var out []string
	for _, name := range rec.Names() {
		for _, d := range s.drop {
			if name == d || strings.HasPrefix(name, d+".") {
				out = append(out, name)
				break
			}
		}
	}
	return out
}

// JSON returns the record as indented JSON.
func (s *Service) JSON(ctx context.Context, id string) ([]byte, error) {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal record: %w", err)
	}
	return data, nil
}
