// Package run models ranked retrieval output in trec run format.
package run

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/kailas-cloud/crossret/internal/domain"
)

// Hit is one retrieved document.
type Hit struct {
	DocID string
	Score float64
}

// Entry is one trec run line: "qid Q0 docid rank score tag".
type Entry struct {
	QueryID string
	DocID   string
	Rank    int
	Score   float64
	Tag     string
}

// TieBreak returns a copy of hits ordered by score descending, then docid ascending.
func TieBreak(hits []Hit) []Hit {
	out := make([]Hit, len(hits))
	copy(out, hits)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].DocID < out[j].DocID
	})
	return out
}

// Rank tie-breaks hits, keeps at most maxHits (0 keeps all) and assigns ranks from 1.
func Rank(queryID string, hits []Hit, maxHits int, tag string) []Entry {
	ordered := TieBreak(hits)
	if maxHits > 0 && len(ordered) > maxHits {
		ordered = ordered[:maxHits]
	}
	entries := make([]Entry, len(ordered))
	for i, h := range ordered {
		entries[i] = Entry{
			QueryID: queryID,
			DocID:   h.DocID,
			Rank:    i + 1,
			Score:   h.Score,
			Tag:     tag,
		}
	}
	return entries
}

func (e Entry) String() string {
	return fmt.Sprintf("%s Q0 %s %d %.6f %s", e.QueryID, e.DocID, e.Rank, e.Score, e.Tag)
}

// Parse reads a trec run line.
func Parse(line string) (Entry, error) {
	parts := strings.Fields(line)
	if len(parts) != 6 {
		return Entry{}, fmt.Errorf("%w: expected 6 columns, got %d", domain.ErrMalformedLine, len(parts))
	}
	rank, err := strconv.Atoi(parts[3])
	if err != nil {
		return Entry{}, fmt.Errorf("%w: rank %q", domain.ErrMalformedLine, parts[3])
	}
	score, err := strconv.ParseFloat(parts[4], 64)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: score %q", domain.ErrMalformedLine, parts[4])
	}
	return Entry{
		QueryID: parts[0],
		DocID:   parts[2],
		Rank:    rank,
		Score:   score,
		Tag:     parts[5],
	}, nil
}
