// Package qrel models relevance judgments between texts and images.
package qrel

import (
	"fmt"
	"strconv"

	"github.com/kailas-cloud/crossret/internal/domain/split"
)

// Column names of the qrels table.
const (
	ColumnTextID  = "text_id"
	ColumnQ0      = "Q0"
	ColumnImageID = "image_id"
	ColumnRel     = "rel"
)

// Qrel is one (text_id, image_id, rel) judgment.
type Qrel struct {
	TextID  string
	ImageID string
	Rel     int
}

// Judgment is a judgment oriented for one retrieval direction.
type Judgment struct {
	QueryID string
	DocID   string
	Rel     int
}

// Orient projects the judgment for a direction: t2i queries are texts, i2t
// queries are images.
func (q Qrel) Orient(d split.Direction) Judgment {
	if d == split.I2T {
		return Judgment{QueryID: q.ImageID, DocID: q.TextID, Rel: q.Rel}
	}
	return Judgment{QueryID: q.TextID, DocID: q.ImageID, Rel: q.Rel}
}

// String renders a trec qrel line "qid Q0 docid rel".
func (j Judgment) String() string {
	return j.QueryID + " Q0 " + j.DocID + " " + strconv.Itoa(j.Rel)
}

// Set holds judgments per split.
type Set struct {
	bySplit map[split.Split][]Qrel
}

// NewSet creates an empty set.
func NewSet() *Set {
	return &Set{bySplit: make(map[split.Split][]Qrel)}
}

// Add appends judgments to a judged split.
func (s *Set) Add(sp split.Split, qs ...Qrel) error {
	if !sp.IsJudged() {
		return fmt.Errorf("cannot add judgments to split %q", sp)
	}
	s.bySplit[sp] = append(s.bySplit[sp], qs...)
	return nil
}

// Get returns the judgments of a split in insertion order.
func (s *Set) Get(sp split.Split) []Qrel {
	return s.bySplit[sp]
}

// Splits returns the judged splits present, in precedence order.
func (s *Set) Splits() []split.Split {
	var out []split.Split
	for _, sp := range split.Judged() {
		if _, ok := s.bySplit[sp]; ok {
			out = append(out, sp)
		}
	}
	return out
}

// IDs returns the distinct ids of a column (ColumnTextID or ColumnImageID)
// among the given splits.
func (s *Set) IDs(column string, splits ...split.Split) map[string]struct{} {
	ids := make(map[string]struct{})
	for _, sp := range splits {
		for _, q := range s.bySplit[sp] {
			if column == ColumnImageID {
				ids[q.ImageID] = struct{}{}
			} else {
				ids[q.TextID] = struct{}{}
			}
		}
	}
	return ids
}
