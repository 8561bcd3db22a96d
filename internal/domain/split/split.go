// Package split names the relevance-judgment partitions, index settings and
// retrieval directions shared across the pipeline.
package split

import (
	"fmt"

	"github.com/kailas-cloud/crossret/internal/domain"
)

// Split is a named partition of the corpus.
type Split string

// Known splits. Other is the complement of every judged split.
const (
	Train      Split = "train"
	Validation Split = "validation"
	Test       Split = "test"
	Other      Split = "other"
)

// Judged returns the splits that carry relevance judgments, in precedence order.
func Judged() []Split {
	return []Split{Train, Validation, Test}
}

// All returns every split including Other.
func All() []Split {
	return []Split{Train, Validation, Test, Other}
}

// Parse validates a split name.
func Parse(s string) (Split, error) {
	switch Split(s) {
	case Train, Validation, Test, Other:
		return Split(s), nil
	default:
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidSplit, s)
	}
}

// IsJudged reports whether the split has relevance judgments.
func (s Split) IsJudged() bool {
	return s == Train || s == Validation || s == Test
}

func (s Split) String() string { return string(s) }

// Setting selects which splits make up an index.
type Setting string

// Index settings.
const (
	Small Setting = "small" // one split
	Base  Setting = "base"  // train + validation + test
	Large Setting = "large" // everything, including Other
)

// ParseSetting validates a setting name.
func ParseSetting(s string) (Setting, error) {
	switch Setting(s) {
	case Small, Base, Large:
		return Setting(s), nil
	default:
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidSetting, s)
	}
}

// Splits returns the splits indexed under the setting. Small needs the split
// it is built for.
func (st Setting) Splits(s Split) ([]Split, error) {
	switch st {
	case Small:
		if s == "" {
			return nil, fmt.Errorf("%w: small setting requires a split", domain.ErrInvalidSetting)
		}
		return []Split{s}, nil
	case Base:
		return Judged(), nil
	case Large:
		return All(), nil
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidSetting, st)
	}
}

// Postfix is the name suffix distinguishing per-split small indexes.
func (st Setting) Postfix(s Split) string {
	if st == Small {
		return "." + string(s)
	}
	return ""
}

// Direction is a retrieval direction.
type Direction string

// Directions. T2I retrieves images for text queries, I2T the reverse.
const (
	T2I Direction = "t2i"
	I2T Direction = "i2t"
)

// Directions returns both directions.
func Directions() []Direction {
	return []Direction{T2I, I2T}
}
