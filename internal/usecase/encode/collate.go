package encode

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/crossret/internal/dataset"
	"github.com/kailas-cloud/crossret/internal/domain"
	"github.com/kailas-cloud/crossret/internal/domain/record"
)

// Type selects the modality to encode.
type Type string

// Encode types.
const (
	TypeText  Type = "text"
	TypeImage Type = "image"
)

// ParseType validates an encode type.
func ParseType(s string) (Type, error) {
	switch Type(s) {
	case TypeText, TypeImage:
		return Type(s), nil
	default:
		return "", fmt.Errorf("unknown encode type %q", s)
	}
}

// TextFields are concatenated, in order, into the text encoder input.
var TextFields = []string{
	"page_title",
	"section_title",
	"hierachy",
	"context_section_description",
	"context_page_description",
}

const (
	imageColumn = "image"
	imageBytes  = "image.bytes"
	imagePath   = "image.path"
)

// collator turns a record into its id and encoder input.
type collator struct {
	idColumn string
	columns  []string
	input    func(rec record.Record) (string, error)
}

func newCollator(t Type) (collator, error) {
	switch t {
	case TypeText:
		return collator{
			idColumn: dataset.TextIDColumn,
			columns:  append([]string{dataset.TextIDColumn}, TextFields...),
			input:    textInput,
		}, nil
	case TypeImage:
		return collator{
			idColumn: dataset.ImageIDColumn,
			columns:  []string{dataset.ImageIDColumn, imageColumn},
			input:    imageInput,
		}, nil
	default:
		return collator{}, fmt.Errorf("unknown encode type %q", t)
	}
}

func (c collator) collate(rec record.Record) (string, string, error) {
	id, err := rec.ID(c.idColumn)
	if err != nil {
		return "", "", err
	}
	in, err := c.input(rec)
	if err != nil {
		return "", "", fmt.Errorf("%s %s: %w", c.idColumn, id, err)
	}
	return id, in, nil
}

// textInput joins the text fields with spaces; list values are joined first.
// Missing fields count as empty.
func textInput(rec record.Record) (string, error) {
	parts := make([]string, len(TextFields))
	for i, f := range TextFields {
		v, _ := rec.Get(f)
		parts[i] = v.String()
	}
	return strings.Join(parts, " "), nil
}

func imageInput(rec record.Record) (string, error) {
	v, ok := rec.Get(imageBytes)
	if !ok || v.String() == "" {
		return "", fmt.Errorf("no image bytes: %w", domain.ErrNotFound)
	}
	data := []byte(v.String())
	name, _ := rec.Get(imagePath)
	return domain.ImageDataURL(domain.ImageMIME(name.String(), data), data), nil
}
