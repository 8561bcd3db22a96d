// Package document turns corpus records into retrieval-ready documents.
package document

import (
	"strings"

	"github.com/kailas-cloud/crossret/internal/domain/record"
)

// DefaultMaxTokens is the whitespace-token budget applied by Truncate.
const DefaultMaxTokens = 1024

// Field is a flattened, normalized field.
type Field struct {
	Name string
	Text string
}

// Document is the flattened form of a record (immutable value object).
type Document struct {
	id       string
	fields   []Field
	contents string
}

// New builds a document whose contents is the space-joined field texts in order.
func New(id string, fields []Field) Document {
	texts := make([]string, len(fields))
	for i, f := range fields {
		texts[i] = f.Text
	}
	cp := make([]Field, len(fields))
	copy(cp, fields)
	return Document{id: id, fields: cp, contents: strings.Join(texts, " ")}
}

// Reconstruct creates a Document from stored id and contents (collection hydration).
func Reconstruct(id, contents string) Document {
	return Document{id: id, contents: contents}
}

// ID returns the document identifier.
func (d Document) ID() string { return d.id }

// Contents returns the synthesized text.
func (d Document) Contents() string { return d.contents }

// Fields returns the flattened fields in declaration order.
func (d Document) Fields() []Field {
	cp := make([]Field, len(d.fields))
	copy(cp, d.fields)
	return cp
}

// Truncate keeps the first n whitespace-separated tokens of contents, joined
// by single spaces. n <= 0 means DefaultMaxTokens. Applying it twice is a no-op.
func (d Document) Truncate(n int) Document {
	if n <= 0 {
		n = DefaultMaxTokens
	}
	tokens := strings.Fields(d.contents)
	if len(tokens) > n {
		tokens = tokens[:n]
	}
	d.contents = strings.Join(tokens, " ")
	return d
}

// Policy controls how a record is flattened.
type Policy struct {
	IDColumn string
	// LanguageColumn and Language filter list fields positionally: only
	// elements whose parallel tag equals Language are kept. Empty disables it.
	LanguageColumn string
	Language       string
	Normalize      func(string) string
}

// ImagePolicy keeps English captions only.
func ImagePolicy(idColumn string, normalize func(string) string) Policy {
	return Policy{
		IDColumn:       idColumn,
		LanguageColumn: "language",
		Language:       "en",
		Normalize:      normalize,
	}
}

// TextPolicy keeps every list element.
func TextPolicy(idColumn string, normalize func(string) string) Policy {
	return Policy{IDColumn: idColumn, Normalize: normalize}
}

// Flatten converts a record into a Document. It never fails: a missing id
// column yields an empty id and a missing language column keeps nothing from
// list fields.
func Flatten(rec record.Record, p Policy) Document {
	norm := p.Normalize
	if norm == nil {
		norm = func(s string) string { return s }
	}

	id, _ := rec.ID(p.IDColumn)

	var keep []bool
	filterLang := p.LanguageColumn != ""
	if filterLang {
		tags, _ := rec.Get(p.LanguageColumn)
		for _, tag := range tags.Items() {
			keep = append(keep, tag == p.Language)
		}
	}

	fields := make([]Field, 0, rec.Len())
	for _, f := range rec.Fields() {
		if f.Name == p.IDColumn || (filterLang && f.Name == p.LanguageColumn) {
			continue
		}

		var parts []string
		items := f.Value.Items()
		if f.Value.IsList() {
			for i, item := range items {
				if filterLang && (i >= len(keep) || !keep[i]) {
					continue
				}
				parts = append(parts, norm(item))
			}
		} else {
			parts = append(parts, norm(f.Value.String()))
		}

		fields = append(fields, Field{Name: f.Name, Text: strings.Join(parts, " ")})
	}

	return New(id, fields)
}
