package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/crossret/internal/db"
)

const (
	defaultVectorField = "vector"
	defaultTextField   = "contents"
	defaultScorer      = "BM25STD"
	vectorScoreField   = "__vector_score"
)

// SearchKNNMulti pipelines KNN vector queries via FT.SEARCH in one round-trip.
// Results are in query order.
func (s *Store) SearchKNNMulti(ctx context.Context, qs []*db.KNNQuery) ([]*db.SearchResult, error) {
	if len(qs) == 0 {
		return nil, nil
	}
	cmds := make(rueidis.Commands, 0, len(qs))
	for _, q := range qs {
		cmd, err := s.knnCommand(q)
		if err != nil {
			return nil, err
		}
		cmds = append(cmds, cmd)
	}

	out := make([]*db.SearchResult, len(qs))
	for i, res := range s.client.DoMulti(ctx, cmds...) {
		raw, err := res.ToArray()
		if err != nil {
			return nil, &db.Error{Op: db.OpSearch, Err: fmt.Errorf("query %d: %w", i, err)}
		}
		out[i], err = parseKNNResult(raw, qs[i].RawScores)
		if err != nil {
			return nil, fmt.Errorf("query %d: %w", i, err)
		}
	}
	return out, nil
}

func (s *Store) knnCommand(q *db.KNNQuery) (rueidis.Completed, error) {
	if q.IndexName == "" {
		return rueidis.Completed{}, errors.New("index name is required")
	}
	if len(q.Vector) == 0 {
		return rueidis.Completed{}, errors.New("vector is required")
	}
	if q.K <= 0 {
		return rueidis.Completed{}, errors.New("k must be positive")
	}
	field := q.Field
	if field == "" {
		field = defaultVectorField
	}

	queryStr := fmt.Sprintf("*=>[KNN %d @%s $BLOB]", q.K, field)
	args := []string{q.IndexName, queryStr}

	returnFields := append([]string{vectorScoreField}, q.ReturnFields...)
	args = append(args, "RETURN", strconv.Itoa(len(returnFields)))
	args = append(args, returnFields...)

	args = append(args,
		"SORTBY", vectorScoreField,
		"LIMIT", "0", strconv.Itoa(q.K),
		"PARAMS", "2", "BLOB", vectorToBytes(q.Vector),
		"DIALECT", "2",
	)
	return s.b().Arbitrary("FT.SEARCH").Args(args...).Build(), nil
}

// SearchBM25 runs an OR-of-terms text search via FT.SEARCH WITHSCORES.
func (s *Store) SearchBM25(ctx context.Context, q *db.TextQuery) (*db.SearchResult, error) {
	if q.IndexName == "" {
		return nil, errors.New("index name is required")
	}
	if q.TopK <= 0 {
		return nil, errors.New("topK must be positive")
	}
	queryStr := buildTextQuery(q.Field, q.Terms)
	if queryStr == "" {
		return nil, errors.New("query is required")
	}
	scorer := q.Scorer
	if scorer == "" {
		scorer = defaultScorer
	}

	args := []string{q.IndexName, queryStr, "WITHSCORES", "SCORER", scorer}
	if len(q.ReturnFields) > 0 {
		args = append(args, "RETURN", strconv.Itoa(len(q.ReturnFields)))
		args = append(args, q.ReturnFields...)
	} else {
		args = append(args, "NOCONTENT")
	}
	args = append(args,
		"LIMIT", "0", strconv.Itoa(q.TopK),
		"DIALECT", "2",
	)

	cmd := s.b().Arbitrary("FT.SEARCH").Args(args...).Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		return nil, &db.Error{Op: db.OpSearch, Err: err}
	}

	return parseBM25Result(raw, len(q.ReturnFields) > 0)
}

// buildTextQuery renders "@field:(t1|t2|...)" with each term escaped.
func buildTextQuery(field string, terms []string) string {
	if field == "" {
		field = defaultTextField
	}
	escaped := make([]string, 0, len(terms))
	for _, t := range terms {
		if t = strings.TrimSpace(t); t != "" {
			escaped = append(escaped, escapeQuery(t))
		}
	}
	if len(escaped) == 0 {
		return ""
	}
	return fmt.Sprintf("@%s:(%s)", field, strings.Join(escaped, "|"))
}

// --- Result parsing ---

func parseKNNResult(raw []rueidis.RedisMessage, rawScores bool) (*db.SearchResult, error) {
	total, err := parseTotal(raw)
	if err != nil || total == 0 {
		return &db.SearchResult{}, err
	}

	entries := make([]db.SearchEntry, 0, min(total, (len(raw)-1)/2))
	// 2-stride: [total, key1, fields1, key2, fields2, ...]
	for i := 1; i+1 < len(raw); i += 2 {
		key, err := raw[i].ToString()
		if err != nil {
			continue
		}

		fields, err := raw[i+1].ToArray()
		if err != nil {
			continue
		}

		entry := db.SearchEntry{
			Key:    key,
			Fields: parseFieldPairs(fields),
		}

		if scoreStr, ok := entry.Fields[vectorScoreField]; ok {
			if d, err := strconv.ParseFloat(scoreStr, 64); err == nil {
				if rawScores {
					entry.Score = d
				} else {
					entry.Score = 1.0 - d // IP distance → inner product
				}
			}
			delete(entry.Fields, vectorScoreField)
		}

		entries = append(entries, entry)
	}

	return &db.SearchResult{Total: total, Entries: entries}, nil
}

func parseBM25Result(raw []rueidis.RedisMessage, withFields bool) (*db.SearchResult, error) {
	total, err := parseTotal(raw)
	if err != nil || total == 0 {
		return &db.SearchResult{}, err
	}

	stride := 2 // [total, key1, score1, key2, score2, ...] with NOCONTENT
	if withFields {
		stride = 3
	}

	entries := make([]db.SearchEntry, 0, min(total, (len(raw)-1)/stride))
	for i := 1; i+stride-1 < len(raw); i += stride {
		key, err := raw[i].ToString()
		if err != nil {
			continue
		}

		scoreStr, err := raw[i+1].ToString()
		if err != nil {
			continue
		}
		score, err := strconv.ParseFloat(scoreStr, 64)
		if err != nil {
			continue
		}

		entry := db.SearchEntry{Key: key, Score: score}
		if withFields {
			if fields, err := raw[i+2].ToArray(); err == nil {
				entry.Fields = parseFieldPairs(fields)
			}
		}
		entries = append(entries, entry)
	}

	return &db.SearchResult{Total: total, Entries: entries}, nil
}

func parseTotal(raw []rueidis.RedisMessage) (int, error) {
	if len(raw) == 0 {
		return 0, nil
	}
	total, err := raw[0].AsInt64()
	if err != nil {
		return 0, fmt.Errorf("parse total: %w", err)
	}
	return int(total), nil
}

func parseFieldPairs(fields []rueidis.RedisMessage) map[string]string {
	m := make(map[string]string, len(fields)/2)
	for j := 0; j+1 < len(fields); j += 2 {
		name, err := fields[j].ToString()
		if err != nil {
			continue
		}
		value, err := fields[j+1].ToString()
		if err != nil {
			continue
		}
		m[name] = value
	}
	return m
}

// --- Query helpers ---

func escapeQuery(s string) string {
	return queryEscaper.Replace(s)
}

var queryEscaper = strings.NewReplacer(
	`\`, `\\`,
	`'`, `\'`,
	`"`, `\"`,
	`@`, `\@`,
	`{`, `\{`,
	`}`, `\}`,
	`(`, `\(`,
	`)`, `\)`,
	`|`, `\|`,
	`-`, `\-`,
	`~`, `\~`,
	`*`, `\*`,
	`[`, `\[`,
	`]`, `\]`,
	`!`, `\!`,
	`%`, `\%`,
	`^`, `\^`,
	`$`, `\$`,
	`<`, `\<`,
	`>`, `\>`,
	`=`, `\=`,
	`;`, `\;`,
	`+`, `\+`,
	`:`, `\:`,
	`.`, `\.`,
	`,`, `\,`,
	`/`, `\/`,
	`&`, `\&`,
	`#`, `\#`,
	`?`, `\?`,
	` `, `\ `,
)

func vectorToBytes(v []float32) string {
	return rueidis.BinaryString(db.EncodeVector(v))
}
