package evaluate

import (
	"math"
	"sort"
)

// NDCG computes normalized discounted cumulative gain at k with graded
// gain (the relevance label) and a log2 rank discount.
func NDCG(ranked []string, rels map[string]int, k int) float64 {
	ideal := make([]int, 0, len(rels))
	for _, r := range rels {
		if r > 0 {
			ideal = append(ideal, r)
		}
	}
	if len(ideal) == 0 {
		return 0
	}
	sort.Sort(sort.Reverse(sort.IntSlice(ideal)))

	dcg := 0.0
	for idx, id := range cut(ranked, k) {
		if r := rels[id]; r > 0 {
			dcg += float64(r) / math.Log2(float64(idx+2))
		}
	}
	idcg := 0.0
	for idx, r := range cut(ideal, k) {
		idcg += float64(r) / math.Log2(float64(idx+2))
	}
	return dcg / idcg
}

// MRR computes the reciprocal rank of the first relevant result within k.
func MRR(ranked []string, rels map[string]int, k int) float64 {
	for idx, id := range cut(ranked, k) {
		if rels[id] > 0 {
			return 1.0 / float64(idx+1)
		}
	}
	return 0
}

// Recall computes the share of relevant documents retrieved within k.
func Recall(ranked []string, rels map[string]int, k int) float64 {
	total := 0
	for _, r := range rels {
		if r > 0 {
			total++
		}
	}
	if total == 0 {
		return 0
	}
	found := 0
	for _, id := range cut(ranked, k) {
		if rels[id] > 0 {
			found++
		}
	}
	return float64(found) / float64(total)
}

func cut[T any](s []T, k int) []T {
	if k > 0 && len(s) > k {
		return s[:k]
	}
	return s
}
