package lexical

import (
	"regexp"

	"golang.org/x/text/cases"
)

var reToken = regexp.MustCompile(`[\p{L}\p{N}]+`)

// Terms splits text into case-folded word tokens, dropping duplicates while
// keeping first-occurrence order. At most max terms are returned (0 = no cap).
func Terms(text string, max int) []string {
	fold := cases.Fold()
	seen := make(map[string]struct{})
	var out []string
	for _, tok := range reToken.FindAllString(text, -1) {
		tok = fold.String(tok)
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
		if max > 0 && len(out) == max {
			break
		}
	}
	return out
}
