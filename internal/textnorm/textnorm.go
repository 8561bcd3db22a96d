// Package textnorm cleans raw corpus text before it is indexed.
package textnorm

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/text/unicode/norm"
	"mvdan.cc/xurls/v2"
)

// Func transforms a string.
type Func func(string) string

// Pipeline applies fns left to right.
func Pipeline(fns ...Func) Func {
	return func(s string) string {
		for _, fn := range fns {
			s = fn(s)
		}
		return s
	}
}

// Default is the collection-building pipeline.
func Default() Func {
	return Pipeline(
		RemoveHTMLTags,
		NFC,
		Whitespace,
		BulletPoints,
		QuotationMarks,
		ReplaceHashtags,
		RemoveBrackets,
		ReplaceURLs,
	)
}

// RemoveHTMLTags keeps only the text content of markup, with entities decoded.
func RemoveHTMLTags(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return s
	}
	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(s))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return b.String()
		case html.TextToken:
			b.Write(z.Text())
		}
	}
}

// NFC applies canonical composition.
func NFC(s string) string {
	return norm.NFC.String(s)
}

var (
	reZeroWidth = regexp.MustCompile(`[\x{200B}\x{2060}\x{FEFF}]+`)
	reLinebreak = regexp.MustCompile(`(\r\n|[\n\v])+`)
	reSpaces    = regexp.MustCompile(`[\t\f\r\x1c-\x1f \x{85}\p{Z}]+`)
)

// Whitespace drops zero-width spaces, collapses line breaks to "\n" and other
// whitespace runs to a single space, then trims.
func Whitespace(s string) string {
	s = reZeroWidth.ReplaceAllString(s, "")
	s = reLinebreak.ReplaceAllString(s, "\n")
	s = reSpaces.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

var reBullets = regexp.MustCompile(
	`((?:^|\n)\s*?)([\x{2022}\x{2023}\x{2043}\x{204C}\x{204D}\x{2219}\x{25AA}\x{25CF}\x{25E6}\x{29BE}\x{29BF}\x{30FB}])`,
)

// BulletPoints rewrites list bullets at line starts as "-".
func BulletPoints(s string) string {
	return reBullets.ReplaceAllString(s, "${1}-")
}

var quotes = strings.NewReplacer(
	"«", `"`, "»", `"`, "„", `"`, "“", `"`, "”", `"`, "‟", `"`,
	"❝", `"`, "❞", `"`, "〝", `"`, "〞", `"`, "〟", `"`, "＂", `"`,
	"‹", "'", "›", "'", "‚", "'", "‘", "'", "’", "'", "‛", "'",
	"❛", "'", "❜", "'", "❮", "'", "❯", "'", "`", "'", "´", "'", "＇", "'",
)

// QuotationMarks folds typographic quotes to ASCII.
func QuotationMarks(s string) string {
	return quotes.Replace(s)
}

// The leading group stands in for a lookbehind: a hashtag starts the string
// or follows a character that is not a word char, '#' or '.'.
var reHashtag = regexp.MustCompile(`(^|[^\p{L}\p{N}_#＃.])[#＃][\p{L}\p{N}_]*\p{L}[\p{L}\p{N}_]*`)

// ReplaceHashtags replaces hashtags with _TAG_.
func ReplaceHashtags(s string) string {
	if !strings.ContainsAny(s, "#＃") {
		return s
	}
	return reHashtag.ReplaceAllString(s, "${1}_TAG_")
}

var (
	reCurly  = regexp.MustCompile(`\{[^{}]*?\}`)
	reRound  = regexp.MustCompile(`\([^()]*?\)`)
	reSquare = regexp.MustCompile(`\[[^\[\]]*?\]`)
)

// RemoveBrackets drops innermost (), [] and {} spans with their contents.
func RemoveBrackets(s string) string {
	s = reCurly.ReplaceAllString(s, "")
	s = reRound.ReplaceAllString(s, "")
	return reSquare.ReplaceAllString(s, "")
}

var (
	reURL = xurls.Strict()
	reWWW = regexp.MustCompile(`(?i)\bwww\d{0,3}\.[^\s<>"]+`)
)

// ReplaceURLs replaces URLs with _URL_.
func ReplaceURLs(s string) string {
	s = reURL.ReplaceAllString(s, "_URL_")
	return reWWW.ReplaceAllString(s, "_URL_")
}
