package textnorm

import "testing"

func TestSteps(t *testing.T) {
	tests := []struct {
		name string
		fn   Func
		in   string
		want string
	}{
		{"html tags", RemoveHTMLTags, "<p>Hello <b>world</b></p>", "Hello world"},
		{"html entities", RemoveHTMLTags, "Fish &amp; Chips", "Fish & Chips"},
		{"html plain", RemoveHTMLTags, "no markup", "no markup"},
		{"nfc", NFC, "e\u0301", "\u00e9"},
		{"zero width", Whitespace, "a\u200bb\ufeff", "ab"},
		{"linebreaks", Whitespace, "a\r\n\n\nb", "a\nb"},
		{"spaces", Whitespace, "  a \t  b  ", "a b"},
		{"bullets", BulletPoints, "list:\n• one\n  ● two", "list:\n- one\n  - two"},
		{"bullet mid-line", BulletPoints, "a • b", "a • b"},
		{"quotes", QuotationMarks, "“quoted” and ‘single’", `"quoted" and 'single'`},
		{"hashtag", ReplaceHashtags, "love #GoLang today", "love _TAG_ today"},
		{"hashtag start", ReplaceHashtags, "#tbt photo", "_TAG_ photo"},
		{"hashtag digits only", ReplaceHashtags, "issue #123", "issue #123"},
		{"hashtag in word", ReplaceHashtags, "C#sharp", "C#sharp"},
		{"brackets", RemoveBrackets, "Paris (France) [1] {x} stays", "Paris    stays"},
		{"nested brackets", RemoveBrackets, "a (b (c) d) e", "a (b  d) e"},
		{"url", ReplaceURLs, "see https://example.com/a?b=1 now", "see _URL_ now"},
		{"www", ReplaceURLs, "visit www.example.org", "visit _URL_"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.fn(tc.in); got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestDefault(t *testing.T) {
	in := "<div>The  “Eiffel Tower” (Paris)\n\n• built 1889 #history\nsee https://en.wikipedia.org/wiki/Eiffel_Tower</div>"
	want := "The \"Eiffel Tower\" \n- built 1889 _TAG_\nsee _URL_"

	if got := Default()(in); got != want {
		t.Errorf("got %q\nwant %q", got, want)
	}
}

func TestPipeline_Order(t *testing.T) {
	p := Pipeline(
		func(s string) string { return s + "a" },
		func(s string) string { return s + "b" },
	)
	if got := p("x"); got != "xab" {
		t.Errorf("got %q", got)
	}
	if got := Pipeline()("same"); got != "same" {
		t.Errorf("empty pipeline changed input: %q", got)
	}
}
