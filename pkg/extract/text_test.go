package extract

import (
	"context"
	"reflect"
	"strings"
	"testing"
)

func textOf(t *testing.T, html, base string) TextContent {
	t.Helper()
	return extractHTML(t, NewStatic(StaticConfig{}), html, base).Text
}

func TestText_Structure(t *testing.T) {
	html := `<html><head><title> Page Title </title></head><body>
		<nav><a href="/nav">Navigation link</a></nav>
		<article>
			<h1>Main heading</h1>
			<h3>Sub heading</h3>
			<h2>   </h2>
			<p>short</p>
			<p>A paragraph that is comfortably long.</p>
			<ul><li>one</li><li> </li><li>two</li></ul>
			<ol><li>first</li></ol>
			<ul></ul>
			<a href="related">Related post</a>
			<a href="/empty"> </a>
			<script>var noise = 1;</script>
		</article>
		<footer>Footer text</footer>
	</body></html>`

	tc := textOf(t, html, "https://example.com/posts/1")

	if tc.Title != "Page Title" {
		t.Errorf("Title = %q", tc.Title)
	}

	wantHeadings := []Heading{{Level: "h1", Text: "Main heading"}, {Level: "h3", Text: "Sub heading"}}
	if !reflect.DeepEqual(tc.Headings, wantHeadings) {
		t.Errorf("Headings = %+v", tc.Headings)
	}

	if !reflect.DeepEqual(tc.Paragraphs, []string{"A paragraph that is comfortably long."}) {
		t.Errorf("Paragraphs = %q", tc.Paragraphs)
	}

	wantLists := []List{{Type: "ul", Items: []string{"one", "two"}}, {Type: "ol", Items: []string{"first"}}}
	if !reflect.DeepEqual(tc.Lists, wantLists) {
		t.Errorf("Lists = %+v", tc.Lists)
	}

	wantLinks := []Link{{Text: "Related post", URL: "https://example.com/posts/related"}}
	if !reflect.DeepEqual(tc.Links, wantLinks) {
		t.Errorf("Links = %+v", tc.Links)
	}

	if strings.Contains(tc.FullText, "noise") {
		t.Error("FullText should not contain script text")
	}
	if strings.Contains(tc.FullText, "Footer") || strings.Contains(tc.FullText, "Navigation") {
		t.Error("FullText should only cover the main region")
	}
	if !strings.HasPrefix(tc.FullText, "Main heading\nSub heading") {
		t.Errorf("FullText = %q", tc.FullText)
	}
	if tc.MainContentSummary != "A paragraph that is comfortably long." {
		t.Errorf("MainContentSummary = %q", tc.MainContentSummary)
	}
}

func TestText_KeepsScriptsForImageMining(t *testing.T) {
	html := `<body><p>Enough text to be a paragraph.</p>
		<script>var img = "https://cdn.example.com/after-text.png";</script></body>`

	got := extractHTML(t, NewStatic(StaticConfig{}), html, "https://example.com/")

	if _, ok := findCandidate(got.Images, "https://cdn.example.com/after-text.png"); !ok {
		t.Errorf("script image lost after text extraction: %v", urlsOf(got.Images))
	}
}

func TestText_EmptyDocument(t *testing.T) {
	got, err := NewStatic(StaticConfig{}).Extract(context.Background(), "", "https://x.com/", Options{})
	if err != nil {
		t.Fatal(err)
	}
	tc := got.Text
	if tc.Headings == nil || tc.Paragraphs == nil || tc.Lists == nil || tc.Links == nil {
		t.Error("slices should be empty, not nil")
	}
	if len(got.Images) != 0 {
		t.Errorf("images = %v", got.Images)
	}
}

func TestKeepParagraph(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"0123456789", false},
		{"0123456789a", true},
		{"日本語のテキストです。十分", true},
		{"", false},
	}
	for _, tt := range tests {
		if got := KeepParagraph(tt.text); got != tt.want {
			t.Errorf("KeepParagraph(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestNormalizeText(t *testing.T) {
	got := NormalizeText("  a  \n\n\t\n b\n   c ")
	if got != "a\nb\nc" {
		t.Errorf("NormalizeText() = %q", got)
	}
}

func TestSummarize(t *testing.T) {
	paras := []string{"p1", "p2", "p3", "p4", "p5", "p6"}
	if got := Summarize(paras, "ignored"); got != "p1\n\np2\n\np3\n\np4\n\np5" {
		t.Errorf("Summarize(paragraphs) = %q", got)
	}

	short := strings.Repeat("x", 500)
	if got := Summarize(nil, short); got != short {
		t.Error("text at the limit should not be truncated")
	}

	long := strings.Repeat("é", 600)
	got := Summarize(nil, long)
	if got != strings.Repeat("é", 500)+"..." {
		t.Errorf("truncated summary has %d runes", len([]rune(got)))
	}
}
