package extract

import (
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// TextContent is the structured text of a page.
type TextContent struct {
	Title              string    `json:"title" yaml:"title"`
	Headings           []Heading `json:"headings" yaml:"headings"`
	Paragraphs         []string  `json:"paragraphs" yaml:"paragraphs"`
	Lists              []List    `json:"lists" yaml:"lists"`
	Links              []Link    `json:"links" yaml:"links"`
	FullText           string    `json:"fullText" yaml:"fullText"`
	MainContentSummary string    `json:"mainContentSummary" yaml:"mainContentSummary"`
}

// Heading is an h1-h6 element.
type Heading struct {
	Level string `json:"level" yaml:"level"`
	Text  string `json:"text" yaml:"text"`
}

// List is a ul or ol element with its items.
type List struct {
	Type  string   `json:"type" yaml:"type"`
	Items []string `json:"items" yaml:"items"`
}

// Link is an anchor with visible text.
type Link struct {
	Text string `json:"text" yaml:"text"`
	URL  string `json:"url" yaml:"url"`
}

// EmptyTextContent returns a TextContent with non-nil slices, so it
// serialises as empty arrays rather than null.
func EmptyTextContent() TextContent {
	return TextContent{
		Headings:   []Heading{},
		Paragraphs: []string{},
		Lists:      []List{},
		Links:      []Link{},
	}
}

// mainSelectors are tried in order to locate the main content region.
var mainSelectors = []string{
	"article", "main", "[role=main]", ".content", ".main-content",
	".post-content", ".article-content", ".entry-content",
	"#content", "#main", ".container", "body",
}

const (
	minParagraphRunes = 11
	summaryParagraphs = 5
	summaryRunes      = 500
	strippedSelector  = "script, style, nav, header, footer, aside"
)

func mainRegion(doc *goquery.Document) *goquery.Selection {
	for _, sel := range mainSelectors {
		if s := doc.Find(sel).First(); s.Length() > 0 {
			return s
		}
	}
	return doc.Find("body").First()
}

// extractText builds the TextContent of doc. The document is not modified.
func extractText(doc *goquery.Document, base *url.URL) TextContent {
	tc := EmptyTextContent()
	tc.Title = strings.TrimSpace(doc.Find("title").First().Text())

	region := mainRegion(doc)
	if region.Length() == 0 {
		return tc
	}

	region.Find("h1, h2, h3, h4, h5, h6").Each(func(_ int, s *goquery.Selection) {
		if text := strings.TrimSpace(s.Text()); text != "" {
			tc.Headings = append(tc.Headings, Heading{Level: goquery.NodeName(s), Text: text})
		}
	})

	region.Find("p").Each(func(_ int, s *goquery.Selection) {
		if text := strings.TrimSpace(s.Text()); KeepParagraph(text) {
			tc.Paragraphs = append(tc.Paragraphs, text)
		}
	})

	region.Find("ul, ol").Each(func(_ int, s *goquery.Selection) {
		var items []string
		s.Find("li").Each(func(_ int, li *goquery.Selection) {
			if text := strings.TrimSpace(li.Text()); text != "" {
				items = append(items, text)
			}
		})
		if len(items) > 0 {
			tc.Lists = append(tc.Lists, List{Type: goquery.NodeName(s), Items: items})
		}
	})

	region.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		href, _ := s.Attr("href")
		if text == "" || strings.TrimSpace(href) == "" {
			return
		}
		if abs, ok := Resolve(base, href); ok {
			tc.Links = append(tc.Links, Link{Text: text, URL: abs})
		}
	})

	clean := region.Clone()
	clean.Find(strippedSelector).Remove()
	tc.FullText = NormalizeText(clean.Text())
	tc.MainContentSummary = Summarize(tc.Paragraphs, tc.FullText)

	return tc
}

// KeepParagraph reports whether a paragraph is long enough to keep.
func KeepParagraph(text string) bool {
	return utf8.RuneCountInString(text) >= minParagraphRunes
}

// NormalizeText trims every line and drops empty ones.
func NormalizeText(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

// Summarize returns the first paragraphs joined by blank lines, or a
// truncated prefix of the full text when there are none.
func Summarize(paragraphs []string, fullText string) string {
	if len(paragraphs) > 0 {
		n := min(len(paragraphs), summaryParagraphs)
		return strings.Join(paragraphs[:n], "\n\n")
	}
	if utf8.RuneCountInString(fullText) <= summaryRunes {
		return fullText
	}
	return string([]rune(fullText)[:summaryRunes]) + "..."
}
