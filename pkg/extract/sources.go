package extract

import (
	"context"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/tidwall/gjson"

	"github.com/jmylchreest/pixscout/internal/logger"
)

// page carries what every source needs about the document being mined.
type page struct {
	ctx     context.Context
	doc     *goquery.Document
	base    *url.URL
	baseURL string
	cookie  string
}

// source mines one kind of image reference. It never fails; anything it
// cannot parse is skipped.
type source struct {
	name    string
	collect func(p *page) []Candidate
}

// imgAttrs is the priority order of attributes holding an <img> source.
var imgAttrs = []string{
	"src", "data-src", "data-lazy-src", "data-original", "data-srcset",
	"data-lazy", "data-url", "data-image", "data-img",
}

func attr(s *goquery.Selection, name string) string {
	v, _ := s.Attr(name)
	return strings.TrimSpace(v)
}

func collectImgTags(p *page) []Candidate {
	var out []Candidate
	p.doc.Find("img").Each(func(_ int, img *goquery.Selection) {
		var src, from string
		for _, name := range imgAttrs {
			if v := attr(img, name); v != "" {
				src, from = v, name
				break
			}
		}
		if src == "" {
			return
		}

		alt, width, height := attr(img, "alt"), attr(img, "width"), attr(img, "height")

		if srcset := attr(img, "data-srcset"); srcset != "" {
			for _, tok := range SplitSrcset(srcset) {
				if abs, ok := Resolve(p.base, tok); ok {
					out = append(out, Candidate{
						URL: abs, AltText: alt, Width: width, Height: height,
						OriginalSource: tok, Source: SourceSrcset,
					})
				}
			}
		}

		// A srcset chosen as the primary source has already been split above.
		if from == "data-srcset" {
			return
		}
		if abs, ok := Resolve(p.base, src); ok {
			out = append(out, Candidate{
				URL: abs, AltText: alt, Width: width, Height: height,
				OriginalSource: src, Source: SourceTag,
			})
		}
	})
	return out
}

func collectStyleBlocks(legacy bool) func(p *page) []Candidate {
	return func(p *page) []Candidate {
		var out []Candidate
		p.doc.Find("style").Each(func(_ int, s *goquery.Selection) {
			for _, ref := range styleBlockURLs(s.Text(), legacy) {
				if abs, ok := Resolve(p.base, ref); ok {
					out = append(out, Candidate{
						URL: abs, AltText: "CSS background image",
						OriginalSource: ref, Source: SourceCSSInline,
					})
				}
			}
		})
		return out
	}
}

func collectStylesheets(f StylesheetFetcher) func(p *page) []Candidate {
	return func(p *page) []Candidate {
		if f == nil {
			return nil
		}
		headers := map[string]string{"Referer": p.baseURL}
		if p.cookie != "" {
			headers["Cookie"] = p.cookie
		}

		var out []Candidate
		p.doc.Find("link[rel][href]").Each(func(_ int, link *goquery.Selection) {
			if !hasToken(attr(link, "rel"), "stylesheet") {
				return
			}
			cssURL, ok := Resolve(p.base, attr(link, "href"))
			if !ok {
				return
			}

			css, err := f.FetchStylesheet(p.ctx, cssURL, headers)
			if err != nil {
				logger.Debug("stylesheet skipped", "url", cssURL, "error", err)
				return
			}

			cssBase, err := url.Parse(cssURL)
			if err != nil {
				return
			}
			for _, ref := range stylesheetURLs(css) {
				if abs, ok := Resolve(cssBase, ref); ok {
					out = append(out, Candidate{
						URL: abs, AltText: "external CSS background image",
						OriginalSource: ref, Source: SourceCSSExternal,
					})
				}
			}
		})
		return out
	}
}

func collectStyleAttrs(p *page) []Candidate {
	var out []Candidate
	p.doc.Find("[style]").Each(func(_ int, s *goquery.Selection) {
		for _, ref := range submatches(styleAttrPattern, attr(s, "style")) {
			if abs, ok := Resolve(p.base, ref); ok {
				out = append(out, Candidate{
					URL: abs, AltText: "inline style background image",
					OriginalSource: ref, Source: SourceCSSInline,
				})
			}
		}
	})
	return out
}

func collectPictureSources(p *page) []Candidate {
	var out []Candidate
	p.doc.Find("picture source[srcset]").Each(func(_ int, s *goquery.Selection) {
		for _, tok := range SplitSrcset(attr(s, "srcset")) {
			if abs, ok := Resolve(p.base, tok); ok {
				out = append(out, Candidate{
					URL: abs, AltText: "picture element image",
					OriginalSource: tok, Source: SourcePicture,
				})
			}
		}
	})
	return out
}

var metaImageSelectors = []string{
	`meta[property="og:image"]`,
	`meta[property="og:image:url"]`,
	`meta[name="twitter:image"]`,
	`meta[itemprop="image"]`,
}

func collectMetaImages(p *page) []Candidate {
	var out []Candidate
	for _, sel := range metaImageSelectors {
		p.doc.Find(sel).Each(func(_ int, m *goquery.Selection) {
			content := attr(m, "content")
			if abs, ok := Resolve(p.base, content); ok {
				out = append(out, Candidate{
					URL: abs, AltText: "meta image",
					OriginalSource: content, Source: SourceMeta,
				})
			}
		})
	}
	return out
}

func collectNoscript(p *page) []Candidate {
	var out []Candidate
	p.doc.Find("noscript").Each(func(_ int, ns *goquery.Selection) {
		inner := noscriptMarkup(ns)
		if strings.TrimSpace(inner) == "" {
			return
		}
		nested, err := goquery.NewDocumentFromReader(strings.NewReader(inner))
		if err != nil {
			return
		}
		nested.Find("img").Each(func(_ int, img *goquery.Selection) {
			src := attr(img, "src")
			if src == "" {
				src = attr(img, "data-src")
			}
			abs, ok := Resolve(p.base, src)
			if !ok {
				return
			}
			alt := attr(img, "alt")
			if alt == "" {
				alt = "noscript image"
			}
			out = append(out, Candidate{
				URL: abs, AltText: alt,
				Width: attr(img, "width"), Height: attr(img, "height"),
				OriginalSource: src, Source: SourceNoscript,
			})
		})
	})
	return out
}

// noscriptMarkup returns the markup inside a <noscript>. With scripting
// enabled the parser keeps its content as raw text; otherwise it holds
// parsed elements that must be rendered back.
func noscriptMarkup(ns *goquery.Selection) string {
	if ns.Children().Length() == 0 {
		return ns.Text()
	}
	inner, err := ns.Html()
	if err != nil {
		return ""
	}
	return inner
}

func collectVideoPosters(p *page) []Candidate {
	var out []Candidate
	p.doc.Find("video[poster]").Each(func(_ int, v *goquery.Selection) {
		poster := attr(v, "poster")
		if abs, ok := Resolve(p.base, poster); ok {
			out = append(out, Candidate{
				URL: abs, AltText: "video poster",
				OriginalSource: poster, Source: SourceVideoPoster,
			})
		}
	})
	return out
}

var scriptImagePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)https?://[^"\s,]+\.(?:jpg|jpeg|png|gif|webp|svg|bmp|ico|tiff)`),
	regexp.MustCompile(`(?i)https?://[^"\s,]*images[^"\s,]*\.(?:jpg|jpeg|png|gif|webp|svg|bmp)`),
	regexp.MustCompile(`(?i)https?://[^"\s,]*\.itc\.cn[^"\s,]*\.(?:jpg|jpeg|png|gif|webp|svg|bmp)`),
	regexp.MustCompile(`(?i)https?://[^"\s,]*openai\.com[^"\s,]*\.(?:jpg|jpeg|png|gif|webp|svg|bmp)`),
	regexp.MustCompile(`(?i)https?://[^"\s,]*doubao\.com[^"\s,]*\.(?:jpg|jpeg|png|gif|webp|svg|bmp)`),
	regexp.MustCompile(`(?i)https?://[^"\s,]*thumbnails[^"\s,]*`),
	regexp.MustCompile(`(?i)https?://[^"\s,]*thumb[^"\s,]*\.(?:jpg|jpeg|png|gif|webp)`),
	regexp.MustCompile(`(?i)https?://[^"\s,]*cdn[^"\s,]*\.(?:jpg|jpeg|png|gif|webp|svg|bmp)`),
	regexp.MustCompile(`(?i)data:image/[^;]+;base64,[A-Za-z0-9+/=]+`),
	regexp.MustCompile(`(?i)["'][^"']*\.(?:jpg|jpeg|png|gif|webp|svg|bmp)["']`),
}

func isJSONScript(s *goquery.Selection) bool {
	return strings.Contains(strings.ToLower(attr(s, "type")), "json")
}

func collectScriptURLs(p *page) []Candidate {
	var out []Candidate
	p.doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		if isJSONScript(s) {
			return
		}
		body := s.Text()
		if strings.TrimSpace(body) == "" {
			return
		}
		for _, re := range scriptImagePatterns {
			for _, match := range re.FindAllString(body, -1) {
				raw := strings.Trim(match, `"',`)
				if raw == "" {
					continue
				}
				if abs, ok := resolveScriptPath(p.base, raw); ok {
					out = append(out, Candidate{
						URL: abs, AltText: "script image",
						OriginalSource: raw, Source: SourceScriptRegex,
					})
				}
			}
		}
	})
	return out
}

var jsonImageExts = []string{".jpg", ".jpeg", ".png", ".gif", ".webp", ".svg", ".bmp"}

func looksLikeImage(s string) bool {
	lower := strings.ToLower(s)
	for _, ext := range jsonImageExts {
		if strings.Contains(lower, ext) {
			return true
		}
	}
	return false
}

func collectJSONScripts(p *page) []Candidate {
	var out []Candidate
	p.doc.Find("script[type]").Each(func(_ int, s *goquery.Selection) {
		t := strings.ToLower(attr(s, "type"))
		if t != "application/json" && t != "application/ld+json" {
			return
		}
		body := strings.TrimSpace(s.Text())
		if body == "" || !gjson.Valid(body) {
			logger.Debug("json script skipped", "type", t, "size", len(body))
			return
		}
		walkJSON(gjson.Parse(body), "", func(path, value string) {
			abs, ok := Resolve(p.base, value)
			if !ok {
				return
			}
			out = append(out, Candidate{
				URL: abs, AltText: "JSON data image (" + path + ")",
				OriginalSource: value, Source: SourceJSON,
			})
		})
	})
	return out
}

// walkJSON visits every string leaf that looks like an image reference,
// reporting its path in key.path[index] form.
func walkJSON(v gjson.Result, path string, visit func(path, value string)) {
	switch {
	case v.IsObject():
		v.ForEach(func(key, val gjson.Result) bool {
			child := key.String()
			if path != "" {
				child = path + "." + child
			}
			walkJSON(val, child, visit)
			return true
		})
	case v.IsArray():
		i := 0
		v.ForEach(func(_, val gjson.Result) bool {
			walkJSON(val, path+"["+strconv.Itoa(i)+"]", visit)
			i++
			return true
		})
	case v.Type == gjson.String:
		if s := v.String(); looksLikeImage(s) {
			visit(path, s)
		}
	}
}

func hasToken(list, token string) bool {
	for _, f := range strings.Fields(strings.ToLower(list)) {
		if f == token {
			return true
		}
	}
	return false
}
