package extract

import (
	"net/url"
	"regexp"
	"strings"
)

// Resolve returns ref as an absolute URL against base. It reports false
// when either side cannot be parsed.
func Resolve(base *url.URL, ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", false
	}
	if strings.HasPrefix(strings.ToLower(ref), "data:") {
		return ref, true
	}
	u, err := url.Parse(ref)
	if err != nil {
		return "", false
	}
	if base == nil {
		if !u.IsAbs() {
			return "", false
		}
		return u.String(), true
	}
	return base.ResolveReference(u).String(), true
}

// resolveScriptPath resolves a path mined from script text. Paths that are
// neither absolute nor rooted are treated as root-relative.
func resolveScriptPath(base *url.URL, p string) (string, bool) {
	lower := strings.ToLower(p)
	switch {
	case strings.HasPrefix(lower, "http://"),
		strings.HasPrefix(lower, "https://"),
		strings.HasPrefix(lower, "data:"):
		return p, true
	case strings.HasPrefix(p, "/"):
		return Resolve(base, p)
	default:
		return Resolve(base, "/"+p)
	}
}

var (
	srcsetTokenRe = regexp.MustCompile(`[^\s,]+`)
	descriptorRe  = regexp.MustCompile(`^\d+(\.\d+)?[wxh]$`)
)

// SplitSrcset returns the URL tokens of a srcset value, skipping width and
// density descriptors.
func SplitSrcset(srcset string) []string {
	var out []string
	for _, tok := range srcsetTokenRe.FindAllString(srcset, -1) {
		if descriptorRe.MatchString(strings.ToLower(tok)) {
			continue
		}
		out = append(out, tok)
	}
	return out
}
