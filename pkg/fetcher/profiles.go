package fetcher

import "maps"

// User agents used by the default profiles.
const (
	MacChromeUserAgent     = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	WindowsChromeUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// DefaultAcceptLanguage is sent by every profile and by the browser session.
const DefaultAcceptLanguage = "zh-CN,zh;q=0.9,en;q=0.8"

// Profile is a named, immutable set of request headers.
type Profile struct {
	Name    string
	Headers map[string]string
}

// With returns a copy of p with extra headers applied.
func (p Profile) With(name string, extra map[string]string) Profile {
	h := maps.Clone(p.Headers)
	maps.Copy(h, extra)
	return Profile{Name: name, Headers: h}
}

// UserAgent returns the profile's User-Agent header.
func (p Profile) UserAgent() string {
	return p.Headers["User-Agent"]
}

// BaselineProfile mimics a desktop Chrome navigation request.
func BaselineProfile() Profile {
	return Profile{
		Name: "baseline",
		Headers: map[string]string{
			"User-Agent":                MacChromeUserAgent,
			"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,image/apng,*/*;q=0.8",
			"Accept-Language":           DefaultAcceptLanguage,
			"Accept-Encoding":           "gzip, deflate, br",
			"DNT":                       "1",
			"Connection":                "keep-alive",
			"Upgrade-Insecure-Requests": "1",
			"Sec-Fetch-Dest":            "document",
			"Sec-Fetch-Mode":            "navigate",
			"Sec-Fetch-Site":            "none",
			"Cache-Control":             "max-age=0",
		},
	}
}

// DefaultProfiles returns the three profiles tried in order: the baseline,
// the baseline with a search referer and client hints, and the baseline
// with a Windows User-Agent. The last one carries no macOS client hints.
func DefaultProfiles() []Profile {
	base := BaselineProfile()
	hints := base.With("referer-hints", map[string]string{
		"Referer":            "https://www.google.com/",
		"Sec-Ch-Ua":          `"Not_A Brand";v="8", "Chromium";v="120", "Google Chrome";v="120"`,
		"Sec-Ch-Ua-Mobile":   "?0",
		"Sec-Ch-Ua-Platform": `"macOS"`,
	})
	alt := base.With("alternate-ua", map[string]string{
		"User-Agent": WindowsChromeUserAgent,
	})
	return []Profile{base, hints, alt}
}
