// Package extract mines image references and structured text from HTML
// documents.
package extract

import (
	"strings"
	"sync"
)

// Source identifies the heuristic that discovered a candidate.
type Source string

const (
	SourceTag             Source = "tag"
	SourceSrcset          Source = "srcset"
	SourceCSSInline       Source = "css-inline"
	SourceCSSExternal     Source = "css-external"
	SourcePicture         Source = "picture"
	SourceMeta            Source = "meta"
	SourceNoscript        Source = "noscript"
	SourceVideoPoster     Source = "video-poster"
	SourceScriptRegex     Source = "script-regex"
	SourceJSON            Source = "json"
	SourceDirectLink      Source = "direct-link"
	SourceRenderedNetwork Source = "rendered-network"
	SourceRenderedDOM     Source = "rendered-dom"
)

// Candidate is an unvalidated image reference.
type Candidate struct {
	URL            string `json:"url" yaml:"url"`
	AltText        string `json:"altText" yaml:"altText"`
	Width          string `json:"attrWidth,omitempty" yaml:"attrWidth,omitempty"`
	Height         string `json:"attrHeight,omitempty" yaml:"attrHeight,omitempty"`
	OriginalSource string `json:"originalSource" yaml:"originalSource"`
	Source         Source `json:"discoverySource" yaml:"discoverySource"`
	IsDirectImage  bool   `json:"isDirectImage,omitempty" yaml:"isDirectImage,omitempty"`
}

// Extraction is the output of a single page extraction.
type Extraction struct {
	Images []Candidate
	Text   TextContent
}

// CandidateSet collects candidates in discovery order, keeping the first
// candidate seen for each URL. It is safe for concurrent use.
type CandidateSet struct {
	mu    sync.Mutex
	items []Candidate
	seen  map[string]bool
}

// NewCandidateSet creates an empty set.
func NewCandidateSet() *CandidateSet {
	return &CandidateSet{
		items: make([]Candidate, 0),
		seen:  make(map[string]bool),
	}
}

// Add inserts c unless a candidate with the same URL is already present.
// It reports whether c was added.
func (s *CandidateSet) Add(c Candidate) bool {
	c.URL = strings.TrimSpace(c.URL)
	if c.URL == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.seen[c.URL] {
		return false
	}
	s.seen[c.URL] = true
	s.items = append(s.items, c)
	return true
}

// AddAll inserts every candidate, returning how many were new.
func (s *CandidateSet) AddAll(cs []Candidate) int {
	n := 0
	for _, c := range cs {
		if s.Add(c) {
			n++
		}
	}
	return n
}

// Contains reports whether a candidate with url has been added.
func (s *CandidateSet) Contains(url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seen[strings.TrimSpace(url)]
}

// Len returns the number of distinct candidates.
func (s *CandidateSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Items returns a copy of the candidates in discovery order.
func (s *CandidateSet) Items() []Candidate {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Candidate, len(s.items))
	copy(out, s.items)
	return out
}

// Dedupe returns cs with later duplicates of a URL removed.
func Dedupe(cs []Candidate) []Candidate {
	set := NewCandidateSet()
	set.AddAll(cs)
	return set.Items()
}
