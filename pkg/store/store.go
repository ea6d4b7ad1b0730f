// Package store implements a content-addressed file cache for captured
// image bytes. Files are named by a prefix of the SHA-256 of their content
// and are written at most once.
package store

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/jmylchreest/pixscout/internal/logger"
)

// HashLength is the number of hex characters kept from the SHA-256 digest.
const HashLength = 16

// DefaultURLPrefix is the relative path captured files are served under.
const DefaultURLPrefix = "/captured"

// DefaultExt is used when no extension can be determined.
const DefaultExt = "jpg"

var allowedExts = map[string]bool{
	"jpg":  true,
	"png":  true,
	"gif":  true,
	"webp": true,
	"svg":  true,
	"bmp":  true,
}

// Asset describes a file held by the store.
type Asset struct {
	Hash string `json:"contentHash"`
	Path string `json:"localPath"`
	URL  string `json:"url"`
	Ext  string `json:"extension"`
}

// Store is a directory of immutable files named {hash}.{ext}.
// It is safe for concurrent use.
type Store struct {
	dir       string
	urlPrefix string
}

// New creates the store directory if needed.
func New(dir, urlPrefix string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("store directory is required")
	}
	if urlPrefix == "" {
		urlPrefix = DefaultURLPrefix
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	return &Store{
		dir:       dir,
		urlPrefix: "/" + strings.Trim(urlPrefix, "/"),
	}, nil
}

// Dir returns the backing directory.
func (s *Store) Dir() string { return s.dir }

// Hash returns the content key for body.
func Hash(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])[:HashLength]
}

// Put stores body under its content hash. If a file for the same content
// already exists it is left untouched and its asset is returned.
func (s *Store) Put(body []byte, ext string) (Asset, error) {
	ext = normalizeExt(ext)
	if ext == "" {
		ext = DefaultExt
	}

	h := Hash(body)
	name := h + "." + ext
	asset := Asset{
		Hash: h,
		Path: filepath.Join(s.dir, name),
		URL:  path.Join(s.urlPrefix, name),
		Ext:  ext,
	}

	if _, err := os.Stat(asset.Path); err == nil {
		logger.Debug("store hit", "hash", h, "ext", ext)
		return asset, nil
	}

	// Concurrent writers of the same content race on the rename, which is
	// harmless since every writer produces identical bytes.
	tmp, err := os.CreateTemp(s.dir, "."+h+"-*.tmp")
	if err != nil {
		return Asset{}, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(body); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return Asset{}, fmt.Errorf("failed to write asset: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return Asset{}, fmt.Errorf("failed to close asset: %w", err)
	}
	if err := os.Rename(tmpName, asset.Path); err != nil {
		_ = os.Remove(tmpName)
		return Asset{}, fmt.Errorf("failed to commit asset: %w", err)
	}

	logger.Debug("store write", "hash", h, "ext", ext, "bytes", len(body))
	return asset, nil
}

// Lookup maps a served URL back to its file, reporting whether it is a
// file this store holds.
func (s *Store) Lookup(rawURL string) (string, bool) {
	if !strings.HasPrefix(rawURL, s.urlPrefix+"/") {
		return "", false
	}
	name := strings.TrimPrefix(rawURL, s.urlPrefix+"/")
	if name == "" || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return "", false
	}
	p := filepath.Join(s.dir, name)
	if _, err := os.Stat(p); err != nil {
		return "", false
	}
	return p, true
}

// ExtFromContentType maps an image content type to a store extension,
// defaulting to jpg.
func ExtFromContentType(contentType string) string {
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "png"):
		return "png"
	case strings.Contains(ct, "gif"):
		return "gif"
	case strings.Contains(ct, "webp"):
		return "webp"
	case strings.Contains(ct, "svg"):
		return "svg"
	case strings.Contains(ct, "bmp"):
		return "bmp"
	default:
		return DefaultExt
	}
}

// ExtFromURL returns the store extension implied by the URL path, or ""
// when the path has no allowed image suffix.
func ExtFromURL(rawURL string) string {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	} else if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	return normalizeExt(strings.TrimPrefix(path.Ext(strings.ToLower(p)), "."))
}

// SniffExt detects the extension from the bytes themselves, or "" if the
// content is not a storable image type.
func SniffExt(body []byte) string {
	mt := mimetype.Detect(body)
	if !strings.HasPrefix(mt.String(), "image/") {
		return ""
	}
	return normalizeExt(strings.TrimPrefix(mt.Extension(), "."))
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	if ext == "jpeg" {
		ext = "jpg"
	}
	if !allowedExts[ext] {
		return ""
	}
	return ext
}
