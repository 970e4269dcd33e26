package parser

import (
	"path"
	"path/filepath"
	"sort"
	"strings"
)

var (
	jsExtensions   = []string{"", ".js", ".ts", ".jsx", ".tsx", ".mjs", "/index.js", "/index.ts"}
	dottedSuffixes = map[string][]string{
		".py":   {".py", "/__init__.py"},
		".java": {".java"},
		".cs":   {".cs"},
	}
)

// Resolver maps raw import identifiers to files of one project so that
// dependency edges point at indexed nodes. Identifiers it cannot map are
// left to the caller, which stores them as dangling edges.
type Resolver struct {
	files    map[string]string   // slash path -> original path
	suffixes map[string][]string // trailing slash path components -> original paths
	dirs     map[string][]string // trailing directory components -> non-test .go files
}

// NewResolver indexes a project's file list
func NewResolver(files []string) *Resolver {
	r := &Resolver{
		files:    make(map[string]string, len(files)),
		suffixes: make(map[string][]string),
		dirs:     make(map[string][]string),
	}

	for _, f := range files {
		slash := filepath.ToSlash(f)
		r.files[slash] = f

		parts := strings.Split(strings.TrimPrefix(slash, "/"), "/")
		for i := range parts {
			key := strings.Join(parts[i:], "/")
			r.suffixes[key] = append(r.suffixes[key], f)
		}

		if strings.HasSuffix(slash, ".go") && !strings.HasSuffix(slash, "_test.go") {
			dirParts := parts[:len(parts)-1]
			for i := range dirParts {
				key := strings.Join(dirParts[i:], "/")
				r.dirs[key] = append(r.dirs[key], f)
			}
		}
	}

	for _, m := range []map[string][]string{r.suffixes, r.dirs} {
		for k := range m {
			sort.Strings(m[k])
		}
	}
	return r
}

// Resolve maps importID, as seen in source, to project files. Go import
// paths resolve to every file of the matched package; other forms resolve
// to at most one file.
func (r *Resolver) Resolve(source, importID string) ([]string, bool) {
	if r == nil || importID == "" {
		return nil, false
	}

	src := filepath.ToSlash(source)
	ext := path.Ext(src)

	switch {
	case ext == ".go":
		return r.resolveGoPackage(importID)
	case ext == ".py" && strings.HasPrefix(importID, "."):
		return r.resolvePythonRelative(src, importID)
	case strings.HasPrefix(importID, "./") || strings.HasPrefix(importID, "../"):
		return r.resolveRelative(src, importID)
	}

	suffixes, ok := dottedSuffixes[ext]
	if !ok {
		suffixes = []string{".py", ".java", ".cs", ".js", ".ts"}
	}
	base := strings.ReplaceAll(importID, ".", "/")
	for _, suffix := range suffixes {
		if target, ok := r.bestSuffixMatch(src, base+suffix); ok {
			return []string{target}, true
		}
	}
	return nil, false
}

func (r *Resolver) resolvePythonRelative(src, importID string) ([]string, bool) {
	level := len(importID) - len(strings.TrimLeft(importID, "."))
	dir := path.Dir(src)
	for i := 1; i < level; i++ {
		dir = path.Dir(dir)
	}

	rest := strings.ReplaceAll(strings.TrimLeft(importID, "."), ".", "/")
	candidates := []string{path.Join(dir, "__init__.py")}
	if rest != "" {
		candidates = []string{path.Join(dir, rest) + ".py", path.Join(dir, rest, "__init__.py")}
	}
	return r.firstExisting(candidates)
}

func (r *Resolver) resolveRelative(src, importID string) ([]string, bool) {
	base := path.Join(path.Dir(src), importID)
	candidates := make([]string, 0, len(jsExtensions))
	for _, ext := range jsExtensions {
		candidates = append(candidates, base+ext)
	}
	return r.firstExisting(candidates)
}

// resolveGoPackage matches the longest trailing run of import path elements
// against project directories. Single-element paths are standard library.
func (r *Resolver) resolveGoPackage(importID string) ([]string, bool) {
	parts := strings.Split(strings.Trim(importID, "/"), "/")
	if len(parts) < 2 {
		return nil, false
	}
	for k := len(parts); k >= 2; k-- {
		if files, ok := r.dirs[strings.Join(parts[len(parts)-k:], "/")]; ok {
			return append([]string(nil), files...), true
		}
	}
	return nil, false
}

func (r *Resolver) firstExisting(candidates []string) ([]string, bool) {
	for _, c := range candidates {
		if f, ok := r.files[c]; ok {
			return []string{f}, true
		}
	}
	return nil, false
}

// bestSuffixMatch picks, among files ending in suffix, the one sharing the
// longest directory prefix with src; ties go to the first in sorted order.
func (r *Resolver) bestSuffixMatch(src, suffix string) (string, bool) {
	matches := r.suffixes[suffix]
	if len(matches) == 0 {
		return "", false
	}

	best, bestLen := matches[0], -1
	for _, m := range matches {
		if n := commonPrefixLen(src, filepath.ToSlash(m)); n > bestLen {
			best, bestLen = m, n
		}
	}
	return best, true
}

func commonPrefixLen(a, b string) int {
	n := 0
	for n < len(a) && n < len(b) && a[n] == b[n] {
		n++
	}
	return n
}
