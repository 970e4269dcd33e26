// Package repo acquires source repositories and enumerates their files.
package repo

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/go-git/go-git/v5"
	"lukechampine.com/blake3"

	"github.com/dshills/ruleminer/pkg/types"
)

// DefaultExcludeDirs are skipped wherever they appear in a path
var DefaultExcludeDirs = []string{
	".git", "venv", ".venv", "node_modules", "__pycache__",
	"dist", "build", "env", ".env", "bin", "obj", "vendor",
}

// DefaultExtensions are the source extensions discovered when a codebase does
// not override them
var DefaultExtensions = []string{".py", ".cs", ".js", ".ts", ".java", ".go"}

// Manager resolves repository references into local directories.
type Manager struct {
	root         string
	excludeGlobs []string
	logger       *slog.Logger
}

// NewManager creates a Manager cloning into reposDir. excludeGlobs are
// doublestar patterns matched against root-relative slash paths.
func NewManager(reposDir string, excludeGlobs []string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{root: reposDir, excludeGlobs: excludeGlobs, logger: logger}
}

// Resolve returns a local directory for sourceRef. Existing paths pass
// through; git URLs are cloned once into the repos dir and reused after.
func (m *Manager) Resolve(ctx context.Context, sourceRef string) (string, error) {
	if info, err := os.Stat(sourceRef); err == nil {
		if !info.IsDir() {
			return "", fmt.Errorf("%w: source is not a directory: %s", types.ErrConfiguration, sourceRef)
		}
		return filepath.Abs(sourceRef)
	}

	if !IsGitURL(sourceRef) {
		return "", fmt.Errorf("%w: invalid path or URL: %s", types.ErrConfiguration, sourceRef)
	}

	target := filepath.Join(m.root, CloneDirName(sourceRef))
	if _, err := os.Stat(target); err == nil {
		m.logger.Info("repo.clone.reuse", "url", sourceRef, "path", target)
		return target, nil
	}

	if err := os.MkdirAll(m.root, 0o755); err != nil {
		return "", fmt.Errorf("create repos dir: %w", err)
	}

	m.logger.Info("repo.clone.start", "url", sourceRef, "path", target)
	_, err := git.PlainCloneContext(ctx, target, false, &git.CloneOptions{
		URL:   sourceRef,
		Depth: 1,
	})
	if err != nil {
		_ = os.RemoveAll(target)
		return "", fmt.Errorf("clone %s: %w", sourceRef, err)
	}
	return target, nil
}

// Revision returns the HEAD commit hash of a git working tree, or "" when
// path is not a repository.
func (m *Manager) Revision(path string) string {
	r, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return ""
	}
	head, err := r.Head()
	if err != nil {
		return ""
	}
	return head.Hash().String()
}

// IsGitURL reports whether ref looks like a clonable git remote.
func IsGitURL(ref string) bool {
	for _, prefix := range []string{"http://", "https://", "git://", "ssh://", "git@", "file://"} {
		if strings.HasPrefix(ref, prefix) {
			return true
		}
	}
	return strings.HasSuffix(ref, ".git")
}

// CloneDirName is <repo name>_<first 8 hex chars of blake3(url)>.
func CloneDirName(url string) string {
	sum := blake3.Sum256([]byte(url))
	name := strings.TrimSuffix(url, "/")
	if i := strings.LastIndexAny(name, "/:"); i >= 0 {
		name = name[i+1:]
	}
	name = strings.TrimSuffix(name, ".git")
	if name == "" {
		name = "repo"
	}
	return name + "_" + hex.EncodeToString(sum[:])[:8]
}

// ListSourceFiles walks root and returns matching files sorted by path.
// A file is skipped when any path component is in excludeDirs or its
// root-relative path matches one of the manager's exclude globs.
func (m *Manager) ListSourceFiles(root string, extensions, excludeDirs []string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", root)
	}

	exts := make(map[string]bool, len(extensions))
	for _, e := range extensions {
		exts[strings.ToLower(e)] = true
	}
	excluded := make(map[string]bool, len(excludeDirs))
	for _, d := range excludeDirs {
		excluded[d] = true
	}

	var files []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			m.logger.Warn("repo.walk.error", "path", path, "error", walkErr)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if path != root && excluded[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !exts[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if m.globExcluded(filepath.ToSlash(rel)) {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}

	sort.Strings(files)
	return files, nil
}

func (m *Manager) globExcluded(rel string) bool {
	for _, pattern := range m.excludeGlobs {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

// ReadFile returns the file content as text; invalid UTF-8 is replaced.
func (m *Manager) ReadFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.ToValidUTF8(string(data), "�"), nil
}
