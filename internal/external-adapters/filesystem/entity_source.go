// Package filesystem resolves scan entities by walking a directory tree.
package filesystem

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/afero"

	"github.com/Amicidal/sigmachad-sub001/internal/domain/entities"
	"github.com/Amicidal/sigmachad-sub001/internal/domain/interfaces"
	"github.com/Amicidal/sigmachad-sub001/internal/domain/interfaces/repositories"
)

// FilePrefix marks file entity ids
const FilePrefix = "file:"

// DefaultSkipDirs are never descended into
var DefaultSkipDirs = []string{".git", ".hg", ".svn", "node_modules", "vendor", ".secscan", "__pycache__", ".venv"}

var languages = map[string]string{
	".js":     "javascript",
	".jsx":    "javascript",
	".mjs":    "javascript",
	".cjs":    "javascript",
	".ts":     "typescript",
	".tsx":    "typescript",
	".py":     "python",
	".rb":     "ruby",
	".go":     "go",
	".java":   "java",
	".kt":     "kotlin",
	".php":    "php",
	".cs":     "csharp",
	".rs":     "rust",
	".c":      "c",
	".h":      "c",
	".cpp":    "cpp",
	".sh":     "shell",
	".yaml":   "yaml",
	".yml":    "yaml",
	".json":   "json",
	".xml":    "xml",
	".toml":   "toml",
	".tf":     "terraform",
	".sql":    "sql",
	".html":   "html",
	".gradle": "groovy",
}

// SourceConfig controls the walk
type SourceConfig struct {
	// Root is walked when no ids are given; defaults to "."
	Root string
	// SkipDirs replaces DefaultSkipDirs when non-nil
	SkipDirs []string
	// Exclude holds doublestar globs matched against slash paths
	Exclude []string
}

// Source implements repositories.EntitySource over an afero filesystem
type Source struct {
	fs      afero.Fs
	root    string
	skip    map[string]bool
	exclude []string
	logger  interfaces.Logger
}

var _ repositories.EntitySource = (*Source)(nil)

// NewSource creates an entity source. Invalid exclude globs are rejected.
func NewSource(fsys afero.Fs, cfg SourceConfig, logger interfaces.Logger) (*Source, error) {
	for _, pattern := range cfg.Exclude {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid exclude pattern %q", pattern)
		}
	}

	skipDirs := cfg.SkipDirs
	if skipDirs == nil {
		skipDirs = DefaultSkipDirs
	}
	skip := make(map[string]bool, len(skipDirs))
	for _, d := range skipDirs {
		skip[d] = true
	}

	root := cfg.Root
	if root == "" {
		root = "."
	}

	return &Source{
		fs:      fsys,
		root:    root,
		skip:    skip,
		exclude: cfg.Exclude,
		logger:  interfaces.OrNoOp(logger),
	}, nil
}

// Resolve maps ids onto entities. An id is "file:<path>" or a bare path;
// directories expand to the files beneath them. Unknown ids are skipped.
func (s *Source) Resolve(ctx context.Context, ids []string) ([]entities.Entity, error) {
	var out []entities.Entity
	seen := make(map[string]bool)

	for _, id := range ids {
		path := filepath.Clean(strings.TrimPrefix(id, FilePrefix))
		info, err := s.fs.Stat(path)
		if err != nil {
			s.logger.Debug("skipping unknown entity", interfaces.F("id", id), interfaces.Err(err))
			continue
		}

		if !info.IsDir() {
			if !seen[path] {
				seen[path] = true
				out = append(out, newEntity(path, info))
			}
			continue
		}

		files, err := s.walk(ctx, path)
		if err != nil {
			return nil, err
		}
		for _, e := range files {
			if !seen[e.Path] {
				seen[e.Path] = true
				out = append(out, e)
			}
		}
	}
	return out, nil
}

// Recent returns up to limit files, most recently modified first
func (s *Source) Recent(ctx context.Context, limit int) ([]entities.Entity, error) {
	files, err := s.walk(ctx, s.root)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(files, func(i, j int) bool {
		if !files[i].LastModified.Equal(files[j].LastModified) {
			return files[i].LastModified.After(files[j].LastModified)
		}
		return files[i].Path < files[j].Path
	})
	if limit > 0 && len(files) > limit {
		files = files[:limit]
	}
	return files, nil
}

// All returns every file under the root in path order
func (s *Source) All(ctx context.Context) ([]entities.Entity, error) {
	return s.walk(ctx, s.root)
}

func (s *Source) walk(ctx context.Context, dir string) ([]entities.Entity, error) {
	var out []entities.Entity

	err := afero.Walk(s.fs, dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			// unreadable subtrees are skipped, not fatal
			s.logger.Warn("cannot read path", interfaces.F("path", path), interfaces.Err(err))
			if info != nil && info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if info.IsDir() {
			if path != dir && s.skip[info.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !info.Mode().IsRegular() || s.excluded(path) {
			return nil
		}

		out = append(out, newEntity(path, info))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", dir, err)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// Excluded reports whether a root-relative path matches an exclude glob
func (s *Source) Excluded(path string) bool {
	return s.excluded(path)
}

func (s *Source) excluded(path string) bool {
	slash := filepath.ToSlash(path)
	for _, pattern := range s.exclude {
		if ok, _ := doublestar.Match(pattern, slash); ok {
			return true
		}
	}
	return false
}

func newEntity(path string, info os.FileInfo) entities.Entity {
	e := entities.Entity{
		ID:           FilePrefix + path,
		Type:         entities.EntityFile,
		Path:         path,
		Size:         info.Size(),
		LastModified: info.ModTime(),
	}
	e.Language = languages[e.Extension()]
	return e
}
