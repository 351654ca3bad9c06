package scanner

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/fileorg/organizer/internal/ferrors"
	"github.com/fileorg/organizer/internal/gitignore"
	"github.com/fileorg/organizer/internal/hashing"
)

// gitignoreCacheSize bounds the number of parsed gitignore matchers kept
// per process, preventing unbounded growth on long-running watch sessions.
const gitignoreCacheSize = 1000

// Scanner walks configured roots and streams discovered files.
type Scanner struct {
	gitignoreCache *lru.Cache[string, *gitignore.Matcher]
}

// New constructs a Scanner.
func New() (*Scanner, error) {
	cache, err := lru.New[string, *gitignore.Matcher](gitignoreCacheSize)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.CodeInternal, err)
	}
	return &Scanner{gitignoreCache: cache}, nil
}

// Scan walks opts.RootDir and streams a Result per regular file found. The
// walk itself runs on a dedicated blocking goroutine; a pool of opts.Workers
// goroutines stat and hash discovered paths and push onto the bounded
// output channel, so walk pace adapts to the consumer's write throughput
// (spec.md §4.1/§5).
func (s *Scanner) Scan(ctx context.Context, opts Options) (<-chan Result, error) {
	absRoot, err := filepath.Abs(opts.RootDir)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.CodeFileNotFound, err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.CodeFileNotFound, err)
	}
	if !info.IsDir() {
		return nil, ferrors.New(ferrors.CodeInvalidPayload, "root path is not a directory", nil).WithDetail("path", absRoot)
	}

	maxFileSize := opts.MaxFileSize
	if maxFileSize <= 0 {
		maxFileSize = DefaultMaxFileSize
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	paths := make(chan string, workers*4)
	results := make(chan Result, resultChannelCapacity)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range paths {
				s.processPath(ctx, path, opts, maxFileSize, results)
			}
		}()
	}

	go func() {
		s.walk(ctx, absRoot, opts, paths)
		close(paths)
		wg.Wait()
		close(results)
	}()

	return results, nil
}

// walk performs the recursive directory traversal, pushing candidate file
// paths onto the paths channel. Directory- and pattern-level exclusion
// happens here so hashing workers only ever see files worth hashing.
func (s *Scanner) walk(ctx context.Context, absRoot string, opts Options, paths chan<- string) {
	_ = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err != nil {
			return nil
		}

		relPath, relErr := filepath.Rel(absRoot, path)
		if relErr != nil || relPath == "." {
			return nil
		}

		if isHidden(relPath) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if s.shouldExcludeDir(relPath, absRoot, opts) {
				return filepath.SkipDir
			}
			return nil
		}

		if d.Type()&fs.ModeSymlink != 0 && !opts.FollowSymlinks {
			return nil
		}
		if s.shouldExcludeFile(relPath, absRoot, opts) {
			return nil
		}

		select {
		case paths <- path:
		case <-ctx.Done():
			return ctx.Err()
		}
		return nil
	})
}

// processPath stats and (per opts.HashMode) hashes a single file, sending
// the outcome on results. Per-entry failures (permission denied, unreadable
// metadata, a hash failure) are swallowed as a logged-equivalent skip per
// spec.md §4.1's failure policy — the walk continues regardless.
func (s *Scanner) processPath(ctx context.Context, path string, opts Options, maxFileSize int64, results chan<- Result) {
	select {
	case <-ctx.Done():
		return
	default:
	}

	info, err := os.Stat(path)
	if err != nil {
		return
	}
	if info.Size() > maxFileSize {
		return
	}

	item := &Item{
		Path:    path,
		Size:    info.Size(),
		ModTime: info.ModTime().UnixNano(),
		CTime:   ctimeOf(info).UnixNano(),
	}

	switch opts.HashMode {
	case HashModeFull:
		if h, err := hashing.FullHash(path); err == nil {
			item.Hash, item.HashIsFull = h, true
		}
	case HashModeFast, "":
		if h, err := hashing.FastHash(path); err == nil {
			item.Hash = h
		}
	case HashModeNone:
	}

	select {
	case results <- Result{Item: item}:
	case <-ctx.Done():
	}
}

func isHidden(relPath string) bool {
	base := filepath.Base(relPath)
	return strings.HasPrefix(base, ".") && base != "." && base != ".."
}

func (s *Scanner) shouldExcludeDir(relPath, absRoot string, opts Options) bool {
	for _, pattern := range defaultExcludeDirs {
		if matchDirPattern(relPath, pattern) {
			return true
		}
	}
	for _, pattern := range opts.ExcludePatterns {
		if matchDirPattern(relPath, pattern) {
			return true
		}
	}
	if opts.RespectGitignore && s.isGitignored(relPath, absRoot, true) {
		return true
	}
	return false
}

func (s *Scanner) shouldExcludeFile(relPath, absRoot string, opts Options) bool {
	baseName := filepath.Base(relPath)

	for _, pattern := range sensitiveFilePatterns {
		if matchFilePattern(baseName, relPath, pattern) {
			return true
		}
	}
	for _, pattern := range defaultExcludeFiles {
		if matchFilePattern(baseName, relPath, pattern) {
			return true
		}
	}
	for _, pattern := range opts.ExcludePatterns {
		if matchFilePattern(baseName, relPath, pattern) {
			return true
		}
	}
	if opts.RespectGitignore && s.isGitignored(relPath, absRoot, false) {
		return true
	}
	return false
}

// isGitignored checks relPath against the root .gitignore plus every
// ancestor directory's own .gitignore, each scoped to its own base so a
// nested .gitignore only affects paths under it.
func (s *Scanner) isGitignored(relPath, absRoot string, isDir bool) bool {
	if m := s.getGitignoreMatcher(absRoot, ""); m != nil && m.Match(relPath, isDir) {
		return true
	}

	parts := strings.Split(filepath.Dir(relPath), string(filepath.Separator))
	currentDir, currentBase := absRoot, ""
	for _, part := range parts {
		if part == "." {
			continue
		}
		currentDir = filepath.Join(currentDir, part)
		currentBase = filepath.Join(currentBase, part)
		if m := s.getGitignoreMatcher(currentDir, currentBase); m != nil && m.Match(relPath, isDir) {
			return true
		}
	}
	return false
}

func (s *Scanner) getGitignoreMatcher(dir, base string) *gitignore.Matcher {
	if m, ok := s.gitignoreCache.Get(dir); ok {
		return m
	}
	gitignorePath := filepath.Join(dir, ".gitignore")
	if _, err := os.Stat(gitignorePath); err != nil {
		return nil
	}
	m := gitignore.New()
	if err := m.AddFromFile(gitignorePath, base); err != nil {
		return nil
	}
	s.gitignoreCache.Add(dir, m)
	return m
}

// InvalidateGitignoreCache drops all cached gitignore matchers, used by the
// watcher when a .gitignore file itself changes.
func (s *Scanner) InvalidateGitignoreCache() {
	s.gitignoreCache.Purge()
}
