// Package scanner walks configured roots and emits a stream of discovered
// files, skipping hidden entries, exclude globs, and (optionally)
// gitignored paths, per spec.md §4.1.
package scanner

// HashMode governs how much of a file's content the scanner hashes.
type HashMode string

const (
	HashModeNone HashMode = "none"
	HashModeFast HashMode = "fast"
	HashModeFull HashMode = "full"
)

// Options configures one scan pass.
type Options struct {
	// RootDir is the directory to walk.
	RootDir string

	// ExcludePatterns are glob-style patterns (see matchDirPattern /
	// matchFilePattern) applied in addition to the built-in defaults.
	ExcludePatterns []string

	// RespectGitignore parses nested .gitignore files under RootDir and
	// excludes paths they match.
	RespectGitignore bool

	// Workers bounds the hashing worker pool (0 = runtime.NumCPU()).
	Workers int

	// MaxFileSize skips files larger than this many bytes (0 = DefaultMaxFileSize).
	MaxFileSize int64

	// FollowSymlinks enables following symbolic links (default: false).
	FollowSymlinks bool

	// HashMode governs the content hash computed for each file.
	HashMode HashMode
}

// Item is one discovered file.
type Item struct {
	Path       string // absolute path
	Size       int64
	ModTime    int64 // unix nanos
	CTime      int64 // unix nanos
	Hash       string
	HashIsFull bool
}

// Result is streamed from Scan's output channel.
type Result struct {
	Item  *Item
	Error error
}

// DefaultMaxFileSize is the default cap on files the scanner will hash.
const DefaultMaxFileSize = 10 * 1024 * 1024

// resultChannelCapacity is the suggested bounded-channel capacity from
// spec.md §4.1/§5, so walk pace adapts to downstream DB write throughput.
const resultChannelCapacity = 100

// defaultExcludeDirs are always skipped regardless of ExcludePatterns.
var defaultExcludeDirs = []string{
	".git/**",
	"node_modules/**",
	".organizer/**",
	".Trash/**",
	"$RECYCLE.BIN/**",
	".organizer_keyword_index/**",
}

// defaultExcludeFiles are always skipped regardless of ExcludePatterns.
var defaultExcludeFiles = []string{
	"*.tmp",
	".DS_Store",
	"Thumbs.db",
}

// sensitiveFilePatterns are never indexed even if otherwise matched,
// mirroring the teacher's scanner's refusal to read credential-shaped files.
var sensitiveFilePatterns = []string{
	".env*",
	"*.pem",
	"*.key",
	"*credentials*",
	"*secrets*",
	"*password*",
	"id_rsa",
	"id_rsa.pub",
}
