// Package store persists the relational side of the engine: files, chunks,
// metadata, tags, rules, actions, the dirty queue, and the audit log. The
// vector side of the world lives in internal/vectorstore.
package store

import "time"

// FileStatus tracks a file row's position in the scan lifecycle.
type FileStatus string

const (
	FileStatusNew  FileStatus = "new"
	FileStatusSeen FileStatus = "seen"
	FileStatusGone FileStatus = "gone"
)

// File is a discovered filesystem entry, unique by absolute path.
type File struct {
	ID        int64
	Path      string
	Size      int64
	ModTime   time.Time
	CTime     time.Time
	FastHash  string
	FullHash  string
	Hash      string
	MIME      string
	Extension string
	Status    FileStatus
	FirstSeen time.Time
	LastSeen  time.Time
}

// Chunk is a bounded byte-range slice of a file's extracted text.
type Chunk struct {
	ID          int64
	FileID      int64
	Hash        string
	Start       uint64
	End         uint64
	TextPreview string
}

// Metadata is a key/value pair owned by a file, tagged with the component
// that derived it (exif, image, extract, ...).
type Metadata struct {
	FileID int64
	Key    string
	Value  string
	Source string
}

// Tag is a globally unique label.
type Tag struct {
	ID   int64
	Name string
}

// FileTagSource records which component attached a tag. spec.md §4.4
// persists every classifier-derived tag (heuristic, kNN, or LLM tier
// alike) under the single source "classifier"; the decision tier itself
// is not part of the persisted schema.
const (
	TagSourceClassifier = "classifier"
	TagSourceApply      = "apply"
)

// FileTag is the join row between a file and a tag.
type FileTag struct {
	FileID     int64
	TagID      int64
	TagName    string
	Confidence float64
	Source     string
}

// Rule is a named, priority-ordered condition/action pair loaded from a
// TOML file under the rules directory. ConditionJSON/ActionJSON hold the
// serialized condition tree and action list (internal/rules owns the
// schema; the store treats them as opaque JSON blobs).
type Rule struct {
	ID            int64
	Name          string
	Priority      int
	Enabled       bool
	ConditionJSON string
	ActionJSON    string
}

// ActionKind enumerates the kinds of planned change an apply pass can make.
type ActionKind string

const (
	ActionMove            ActionKind = "move"
	ActionRename          ActionKind = "rename"
	ActionTag             ActionKind = "tag"
	ActionDedupe          ActionKind = "dedupe"
	ActionMergeDuplicate  ActionKind = "merge_duplicate"
)

// ActionStatus is the three-state lifecycle of a planned action.
type ActionStatus string

const (
	ActionStatusPlanned  ActionStatus = "planned"
	ActionStatusExecuted ActionStatus = "executed"
	ActionStatusError    ActionStatus = "error"
)

// Action is a planned or executed unit of change against a single file.
type Action struct {
	ID         int64
	FileID     int64
	Kind       ActionKind
	Payload    string
	Status     ActionStatus
	Error      string
	CreatedAt  time.Time
	ExecutedAt *time.Time
	UndoToken  string
	BackupPath string
}

// DirtyEntry marks a path that needs downstream reprocessing.
type DirtyEntry struct {
	Path      string
	Reason    string
	UpdatedAt time.Time
}

// AuditEntry is an append-only log row.
type AuditEntry struct {
	ID       int64
	ActionID *int64
	Event    string
	Detail   string
	CreatedAt time.Time
}

// Audit event names, per spec.md §7.
const (
	EventFilePurged     = "file_purged"
	EventWatchPurge     = "watch_purge"
	EventActionError    = "action_error"
	EventActionExecuted = "action_executed"
	EventActionUndone   = "action_undone"
)

// ScanUpsert is the input to UpsertFile: everything the scanner observed
// about a path in one walk pass.
type ScanUpsert struct {
	Path      string
	Size      int64
	ModTime   time.Time
	CTime     time.Time
	Hash      string // empty when hash_mode=none
	HashIsFull bool
}

// UpsertResult reports what UpsertFile did, so callers can decide whether to
// mark the path dirty.
type UpsertResult struct {
	FileID  int64
	Created bool
	Changed bool
}

// ChunkDiff is the result of replacing a file's chunk set: which chunks were
// newly inserted and which stale ones were removed.
type ChunkDiff struct {
	Inserted []Chunk
	Deleted  []Chunk
}

// ChunkWithFile is a chunk joined with the file metadata the embedder
// needs to build a vector payload (spec.md §4.3).
type ChunkWithFile struct {
	Chunk
	FileID   int64
	Path     string
	MIME     string
	Extension string
	MTime    time.Time
	FileHash string
}

// PurgeResult collects everything a caller needs to clean up secondary
// stores (vector store, keyword index) after a file row is deleted.
type PurgeResult struct {
	FileID     int64
	Path       string
	FileHash   string
	ChunkHashes []string
}
