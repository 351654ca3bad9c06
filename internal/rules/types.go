// Package rules implements spec.md §4.5/§6's declarative rule grammar: a
// recursive condition tree matched against a file's path/mime/ext/tags,
// each matched rule contributing a list of actions. Rules are authored as
// TOML files and persisted as opaque JSON blobs in internal/store.
package rules

// ConditionKind discriminates the recursive Condition union, mirroring
// original_source/rules.rs's `#[serde(tag = "type")]` enum.
type ConditionKind string

const (
	ConditionPathPrefix ConditionKind = "path_prefix"
	ConditionMime       ConditionKind = "mime"
	ConditionExtension  ConditionKind = "extension"
	ConditionTag        ConditionKind = "tag"
	ConditionAnd        ConditionKind = "and"
	ConditionOr         ConditionKind = "or"
)

// Condition is one node of the condition tree. Only the fields relevant
// to Type are populated; this flattened shape (rather than a Go
// interface) is what lets a single TOML/JSON struct round-trip through
// go-toml/v2 and encoding/json without a custom tagged-union decoder.
type Condition struct {
	Type ConditionKind `toml:"type" json:"type"`

	Prefix string `toml:"prefix,omitempty" json:"prefix,omitempty"`
	Mime   string `toml:"mime,omitempty" json:"mime,omitempty"`
	Ext    string `toml:"ext,omitempty" json:"ext,omitempty"`
	Tag    string `toml:"tag,omitempty" json:"tag,omitempty"`

	All []Condition `toml:"all,omitempty" json:"all,omitempty"`
	Any []Condition `toml:"any,omitempty" json:"any,omitempty"`
}

// ActionKind discriminates the Action union.
type ActionKind string

const (
	ActionMove   ActionKind = "move"
	ActionTag    ActionKind = "tag"
	ActionRename ActionKind = "rename"
)

// Action is one effect a matched rule contributes.
type Action struct {
	Type ActionKind `toml:"type" json:"type"`

	To       string `toml:"to,omitempty" json:"to,omitempty"`
	Tag      string `toml:"tag,omitempty" json:"tag,omitempty"`
	Template string `toml:"template,omitempty" json:"template,omitempty"`
}

// Rule is one named, priority-ordered condition/action pair, the
// in-memory mirror of a TOML rule file.
type Rule struct {
	Name      string      `toml:"name" json:"name"`
	Priority  int         `toml:"priority" json:"priority"`
	Enabled   bool        `toml:"enabled" json:"enabled"`
	Condition Condition   `toml:"condition" json:"condition"`
	Actions   []Action    `toml:"actions" json:"actions"`
}

// Context is the file-side state a condition tree is matched against.
type Context struct {
	Path string
	MIME string
	Ext  string
	Tags []string
}
