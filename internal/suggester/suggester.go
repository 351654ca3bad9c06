// Package suggester turns the rule engine's matches and hash-based
// duplicate detection into planned Action rows (spec.md §4.5).
package suggester

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fileorg/organizer/internal/rules"
	"github.com/fileorg/organizer/internal/store"
)

// defaultDedupeStrategy is used when Options.DedupeStrategy is unset.
// spec.md §4.5 names both "trash" and "replace" as valid merge_duplicate
// strategies but does not pick a default; "trash" is the conservative,
// reversible choice (the apply engine's trash-backup path, spec.md
// §4.6), so it is the one suggested automatically.
const defaultDedupeStrategy = "trash"

// Options tunes the suggester.
type Options struct {
	DedupeStrategy string // "trash" or "replace"
}

func DefaultOptions() Options {
	return Options{DedupeStrategy: defaultDedupeStrategy}
}

// Suggester evaluates rules and duplicate hashes against every file and
// emits planned actions.
type Suggester struct {
	store  *store.Store
	opts   Options
	logger *slog.Logger
}

func New(s *store.Store, opts Options, logger *slog.Logger) *Suggester {
	if opts.DedupeStrategy == "" {
		opts.DedupeStrategy = defaultDedupeStrategy
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Suggester{store: s, opts: opts, logger: logger}
}

// dedupePayload is the merge_duplicate action's payload shape, per
// spec.md §4.5: "{duplicate_of: <canonical_path>, strategy: 'trash'|'replace'}".
type dedupePayload struct {
	DuplicateOf string `json:"duplicate_of"`
	Strategy    string `json:"strategy"`
}

// ruleActionPayload is a rule-triggered action's payload: the action's own
// fields plus the rule name that produced it, per spec.md §4.5 ("the rule
// name is embedded in the action payload").
type ruleActionPayload struct {
	Rule     string `json:"rule"`
	To       string `json:"to,omitempty"`
	Tag      string `json:"tag,omitempty"`
	Template string `json:"template,omitempty"`
}

// Run evaluates every non-gone file against the enabled rule set and
// against hash-based duplicate detection, and returns how many planned
// actions were created.
func (sg *Suggester) Run(ctx context.Context) (int, error) {
	storedRules, err := sg.store.ListEnabledRules(ctx)
	if err != nil {
		return 0, fmt.Errorf("suggester: list enabled rules: %w", err)
	}
	ruleSet := make([]rules.Rule, 0, len(storedRules))
	for _, sr := range storedRules {
		r, err := rules.FromStoreRule(sr)
		if err != nil {
			sg.logger.Warn("suggester: skipping unparsable rule", "rule", sr.Name, "error", err)
			continue
		}
		ruleSet = append(ruleSet, r)
	}

	files, err := sg.store.ListFiles(ctx, "")
	if err != nil {
		return 0, fmt.Errorf("suggester: list files: %w", err)
	}

	created := 0
	seenHashes := map[string]bool{}
	for _, f := range files {
		if f.Status == store.FileStatusGone {
			continue
		}

		n, err := sg.suggestDedupe(ctx, f, seenHashes)
		if err != nil {
			sg.logger.Warn("suggester: dedupe check failed", "file_id", f.ID, "error", err)
		}
		created += n

		n, err = sg.suggestFromRules(ctx, f, ruleSet)
		if err != nil {
			sg.logger.Warn("suggester: rule evaluation failed", "file_id", f.ID, "error", err)
		}
		created += n
	}
	return created, nil
}

// suggestDedupe emits dedupe + merge_duplicate actions for every
// non-canonical file sharing a hash with an earlier-seen file, per
// spec.md §4.5. seenHashes dedupes the O(n^2) FindFilesByHash fan-out
// across a single Run to one lookup per distinct hash.
func (sg *Suggester) suggestDedupe(ctx context.Context, f store.File, seenHashes map[string]bool) (int, error) {
	if f.Hash == "" || seenHashes[f.Hash] {
		return 0, nil
	}
	seenHashes[f.Hash] = true

	matches, err := sg.store.FindFilesByHash(ctx, f.Hash)
	if err != nil {
		return 0, err
	}
	if len(matches) < 2 {
		return 0, nil
	}
	canonical := matches[0]

	created := 0
	for _, dup := range matches[1:] {
		has, err := sg.store.HasPlannedActionOfKind(ctx, dup.ID, store.ActionDedupe, store.ActionMergeDuplicate)
		if err != nil {
			return created, err
		}
		if has {
			continue
		}
		if _, err := sg.store.CreatePlannedAction(ctx, dup.ID, store.ActionDedupe, map[string]string{
			"duplicate_of": canonical.Path,
		}); err != nil {
			return created, err
		}
		if _, err := sg.store.CreatePlannedAction(ctx, dup.ID, store.ActionMergeDuplicate, dedupePayload{
			DuplicateOf: canonical.Path,
			Strategy:    sg.opts.DedupeStrategy,
		}); err != nil {
			return created, err
		}
		created += 2
	}
	return created, nil
}

// suggestFromRules evaluates the rule set against f and emits one planned
// action per matched rule's action. A file already carrying a planned
// move or rename action is excluded entirely, per spec.md §4.5's
// eligibility rule, which is also what makes re-running idempotent.
func (sg *Suggester) suggestFromRules(ctx context.Context, f store.File, ruleSet []rules.Rule) (int, error) {
	excluded, err := sg.store.HasPlannedActionOfKind(ctx, f.ID, store.ActionMove, store.ActionRename)
	if err != nil {
		return 0, err
	}
	if excluded {
		return 0, nil
	}

	tags, err := sg.store.GetTagsForFile(ctx, f.ID)
	if err != nil {
		return 0, err
	}
	tagNames := make([]string, len(tags))
	for i, t := range tags {
		tagNames[i] = t.TagName
	}

	fileCtx := rules.Context{Path: f.Path, MIME: f.MIME, Ext: f.Extension, Tags: tagNames}
	matched := rules.Evaluate(ruleSet, fileCtx)

	created := 0
	for _, r := range matched {
		for _, action := range r.Actions {
			kind, payload, err := toPlannedAction(r.Name, action)
			if err != nil {
				sg.logger.Warn("suggester: skipping unsupported action", "rule", r.Name, "error", err)
				continue
			}
			if _, err := sg.store.CreatePlannedAction(ctx, f.ID, kind, payload); err != nil {
				return created, err
			}
			created++
		}
	}
	return created, nil
}

func toPlannedAction(ruleName string, a rules.Action) (store.ActionKind, ruleActionPayload, error) {
	payload := ruleActionPayload{Rule: ruleName}
	switch a.Type {
	case rules.ActionMove:
		payload.To = a.To
		return store.ActionMove, payload, nil
	case rules.ActionTag:
		payload.Tag = a.Tag
		return store.ActionTag, payload, nil
	case rules.ActionRename:
		payload.Template = a.Template
		return store.ActionRename, payload, nil
	default:
		return "", ruleActionPayload{}, fmt.Errorf("unknown action type %q", a.Type)
	}
}
