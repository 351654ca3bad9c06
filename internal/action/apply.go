// Package action implements the apply and undo engines (spec.md §4.6,
// §4.7): turning planned Action rows into filesystem operations, and
// reversing executed ones from their recorded backups.
package action

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"

	"github.com/fileorg/organizer/internal/config"
	"github.com/fileorg/organizer/internal/store"
)

// Summary tallies one Run's outcome.
type Summary struct {
	Succeeded int
	Failed    int
}

// Applier executes planned actions per the apply engine's conflict,
// trash-backup, and safety-gate rules.
type Applier struct {
	store  *store.Store
	cfg    config.ApplyConfig
	logger *slog.Logger
}

func New(s *store.Store, cfg config.ApplyConfig, logger *slog.Logger) *Applier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Applier{store: s, cfg: cfg, logger: logger}
}

// movePayload is the move/rename action payload shape.
type movePayload struct {
	To       string `json:"to,omitempty"`
	Template string `json:"template,omitempty"`
}

// tagPayload is the tag action payload shape.
type tagPayload struct {
	Tag string `json:"tag"`
}

// mergeDuplicatePayload is the merge_duplicate action payload shape,
// matching internal/suggester's dedupePayload.
type mergeDuplicatePayload struct {
	DuplicateOf string `json:"duplicate_of"`
	Strategy    string `json:"strategy"`
}

// dedupePayload is the informational dedupe action payload shape.
type dedupePayload struct {
	DuplicateOf string `json:"duplicate_of"`
}

// Run applies every planned action, optionally restricted to ids (nil
// means all planned actions). Respects ApplyConfig.DryRun: when set, no
// filesystem or database mutation happens and every action is merely
// logged.
func (a *Applier) Run(ctx context.Context, ids []int64) (Summary, error) {
	planned, err := a.store.ListActionsByStatus(ctx, store.ActionStatusPlanned, ids)
	if err != nil {
		return Summary{}, fmt.Errorf("action: list planned: %w", err)
	}

	var summary Summary
	for _, act := range planned {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if a.cfg.DryRun {
			a.logger.Info("apply: dry-run, skipping", "action_id", act.ID, "kind", act.Kind)
			continue
		}
		if err := a.applyOne(ctx, act); err != nil {
			a.logger.Warn("apply: action failed", "action_id", act.ID, "kind", act.Kind, "error", err)
			summary.Failed++
			continue
		}
		summary.Succeeded++
	}
	return summary, nil
}

// applyOne dispatches a single action by kind. Errors here are always
// non-fatal to the surrounding Run: the caller records them against the
// action row and moves on to the next one.
func (a *Applier) applyOne(ctx context.Context, act store.Action) error {
	f, ok, err := a.store.GetFileByID(ctx, act.FileID)
	if err != nil {
		return fmt.Errorf("lookup file: %w", err)
	}
	if !ok {
		if err := a.store.MarkActionError(ctx, act.ID, "file no longer exists"); err != nil {
			return err
		}
		return fmt.Errorf("file %d no longer exists", act.FileID)
	}

	// The safety gate applies to every filesystem-touching kind; tag and
	// dedupe never touch the filesystem and are exempt, matching
	// apply.rs's dispatch (tag has its own code path entirely separate
	// from fs_apply).
	if (act.Kind == store.ActionMove || act.Kind == store.ActionRename || act.Kind == store.ActionMergeDuplicate) &&
		!isPathAllowed(f.Path, a.cfg.AllowPaths, a.cfg.DenyPaths) {
		if err := a.store.MarkActionError(ctx, act.ID, "path denied"); err != nil {
			return err
		}
		// Matches apply.rs's control flow: the safety-denial branch
		// `continue`s before the later dirty-marking code runs, so a
		// denied action leaves no dirty entry behind.
		return fmt.Errorf("path denied by safety gate: %s", f.Path)
	}

	switch act.Kind {
	case store.ActionTag:
		return a.applyTag(ctx, act, f)
	case store.ActionMove, store.ActionRename:
		return a.applyMoveOrRename(ctx, act, f)
	case store.ActionMergeDuplicate:
		return a.applyMergeDuplicate(ctx, act, f)
	case store.ActionDedupe:
		return a.applyDedupe(ctx, act, f)
	default:
		if err := a.store.MarkActionError(ctx, act.ID, fmt.Sprintf("unsupported action kind %q", act.Kind)); err != nil {
			return err
		}
		return fmt.Errorf("unsupported action kind %q", act.Kind)
	}
}

func (a *Applier) applyTag(ctx context.Context, act store.Action, f store.File) error {
	var p tagPayload
	if err := json.Unmarshal([]byte(act.Payload), &p); err != nil {
		_ = a.store.MarkActionError(ctx, act.ID, "bad payload")
		return fmt.Errorf("unmarshal tag payload: %w", err)
	}
	if err := a.store.TagFile(ctx, f.ID, p.Tag, 1.0, store.TagSourceApply); err != nil {
		_ = a.store.MarkActionError(ctx, act.ID, err.Error())
		return err
	}
	if err := a.store.MarkActionExecuted(ctx, act.ID, "", ""); err != nil {
		return err
	}
	return a.store.MarkDirty(ctx, f.Path, "apply")
}

// applyMoveOrRename resolves the destination against the conflict
// policy, optionally backs the source up to trash, then relocates it,
// grounded on original_source/fs_apply.rs's apply_move/apply_action.
func (a *Applier) applyMoveOrRename(ctx context.Context, act store.Action, f store.File) error {
	var p movePayload
	if err := json.Unmarshal([]byte(act.Payload), &p); err != nil {
		_ = a.store.MarkActionError(ctx, act.ID, "bad payload")
		return fmt.Errorf("unmarshal move payload: %w", err)
	}
	dest := p.To
	if dest == "" {
		_ = a.store.MarkActionError(ctx, act.ID, "missing destination")
		return fmt.Errorf("action %d: missing destination", act.ID)
	}

	if _, err := os.Stat(dest); err == nil {
		switch a.cfg.ConflictPolicy {
		case "skip":
			// Counts as success with no filesystem mutation and no
			// backup, per spec.md §4.6's literal description (the
			// original's bare-trash-dir backup_path fallback for this
			// case is not reproduced here).
			if err := a.store.MarkActionExecuted(ctx, act.ID, "", ""); err != nil {
				return err
			}
			return a.store.MarkDirty(ctx, f.Path, "apply")
		case "overwrite":
			// keep dest as-is
		default: // "rename"
			resolved, err := resolveConflict(dest)
			if err != nil {
				_ = a.store.MarkActionError(ctx, act.ID, err.Error())
				return err
			}
			dest = resolved
		}
	} else if !os.IsNotExist(err) {
		_ = a.store.MarkActionError(ctx, act.ID, err.Error())
		return err
	}

	backupPath := ""
	if a.cfg.TrashDir != "" {
		bp, err := backupToTrash(f.Path, a.cfg.TrashDir)
		if err != nil {
			_ = a.store.MarkActionError(ctx, act.ID, err.Error())
			return err
		}
		backupPath = bp
	}

	if err := moveFile(f.Path, dest, a.cfg.CopyThenDelete); err != nil {
		_ = a.store.MarkActionError(ctx, act.ID, err.Error())
		return err
	}

	if err := a.store.MarkActionExecuted(ctx, act.ID, backupPath, uuid.NewString()); err != nil {
		return err
	}
	if err := a.store.MarkDirty(ctx, f.Path, "apply"); err != nil {
		return err
	}
	return a.store.MarkDirty(ctx, dest, "apply")
}

// applyMergeDuplicate folds a duplicate file into its canonical. The
// "replace" strategy overwrites the canonical with the duplicate's
// content; any other value (the suggester's default, "trash") removes
// the duplicate after backing it up. Tags copy onto the canonical under
// both strategies, per spec.md §4.5's general description of
// merge_duplicate (not scoped to one branch).
func (a *Applier) applyMergeDuplicate(ctx context.Context, act store.Action, f store.File) error {
	var p mergeDuplicatePayload
	if err := json.Unmarshal([]byte(act.Payload), &p); err != nil {
		_ = a.store.MarkActionError(ctx, act.ID, "bad payload")
		return fmt.Errorf("unmarshal merge_duplicate payload: %w", err)
	}
	if p.DuplicateOf == "" {
		_ = a.store.MarkActionError(ctx, act.ID, "missing duplicate_of")
		return fmt.Errorf("action %d: missing duplicate_of", act.ID)
	}

	canonical, ok, err := a.store.GetFileByPath(ctx, p.DuplicateOf)
	if err != nil {
		_ = a.store.MarkActionError(ctx, act.ID, err.Error())
		return err
	}
	if !ok {
		_ = a.store.MarkActionError(ctx, act.ID, "canonical file no longer exists")
		return fmt.Errorf("action %d: canonical %q no longer exists", act.ID, p.DuplicateOf)
	}

	backupPath := ""
	switch p.Strategy {
	case "replace":
		if a.cfg.TrashDir != "" {
			bp, err := backupToTrash(canonical.Path, a.cfg.TrashDir)
			if err != nil {
				_ = a.store.MarkActionError(ctx, act.ID, err.Error())
				return err
			}
			backupPath = bp
		}
		if err := moveFile(f.Path, canonical.Path, a.cfg.CopyThenDelete); err != nil {
			_ = a.store.MarkActionError(ctx, act.ID, err.Error())
			return err
		}
	default: // "trash"
		if a.cfg.TrashDir != "" {
			bp, err := backupToTrash(f.Path, a.cfg.TrashDir)
			if err != nil {
				_ = a.store.MarkActionError(ctx, act.ID, err.Error())
				return err
			}
			backupPath = bp
		}
		if err := os.Remove(f.Path); err != nil && !os.IsNotExist(err) {
			_ = a.store.MarkActionError(ctx, act.ID, err.Error())
			return err
		}
	}

	if err := a.store.CopyFileTags(ctx, f.ID, canonical.ID); err != nil {
		_ = a.store.MarkActionError(ctx, act.ID, err.Error())
		return err
	}

	if err := a.store.MarkActionExecuted(ctx, act.ID, backupPath, uuid.NewString()); err != nil {
		return err
	}
	if err := a.store.MarkDirty(ctx, f.Path, "apply"); err != nil {
		return err
	}
	return a.store.MarkDirty(ctx, canonical.Path, "apply")
}

// applyDedupe is purely informational: it marks nothing on disk, only
// transitions state so the row stops showing up as planned.
func (a *Applier) applyDedupe(ctx context.Context, act store.Action, f store.File) error {
	if err := a.store.MarkActionExecuted(ctx, act.ID, "", ""); err != nil {
		return err
	}
	return a.store.MarkDirty(ctx, f.Path, "apply")
}
