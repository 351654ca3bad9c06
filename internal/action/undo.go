package action

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fileorg/organizer/internal/store"
)

// backupPayload is the subset of an executed action's payload that
// might carry its own backup location, used as a fallback when the
// action row's BackupPath column is empty.
type backupPayload struct {
	Backup string `json:"backup,omitempty"`
}

// Undoer reverses executed actions from their recorded trash backups.
type Undoer struct {
	store  *store.Store
	logger *slog.Logger
}

func NewUndoer(s *store.Store, logger *slog.Logger) *Undoer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Undoer{store: s, logger: logger}
}

// Run reverses every executed action, optionally restricted to ids (nil
// means all executed actions), per spec.md §4.7. An action with no
// recoverable backup is skipped rather than failed, since dedupe and
// skip-policy moves never produced one.
func (u *Undoer) Run(ctx context.Context, ids []int64) (Summary, error) {
	executed, err := u.store.ListActionsByStatus(ctx, store.ActionStatusExecuted, ids)
	if err != nil {
		return Summary{}, fmt.Errorf("action: list executed: %w", err)
	}

	var summary Summary
	for _, act := range executed {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		ok, err := u.undoOne(ctx, act)
		if err != nil {
			u.logger.Warn("undo: action failed", "action_id", act.ID, "kind", act.Kind, "error", err)
			summary.Failed++
			continue
		}
		if ok {
			summary.Succeeded++
		}
	}
	return summary, nil
}

// undoOne restores one action's effect. Returns ok=false (no error) for
// actions with nothing to restore, e.g. tag or dedupe.
func (u *Undoer) undoOne(ctx context.Context, act store.Action) (bool, error) {
	f, ok, err := u.store.GetFileByID(ctx, act.FileID)
	if err != nil {
		return false, fmt.Errorf("lookup file: %w", err)
	}
	if !ok {
		return false, fmt.Errorf("file %d no longer exists", act.FileID)
	}

	switch act.Kind {
	case store.ActionTag:
		// Tags are additive and not tracked per-action; nothing to
		// reverse here, matching the original's undo scope (files and
		// their moves, not individual tag grants).
		return false, u.store.MarkActionUndone(ctx, act.ID)
	case store.ActionDedupe:
		return false, u.store.MarkActionUndone(ctx, act.ID)
	case store.ActionMove, store.ActionRename, store.ActionMergeDuplicate:
		return u.restoreFromBackup(ctx, act, f)
	default:
		return false, fmt.Errorf("unsupported action kind %q", act.Kind)
	}
}

// restoreFromBackup copies the recorded backup back to the file's
// original path. Backup source resolution order: the row's BackupPath,
// then the action's own payload "backup" field. If the original path
// already exists, the restore is skipped rather than overwriting live
// data, per spec.md §4.7.
func (u *Undoer) restoreFromBackup(ctx context.Context, act store.Action, f store.File) (bool, error) {
	backup := act.BackupPath
	if backup == "" {
		var p backupPayload
		_ = json.Unmarshal([]byte(act.Payload), &p)
		backup = p.Backup
	}
	if backup == "" {
		// No backup was ever taken (e.g. a "skip" conflict-policy move,
		// or a trash-less configuration); nothing to restore.
		return false, u.store.MarkActionUndone(ctx, act.ID)
	}

	if _, err := os.Stat(f.Path); err == nil {
		u.logger.Warn("undo: original path already exists, skipping restore", "action_id", act.ID, "path", f.Path)
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, err
	}

	if _, err := os.Stat(backup); err != nil {
		return false, fmt.Errorf("backup %q unavailable: %w", backup, err)
	}

	if err := os.MkdirAll(filepath.Dir(f.Path), 0o755); err != nil {
		return false, err
	}
	if err := copyFile(backup, f.Path); err != nil {
		return false, err
	}

	if err := u.store.MarkActionUndone(ctx, act.ID); err != nil {
		return false, err
	}
	if err := u.store.MarkDirty(ctx, f.Path, "undo"); err != nil {
		return false, err
	}
	return true, nil
}
