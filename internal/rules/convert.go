package rules

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fileorg/organizer/internal/store"
)

// ToStoreRule serializes Condition/Actions to the opaque JSON blobs
// internal/store persists them as.
func (r Rule) ToStoreRule() (store.Rule, error) {
	condJSON, err := json.Marshal(r.Condition)
	if err != nil {
		return store.Rule{}, fmt.Errorf("rules: marshal condition: %w", err)
	}
	actionsJSON, err := json.Marshal(r.Actions)
	if err != nil {
		return store.Rule{}, fmt.Errorf("rules: marshal actions: %w", err)
	}
	return store.Rule{
		Name:          r.Name,
		Priority:      r.Priority,
		Enabled:       r.Enabled,
		ConditionJSON: string(condJSON),
		ActionJSON:    string(actionsJSON),
	}, nil
}

// FromStoreRule deserializes a persisted store.Rule back into the domain
// Rule type Evaluate operates on.
func FromStoreRule(sr store.Rule) (Rule, error) {
	r := Rule{Name: sr.Name, Priority: sr.Priority, Enabled: sr.Enabled}
	if sr.ConditionJSON != "" {
		if err := json.Unmarshal([]byte(sr.ConditionJSON), &r.Condition); err != nil {
			return Rule{}, fmt.Errorf("rules: unmarshal condition for %q: %w", sr.Name, err)
		}
	}
	if sr.ActionJSON != "" {
		if err := json.Unmarshal([]byte(sr.ActionJSON), &r.Actions); err != nil {
			return Rule{}, fmt.Errorf("rules: unmarshal actions for %q: %w", sr.Name, err)
		}
	}
	return r, nil
}

// SyncDir loads every TOML rule in dir and upserts it into the store,
// the bridge between the declarative rule files and the suggester's
// store-backed rule list.
func SyncDir(ctx context.Context, s *store.Store, dir string) error {
	loaded, err := LoadDir(dir)
	if err != nil {
		return err
	}
	for _, r := range loaded {
		sr, err := r.ToStoreRule()
		if err != nil {
			return err
		}
		if err := s.UpsertRule(ctx, sr); err != nil {
			return err
		}
	}
	return nil
}
