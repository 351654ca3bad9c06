package rules

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fileorg/organizer/internal/store"
)

func TestMatches_PathPrefixAndAndOr(t *testing.T) {
	ctx := Context{Path: "/inbox/report.pdf", MIME: "application/pdf", Ext: ".pdf", Tags: []string{"invoice"}}

	assert.True(t, Matches(Condition{Type: ConditionPathPrefix, Prefix: "/inbox"}, ctx))
	assert.False(t, Matches(Condition{Type: ConditionPathPrefix, Prefix: "/archive"}, ctx))
	assert.True(t, Matches(Condition{Type: ConditionTag, Tag: "invoice"}, ctx))

	and := Condition{Type: ConditionAnd, All: []Condition{
		{Type: ConditionMime, Mime: "application/pdf"},
		{Type: ConditionPathPrefix, Prefix: "/inbox"},
	}}
	assert.True(t, Matches(and, ctx))

	or := Condition{Type: ConditionOr, Any: []Condition{
		{Type: ConditionExtension, Ext: ".zip"},
		{Type: ConditionTag, Tag: "invoice"},
	}}
	assert.True(t, Matches(or, ctx))
}

func TestEvaluate_SortsByPriorityStably(t *testing.T) {
	always := Condition{Type: ConditionPathPrefix, Prefix: "/"}
	ctx := Context{Path: "/a/b.txt"}

	allRules := []Rule{
		{Name: "c", Priority: 5, Enabled: true, Condition: always},
		{Name: "a", Priority: 1, Enabled: true, Condition: always},
		{Name: "b", Priority: 1, Enabled: true, Condition: always},
		{Name: "disabled", Priority: 0, Enabled: false, Condition: always},
	}

	matched := Evaluate(allRules, ctx)
	require.Len(t, matched, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{matched[0].Name, matched[1].Name, matched[2].Name})
}

func TestLoadDir_MissingDirReturnsNoRulesNoError(t *testing.T) {
	rs, err := LoadDir(filepath.Join(t.TempDir(), "does-not-exist"))
	require.NoError(t, err)
	assert.Empty(t, rs)
}

func TestLoadDir_ParsesTOMLRuleWithNestedCondition(t *testing.T) {
	dir := t.TempDir()
	toml := `
name = "downloads-to-docs"
priority = 10
enabled = true

[condition]
type = "and"

[[condition.all]]
type = "path_prefix"
prefix = "/Downloads"

[[condition.all]]
type = "extension"
ext = ".pdf"

[[actions]]
type = "move"
to = "/Documents"

[[actions]]
type = "tag"
tag = "document/pdf"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rule.toml"), []byte(toml), 0o644))

	rs, err := LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, rs, 1)

	r := rs[0]
	assert.Equal(t, "downloads-to-docs", r.Name)
	assert.Equal(t, ConditionAnd, r.Condition.Type)
	require.Len(t, r.Condition.All, 2)
	assert.Equal(t, ConditionPathPrefix, r.Condition.All[0].Type)
	require.Len(t, r.Actions, 2)
	assert.Equal(t, ActionMove, r.Actions[0].Type)
	assert.Equal(t, "/Documents", r.Actions[0].To)

	ctx := Context{Path: "/Downloads/a.pdf", Ext: ".pdf"}
	assert.True(t, Matches(r.Condition, ctx))
}

func TestToStoreRule_RoundTripsThroughJSON(t *testing.T) {
	r := Rule{
		Name:     "tag-images",
		Priority: 3,
		Enabled:  true,
		Condition: Condition{Type: ConditionOr, Any: []Condition{
			{Type: ConditionMime, Mime: "image/png"},
			{Type: ConditionMime, Mime: "image/jpeg"},
		}},
		Actions: []Action{{Type: ActionTag, Tag: "image"}},
	}

	sr, err := r.ToStoreRule()
	require.NoError(t, err)
	assert.Equal(t, "tag-images", sr.Name)
	assert.NotEmpty(t, sr.ConditionJSON)

	back, err := FromStoreRule(sr)
	require.NoError(t, err)
	assert.Equal(t, r.Condition, back.Condition)
	assert.Equal(t, r.Actions, back.Actions)
}

func TestSyncDir_UpsertsIntoStoreAndEvaluateRoundTrips(t *testing.T) {
	dir := t.TempDir()
	toml := `
name = "tag-pdfs"
priority = 1
enabled = true

[condition]
type = "extension"
ext = ".pdf"

[[actions]]
type = "tag"
tag = "document/pdf"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rule.toml"), []byte(toml), 0o644))

	s, err := store.Open(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, SyncDir(context.Background(), s, dir))

	stored, err := s.ListEnabledRules(context.Background())
	require.NoError(t, err)
	require.Len(t, stored, 1)

	r, err := FromStoreRule(stored[0])
	require.NoError(t, err)
	matched := Evaluate([]Rule{r}, Context{Path: "/a.pdf", Ext: ".pdf"})
	require.Len(t, matched, 1)
	assert.Equal(t, "tag-pdfs", matched[0].Name)
}
