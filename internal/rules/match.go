package rules

import (
	"sort"
	"strings"
)

// Matches evaluates a condition tree against ctx, per spec.md §4.5.
func Matches(cond Condition, ctx Context) bool {
	switch cond.Type {
	case ConditionPathPrefix:
		return strings.HasPrefix(ctx.Path, cond.Prefix)
	case ConditionMime:
		return ctx.MIME == cond.Mime
	case ConditionExtension:
		return ctx.Ext == cond.Ext
	case ConditionTag:
		for _, t := range ctx.Tags {
			if t == cond.Tag {
				return true
			}
		}
		return false
	case ConditionAnd:
		for _, c := range cond.All {
			if !Matches(c, ctx) {
				return false
			}
		}
		return true
	case ConditionOr:
		for _, c := range cond.Any {
			if Matches(c, ctx) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// Evaluate returns every enabled rule whose condition tree matches ctx,
// sorted by ascending priority. Rules sharing a priority keep the order
// they were passed in (sort.SliceStable), matching original_source/
// rules.rs's `sort_by_key(|r| r.priority)`, which is likewise stable.
func Evaluate(allRules []Rule, ctx Context) []Rule {
	var matched []Rule
	for _, r := range allRules {
		if r.Enabled && Matches(r.Condition, ctx) {
			matched = append(matched, r)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Priority < matched[j].Priority
	})
	return matched
}
