// Package search implements hybrid keyword + vector file search (spec.md
// §4.9): embed the query, run vector search with an optional payload
// filter, optionally union in keyword-index (or DB LIKE) hits preserving
// vector-first order, dedupe by path, and enrich each result with the
// file's tags and first-chunk snippet.
package search

import "time"

// Filter narrows a search to a path/MIME/mtime-range/tag subset, per
// spec.md §4.9.
type Filter struct {
	Path        string
	MIME        string
	MTimeAfter  *time.Time
	MTimeBefore *time.Time
	Tag         string

	// Hybrid, when true, additionally runs the keyword half and unions
	// its hits into the result set.
	Hybrid bool
}

// Result is one enriched hybrid-search hit.
type Result struct {
	Path    string
	MIME    string
	Score   float64
	Source  string // "vector" or "keyword"
	Tags    []string
	Snippet string
}
