// Package tags normalizes case tags and derives the tag vocabulary from the
// tags stored on case records.
package tags

import (
	"sort"
	"strings"
)

// Normalize trims, lowercases and joins internal whitespace runs with a hyphen,
// so "ST  Elevation " and "st elevation" both become "st-elevation".
func Normalize(raw string) string {
	return strings.Join(strings.Fields(strings.ToLower(raw)), "-")
}

// Dedupe normalizes tags, drops empties and removes duplicates, keeping the
// first occurrence. The result is never nil.
func Dedupe(raw []string) []string {
	out := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, r := range raw {
		n := Normalize(r)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

// Merge returns Dedupe(a followed by b).
func Merge(a, b []string) []string {
	all := make([]string, 0, len(a)+len(b))
	all = append(all, a...)
	all = append(all, b...)
	return Dedupe(all)
}

// Remove returns current without any tag matching one of drop under
// normalized comparison.
func Remove(current, drop []string) []string {
	dropSet := Set(drop)
	out := make([]string, 0, len(current))
	for _, t := range Dedupe(current) {
		if _, ok := dropSet[t]; !ok {
			out = append(out, t)
		}
	}
	return out
}

// Set returns the normalized tags as a set.
func Set(raw []string) map[string]struct{} {
	set := make(map[string]struct{}, len(raw))
	for _, t := range raw {
		if n := Normalize(t); n != "" {
			set[n] = struct{}{}
		}
	}
	return set
}

// Intersects reports whether a and b share at least one normalized tag.
func Intersects(a, b []string) bool {
	set := Set(a)
	for _, t := range b {
		if _, ok := set[Normalize(t)]; ok {
			return true
		}
	}
	return false
}

// Vocabulary is a snapshot of every tag used across the case records.
type Vocabulary struct {
	counts map[string]int
	sorted []string
}

// NewVocabulary builds a vocabulary from the tag lists of each record.
func NewVocabulary(perRecord [][]string) *Vocabulary {
	v := &Vocabulary{counts: make(map[string]int)}
	for _, recordTags := range perRecord {
		for _, t := range Dedupe(recordTags) {
			v.counts[t]++
		}
	}
	v.sorted = make([]string, 0, len(v.counts))
	for t := range v.counts {
		v.sorted = append(v.sorted, t)
	}
	sort.Strings(v.sorted)
	return v
}

// All returns every tag in alphabetical order.
func (v *Vocabulary) All() []string {
	out := make([]string, len(v.sorted))
	copy(out, v.sorted)
	return out
}

// Counts returns the number of records using each tag.
func (v *Vocabulary) Counts() map[string]int {
	out := make(map[string]int, len(v.counts))
	for t, n := range v.counts {
		out[t] = n
	}
	return out
}

// Len returns the number of distinct tags.
func (v *Vocabulary) Len() int {
	return len(v.sorted)
}

// Suggest returns tags containing the normalized query, minus the excluded
// tags, in alphabetical order. An empty query matches every tag.
func (v *Vocabulary) Suggest(query string, exclude []string) []string {
	q := Normalize(query)
	skip := Set(exclude)
	out := []string{}
	for _, t := range v.sorted {
		if _, ok := skip[t]; ok {
			continue
		}
		if strings.Contains(t, q) {
			out = append(out, t)
		}
	}
	return out
}
