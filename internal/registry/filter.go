package registry

import (
	"sort"
	"strings"

	"github.com/quickmod/quickmod/internal/manifest"
)

// Filter narrows a listing of definitions. Zero fields match everything.
type Filter struct {
	// Tags must all be present on a definition (case-insensitive).
	Tags []string
	// Category matches when any category contains it as a substring.
	Category string
	// Text matches a case-insensitive substring of name or description.
	Text string
}

// Matches reports whether def passes every criterion of f.
func (f Filter) Matches(def *manifest.Definition) bool {
	for _, tag := range f.Tags {
		if !def.HasTag(tag) {
			return false
		}
	}

	if f.Category != "" {
		found := false
		for _, c := range def.Categories {
			if strings.Contains(strings.ToLower(c), strings.ToLower(f.Category)) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if f.Text != "" {
		q := strings.ToLower(f.Text)
		if !strings.Contains(strings.ToLower(def.Name), q) && !strings.Contains(strings.ToLower(def.Description), q) {
			return false
		}
	}
	return true
}

// Search returns snapshots of definitions matching f, sorted by name.
func (r *Registry) Search(f Filter) []*manifest.Definition {
	var out []*manifest.Definition
	for _, def := range r.All() {
		if f.Matches(def) {
			out = append(out, def)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out
}

// Categories returns every distinct category across all definitions, sorted.
func (r *Registry) Categories() []string {
	seen := make(map[string]bool)
	var cats []string
	for _, def := range r.All() {
		for _, c := range def.Categories {
			if !seen[c] {
				seen[c] = true
				cats = append(cats, c)
			}
		}
	}
	sort.Strings(cats)
	return cats
}
