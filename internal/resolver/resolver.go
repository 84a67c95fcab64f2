// Package resolver decides which versions of a definition can be installed
// into an environment. Resolution is a pure function of its inputs.
package resolver

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/quickmod/quickmod/internal/manifest"
)

// UnresolvableVersionError reports that a definition has no version
// compatible with the requested environment version.
type UnresolvableVersionError struct {
	UID                string
	EnvironmentVersion string
	Available          []string // every compatible entry the definition declares
}

func (e *UnresolvableVersionError) Error() string {
	if len(e.Available) == 0 {
		return fmt.Sprintf("%s: no version compatible with %s (definition declares no versions)", e.UID, e.EnvironmentVersion)
	}
	return fmt.Sprintf("%s: no version compatible with %s (supports %s)", e.UID, e.EnvironmentVersion, strings.Join(e.Available, ", "))
}

// Resolve returns the versions of def whose compatible set contains
// envVersion, in declaration order. An empty result means no version fits.
func Resolve(def *manifest.Definition, envVersion string) []manifest.Version {
	var out []manifest.Version
	for _, v := range def.Versions {
		if Compatible(v, envVersion) {
			out = append(out, v)
		}
	}
	return out
}

// Unresolvable builds the error describing why def has no candidate.
func Unresolvable(def *manifest.Definition, envVersion string) *UnresolvableVersionError {
	var avail []string
	seen := make(map[string]bool)
	for _, v := range def.Versions {
		for _, c := range v.Compatible {
			if !seen[c] {
				seen[c] = true
				avail = append(avail, c)
			}
		}
	}
	return &UnresolvableVersionError{UID: def.UID, EnvironmentVersion: envVersion, Available: avail}
}

// Compatible reports whether v declares support for envVersion. Exact
// entries match by string equality, ignoring surrounding spaces; range entries match when envVersion
// parses as a version satisfying the range.
func Compatible(v manifest.Version, envVersion string) bool {
	for _, entry := range v.Compatible {
		if matches(entry, envVersion) {
			return true
		}
	}
	return false
}

func matches(entry, envVersion string) bool {
	if !manifest.IsVersionRange(entry) {
		return strings.TrimSpace(entry) == strings.TrimSpace(envVersion)
	}
	c, err := semver.NewConstraint(entry)
	if err != nil {
		return false
	}
	ev, err := semver.NewVersion(envVersion)
	if err != nil {
		return false
	}
	return c.Check(ev)
}
