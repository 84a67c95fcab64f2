// Package installer places downloaded artifacts into an environment's
// directory layout.
//
// The artifact's version type selects a subdirectory and a policy. Plain
// artifacts are written verbatim with a temp-then-rename sequence; bundles
// are zip archives extracted in full into a staging tree and then moved
// into place, rolling back on any failure so the target is either fully
// updated or untouched.
package installer
