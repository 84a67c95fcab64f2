// Package platform provides cross-platform filesystem operations: permission
// management and atomic file replacement. On Unix systems chmod is applied
// directly; on Windows it is a no-op. Atomic writes stage content in a
// temporary file in the destination directory and rename it into place, so
// readers see either the old file or the complete new one.
package platform
