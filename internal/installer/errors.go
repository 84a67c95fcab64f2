package installer

import "fmt"

// UnsupportedArchiveError is returned when an extracting type receives an
// artifact that is not a recognized container.
type UnsupportedArchiveError struct {
	Name string
}

func (e *UnsupportedArchiveError) Error() string {
	return fmt.Sprintf("unsupported archive format: %s", e.Name)
}

// FileSystemError reports a failed directory creation, write or rename.
type FileSystemError struct {
	Op   string
	Path string
	Err  error
}

func (e *FileSystemError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FileSystemError) Unwrap() error { return e.Err }
