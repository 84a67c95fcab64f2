package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/quickmod/quickmod/internal/logging"
	"github.com/quickmod/quickmod/internal/manifest"
	"github.com/quickmod/quickmod/internal/platform"
)

// fileExt is the extension of persisted definition files.
const fileExt = ".json"

// Store persists definitions as one file per identifier.
type Store struct {
	dir    string
	logger *log.Logger
}

// NewStore returns a Store rooted at dir. The directory is created lazily.
func NewStore(dir string, logger *log.Logger) *Store {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Store{dir: dir, logger: logger}
}

// Dir returns the metadata directory.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the file a definition with the given identifier lives in.
func (s *Store) Path(uid string) string {
	return filepath.Join(s.dir, uid+fileExt)
}

// Save writes def atomically to its file.
func (s *Store) Save(def *manifest.Definition) error {
	if !manifest.ValidUID(def.UID) {
		return fmt.Errorf("saving definition: invalid identifier %q", def.UID)
	}
	data, err := manifest.Marshal(def)
	if err != nil {
		return err
	}
	if err := platform.WriteBytesAtomic(s.Path(def.UID), data, platform.FilePermNormal); err != nil {
		return fmt.Errorf("saving definition %s: %w", def.UID, err)
	}
	return nil
}

// Delete removes the file for uid. A missing file is not an error.
func (s *Store) Delete(uid string) error {
	if !manifest.ValidUID(uid) {
		return fmt.Errorf("removing definition: invalid identifier %q", uid)
	}
	if err := os.Remove(s.Path(uid)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing definition %s: %w", uid, err)
	}
	return nil
}

// LoadAll parses every definition file in the directory. Files that fail to
// parse, or whose identifier does not match their file name, are logged and
// skipped. A missing directory yields an empty result.
func (s *Store) LoadAll() ([]*manifest.Definition, error) {
	entries, err := os.ReadDir(s.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading metadata directory %s: %w", s.dir, err)
	}

	var defs []*manifest.Definition
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || filepath.Ext(name) != fileExt {
			continue
		}

		path := filepath.Join(s.dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			s.logger.Warn("skipping unreadable definition file", "path", path, "error", err)
			continue
		}
		// Records carry their own source; the file path is not one.
		def, err := manifest.Parse(data, "")
		if err != nil {
			s.logger.Warn("skipping malformed definition file", "path", path, "error", err)
			continue
		}
		if want := strings.TrimSuffix(name, fileExt); def.UID != want {
			s.logger.Warn("skipping definition file with mismatched identifier", "path", path, "uid", def.UID)
			continue
		}
		defs = append(defs, def)
	}

	sort.Slice(defs, func(i, j int) bool { return defs[i].UID < defs[j].UID })
	return defs, nil
}
