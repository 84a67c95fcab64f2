package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"go.yaml.in/yaml/v3"

	"github.com/quickmod/quickmod/internal/platform"
)

// indexFile lists registered sources in the metadata directory.
const indexFile = "sources.yaml"

// SourceEntry is one registered source and the identifier it last produced.
type SourceEntry struct {
	Source string `yaml:"source"`
	UID    string `yaml:"uid,omitempty"`
}

type indexDoc struct {
	Sources []SourceEntry `yaml:"sources"`
}

// index is the set of registered sources. A zero dir keeps it in memory.
type index struct {
	dir     string
	entries map[string]string // source -> uid
}

func loadIndex(dir string) (*index, error) {
	idx := &index{dir: dir, entries: map[string]string{}}
	if dir == "" {
		return idx, nil
	}
	data, err := os.ReadFile(filepath.Join(dir, indexFile))
	if os.IsNotExist(err) {
		return idx, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading source index: %w", err)
	}
	var doc indexDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing source index: %w", err)
	}
	for _, e := range doc.Sources {
		if e.Source != "" {
			idx.entries[e.Source] = e.UID
		}
	}
	return idx, nil
}

func (idx *index) list() []SourceEntry {
	out := make([]SourceEntry, 0, len(idx.entries))
	for src, uid := range idx.entries {
		out = append(out, SourceEntry{Source: src, UID: uid})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Source < out[j].Source })
	return out
}

func (idx *index) set(source, uid string) {
	idx.entries[source] = uid
}

// dropUID removes every source that produced uid and reports how many.
func (idx *index) dropUID(uid string) int {
	n := 0
	for src, u := range idx.entries {
		if u == uid {
			delete(idx.entries, src)
			n++
		}
	}
	return n
}

func (idx *index) save() error {
	if idx.dir == "" {
		return nil
	}
	data, err := yaml.Marshal(indexDoc{Sources: idx.list()})
	if err != nil {
		return fmt.Errorf("encoding source index: %w", err)
	}
	if err := platform.WriteBytesAtomic(filepath.Join(idx.dir, indexFile), data, platform.FilePermNormal); err != nil {
		return fmt.Errorf("writing source index: %w", err)
	}
	return nil
}
