package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/quickmod/quickmod/internal/logging"
	"github.com/quickmod/quickmod/internal/manifest"
)

var (
	// ErrNotFound is returned when no definition has the requested identifier.
	ErrNotFound = errors.New("definition not found")
	// ErrClosed is returned by mutations after Close.
	ErrClosed = errors.New("registry closed")
)

// Change describes what an Upsert did to the registry.
type Change int

const (
	// Added means the identifier was new.
	Added Change = iota
	// Updated means an existing entry was replaced by different content.
	Updated
	// Unchanged means the existing entry was value-equal; nothing was written.
	Unchanged
)

func (c Change) String() string {
	switch c {
	case Added:
		return "added"
	case Updated:
		return "updated"
	case Unchanged:
		return "unchanged"
	default:
		return "unknown"
	}
}

// Registry is the in-memory catalog of definitions.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*manifest.Definition
	closed  bool

	// writers serializes persist-then-swap per identifier without holding
	// mu across disk I/O.
	writersMu sync.Mutex
	writers   map[string]*sync.Mutex

	store  *Store
	logger *log.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithStore mirrors every mutation to s.
func WithStore(s *Store) Option {
	return func(r *Registry) {
		r.store = s
	}
}

// WithLogger sets the logger used for load and persistence warnings.
func WithLogger(l *log.Logger) Option {
	return func(r *Registry) {
		r.logger = l
	}
}

// New creates an empty Registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		entries: make(map[string]*manifest.Definition),
		writers: make(map[string]*sync.Mutex),
		logger:  logging.Discard(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Open creates a Registry backed by a Store in dir and loads every
// well-formed definition file found there. Malformed files are logged and
// skipped.
func Open(dir string, opts ...Option) (*Registry, error) {
	r := New(opts...)
	r.store = NewStore(dir, r.logger)

	defs, err := r.store.LoadAll()
	if err != nil {
		return nil, err
	}
	for _, def := range defs {
		r.entries[def.UID] = def
	}
	return r, nil
}

// Upsert inserts def, or replaces the entry sharing its identifier. The
// persisted file is written before the in-memory entry is swapped, so a
// failed write leaves the previous entry visible.
func (r *Registry) Upsert(def *manifest.Definition) (Change, error) {
	if def == nil || def.UID == "" {
		return 0, fmt.Errorf("upserting definition: missing identifier")
	}
	if !manifest.ValidUID(def.UID) {
		return 0, fmt.Errorf("upserting definition: invalid identifier %q", def.UID)
	}

	w := r.writer(def.UID)
	w.Lock()
	defer w.Unlock()

	r.mu.RLock()
	closed := r.closed
	current, exists := r.entries[def.UID]
	r.mu.RUnlock()
	if closed {
		return 0, ErrClosed
	}
	if exists && current.Equal(def) {
		return Unchanged, nil
	}

	next := def.Clone()
	if r.store != nil {
		if err := r.store.Save(next); err != nil {
			return 0, err
		}
	}

	r.mu.Lock()
	r.entries[next.UID] = next
	r.mu.Unlock()

	if exists {
		return Updated, nil
	}
	return Added, nil
}

// Remove deletes the entry and its persisted file. Snapshots handed out
// earlier are detached copies and no longer resolve through Get.
func (r *Registry) Remove(uid string) error {
	w := r.writer(uid)
	w.Lock()
	defer w.Unlock()

	r.mu.RLock()
	closed := r.closed
	_, exists := r.entries[uid]
	r.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	if !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, uid)
	}

	if r.store != nil {
		if err := r.store.Delete(uid); err != nil {
			return err
		}
	}

	r.mu.Lock()
	delete(r.entries, uid)
	r.mu.Unlock()
	return nil
}

// Get returns a snapshot of the definition with the given identifier.
func (r *Registry) Get(uid string) (*manifest.Definition, bool) {
	r.mu.RLock()
	def, ok := r.entries[uid]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return def.Clone(), true
}

// All returns snapshots of every definition, ordered by identifier.
func (r *Registry) All() []*manifest.Definition {
	r.mu.RLock()
	defs := make([]*manifest.Definition, 0, len(r.entries))
	for _, def := range r.entries {
		defs = append(defs, def)
	}
	r.mu.RUnlock()

	sort.Slice(defs, func(i, j int) bool { return defs[i].UID < defs[j].UID })
	for i, def := range defs {
		defs[i] = def.Clone()
	}
	return defs
}

// Len returns the number of definitions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Store returns the backing store, or nil for a memory-only registry.
func (r *Registry) Store() *Store {
	return r.store
}

// Close releases the registry. Reads keep working on the last state;
// mutations fail with ErrClosed.
func (r *Registry) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return nil
}

func (r *Registry) writer(uid string) *sync.Mutex {
	r.writersMu.Lock()
	defer r.writersMu.Unlock()
	w, ok := r.writers[uid]
	if !ok {
		w = &sync.Mutex{}
		r.writers[uid] = w
	}
	return w
}
