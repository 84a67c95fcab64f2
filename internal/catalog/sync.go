package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/quickmod/quickmod/internal/download"
	"github.com/quickmod/quickmod/internal/logging"
	"github.com/quickmod/quickmod/internal/manifest"
	"github.com/quickmod/quickmod/internal/registry"
)

// DefaultConcurrency bounds how many sources are fetched at once.
const DefaultConcurrency = 4

// Status is the per-source result of a sync.
type Status string

const (
	StatusAdded     Status = "added"
	StatusUpdated   Status = "updated"
	StatusUnchanged Status = "unchanged"
	StatusFailed    Status = "failed"
)

// Outcome is what happened to one source.
type Outcome struct {
	Source string
	UID    string
	Status Status
	Err    error
}

// Report aggregates the outcomes of one sync call, in input order.
type Report struct {
	Outcomes []Outcome
}

// Succeeded returns the number of sources that yielded a definition.
func (r Report) Succeeded() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status != StatusFailed {
			n++
		}
	}
	return n
}

// Failures returns the failed outcomes.
func (r Report) Failures() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if o.Status == StatusFailed {
			out = append(out, o)
		}
	}
	return out
}

// Err joins every per-source error, or returns nil when all succeeded.
func (r Report) Err() error {
	var errs []error
	for _, o := range r.Failures() {
		errs = append(errs, fmt.Errorf("%s: %w", o.Source, o.Err))
	}
	return errors.Join(errs...)
}

// Synchronizer merges definitions from sources into a Registry.
type Synchronizer struct {
	reg         *registry.Registry
	client      *download.Client
	logger      *log.Logger
	concurrency int

	indexMu sync.Mutex
	index   *index
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithClient sets the HTTP client used for remote sources.
func WithClient(c *download.Client) Option {
	return func(s *Synchronizer) {
		s.client = c
	}
}

// WithLogger sets the synchronizer logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Synchronizer) {
		s.logger = l
	}
}

// WithConcurrency bounds parallel fetches. Non-positive values keep the default.
func WithConcurrency(n int) Option {
	return func(s *Synchronizer) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// New creates a Synchronizer over reg. When reg is backed by a store the
// source index and freshness marker live in the store's directory.
func New(reg *registry.Registry, opts ...Option) (*Synchronizer, error) {
	s := &Synchronizer{
		reg:         reg,
		logger:      logging.Discard(),
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.client == nil {
		s.client = download.New(download.WithLogger(s.logger))
	}

	idx, err := loadIndex(s.dir())
	if err != nil {
		return nil, err
	}
	s.index = idx
	return s, nil
}

func (s *Synchronizer) dir() string {
	if st := s.reg.Store(); st != nil {
		return st.Dir()
	}
	return ""
}

// Sync fetches, validates and upserts every source. A failing source never
// stops the others; the report carries one outcome per source.
func (s *Synchronizer) Sync(ctx context.Context, sources []string) Report {
	return s.run(ctx, sources, false)
}

// Register syncs sources and remembers the ones that succeeded for SyncAll.
func (s *Synchronizer) Register(ctx context.Context, sources ...string) Report {
	return s.run(ctx, sources, true)
}

// SyncAll re-syncs every registered source.
func (s *Synchronizer) SyncAll(ctx context.Context) Report {
	var sources []string
	for _, e := range s.Sources() {
		sources = append(sources, e.Source)
	}
	return s.run(ctx, sources, true)
}

// Sources lists registered sources sorted by location.
func (s *Synchronizer) Sources() []SourceEntry {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()
	return s.index.list()
}

// Unregister removes a definition's persisted file, its registry entry and
// every source that produced it.
func (s *Synchronizer) Unregister(uid string) error {
	if err := s.reg.Remove(uid); err != nil {
		return err
	}

	s.indexMu.Lock()
	defer s.indexMu.Unlock()
	if s.index.dropUID(uid) > 0 {
		if err := s.index.save(); err != nil {
			return err
		}
	}
	s.logger.Info("unregistered definition", "uid", uid)
	return nil
}

type fetched struct {
	def *manifest.Definition
	err error
}

func (s *Synchronizer) run(ctx context.Context, in []string, record bool) Report {
	sources := make([]string, len(in))
	for i, src := range in {
		sources[i] = normalizeSource(src)
	}

	results := make([]fetched, len(sources))
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, src := range sources {
		g.Go(func() error {
			def, err := s.load(ctx, src)
			results[i] = fetched{def: def, err: err}
			return nil
		})
	}
	_ = g.Wait()

	// Apply in input order so the last source for an identifier wins.
	report := Report{Outcomes: make([]Outcome, len(sources))}
	for i, src := range sources {
		out := Outcome{Source: src}
		res := results[i]
		switch {
		case res.err != nil:
			out.Status, out.Err = StatusFailed, res.err
		default:
			out.UID = res.def.UID
			change, err := s.reg.Upsert(res.def)
			if err != nil {
				out.Status, out.Err = StatusFailed, fmt.Errorf("storing %s: %w", res.def.UID, err)
				break
			}
			out.Status = statusOf(change)
		}
		report.Outcomes[i] = out

		if out.Err != nil {
			s.logger.Warn("sync failed", "source", src, "error", out.Err)
		} else {
			s.logger.Debug("synced", "source", src, "uid", out.UID, "status", out.Status)
		}
	}

	if report.Succeeded() > 0 {
		if record {
			s.recordSources(report)
		}
		if dir := s.dir(); dir != "" {
			if err := WriteFreshnessMarker(dir); err != nil {
				s.logger.Warn("writing freshness marker", "path", dir, "error", err)
			}
		}
	}
	return report
}

func (s *Synchronizer) load(ctx context.Context, source string) (*manifest.Definition, error) {
	data, err := s.fetch(ctx, source)
	if err != nil {
		return nil, err
	}
	return manifest.Parse(data, source)
}

func (s *Synchronizer) recordSources(report Report) {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()
	for _, o := range report.Outcomes {
		if o.Status != StatusFailed {
			s.index.set(o.Source, o.UID)
		}
	}
	if err := s.index.save(); err != nil {
		s.logger.Warn("saving source index", "error", err)
	}
}

func statusOf(c registry.Change) Status {
	switch c {
	case registry.Added:
		return StatusAdded
	case registry.Updated:
		return StatusUpdated
	default:
		return StatusUnchanged
	}
}
