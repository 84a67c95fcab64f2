package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/quickmod/quickmod/internal/config"
	"github.com/quickmod/quickmod/internal/download"
	"github.com/quickmod/quickmod/internal/installer"
	"github.com/quickmod/quickmod/internal/logging"
	"github.com/quickmod/quickmod/internal/manifest"
	"github.com/quickmod/quickmod/internal/registry"
	"github.com/quickmod/quickmod/internal/resolver"
)

// DefaultConcurrency bounds parallel link acquisitions, downloads and
// installs.
const DefaultConcurrency = 4

// selection is one definition with a chosen version.
type selection struct {
	idx     int // position in the report
	def     *manifest.Definition
	version manifest.Version
	acq     *WorkingAcquisition
}

// Pipeline runs one acquisition over definitions read from a Registry.
type Pipeline struct {
	reg         *registry.Registry
	client      *download.Client
	session     download.Session
	installer   *installer.Installer
	chooser     Chooser
	sink        Sink
	observer    Observer
	logger      *log.Logger
	concurrency int
	requests    *requestTable

	mu        sync.Mutex
	state     State
	started   bool
	cancelled bool
	cancel    context.CancelFunc
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithClient sets the download client.
func WithClient(c *download.Client) Option {
	return func(p *Pipeline) { p.client = c }
}

// WithSession sets how interactive links are resolved.
func WithSession(s download.Session) Option {
	return func(p *Pipeline) { p.session = s }
}

// WithInstaller sets the installer.
func WithInstaller(i *installer.Installer) Option {
	return func(p *Pipeline) { p.installer = i }
}

// WithChooser sets who answers environment and version choices.
func WithChooser(c Chooser) Option {
	return func(p *Pipeline) { p.chooser = c }
}

// WithSink sets the progress sink.
func WithSink(s Sink) Option {
	return func(p *Pipeline) { p.sink = s }
}

// WithObserver sets the state-change observer.
func WithObserver(o Observer) Option {
	return func(p *Pipeline) { p.observer = o }
}

// WithLogger sets the pipeline logger.
func WithLogger(l *log.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithConcurrency bounds parallel operations. Non-positive values keep the default.
func WithConcurrency(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// New creates a Pipeline over reg.
func New(reg *registry.Registry, opts ...Option) *Pipeline {
	p := &Pipeline{
		reg:         reg,
		chooser:     DefaultChooser{},
		sink:        discardSink{},
		logger:      logging.Discard(),
		concurrency: DefaultConcurrency,
		requests:    newRequestTable(),
		state:       SelectEnvironment,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.client == nil {
		p.client = download.New(download.WithLogger(p.logger))
	}
	if p.session == nil {
		p.session = download.NewBrowserSession(p.client, download.DefaultMaxPages)
	}
	if p.installer == nil {
		p.installer = installer.New(installer.WithLogger(p.logger))
	}
	return p
}

// State returns the current state.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Cancel stops the run. In-flight transfers are cancelled, staged
// downloads discarded, and every selection not yet installed ends Aborted.
// Cancel before Run makes Run finish immediately.
func (p *Pipeline) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelled = true
	if p.cancel != nil {
		p.cancel()
	}
}

// Run takes uids from environment choice to installation and reports one
// Result per distinct uid. The returned error is non-nil only when no
// environment could be chosen; per-definition failures are in the report.
func (p *Pipeline) Run(ctx context.Context, envs []config.Environment, uids []string) (*Report, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return nil, errors.New("pipeline already run")
	}
	p.started = true
	p.cancel = cancel
	if p.cancelled {
		cancel()
	}
	p.mu.Unlock()

	report := &Report{}
	seen := map[string]bool{}
	for _, uid := range uids {
		if !seen[uid] {
			seen[uid] = true
			report.Results = append(report.Results, Result{UID: uid})
		}
	}

	env, err := p.chooseEnvironment(ctx, envs)
	if err != nil {
		if ctx.Err() != nil {
			return p.abort(report, nil), nil
		}
		return p.abort(report, nil), err
	}
	report.Environment = env
	if err := p.advance(EnvironmentChosen, Progress{}); err != nil {
		return nil, err
	}

	sels, cancelled := p.selectVersions(ctx, env, report)
	if cancelled {
		return p.abort(report, sels), nil
	}
	if err := p.advance(VersionsChosen, Progress{}); err != nil {
		return nil, err
	}

	for _, s := range sels {
		s.acq = newWorkingAcquisition(s.version)
	}
	sels = p.dropLinkless(report, sels)
	p.acquireLinks(ctx, sels)
	if ctx.Err() != nil {
		return p.abort(report, sels), nil
	}
	if err := p.advance(LinksAcquired, Progress{LinksPending: linksPending(sels)}); err != nil {
		return nil, err
	}
	sels = p.settle(report, sels, FailedAcquisition)

	p.downloadAll(ctx, sels)
	if ctx.Err() != nil {
		return p.abort(report, sels), nil
	}
	if err := p.advance(DownloadsDone, Progress{DownloadsPending: downloadsPending(sels)}); err != nil {
		return nil, err
	}
	sels = p.settle(report, sels, FailedDownload)

	p.installAll(ctx, env, report, sels)
	ev := InstallsDone
	if ctx.Err() != nil {
		ev = Cancel
		markAborted(report)
	}
	if err := p.advance(ev, Progress{}); err != nil {
		return nil, err
	}
	return report, nil
}

func (p *Pipeline) chooseEnvironment(ctx context.Context, envs []config.Environment) (config.Environment, error) {
	if err := ctx.Err(); err != nil {
		return config.Environment{}, err
	}
	switch len(envs) {
	case 0:
		return config.Environment{}, ErrNoEnvironment
	case 1:
		return envs[0], nil
	}
	return p.chooser.ChooseEnvironment(ctx, envs)
}

// selectVersions resolves and chooses a version per result. It reports
// true when the run was cancelled while choosing.
func (p *Pipeline) selectVersions(ctx context.Context, env config.Environment, report *Report) ([]*selection, bool) {
	var sels []*selection
	for i := range report.Results {
		if ctx.Err() != nil {
			return sels, true
		}
		res := &report.Results[i]

		def, ok := p.reg.Get(res.UID)
		if !ok {
			res.Outcome = FailedUnresolvable
			res.Err = fmt.Errorf("%s: %w", res.UID, registry.ErrNotFound)
			continue
		}
		res.Name = def.Name

		candidates := resolver.Resolve(def, env.Version)
		if len(candidates) == 0 {
			res.Outcome = FailedUnresolvable
			res.Err = resolver.Unresolvable(def, env.Version)
			p.logger.Warn("no compatible version", "uid", def.UID, "environment", env.Version)
			continue
		}

		v, err := p.chooser.ChooseVersion(ctx, def, candidates)
		if err != nil {
			if ctx.Err() != nil {
				return sels, true
			}
			res.Outcome = Aborted
			res.Err = err
			continue
		}
		res.Version = v.Name
		sels = append(sels, &selection{idx: i, def: def, version: v})
	}
	return sels, false
}

func (p *Pipeline) dropLinkless(report *Report, sels []*selection) []*selection {
	var keep []*selection
	for _, s := range sels {
		if s.acq.Len() == 0 {
			res := &report.Results[s.idx]
			res.Outcome = FailedAcquisition
			res.Err = fmt.Errorf("%s %s: version has no download links", s.def.UID, s.version.Name)
			continue
		}
		keep = append(keep, s)
	}
	return keep
}

func (p *Pipeline) acquireLinks(ctx context.Context, sels []*selection) {
	var g errgroup.Group
	g.SetLimit(p.concurrency)
	for _, s := range sels {
		for i, link := range s.version.Links {
			g.Go(func() error {
				if !link.Interactive {
					s.acq.resolved(i, download.DirectHandle(link))
					return nil
				}

				id := p.requests.open(s, i, p.sink)
				defer p.requests.close(id)
				p.sink.Progress(Update{Stage: AcquireLinks, UID: s.def.UID, Request: id, Total: -1})

				h, err := p.session.Resolve(ctx, link.URL)
				if err != nil {
					p.logger.Warn("link acquisition failed", "uid", s.def.UID, "url", link.URL, "error", err)
					s.acq.fail(i, err)
					return nil
				}
				if h.FileName == "" {
					h.FileName = link.FileName()
				}
				s.acq.resolved(i, h)
				return nil
			})
		}
	}
	_ = g.Wait()
}

func (p *Pipeline) downloadAll(ctx context.Context, sels []*selection) {
	var g errgroup.Group
	g.SetLimit(p.concurrency)
	for _, s := range sels {
		for i, hs := range s.acq.Handles() {
			g.Go(func() error {
				id := p.requests.open(s, i, p.sink)
				defer p.requests.close(id)

				a, err := p.client.Download(ctx, hs.Handle, func(done, total int64) {
					req, ok := p.requests.lookup(id)
					if !ok {
						return
					}
					req.sink.Progress(Update{Stage: Downloading, UID: req.sel.def.UID, Request: id, Done: done, Total: total})
				})
				if err != nil {
					if ctx.Err() == nil {
						p.logger.Warn("download failed", "uid", s.def.UID, "url", hs.Handle.URL, "error", err)
					}
					s.acq.fail(i, err)
					return nil
				}
				s.acq.downloaded(i, a)
				return nil
			})
		}
	}
	_ = g.Wait()
}

func (p *Pipeline) installAll(ctx context.Context, env config.Environment, report *Report, sels []*selection) {
	var g errgroup.Group
	g.SetLimit(p.concurrency)
	for _, s := range sels {
		g.Go(func() error {
			defer s.acq.discard()
			res := &report.Results[s.idx]

			paths, err := p.install(ctx, env, s)
			res.Paths = paths
			switch {
			case err == nil:
				res.Outcome = Installed
				p.sink.Progress(Update{Stage: Installing, UID: s.def.UID, Done: 1, Total: 1})
			case ctx.Err() != nil && len(paths) == 0:
				res.Outcome = Aborted
				res.Err = ErrCancelled
			default:
				res.Outcome = FailedInstall
				res.Err = err
				p.logger.Warn("install failed", "uid", s.def.UID, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// install installs every artifact of s. Artifacts are only reached once
// all of the selection's downloads succeeded.
func (p *Pipeline) install(ctx context.Context, env config.Environment, s *selection) ([]string, error) {
	var paths []string
	for _, a := range s.acq.Artifacts() {
		if err := ctx.Err(); err != nil {
			return paths, err
		}
		written, err := p.installer.InstallFile(ctx, env, a.Name, a.Path, s.version.Type)
		paths = append(paths, written...)
		if err != nil {
			return paths, err
		}
	}
	return paths, nil
}

// settle moves selections with a failed handle into outcome and returns
// the rest.
func (p *Pipeline) settle(report *Report, sels []*selection, outcome Outcome) []*selection {
	var keep []*selection
	for _, s := range sels {
		if err := s.acq.Err(); err != nil {
			res := &report.Results[s.idx]
			res.Outcome = outcome
			res.Err = err
			s.acq.discard()
			continue
		}
		keep = append(keep, s)
	}
	return keep
}

// abort discards staged downloads and finishes the run.
func (p *Pipeline) abort(report *Report, sels []*selection) *Report {
	for _, s := range sels {
		if s.acq != nil {
			s.acq.discard()
		}
	}
	markAborted(report)
	if err := p.advance(Cancel, Progress{}); err != nil {
		p.logger.Debug("abort on finished run", "error", err)
	}
	return report
}

func markAborted(report *Report) {
	for i := range report.Results {
		if report.Results[i].Outcome == Pending {
			report.Results[i].Outcome = Aborted
			report.Results[i].Err = ErrCancelled
		}
	}
}

func (p *Pipeline) advance(ev Event, prog Progress) error {
	p.mu.Lock()
	from := p.state
	to, err := Transition(from, ev, prog)
	if err == nil {
		p.state = to
	}
	p.mu.Unlock()
	if err != nil {
		return err
	}

	p.logger.Debug("state change", "from", from, "to", to, "event", ev)
	if p.observer != nil {
		p.observer(from, to)
	}
	return nil
}

func linksPending(sels []*selection) int {
	n := 0
	for _, s := range sels {
		n += s.acq.LinksPending()
	}
	return n
}

func downloadsPending(sels []*selection) int {
	n := 0
	for _, s := range sels {
		n += s.acq.DownloadsPending()
	}
	return n
}
