package pipeline

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/quickmod/quickmod/internal/config"
	"github.com/quickmod/quickmod/internal/download"
	"github.com/quickmod/quickmod/internal/installer"
	"github.com/quickmod/quickmod/internal/manifest"
	"github.com/quickmod/quickmod/internal/registry"
	"github.com/quickmod/quickmod/internal/resolver"
)

func def(uid string, versions ...manifest.Version) *manifest.Definition {
	for i := range versions {
		versions[i].UID = uid
	}
	return &manifest.Definition{UID: uid, Name: uid, Versions: versions}
}

func version(name string, typ manifest.Type, compat []string, urls ...string) manifest.Version {
	v := manifest.Version{Name: name, Type: typ, Compatible: compat}
	for _, u := range urls {
		v.Links = append(v.Links, manifest.Link{URL: u})
	}
	return v
}

func newRegistry(t *testing.T, defs ...*manifest.Definition) *registry.Registry {
	t.Helper()
	r := registry.New()
	for _, d := range defs {
		if _, err := r.Upsert(d); err != nil {
			t.Fatal(err)
		}
	}
	return r
}

func configZip(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	f, err := w.Create("cfgmod.cfg")
	if err != nil {
		t.Fatal(err)
	}
	f.Write([]byte("enabled=true"))
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

type fixture struct {
	env     config.Environment
	staging string
	client  *download.Client
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	staging := t.TempDir()
	return fixture{
		env:     config.Environment{Name: "main", Root: t.TempDir(), Version: "1.7.10"},
		staging: staging,
		client:  download.New(download.WithStagingDir(staging)),
	}
}

func (f fixture) assertNoStagedFiles(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(f.staging)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("staging dir not empty: %v", entries)
	}
}

func filesUnder(t *testing.T, root string) []string {
	t.Helper()
	var out []string
	filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			rel, _ := filepath.Rel(root, path)
			out = append(out, filepath.ToSlash(rel))
		}
		return nil
	})
	return out
}

func outcomes(r *Report) map[string]Outcome {
	out := map[string]Outcome{}
	for _, res := range r.Results {
		out[res.UID] = res.Outcome
	}
	return out
}

// stateRecorder is an Observer capturing every state entered.
type stateRecorder struct {
	mu     sync.Mutex
	states []State
}

func (s *stateRecorder) observe(_, to State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = append(s.states, to)
}

func TestRunInstallsByType(t *testing.T) {
	jar := []byte("jar-bytes\x00\x01")
	cfg := configZip(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/foo-1.0.jar":
			w.Write(jar)
		case "/cfgmod.zip":
			w.Write(cfg)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	reg := newRegistry(t,
		def("foo", version("1.0", manifest.TypeLibrary, []string{"1.7.10"}, srv.URL+"/foo-1.0.jar")),
		def("cfgmod", version("2.0", manifest.TypeConfig, []string{"1.7.x"}, srv.URL+"/cfgmod.zip")),
	)
	f := newFixture(t)
	rec := &stateRecorder{}
	p := New(reg, WithClient(f.client), WithObserver(rec.observe))

	report, err := p.Run(context.Background(), []config.Environment{f.env}, []string{"foo", "cfgmod"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := map[string]Outcome{"foo": Installed, "cfgmod": Installed}
	if diff := cmp.Diff(want, outcomes(report)); diff != "" {
		t.Fatalf("outcomes (-want +got):\n%s", diff)
	}

	got, err := os.ReadFile(filepath.Join(f.env.Root, "mods", "foo-1.0.jar"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, jar) {
		t.Errorf("library artifact modified")
	}
	if diff := cmp.Diff([]string{"config/cfgmod.cfg", "mods/foo-1.0.jar"}, filesUnder(t, f.env.Root)); diff != "" {
		t.Errorf("installed files (-want +got):\n%s", diff)
	}

	wantStates := []State{SelectVersions, AcquireLinks, Downloading, Installing, Finished}
	if diff := cmp.Diff(wantStates, rec.states); diff != "" {
		t.Errorf("state sequence (-want +got):\n%s", diff)
	}
	if p.State() != Finished {
		t.Errorf("State = %s", p.State())
	}
	res, _ := report.Result("foo")
	if res.Version != "1.0" || len(res.Paths) != 1 {
		t.Errorf("foo result = %+v", res)
	}
	if p.requests.Len() != 0 {
		t.Errorf("request table holds %d entries after run", p.requests.Len())
	}
	f.assertNoStagedFiles(t)
}

func TestRunUnresolvableDoesNotStopBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("bytes"))
	}))
	defer srv.Close()

	reg := newRegistry(t,
		def("old", version("0.1", manifest.TypeLibrary, []string{"1.6.4"}, srv.URL+"/old.jar")),
		def("ok", version("1.0", manifest.TypeLibrary, []string{"1.7.10"}, srv.URL+"/ok.jar")),
	)
	f := newFixture(t)
	report, err := New(reg, WithClient(f.client)).Run(context.Background(), []config.Environment{f.env}, []string{"old", "ok", "ghost"})
	if err != nil {
		t.Fatal(err)
	}

	want := map[string]Outcome{"old": FailedUnresolvable, "ok": Installed, "ghost": FailedUnresolvable}
	if diff := cmp.Diff(want, outcomes(report)); diff != "" {
		t.Errorf("outcomes (-want +got):\n%s", diff)
	}
	old, _ := report.Result("old")
	var ue *resolver.UnresolvableVersionError
	if !errors.As(old.Err, &ue) || old.Kind() != "UnresolvableVersionError" {
		t.Errorf("old err = %v (kind %s)", old.Err, old.Kind())
	}
	ghost, _ := report.Result("ghost")
	if !errors.Is(ghost.Err, registry.ErrNotFound) {
		t.Errorf("ghost err = %v", ghost.Err)
	}
}

func TestRunPerSelectionFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/good.jar", "/notzip.zip":
			w.Write([]byte("plain bytes"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	reg := newRegistry(t,
		def("good", version("1", manifest.TypeLibrary, []string{"1.7.10"}, srv.URL+"/good.jar")),
		def("missing", version("1", manifest.TypeLibrary, []string{"1.7.10"}, srv.URL+"/good.jar", srv.URL+"/missing.jar")),
		def("badcfg", version("1", manifest.TypeConfig, []string{"1.7.10"}, srv.URL+"/notzip.zip")),
		def("nolinks", version("1", manifest.TypeLibrary, []string{"1.7.10"})),
	)
	f := newFixture(t)
	report, err := New(reg, WithClient(f.client)).Run(context.Background(), []config.Environment{f.env}, []string{"good", "missing", "badcfg", "nolinks"})
	if err != nil {
		t.Fatal(err)
	}

	want := map[string]Outcome{
		"good":    Installed,
		"missing": FailedDownload,
		"badcfg":  FailedInstall,
		"nolinks": FailedAcquisition,
	}
	if diff := cmp.Diff(want, outcomes(report)); diff != "" {
		t.Errorf("outcomes (-want +got):\n%s", diff)
	}

	missing, _ := report.Result("missing")
	if missing.Kind() != "NetworkError" {
		t.Errorf("missing kind = %s (%v)", missing.Kind(), missing.Err)
	}
	badcfg, _ := report.Result("badcfg")
	var ae *installer.UnsupportedArchiveError
	if !errors.As(badcfg.Err, &ae) {
		t.Errorf("badcfg err = %v", badcfg.Err)
	}

	// The failed selection's first artifact must not be installed.
	if diff := cmp.Diff([]string{"mods/good.jar"}, filesUnder(t, f.env.Root)); diff != "" {
		t.Errorf("installed files (-want +got):\n%s", diff)
	}
	f.assertNoStagedFiles(t)
}

type fakeSession struct {
	handles map[string]download.Handle
}

func (s fakeSession) Resolve(_ context.Context, pageURL string) (download.Handle, error) {
	h, ok := s.handles[pageURL]
	if !ok {
		return download.Handle{}, &download.NetworkError{Op: "browse", URL: pageURL, Err: download.ErrNoDownload}
	}
	return h, nil
}

func TestRunInteractiveLinks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("artifact"))
	}))
	defer srv.Close()

	landing := "https://mirror.example.com/landing/ironchests"
	dead := "https://mirror.example.com/landing/dead"
	v := version("1.0", manifest.TypeLibrary, []string{"1.7.10"})
	v.Links = []manifest.Link{{URL: landing, Interactive: true}}
	deadV := version("1.0", manifest.TypeLibrary, []string{"1.7.10"})
	deadV.Links = []manifest.Link{{URL: dead, Interactive: true}}

	reg := newRegistry(t, def("ironchests", v), def("dead", deadV))
	session := fakeSession{handles: map[string]download.Handle{
		landing: {URL: srv.URL + "/dl?id=7", FileName: "ironchests-1.0.jar"},
	}}

	var mu sync.Mutex
	var stages []State
	sink := SinkFunc(func(u Update) {
		mu.Lock()
		defer mu.Unlock()
		stages = append(stages, u.Stage)
	})

	f := newFixture(t)
	report, err := New(reg, WithClient(f.client), WithSession(session), WithSink(sink)).
		Run(context.Background(), []config.Environment{f.env}, []string{"ironchests", "dead"})
	if err != nil {
		t.Fatal(err)
	}

	want := map[string]Outcome{"ironchests": Installed, "dead": FailedAcquisition}
	if diff := cmp.Diff(want, outcomes(report)); diff != "" {
		t.Errorf("outcomes (-want +got):\n%s", diff)
	}
	if _, err := os.Stat(filepath.Join(f.env.Root, "mods", "ironchests-1.0.jar")); err != nil {
		t.Errorf("artifact not installed under the session-provided name: %v", err)
	}
	dead2, _ := report.Result("dead")
	if !errors.Is(dead2.Err, download.ErrNoDownload) {
		t.Errorf("dead err = %v", dead2.Err)
	}

	seen := map[State]bool{}
	for _, s := range stages {
		seen[s] = true
	}
	for _, s := range []State{AcquireLinks, Downloading, Installing} {
		if !seen[s] {
			t.Errorf("sink got no %s update", s)
		}
	}
}

// blockingServer serves /done.jar at once and holds /slow.jar open until
// the client goes away.
func blockingServer(t *testing.T) (*httptest.Server, <-chan struct{}) {
	t.Helper()
	slowStarted := make(chan struct{})
	var once sync.Once
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/done.jar":
			w.Header().Set("Content-Length", "8")
			w.Write([]byte("complete"))
		case "/slow.jar":
			w.Header().Set("Content-Length", "1048576")
			w.Write([]byte("first chunk"))
			w.(http.Flusher).Flush()
			once.Do(func() { close(slowStarted) })
			<-r.Context().Done()
		}
	}))
	t.Cleanup(srv.Close)
	return srv, slowStarted
}

func TestCancelDuringDownloadingWritesNothing(t *testing.T) {
	srv, slowStarted := blockingServer(t)
	reg := newRegistry(t,
		def("done", version("1", manifest.TypeLibrary, []string{"1.7.10"}, srv.URL+"/done.jar")),
		def("slow", version("1", manifest.TypeLibrary, []string{"1.7.10"}, srv.URL+"/slow.jar")),
	)

	f := newFixture(t)
	doneFinished := make(chan struct{})
	var once sync.Once
	sink := SinkFunc(func(u Update) {
		if u.UID == "done" && u.Stage == Downloading && u.Done == u.Total {
			once.Do(func() { close(doneFinished) })
		}
	})
	p := New(reg, WithClient(f.client), WithSink(sink))

	go func() {
		<-slowStarted
		<-doneFinished
		p.Cancel()
	}()

	report, err := p.Run(context.Background(), []config.Environment{f.env}, []string{"done", "slow"})
	if err != nil {
		t.Fatal(err)
	}

	want := map[string]Outcome{"done": Aborted, "slow": Aborted}
	if diff := cmp.Diff(want, outcomes(report)); diff != "" {
		t.Errorf("outcomes (-want +got):\n%s", diff)
	}
	for _, res := range report.Results {
		if !errors.Is(res.Err, ErrCancelled) {
			t.Errorf("%s err = %v, want ErrCancelled", res.UID, res.Err)
		}
	}
	if files := filesUnder(t, f.env.Root); len(files) != 0 {
		t.Errorf("files written after cancel: %v", files)
	}
	f.assertNoStagedFiles(t)
	if p.State() != Finished {
		t.Errorf("State = %s, want Finished", p.State())
	}
}

func TestCancelKeepsEarlierFailures(t *testing.T) {
	srv, slowStarted := blockingServer(t)
	reg := newRegistry(t,
		def("a", version("1", manifest.TypeLibrary, []string{"1.6.4"}, srv.URL+"/done.jar")),
		def("b", version("1", manifest.TypeLibrary, []string{"1.7.10"}, srv.URL+"/slow.jar")),
	)

	f := newFixture(t)
	p := New(reg, WithClient(f.client))
	go func() {
		<-slowStarted
		p.Cancel()
	}()

	report, err := p.Run(context.Background(), []config.Environment{f.env}, []string{"a", "b"})
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]Outcome{"a": FailedUnresolvable, "b": Aborted}
	if diff := cmp.Diff(want, outcomes(report)); diff != "" {
		t.Errorf("outcomes (-want +got):\n%s", diff)
	}
	if _, err := os.Stat(filepath.Join(f.env.Root, "mods", "slow.jar")); !os.IsNotExist(err) {
		t.Errorf("incomplete artifact exists, stat err = %v", err)
	}
	f.assertNoStagedFiles(t)
}

func TestCancelBeforeRun(t *testing.T) {
	reg := newRegistry(t, def("foo", version("1", manifest.TypeLibrary, []string{"1.7.10"}, "https://example.com/foo.jar")))
	f := newFixture(t)
	p := New(reg, WithClient(f.client))
	p.Cancel()

	report, err := p.Run(context.Background(), []config.Environment{f.env}, []string{"foo"})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(map[string]Outcome{"foo": Aborted}, outcomes(report)); diff != "" {
		t.Errorf("outcomes (-want +got):\n%s", diff)
	}
}

func TestRunEnvironmentChoice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("bytes"))
	}))
	defer srv.Close()
	reg := newRegistry(t, def("foo", version("1", manifest.TypeLibrary, []string{"1.7.10"}, srv.URL+"/foo.jar")))

	envs := []config.Environment{
		{Name: "old", Root: t.TempDir(), Version: "1.6.4"},
		{Name: "new", Root: t.TempDir(), Version: "1.7.10"},
	}

	t.Run("ambiguous without a choice", func(t *testing.T) {
		report, err := New(reg).Run(context.Background(), envs, []string{"foo"})
		if !errors.Is(err, ErrAmbiguousEnvironment) {
			t.Fatalf("err = %v, want ErrAmbiguousEnvironment", err)
		}
		if diff := cmp.Diff(map[string]Outcome{"foo": Aborted}, outcomes(report)); diff != "" {
			t.Errorf("outcomes (-want +got):\n%s", diff)
		}
	})

	t.Run("named environment", func(t *testing.T) {
		f := newFixture(t)
		report, err := New(reg, WithClient(f.client), WithChooser(DefaultChooser{Environment: "new"})).
			Run(context.Background(), envs, []string{"foo"})
		if err != nil {
			t.Fatal(err)
		}
		if report.Environment.Name != "new" {
			t.Errorf("Environment = %q", report.Environment.Name)
		}
		if _, err := os.Stat(filepath.Join(envs[1].Root, "mods", "foo.jar")); err != nil {
			t.Errorf("artifact not in chosen environment: %v", err)
		}
	})

	t.Run("no environments", func(t *testing.T) {
		if _, err := New(reg).Run(context.Background(), nil, []string{"foo"}); !errors.Is(err, ErrNoEnvironment) {
			t.Errorf("err = %v, want ErrNoEnvironment", err)
		}
	})
}

type lastChooser struct{ DefaultChooser }

func (lastChooser) ChooseVersion(_ context.Context, _ *manifest.Definition, candidates []manifest.Version) (manifest.Version, error) {
	return candidates[len(candidates)-1], nil
}

func TestRunChooserPicksVersion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(r.URL.Path))
	}))
	defer srv.Close()

	reg := newRegistry(t, def("foo",
		version("1.0", manifest.TypeLibrary, []string{"1.7.10"}, srv.URL+"/foo-1.0.jar"),
		version("1.1", manifest.TypeLibrary, []string{"1.7.10"}, srv.URL+"/foo-1.1.jar"),
		version("2.0", manifest.TypeLibrary, []string{"1.8"}, srv.URL+"/foo-2.0.jar"),
	))
	f := newFixture(t)
	report, err := New(reg, WithClient(f.client), WithChooser(lastChooser{})).
		Run(context.Background(), []config.Environment{f.env}, []string{"foo"})
	if err != nil {
		t.Fatal(err)
	}
	res, _ := report.Result("foo")
	if res.Version != "1.1" {
		t.Errorf("Version = %q, want last compatible 1.1", res.Version)
	}
	if diff := cmp.Diff([]string{"mods/foo-1.1.jar"}, filesUnder(t, f.env.Root)); diff != "" {
		t.Errorf("installed files (-want +got):\n%s", diff)
	}
}

func TestRunTwiceFails(t *testing.T) {
	f := newFixture(t)
	p := New(newRegistry(t), WithClient(f.client))
	if _, err := p.Run(context.Background(), []config.Environment{f.env}, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Run(context.Background(), []config.Environment{f.env}, nil); err == nil {
		t.Error("second Run should fail")
	}
}

func TestWorkingAcquisitionCounters(t *testing.T) {
	v := version("1", manifest.TypeLibrary, []string{"1.7.10"}, "https://a/x.jar", "https://a/y.jar")
	w := newWorkingAcquisition(v)
	if w.Len() != 2 || w.LinksPending() != 2 {
		t.Fatalf("Len=%d LinksPending=%d", w.Len(), w.LinksPending())
	}
	w.resolved(0, download.Handle{URL: "https://a/x.jar"})
	w.fail(1, errors.New("boom"))
	if w.LinksPending() != 0 {
		t.Errorf("LinksPending = %d, want 0 once every link is terminal", w.LinksPending())
	}
	if w.DownloadsPending() != 1 {
		t.Errorf("DownloadsPending = %d, want 1", w.DownloadsPending())
	}
	if w.Err() == nil {
		t.Error("Err should report the failed link")
	}
}

func TestKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{ErrCancelled, "Cancelled"},
		{&manifest.ValidationError{}, "ValidationError"},
		{&download.NetworkError{Op: "download", Err: errors.New("x")}, "NetworkError"},
		{&resolver.UnresolvableVersionError{}, "UnresolvableVersionError"},
		{&installer.UnsupportedArchiveError{}, "UnsupportedArchiveError"},
		{&installer.FileSystemError{Err: errors.New("x")}, "FileSystemError"},
		{errors.New("other"), "Error"},
	}
	for _, tt := range tests {
		if got := Kind(tt.err); got != tt.want {
			t.Errorf("Kind(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
