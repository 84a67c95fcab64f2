package registry

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/quickmod/quickmod/internal/logging"
	"github.com/quickmod/quickmod/internal/manifest"
)

func testDef(uid, name string) *manifest.Definition {
	return &manifest.Definition{
		UID:        uid,
		Name:       name,
		Categories: []string{"Storage"},
		Versions: []manifest.Version{{
			UID:        uid,
			Name:       "1.0",
			Compatible: []string{"1.7.10"},
			Type:       manifest.TypeLibrary,
			Links:      []manifest.Link{{URL: "https://example.com/" + uid + ".jar"}},
		}},
	}
}

func TestUpsertAddsThenReplaces(t *testing.T) {
	r := New()

	change, err := r.Upsert(testDef("foo", "Foo"))
	if err != nil || change != Added {
		t.Fatalf("first Upsert = %v, %v; want Added", change, err)
	}

	change, err = r.Upsert(testDef("foo", "Foo Renamed"))
	if err != nil || change != Updated {
		t.Fatalf("second Upsert = %v, %v; want Updated", change, err)
	}

	if r.Len() != 1 {
		t.Errorf("Len = %d, want 1", r.Len())
	}
	got, ok := r.Get("foo")
	if !ok {
		t.Fatal("foo missing after upsert")
	}
	if got.Name != "Foo Renamed" {
		t.Errorf("Name = %q, want the replacing entry", got.Name)
	}
}

func TestUpsertIdenticalIsUnchanged(t *testing.T) {
	r := New()
	if _, err := r.Upsert(testDef("foo", "Foo")); err != nil {
		t.Fatal(err)
	}
	change, err := r.Upsert(testDef("foo", "Foo"))
	if err != nil {
		t.Fatal(err)
	}
	if change != Unchanged {
		t.Errorf("change = %v, want Unchanged", change)
	}
}

func TestUpsertRejectsMissingUID(t *testing.T) {
	if _, err := New().Upsert(&manifest.Definition{Name: "nameless"}); err == nil {
		t.Error("expected error for definition without identifier")
	}
}

func TestUpsertKeepsFilesInsideDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "meta")
	r, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, uid := range []string{"../escaped", "a/b", ".hidden"} {
		if _, err := r.Upsert(testDef(uid, "Bad")); err == nil {
			t.Errorf("Upsert(%q) should be rejected", uid)
		}
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(dir), "escaped.json")); !os.IsNotExist(err) {
		t.Errorf("file written outside the metadata dir, stat err = %v", err)
	}
	if r.Len() != 0 {
		t.Errorf("Len = %d, want 0", r.Len())
	}
}

func TestGetReturnsDetachedSnapshot(t *testing.T) {
	r := New()
	def := testDef("foo", "Foo")
	if _, err := r.Upsert(def); err != nil {
		t.Fatal(err)
	}

	// Mutating the argument after upsert must not leak into the registry.
	def.Name = "mutated input"

	snap, _ := r.Get("foo")
	snap.Versions[0].Compatible[0] = "mutated snapshot"

	again, _ := r.Get("foo")
	if again.Name != "Foo" || again.Versions[0].Compatible[0] != "1.7.10" {
		t.Errorf("registry entry was mutated through a reference: %+v", again)
	}
}

func TestRemove(t *testing.T) {
	r := New()
	if _, err := r.Upsert(testDef("foo", "Foo")); err != nil {
		t.Fatal(err)
	}

	if err := r.Remove("foo"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, ok := r.Get("foo"); ok {
		t.Error("foo still present after Remove")
	}
	if err := r.Remove("foo"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Remove err = %v, want ErrNotFound", err)
	}
}

func TestAllSortedByUID(t *testing.T) {
	r := New()
	for _, uid := range []string{"zeta", "alpha", "mid"} {
		if _, err := r.Upsert(testDef(uid, uid)); err != nil {
			t.Fatal(err)
		}
	}

	var uids []string
	for _, d := range r.All() {
		uids = append(uids, d.UID)
	}
	if diff := cmp.Diff([]string{"alpha", "mid", "zeta"}, uids); diff != "" {
		t.Errorf("All order (-want +got):\n%s", diff)
	}
}

func TestClosedRegistryRejectsMutations(t *testing.T) {
	r := New()
	if _, err := r.Upsert(testDef("foo", "Foo")); err != nil {
		t.Fatal(err)
	}
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}

	if _, err := r.Upsert(testDef("bar", "Bar")); !errors.Is(err, ErrClosed) {
		t.Errorf("Upsert after Close err = %v, want ErrClosed", err)
	}
	if err := r.Remove("foo"); !errors.Is(err, ErrClosed) {
		t.Errorf("Remove after Close err = %v, want ErrClosed", err)
	}
	if _, ok := r.Get("foo"); !ok {
		t.Error("reads should keep working after Close")
	}
}

func TestOpenPersistsAndReloads(t *testing.T) {
	dir := t.TempDir()

	r, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := r.Upsert(testDef("foo", "Foo")); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Upsert(testDef("bar", "Bar")); err != nil {
		t.Fatal(err)
	}
	if err := r.Remove("bar"); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(filepath.Join(dir, "foo.json")); err != nil {
		t.Errorf("foo.json not persisted: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "bar.json")); !os.IsNotExist(err) {
		t.Errorf("bar.json should be deleted, stat err = %v", err)
	}

	reopened, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got, ok := reopened.Get("foo")
	if !ok {
		t.Fatal("foo not reloaded")
	}
	want, _ := r.Get("foo")
	if !want.Equal(got) {
		t.Errorf("reloaded definition differs:\n%s", cmp.Diff(want, got))
	}
	if reopened.Len() != 1 {
		t.Errorf("Len = %d, want 1", reopened.Len())
	}
}

func TestOpenSkipsMalformedFiles(t *testing.T) {
	dir := t.TempDir()
	good := `{"uid":"good","name":"Good"}`
	files := map[string]string{
		"good.json":     good,
		"broken.json":   `{"uid": "broken",`,
		"noname.json":   `{"uid":"noname"}`,
		"mismatch.json": `{"uid":"other","name":"Other"}`,
		"notes.txt":     "not a definition",
		".synced":       "1700000000",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}

	var logs bytes.Buffer
	r, err := Open(dir, WithLogger(logging.New(&logs, "warn")))
	if err != nil {
		t.Fatalf("Open should not fail on malformed files: %v", err)
	}

	if r.Len() != 1 {
		t.Errorf("Len = %d, want 1 (only good.json)", r.Len())
	}
	if _, ok := r.Get("good"); !ok {
		t.Error("good definition not loaded")
	}
	for _, name := range []string{"broken.json", "noname.json", "mismatch.json"} {
		if !strings.Contains(logs.String(), name) {
			t.Errorf("expected a warning naming %s, logs:\n%s", name, logs.String())
		}
	}
}

func TestOpenMissingDirectory(t *testing.T) {
	r, err := Open(filepath.Join(t.TempDir(), "does-not-exist"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if r.Len() != 0 {
		t.Errorf("Len = %d, want 0", r.Len())
	}
}

// Readers must observe either the old or the new entry in full, never a
// mix of an entry's categories and another entry's versions.
func TestConcurrentReadersSeeWholeEntries(t *testing.T) {
	r := New()

	variant := func(n int) *manifest.Definition {
		d := testDef("foo", "Foo")
		tag := []string{"even", "odd"}[n%2]
		d.Categories = []string{tag}
		d.Versions[0].Name = tag
		return d
	}
	if _, err := r.Upsert(variant(0)); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	stop := make(chan struct{})
	errs := make(chan string, 1)

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				d, ok := r.Get("foo")
				if !ok {
					continue
				}
				if d.Categories[0] != d.Versions[0].Name {
					select {
					case errs <- d.Categories[0] + "/" + d.Versions[0].Name:
					default:
					}
					return
				}
			}
		}()
	}

	for n := 1; n < 500; n++ {
		if _, err := r.Upsert(variant(n)); err != nil {
			t.Fatal(err)
		}
	}
	close(stop)
	wg.Wait()

	select {
	case mixed := <-errs:
		t.Errorf("reader observed a half-written entry: %s", mixed)
	default:
	}
}
