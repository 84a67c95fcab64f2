package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/viper"
)

func setupHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("QUICKMOD_HOME", home)
	viper.Reset()
	t.Cleanup(viper.Reset)
	Load()
	return home
}

func TestCurrentDefaults(t *testing.T) {
	home := setupHome(t)

	s, err := Current()
	if err != nil {
		t.Fatal(err)
	}
	want := &Settings{
		MetadataDir:     filepath.Join(home, metadataDirName),
		StagingDir:      filepath.Join(home, stagingDirName),
		Concurrency:     DefaultConcurrency,
		Timeout:         DefaultTimeout,
		SessionMaxPages: DefaultSessionMaxPages,
		LogLevel:        DefaultLogLevel,
	}
	if diff := cmp.Diff(want, s); diff != "" {
		t.Errorf("Current (-want +got):\n%s", diff)
	}
}

func TestCurrentClampsOutOfRange(t *testing.T) {
	setupHome(t)
	viper.Set(KeyConcurrency, 0)
	viper.Set(KeyTimeout, "-1s")
	viper.Set(KeySessionMaxPages, -3)

	s, err := Current()
	if err != nil {
		t.Fatal(err)
	}
	if s.Concurrency != DefaultConcurrency || s.Timeout != DefaultTimeout || s.SessionMaxPages != DefaultSessionMaxPages {
		t.Errorf("got %+v, want defaults", s)
	}
}

func TestSetPersists(t *testing.T) {
	setupHome(t)
	if err := Set(KeyTimeout, "30s"); err != nil {
		t.Fatal(err)
	}

	viper.Reset()
	Load()
	s, err := Current()
	if err != nil {
		t.Fatal(err)
	}
	if s.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v after reload, want 30s", s.Timeout)
	}
}

func TestEnvironments(t *testing.T) {
	setupHome(t)

	a := Environment{Name: "a", Root: "/games/a", Version: "1.7.10"}
	b := Environment{Name: "b", Root: "/games/b", Version: "1.12.2"}
	for _, e := range []Environment{a, b} {
		if err := AddEnvironment(e); err != nil {
			t.Fatalf("AddEnvironment(%s): %v", e.Name, err)
		}
	}

	// Same name replaces in place.
	a2 := Environment{Name: "a", Root: "/games/a2", Version: "1.7.10"}
	if err := AddEnvironment(a2); err != nil {
		t.Fatal(err)
	}

	viper.Reset()
	Load()
	envs, err := Environments()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]Environment{a2, b}, envs); diff != "" {
		t.Errorf("Environments (-want +got):\n%s", diff)
	}

	if got, ok := FindEnvironment(envs, "b"); !ok || got != b {
		t.Errorf("FindEnvironment(b) = %+v, %v", got, ok)
	}

	if err := RemoveEnvironment("a"); err != nil {
		t.Fatal(err)
	}
	if err := RemoveEnvironment("a"); err == nil {
		t.Error("removing a missing environment should fail")
	}
	envs, _ = Environments()
	if diff := cmp.Diff([]Environment{b}, envs); diff != "" {
		t.Errorf("after remove (-want +got):\n%s", diff)
	}
}

func TestAddEnvironmentRequiresFields(t *testing.T) {
	setupHome(t)
	if err := AddEnvironment(Environment{Name: "x"}); err == nil {
		t.Error("expected an error for an environment without root and version")
	}
}
