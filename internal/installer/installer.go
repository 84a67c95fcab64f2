package installer

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/quickmod/quickmod/internal/config"
	"github.com/quickmod/quickmod/internal/logging"
	"github.com/quickmod/quickmod/internal/manifest"
	"github.com/quickmod/quickmod/internal/platform"
)

// Policy is where a version type installs and whether it is unpacked.
type Policy struct {
	Subdir  string
	Extract bool
}

var policies = map[manifest.Type]Policy{
	manifest.TypeLibrary:  {Subdir: "mods"},
	manifest.TypeCore:     {Subdir: "coremods"},
	manifest.TypeResource: {Subdir: "resourcepacks"},
	manifest.TypeConfig:   {Subdir: "config", Extract: true},
}

// PolicyFor returns the install policy of t.
func PolicyFor(t manifest.Type) (Policy, bool) {
	p, ok := policies[t]
	return p, ok
}

// TargetDir returns the directory artifacts of type t land in under env.
func TargetDir(env config.Environment, t manifest.Type) (string, error) {
	p, ok := PolicyFor(t)
	if !ok {
		return "", fmt.Errorf("unknown version type %q", t)
	}
	return filepath.Join(env.Root, p.Subdir), nil
}

// Installer writes artifacts into environments.
type Installer struct {
	logger *log.Logger
}

// Option configures an Installer.
type Option func(*Installer)

// WithLogger sets the installer logger.
func WithLogger(l *log.Logger) Option {
	return func(i *Installer) {
		i.logger = l
	}
}

// New creates an Installer.
func New(opts ...Option) *Installer {
	i := &Installer{logger: logging.Discard()}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Install places the artifact read from r, named name, into env according
// to t's policy and returns the paths it wrote.
func (i *Installer) Install(ctx context.Context, env config.Environment, name string, r io.Reader, t manifest.Type) ([]string, error) {
	p, ok := PolicyFor(t)
	if !ok {
		return nil, fmt.Errorf("unknown version type %q", t)
	}
	if env.Root == "" {
		return nil, fmt.Errorf("environment %q has no root directory", env.Name)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	target := filepath.Join(env.Root, p.Subdir)

	if p.Extract {
		paths, err := i.extract(ctx, env.Root, target, name, r)
		if err != nil {
			return nil, err
		}
		i.logger.Info("extracted bundle", "name", name, "path", target, "files", len(paths))
		return paths, nil
	}

	base, err := cleanName(name)
	if err != nil {
		return nil, err
	}
	dest := filepath.Join(target, base)
	if err := platform.WriteFileAtomic(dest, &ctxReader{ctx: ctx, r: r}, platform.FilePermNormal); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &FileSystemError{Op: "write", Path: dest, Err: err}
	}
	i.logger.Info("installed artifact", "name", base, "path", dest)
	return []string{dest}, nil
}

// InstallFile is Install for an artifact already on disk.
func (i *Installer) InstallFile(ctx context.Context, env config.Environment, name, path string, t manifest.Type) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &FileSystemError{Op: "open", Path: path, Err: err}
	}
	defer f.Close()
	return i.Install(ctx, env, name, f, t)
}

// cleanName reduces an artifact name to a single safe path element.
func cleanName(name string) (string, error) {
	base := filepath.Base(filepath.FromSlash(strings.TrimSpace(name)))
	if base == "." || base == string(filepath.Separator) || base == ".." || base == "" {
		return "", fmt.Errorf("artifact has no usable file name: %q", name)
	}
	return base, nil
}

// ctxReader stops a copy once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
