package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/quickmod/quickmod/internal/config"
	"github.com/quickmod/quickmod/internal/manifest"
)

// ErrAmbiguousEnvironment is returned when several environments exist and
// nothing chose between them.
var ErrAmbiguousEnvironment = errors.New("more than one environment; choose one")

// ErrNoEnvironment is returned when a run has no environment to target.
var ErrNoEnvironment = errors.New("no environment configured")

// Chooser makes the decisions a run needs from its user.
type Chooser interface {
	// ChooseEnvironment picks among two or more environments.
	ChooseEnvironment(ctx context.Context, envs []config.Environment) (config.Environment, error)
	// ChooseVersion picks one of a definition's compatible versions.
	// candidates is never empty.
	ChooseVersion(ctx context.Context, def *manifest.Definition, candidates []manifest.Version) (manifest.Version, error)
}

// DefaultChooser picks the first eligible version and only resolves an
// environment choice when Environment names one.
type DefaultChooser struct {
	Environment string
}

func (c DefaultChooser) ChooseEnvironment(_ context.Context, envs []config.Environment) (config.Environment, error) {
	if c.Environment == "" {
		return config.Environment{}, ErrAmbiguousEnvironment
	}
	env, ok := config.FindEnvironment(envs, c.Environment)
	if !ok {
		return config.Environment{}, fmt.Errorf("environment %q not found", c.Environment)
	}
	return env, nil
}

func (DefaultChooser) ChooseVersion(_ context.Context, _ *manifest.Definition, candidates []manifest.Version) (manifest.Version, error) {
	return candidates[0], nil
}

// Update is one progress notification.
type Update struct {
	Stage   State
	UID     string
	Request RequestID // zero for stage-level updates
	Done    int64     // bytes for downloads, completed items otherwise
	Total   int64     // -1 when unknown
}

// Sink receives progress updates. Implementations must be safe for
// concurrent use.
type Sink interface {
	Progress(Update)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Update)

func (f SinkFunc) Progress(u Update) { f(u) }

// Observer is notified of every state change.
type Observer func(from, to State)

type discardSink struct{}

func (discardSink) Progress(Update) {}
