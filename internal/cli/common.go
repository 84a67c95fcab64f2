package cli

import (
	"fmt"

	"github.com/quickmod/quickmod/internal/catalog"
	"github.com/quickmod/quickmod/internal/config"
	"github.com/quickmod/quickmod/internal/download"
	"github.com/quickmod/quickmod/internal/registry"
)

// openRegistry loads the persisted definitions.
func openRegistry(s *config.Settings) (*registry.Registry, error) {
	reg, err := registry.Open(s.MetadataDir, registry.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("opening registry at %s: %w", s.MetadataDir, err)
	}
	return reg, nil
}

func newClient(s *config.Settings) *download.Client {
	return download.New(
		download.WithTimeout(s.Timeout),
		download.WithStagingDir(s.StagingDir),
		download.WithLogger(logger),
	)
}

func newSynchronizer(reg *registry.Registry, s *config.Settings) (*catalog.Synchronizer, error) {
	return catalog.New(reg,
		catalog.WithClient(newClient(s)),
		catalog.WithConcurrency(s.Concurrency),
		catalog.WithLogger(logger),
	)
}
