package catalog

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// fetch reads a source's raw payload. Sources without an http(s) scheme are
// local paths, optionally spelled as file:// URLs.
func (s *Synchronizer) fetch(ctx context.Context, source string) ([]byte, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return s.client.Fetch(ctx, source)
	}

	path := source
	if strings.HasPrefix(source, "file://") {
		u, err := url.Parse(source)
		if err != nil {
			return nil, fmt.Errorf("parsing file URL: %w", err)
		}
		path = filepath.FromSlash(u.Path)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return data, nil
}

// normalizeSource makes local paths absolute so the index does not depend
// on the working directory a sync ran from.
func normalizeSource(source string) string {
	if strings.Contains(source, "://") {
		return source
	}
	if abs, err := filepath.Abs(source); err == nil {
		return abs
	}
	return source
}
