package download

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/quickmod/quickmod/internal/manifest"
)

// Handle is a resolved, directly fetchable download.
type Handle struct {
	URL      string
	FileName string
	// Header is sent with the download request; browsing sessions use it to
	// carry cookies and the referring page.
	Header http.Header
}

// DirectHandle builds the handle for a link that needs no browsing.
func DirectHandle(link manifest.Link) Handle {
	return Handle{URL: link.URL, FileName: link.FileName()}
}

// Artifact is a completed download sitting in the staging directory.
type Artifact struct {
	Path string // staging file
	Name string // file name the artifact installs under
	Size int64
}

// Remove deletes the staged file.
func (a *Artifact) Remove() error {
	if err := os.Remove(a.Path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// ProgressFunc receives byte counts as a download advances. total is -1
// when the server did not announce a length.
type ProgressFunc func(done, total int64)

// Fetch retrieves a metadata payload into memory.
func (c *Client) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.get(ctx, rawURL, nil)
	if err != nil {
		return nil, &NetworkError{Op: "fetch", URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPayloadSize+1))
	if err != nil {
		return nil, &NetworkError{Op: "fetch", URL: rawURL, Err: fmt.Errorf("reading response body: %w", err)}
	}
	if len(body) > maxPayloadSize {
		return nil, &NetworkError{Op: "fetch", URL: rawURL, Err: fmt.Errorf("payload exceeds %d bytes", maxPayloadSize)}
	}
	return body, nil
}

// Download streams h into a new file in the staging directory. On failure
// or cancellation the partial file is removed.
func (c *Client) Download(ctx context.Context, h Handle, progress ProgressFunc) (*Artifact, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.get(ctx, h.URL, h.Header)
	if err != nil {
		return nil, &NetworkError{Op: "download", URL: h.URL, Err: err}
	}
	defer resp.Body.Close()

	if err := os.MkdirAll(c.stagingDir, 0755); err != nil {
		return nil, fmt.Errorf("creating staging directory: %w", err)
	}
	f, err := os.CreateTemp(c.stagingDir, "artifact-*.partial")
	if err != nil {
		return nil, fmt.Errorf("creating staging file: %w", err)
	}

	name := h.FileName
	if name == "" {
		name = manifest.FileNameFromURL(resp.Request.URL.String())
	}
	artifact := &Artifact{Path: f.Name(), Name: name}

	total := resp.ContentLength
	var downloaded int64

	buf := make([]byte, 32*1024)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, writeErr := f.Write(buf[:n]); writeErr != nil {
				f.Close()
				_ = artifact.Remove()
				return nil, fmt.Errorf("writing download: %w", writeErr)
			}
			downloaded += int64(n)
			if progress != nil {
				progress(downloaded, total)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			f.Close()
			_ = artifact.Remove()
			return nil, &NetworkError{Op: "download", URL: h.URL, Err: fmt.Errorf("reading download stream: %w", readErr)}
		}
	}
	if err := f.Close(); err != nil {
		_ = artifact.Remove()
		return nil, fmt.Errorf("closing staging file: %w", err)
	}

	artifact.Size = downloaded
	c.logger.Debug("downloaded artifact", "url", h.URL, "name", name, "bytes", downloaded)
	return artifact, nil
}

func (c *Client) get(ctx context.Context, rawURL string, header http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, &StatusError{Code: resp.StatusCode}
	}
	return resp, nil
}
