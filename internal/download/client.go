package download

import (
	"net/http"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/quickmod/quickmod/internal/branding"
	"github.com/quickmod/quickmod/internal/logging"
)

// DefaultTimeout bounds a single fetch or download.
const DefaultTimeout = 2 * time.Minute

// maxPayloadSize caps metadata payloads read into memory.
const maxPayloadSize = 8 << 20

// Client performs bounded HTTP transfers.
type Client struct {
	httpClient *http.Client
	timeout    time.Duration
	userAgent  string
	stagingDir string
	logger     *log.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client (useful for testing).
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithTimeout bounds every transfer. Non-positive values keep the default.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) {
		if d > 0 {
			cl.timeout = d
		}
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(cl *Client) {
		cl.userAgent = ua
	}
}

// WithStagingDir sets where in-flight artifacts are written.
func WithStagingDir(dir string) Option {
	return func(cl *Client) {
		cl.stagingDir = dir
	}
}

// WithLogger sets the client logger.
func WithLogger(l *log.Logger) Option {
	return func(cl *Client) {
		cl.logger = l
	}
}

// New creates a Client with the given options.
func New(opts ...Option) *Client {
	c := &Client{
		httpClient: http.DefaultClient,
		timeout:    DefaultTimeout,
		userAgent:  branding.UserAgent(),
		stagingDir: os.TempDir(),
		logger:     logging.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}
