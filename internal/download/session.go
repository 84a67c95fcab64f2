package download

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/net/html"
)

// DefaultMaxPages bounds how many pages a browsing session visits.
const DefaultMaxPages = 8

// Session turns an interactive link into a fetchable Handle.
type Session interface {
	Resolve(ctx context.Context, pageURL string) (Handle, error)
}

// BrowserSession resolves interactive links by loading the landing page and
// following its anchors until a response that looks like a file download
// is observed. Cookies set along the way are kept for the download itself.
type BrowserSession struct {
	client   *Client
	maxPages int
}

// NewBrowserSession returns a session that shares c's timeout, user agent
// and transport. Non-positive maxPages selects DefaultMaxPages.
func NewBrowserSession(c *Client, maxPages int) *BrowserSession {
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	return &BrowserSession{client: c, maxPages: maxPages}
}

// observed is the first download-like response seen by the transport.
type observed struct {
	mu       sync.Mutex
	url      string
	fileName string
	referer  string
}

func (o *observed) set(resp *http.Response) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.url != "" {
		return
	}
	o.url = resp.Request.URL.String()
	o.fileName = attachmentName(resp.Header.Get("Content-Disposition"))
	o.referer = resp.Request.Header.Get("Referer")
}

func (o *observed) get() (string, string, string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.url, o.fileName, o.referer
}

// observingTransport watches every response of a session, redirects
// included, and records the first one that is a download.
type observingTransport struct {
	base http.RoundTripper
	seen *observed
}

func (t *observingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if isDownload(resp) {
		t.seen.set(resp)
	}
	return resp, nil
}

// Resolve visits pageURL and the pages it links to, breadth-first in
// document order, until a download is observed or the page budget is spent.
func (s *BrowserSession) Resolve(ctx context.Context, pageURL string) (Handle, error) {
	ctx, cancel := context.WithTimeout(ctx, s.client.timeout)
	defer cancel()

	jar, err := cookiejar.New(nil)
	if err != nil {
		return Handle{}, fmt.Errorf("creating cookie jar: %w", err)
	}
	base := s.client.httpClient.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	seen := &observed{}
	hc := &http.Client{
		Transport: &observingTransport{base: base, seen: seen},
		Jar:       jar,
	}

	queue := []string{pageURL}
	visited := map[string]bool{}
	referer := ""

	for pages := 0; len(queue) > 0 && pages < s.maxPages; {
		next := queue[0]
		queue = queue[1:]
		if visited[next] {
			continue
		}
		visited[next] = true
		pages++

		links, err := s.visit(ctx, hc, next, referer)
		if err != nil {
			// Only the landing page, or the session's own deadline, is fatal.
			if pages == 1 || ctx.Err() != nil {
				return Handle{}, &NetworkError{Op: "browse", URL: pageURL, Err: err}
			}
			s.client.logger.Debug("skipping page", "url", next, "error", err)
			continue
		}
		if u, name, ref := seen.get(); u != "" {
			return s.handle(jar, u, name, ref), nil
		}
		queue = append(queue, links...)
		referer = next
	}

	s.client.logger.Debug("browsing gave up", "url", pageURL, "pages", len(visited))
	return Handle{}, &NetworkError{Op: "browse", URL: pageURL, Err: ErrNoDownload}
}

// visit loads one page and returns the absolute anchor targets it contains.
// A download response is left to the transport and yields no links.
func (s *BrowserSession) visit(ctx context.Context, hc *http.Client, pageURL, referer string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", s.client.userAgent)
	if referer != "" {
		req.Header.Set("Referer", referer)
	}

	resp, err := hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Code: resp.StatusCode}
	}
	if isDownload(resp) {
		return nil, nil
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", pageURL, err)
	}
	return anchors(doc, resp.Request.URL), nil
}

func (s *BrowserSession) handle(jar http.CookieJar, rawURL, name, referer string) Handle {
	h := Handle{URL: rawURL, FileName: name, Header: http.Header{}}
	if u, err := url.Parse(rawURL); err == nil {
		var pairs []string
		for _, c := range jar.Cookies(u) {
			pairs = append(pairs, c.Name+"="+c.Value)
		}
		if len(pairs) > 0 {
			h.Header.Set("Cookie", strings.Join(pairs, "; "))
		}
	}
	if referer != "" {
		h.Header.Set("Referer", referer)
	}
	return h
}

// anchors collects href targets of <a> elements in document order, resolved
// against base. Fragments and non-http schemes are dropped.
func anchors(doc *html.Node, base *url.URL) []string {
	var out []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key != "href" {
					continue
				}
				ref, err := url.Parse(strings.TrimSpace(attr.Val))
				if err != nil {
					continue
				}
				abs := base.ResolveReference(ref)
				abs.Fragment = ""
				if abs.Scheme == "http" || abs.Scheme == "https" {
					out = append(out, abs.String())
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return out
}

// isDownload reports whether resp is a file rather than a page.
func isDownload(resp *http.Response) bool {
	if resp.StatusCode != http.StatusOK {
		return false
	}
	if disp, _, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil && disp == "attachment" {
		return true
	}
	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		return false
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return false
	}
	switch mt {
	case "text/html", "application/xhtml+xml", "text/plain":
		return false
	}
	return true
}

func attachmentName(disposition string) string {
	_, params, err := mime.ParseMediaType(disposition)
	if err != nil {
		return ""
	}
	return params["filename"]
}
