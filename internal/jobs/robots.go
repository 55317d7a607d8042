package jobs

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	robotstxt "github.com/temoto/robotstxt"
)

// RobotsGate answers whether a URL may be fetched under the target
// host's robots.txt. Parsed files are cached per scheme://host. The
// gate fails open: unreachable or malformed robots.txt allows the URL.
type RobotsGate struct {
	client    *http.Client
	userAgent string

	mu    sync.Mutex
	cache map[string]*robotstxt.RobotsData
}

// NewRobotsGate returns a gate that identifies as userAgent when
// fetching robots.txt and when matching agent groups.
func NewRobotsGate(userAgent string) *RobotsGate {
	return &RobotsGate{
		client:    &http.Client{Timeout: 10 * time.Second},
		userAgent: userAgent,
		cache:     make(map[string]*robotstxt.RobotsData),
	}
}

// Allowed reports whether rawURL may be fetched.
func (g *RobotsGate) Allowed(ctx context.Context, rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return true
	}

	data := g.robotsFor(ctx, u)
	if data == nil {
		return true
	}

	// Test matches rule paths by prefix, so it needs the request-URI
	// form rather than the absolute URL.
	grp := data.FindGroup(g.userAgent)
	return grp.Test(u.RequestURI())
}

func (g *RobotsGate) robotsFor(ctx context.Context, u *url.URL) *robotstxt.RobotsData {
	key := u.Scheme + "://" + u.Host

	g.mu.Lock()
	data, ok := g.cache[key]
	g.mu.Unlock()
	if ok {
		return data
	}

	data, err := g.fetchRobots(ctx, u)
	if err != nil {
		data = nil
	}

	// Cache failures too so a dead host is only probed once per run.
	g.mu.Lock()
	g.cache[key] = data
	g.mu.Unlock()

	return data
}

// fetchRobots fetches and parses robots.txt for a given base URL.
func (g *RobotsGate) fetchRobots(ctx context.Context, base *url.URL) (*robotstxt.RobotsData, error) {
	robotsURL := &url.URL{
		Scheme: base.Scheme,
		Host:   base.Host,
		Path:   "/robots.txt",
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL.String(), nil)
	if err != nil {
		return nil, err
	}
	if g.userAgent != "" {
		req.Header.Set("User-Agent", g.userAgent)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.New("non-200 robots.txt")
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	return robotstxt.FromStatusAndBytes(resp.StatusCode, body)
}
