package audio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/ivlev/scene2video/internal/fault"
	"github.com/ivlev/scene2video/internal/system"
)

const defaultHTTPTimeout = 2 * time.Minute

// Option customizes a network provider.
type Option func(*client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithBaseURL points the provider at another host, e.g. a test server.
func WithBaseURL(base string) Option {
	return func(c *client) {
		if base = strings.TrimSpace(base); base != "" {
			c.baseURL = strings.TrimRight(base, "/")
		}
	}
}

// WithRateLimit caps requests per second; zero or less disables pacing.
func WithRateLimit(rps float64) Option {
	return func(c *client) {
		if rps <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// WithProber replaces ffprobe for measuring downloaded files.
func WithProber(p Prober) Option {
	return func(c *client) {
		if p != nil {
			c.probe = p
		}
	}
}

// client is the HTTP plumbing shared by the network providers.
type client struct {
	name    string
	baseURL string
	auth    func(*http.Request)
	http    *http.Client
	limiter *rate.Limiter
	probe   Prober
}

func newClient(name, baseURL string, auth func(*http.Request), opts []Option) *client {
	c := &client{
		name:    name,
		baseURL: baseURL,
		auth:    auth,
		http:    &http.Client{Timeout: defaultHTTPTimeout},
		limiter: rate.NewLimiter(rate.Limit(2), 1),
		probe:   system.ProbeDuration,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// download posts payload as JSON and streams a successful response body to
// out. Non-2xx responses become external tool errors carrying the body.
func (c *client) download(ctx context.Context, path string, query url.Values, payload any, out string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%s: encode request: %w", c.name, err)
	}
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: build request: %w", c.name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.auth(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fault.Wrap(fault.ErrExternalTool, c.name, "request "+path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, fault.DiagnosticLimit+1))
		return fault.Wrap(fault.ErrExternalTool, c.name,
			fmt.Sprintf("http %d: %s", resp.StatusCode, fault.Truncate(string(snippet), fault.DiagnosticLimit)), nil)
	}

	if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
		return err
	}
	f, err := os.Create(out)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		return fault.Wrap(fault.ErrExternalTool, c.name, "read response", err)
	}
	return f.Close()
}

// measure reports the duration of a downloaded asset.
func (c *client) measure(ctx context.Context, path string) (float64, error) {
	sec, err := c.probe(ctx, path)
	if err != nil {
		return 0, fault.Wrap(fault.ErrExternalTool, c.name, "measure "+filepath.Base(path), err)
	}
	if sec <= 0 {
		return 0, fault.Wrap(fault.ErrExternalTool, c.name, "empty audio returned", nil)
	}
	return sec, nil
}

func checkText(provider, text string, limit int) error {
	n := len([]rune(strings.TrimSpace(text)))
	if n == 0 {
		return fault.Wrap(fault.ErrConfiguration, provider, "speech text is empty", nil)
	}
	if n > limit {
		return fault.Wrap(fault.ErrConfiguration, provider, fmt.Sprintf("speech text has %d characters, limit %d", n, limit), nil)
	}
	return nil
}

func requireKey(provider, key string) error {
	if strings.TrimSpace(key) == "" {
		return fault.Wrap(fault.ErrConfiguration, provider, "api key required", nil)
	}
	return nil
}
