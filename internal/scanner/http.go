package scanner

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// maxBody caps how much of a response is read
const maxBody = 10 << 20

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	transport := &http.Transport{
		TLSHandshakeTimeout: 10 * time.Second,
		DisableCompression:  true, // bodies are decompressed in readResponseBody
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			// stay on the original host
			if via[0].URL.Host != req.URL.Host {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}
}

// requestTarget is the URL a parameter is submitted to
func requestTarget(target *url.URL, p Parameter) *url.URL {
	if p.Action == "" {
		u := *target
		return &u
	}
	u, err := target.Parse(p.Action)
	if err != nil {
		u := *target
		return &u
	}
	return u
}

// send submits value for p and returns the response body
func (s *Scanner) send(ctx context.Context, target *url.URL, p Parameter, value string) (string, error) {
	u := requestTarget(target, p)
	if p.Method == http.MethodPost {
		return s.fetch(ctx, http.MethodPost, u.String(), url.Values{p.Name: {value}})
	}
	q := u.Query()
	q.Set(p.Name, value)
	u.RawQuery = q.Encode()
	return s.fetch(ctx, http.MethodGet, u.String(), nil)
}

// fetch issues a request with the configured headers. A 304 is retried once
// without conditional headers.
func (s *Scanner) fetch(ctx context.Context, method, rawURL string, form url.Values) (string, error) {
	resp, err := s.do(ctx, method, rawURL, form, true)
	if err != nil {
		return "", err
	}
	if resp.StatusCode == http.StatusNotModified {
		resp.Body.Close()
		resp, err = s.do(ctx, method, rawURL, form, false)
		if err != nil {
			return "", err
		}
	}
	defer resp.Body.Close()
	return readResponseBody(resp)
}

var conditionalHeaders = []string{"If-Modified-Since", "If-None-Match", "If-Unmodified-Since", "If-Match", "If-Range"}

func (s *Scanner) do(ctx context.Context, method, rawURL string, form url.Values, withConfigured bool) (*http.Response, error) {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, err
	}
	if withConfigured {
		for key, value := range s.config.Headers {
			req.Header.Set(key, value)
		}
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.Header.Set("Accept-Encoding", "identity")
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	}
	for _, h := range conditionalHeaders {
		req.Header.Del(h)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, rawURL, err)
	}
	return resp, nil
}

// readResponseBody reads the body, inflating it when the server compressed
// it anyway
func readResponseBody(resp *http.Response) (string, error) {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return "", err
	}
	if resp.Header.Get("Content-Encoding") != "gzip" && !isGzipContent(raw) {
		return string(raw), nil
	}
	reader, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return string(raw), nil
	}
	defer reader.Close()
	inflated, err := io.ReadAll(io.LimitReader(reader, maxBody))
	if err != nil {
		return string(raw), nil
	}
	return string(inflated), nil
}

// isGzipContent checks for the gzip magic number
func isGzipContent(data []byte) bool {
	return len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b
}

// generateExploitURL builds a reproducible request for the payload. The
// original query order is preserved and only p's value is replaced.
func generateExploitURL(target *url.URL, p Parameter, payload string) string {
	u := requestTarget(target, p)
	if p.Method == http.MethodPost {
		return fmt.Sprintf("POST %s\nContent-Type: application/x-www-form-urlencoded\n\n%s=%s",
			u.String(), url.QueryEscape(p.Name), url.QueryEscape(payload))
	}

	pair := url.QueryEscape(p.Name) + "=" + url.QueryEscape(payload)
	if u.RawQuery == "" {
		u.RawQuery = pair
		return u.String()
	}
	var parts []string
	found := false
	for _, part := range strings.Split(u.RawQuery, "&") {
		if part == "" {
			continue
		}
		name, _, _ := strings.Cut(part, "=")
		if n, err := url.QueryUnescape(name); err == nil && n == p.Name {
			if !found {
				parts = append(parts, pair)
				found = true
			}
			continue
		}
		parts = append(parts, part)
	}
	if !found {
		parts = append(parts, pair)
	}
	u.RawQuery = strings.Join(parts, "&")
	return u.String()
}
