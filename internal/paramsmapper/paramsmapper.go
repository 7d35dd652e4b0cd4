package paramsmapper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"sort"
	"sync"

	"github.com/cybertron10/contextscan/internal/htmlctx"
)

var logger = slog.New(slog.NewTextHandler(os.Stderr, nil))

// SetQuiet controls verbosity of paramsmapper internal logging
func SetQuiet(q bool) {
	if q {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	} else {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
}

// ErrNoWords is returned when there is nothing to probe
var ErrNoWords = errors.New("paramsmapper: empty wordlist")

// maxBody caps how much of each response is read
const maxBody = 10 << 20

// Request describes the page hidden parameters are probed against
type Request struct {
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
}

// Results lists the wordlist parameters whose values the page reflected
type Results struct {
	Params        []string            `json:"params"`
	Contexts      map[string][]string `json:"contexts"`
	TotalRequests int                 `json:"total_requests"`
	Request       Request             `json:"request"`
}

// Discover sends the words in chunks, each parameter carrying its own
// marker, and keeps those whose marker comes back. Chunks run concurrently,
// at most workers at a time.
func Discover(ctx context.Context, client *http.Client, request Request, words []string, chunkSize, workers int) (Results, error) {
	res := Results{Contexts: map[string][]string{}, Request: request}
	words = dedupe(words)
	if len(words) == 0 {
		return res, ErrNoWords
	}
	if _, err := url.Parse(request.URL); err != nil {
		return res, fmt.Errorf("parse url: %w", err)
	}
	if chunkSize < 1 {
		chunkSize = 50
	}
	if workers < 1 {
		workers = 1
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		sem  = make(chan struct{}, workers)
		errs []error
	)
	for _, part := range chunkParams(words, chunkSize) {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(part []string) {
			defer wg.Done()
			defer func() { <-sem }()

			tokens := make(map[string]string, len(part))
			for _, p := range part {
				tokens[p] = ScopedToken(p)
			}
			body, err := fetch(ctx, client, request, tokens)

			mu.Lock()
			defer mu.Unlock()
			res.TotalRequests++
			if err != nil {
				errs = append(errs, err)
				return
			}
			for p, ctxs := range reflectedContexts(body, tokens) {
				res.Params = append(res.Params, p)
				res.Contexts[p] = ctxs
				logger.Info("Hidden parameter reflects", "parameter", p, "contexts", ctxs)
			}
		}(part)
	}
	wg.Wait()

	sort.Strings(res.Params)
	if err := ctx.Err(); err != nil {
		return res, err
	}
	if len(errs) == res.TotalRequests && len(errs) > 0 {
		return res, fmt.Errorf("all %d probe requests failed: %w", len(errs), errors.Join(errs...))
	}
	return res, nil
}

// reflectedContexts maps each parameter whose token reflected to the
// primary contexts it landed in
func reflectedContexts(body string, tokens map[string]string) map[string][]string {
	needles := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		needles = append(needles, tok)
	}
	found, err := htmlctx.ScanAll(body, needles)
	if err != nil {
		logger.Error("Failed to classify reflections", "error", err)
		return nil
	}
	out := make(map[string][]string)
	for p, tok := range tokens {
		occs := found[tok]
		if len(occs) == 0 {
			continue
		}
		var names []string
		for _, k := range htmlctx.Kinds(occs) {
			names = append(names, k.String())
		}
		out[p] = names
	}
	return out
}

func fetch(ctx context.Context, client *http.Client, request Request, tokens map[string]string) (string, error) {
	u, err := url.Parse(request.URL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	for p, tok := range tokens {
		q.Add(p, tok)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", randomUserAgent())
	for k, v := range request.Headers {
		req.Header.Set(k, v)
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return "", err
	}
	return string(body), nil
}
