package scanner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/cybertron10/contextscan/internal/charfilter"
	"github.com/cybertron10/contextscan/internal/headless"
	"github.com/cybertron10/contextscan/internal/htmlctx"
	"github.com/cybertron10/contextscan/internal/paramsmapper"
	"github.com/cybertron10/contextscan/internal/parser"
	"github.com/cybertron10/contextscan/internal/payloads"
)

var logger = slog.New(slog.NewTextHandler(os.Stderr, nil))

// SetQuiet controls verbosity of scanner logging
func SetQuiet(q bool) {
	if q {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	} else {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
}

// ErrInvalidURL is returned for targets that are not absolute http(s) URLs
var ErrInvalidURL = errors.New("invalid target url")

// Confirmer replays a working payload in a real browser
type Confirmer interface {
	DialogFired(ctx context.Context, target, marker string) (bool, error)
	DialogFiredForm(ctx context.Context, pageURL, field, value, marker string) (bool, error)
	Close() error
}

// Option customizes a Scanner
type Option func(*Scanner)

// WithHTTPClient replaces the default client
func WithHTTPClient(c *http.Client) Option {
	return func(s *Scanner) { s.client = c }
}

// WithConfirmer sets the browser used to confirm findings
func WithConfirmer(c Confirmer) Option {
	return func(s *Scanner) { s.confirmer = c }
}

// Scanner represents the reflection context scanner
type Scanner struct {
	config    *Config
	client    *http.Client
	confirmer Confirmer
	mu        sync.Mutex // serializes confirmer use
}

// NewScanner creates a scanner. When cfg.Headless is set and no confirmer is
// given, a Chromium instance is started; failing that the scan continues
// without browser confirmation.
func NewScanner(cfg *Config, opts ...Option) *Scanner {
	s := &Scanner{config: cfg}
	for _, opt := range opts {
		opt(s)
	}
	if s.client == nil {
		s.client = newHTTPClient(cfg.Timeout)
	}
	if cfg.Headless && s.confirmer == nil {
		b, err := headless.NewBrowser()
		if err != nil {
			logger.Warn("Headless confirmation disabled", "error", err)
		} else {
			if err := b.SetHeaders(cfg.Headers); err != nil {
				logger.Warn("Could not set browser headers", "error", err)
			}
			s.confirmer = b
		}
	}
	return s
}

// Close releases the browser, if any
func (s *Scanner) Close() error {
	if s.confirmer == nil {
		return nil
	}
	return s.confirmer.Close()
}

// paramOutcome is what testing one parameter produced
type paramOutcome struct {
	reflection *Reflection
	vulns      []Vulnerability
	err        error
}

// Scan discovers parameters on the target, classifies where each one
// reflects and tries context-specific breakouts against it.
func (s *Scanner) Scan(ctx context.Context) (*ScanResult, error) {
	start := time.Now()
	result := &ScanResult{URL: s.config.URL, Timestamp: start}

	target, err := url.Parse(s.config.URL)
	if err != nil || (target.Scheme != "http" && target.Scheme != "https") || target.Host == "" {
		err = fmt.Errorf("%w: %q", ErrInvalidURL, s.config.URL)
		result.Error = err.Error()
		return result, err
	}
	logger.Info("Starting scan", "url", target.String())

	params := s.discoverParameters(ctx, target)
	for _, p := range params {
		result.ParametersFound = append(result.ParametersFound, p.Name)
	}
	logger.Info("Discovered parameters", "count", len(params))

	outcomes := make([]paramOutcome, len(params))
	workers := s.config.Concurrency
	if workers < 1 {
		workers = 1
	}
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				outcomes[i] = s.testParameter(ctx, target, params[i])
			}
		}()
	}
feed:
	for i := range params {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		result.Error = "scan cancelled"
		result.ScanDuration = time.Since(start)
		return result, err
	}

	for i, o := range outcomes {
		name := params[i].Name
		switch {
		case o.err != nil:
			logger.Warn("Parameter skipped", "parameter", name, "error", o.err)
			result.SkippedParams = append(result.SkippedParams, name)
		case o.reflection == nil:
			logger.Info("Parameter does not reflect", "parameter", name)
			result.SkippedParams = append(result.SkippedParams, name)
		default:
			result.ReflectingParams = append(result.ReflectingParams, name)
			result.Reflections = append(result.Reflections, *o.reflection)
			result.Vulnerabilities = append(result.Vulnerabilities, o.vulns...)
		}
	}

	result.ParametersTested = len(params)
	result.VulnerabilitiesFound = len(result.Vulnerabilities)
	result.Success = true
	result.ScanDuration = time.Since(start)
	logger.Info("Scan completed", "duration", result.ScanDuration, "vulnerabilities", result.VulnerabilitiesFound)
	return result, nil
}

// discoverParameters collects the URL's own query parameters, those found
// in the page and, with a wordlist, hidden ones that reflect
func (s *Scanner) discoverParameters(ctx context.Context, target *url.URL) []Parameter {
	var params []Parameter
	seen := make(map[string]bool)
	add := func(p Parameter) {
		key := p.Method + "\x00" + p.Action + "\x00" + p.Name
		if p.Name == "" || seen[key] {
			return
		}
		seen[key] = true
		params = append(params, p)
	}

	for _, part := range strings.Split(target.RawQuery, "&") {
		name, _, _ := strings.Cut(part, "=")
		if n, err := url.QueryUnescape(name); err == nil {
			add(Parameter{Name: n, Type: "query", Method: http.MethodGet})
		}
	}

	body, err := s.fetch(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		logger.Warn("Could not fetch page for parameter discovery", "error", err)
	} else {
		found, err := parser.ExtractParameters([]byte(body), target)
		if err != nil {
			logger.Warn("Could not parse page", "error", err)
		}
		for _, p := range found {
			action := p.Action
			if samePage(target, action, p.Method) {
				action = ""
			}
			add(Parameter{Name: p.Name, Type: p.Type, Method: p.Method, Action: action})
		}
	}

	if len(s.config.Wordlist) > 0 {
		res, err := paramsmapper.Discover(ctx, s.client, paramsmapper.Request{
			URL:     target.String(),
			Headers: s.config.Headers,
		}, s.config.Wordlist, 50, s.config.Concurrency)
		if err != nil {
			logger.Warn("Hidden parameter discovery failed", "error", err)
		}
		for _, name := range res.Params {
			add(Parameter{Name: name, Type: "hidden", Method: http.MethodGet})
		}
	}
	return params
}

// samePage reports whether a form action submits back to target itself.
// GET forms replace the action's query, so only the query of POST actions
// has to match.
func samePage(target *url.URL, action, method string) bool {
	if action == "" {
		return true
	}
	u, err := target.Parse(action)
	if err != nil {
		return false
	}
	path := func(p string) string {
		if p == "" {
			return "/"
		}
		return p
	}
	if !strings.EqualFold(u.Scheme, target.Scheme) || !strings.EqualFold(u.Host, target.Host) || path(u.Path) != path(target.Path) {
		return false
	}
	return method != http.MethodPost || u.RawQuery == target.RawQuery
}

// testParameter injects a marker, classifies its reflections and attacks
// every distinct context
func (s *Scanner) testParameter(ctx context.Context, target *url.URL, p Parameter) paramOutcome {
	marker := paramsmapper.ScopedToken(p.Name)
	body, err := s.send(ctx, target, p, marker)
	if err != nil {
		return paramOutcome{err: err}
	}
	occs, err := htmlctx.Scan(body, marker)
	if err != nil {
		return paramOutcome{err: err}
	}
	if len(occs) == 0 {
		return paramOutcome{}
	}

	refl := &Reflection{Parameter: p.Name, Marker: marker}
	for _, k := range htmlctx.Kinds(occs) {
		refl.Contexts = append(refl.Contexts, k.String())
	}
	logger.Info("Parameter reflects", "parameter", p.Name, "contexts", refl.Contexts)

	if !s.config.SkipCharCheck {
		refl.Filter = s.probeCharacters(ctx, target, p, marker)
	}

	var vulns []Vulnerability
	for _, occ := range distinctContexts(occs) {
		c := occ.Primary()
		if s.config.IgnoreContexts[c.Kind()] {
			logger.Debug("Context ignored", "parameter", p.Name, "context", c.String())
			continue
		}
		if v := s.attackContext(ctx, target, p, marker, occ, refl.Filter); v != nil {
			vulns = append(vulns, *v)
		}
		if ctx.Err() != nil {
			break
		}
	}
	return paramOutcome{reflection: refl, vulns: vulns}
}

func (s *Scanner) probeCharacters(ctx context.Context, target *url.URL, p Parameter, marker string) *charfilter.Report {
	body, err := s.send(ctx, target, p, charfilter.Probe(marker))
	if err != nil {
		logger.Warn("Character probe failed", "parameter", p.Name, "error", err)
		return nil
	}
	reflected, ok := charfilter.Extract(body, marker)
	if !ok {
		logger.Info("Character probe not reflected intact", "parameter", p.Name)
		return nil
	}
	report := charfilter.Analyze(strings.Join(charfilter.Specials, ""), reflected)
	logger.Debug("Character analysis", "parameter", p.Name, "survived", report.Survived, "dropped", report.Dropped)
	return &report
}

// attackContext sends the candidates for one reflection context and keeps
// the ones whose breakout survives
func (s *Scanner) attackContext(ctx context.Context, target *url.URL, p Parameter, marker string, occ htmlctx.Occurrence, filter *charfilter.Report) *Vulnerability {
	c := occ.Primary()
	ladder := make([]string, 0, len(occ.Contexts))
	for _, lc := range occ.Contexts {
		ladder = append(ladder, lc.String())
	}
	vuln := &Vulnerability{
		Parameter:             p.Name,
		Context:               c.String(),
		Contexts:              ladder,
		Method:                p.Method,
		IsDirectlyExploitable: c.IsExecutable(),
	}

	tried := 0
	for _, cand := range payloads.ForContext(c, marker) {
		if s.config.MaxPayloads > 0 && tried >= s.config.MaxPayloads {
			break
		}
		if !filter.Allows(cand.Payload) {
			continue
		}
		tried++

		body, err := s.send(ctx, target, p, cand.Payload)
		if err != nil {
			logger.Warn("Payload request failed", "parameter", p.Name, "error", err)
			if ctx.Err() != nil {
				break
			}
			continue
		}
		confidence, ok := confirmReflection(body, c, cand)
		if !ok {
			continue
		}
		if vuln.ExploitURL == "" {
			vuln.ExploitURL = generateExploitURL(target, p, cand.Payload)
		}
		if s.confirmer != nil && rank(confidence) < rank(ConfidenceConfirmed) {
			if s.confirmInBrowser(ctx, target, p, cand.Payload, marker) {
				confidence = ConfidenceConfirmed
			}
		}
		vuln.WorkingPayloads = append(vuln.WorkingPayloads, cand.Payload)
		if rank(confidence) > rank(vuln.Confidence) {
			vuln.Confidence = confidence
		}
		logger.Info("Working payload", "parameter", p.Name, "context", c.String(), "payload", cand.Payload, "confidence", confidence)
	}

	if len(vuln.WorkingPayloads) > 0 {
		return vuln
	}
	if c.IsExecutable() {
		// reflected where the browser runs it, but nothing got through intact
		vuln.ExploitURL = generateExploitURL(target, p, marker)
		vuln.ManualInterventionRequired = true
		vuln.Confidence = ConfidenceLow
		return vuln
	}
	return nil
}

// confirmReflection checks that the payload came back verbatim in the
// original context and that its breakout actually leaves that context
func confirmReflection(body string, c htmlctx.Context, cand payloads.Candidate) (string, bool) {
	occs, err := htmlctx.Scan(body, cand.Payload)
	if err != nil || len(occs) == 0 {
		return "", false
	}
	for _, o := range occs {
		if o.Primary() != c {
			continue
		}
		if !cand.Executable {
			after, err := htmlctx.ContextsAt(body, o.Start+len(cand.Breakout))
			if err != nil || after[0] == c {
				continue
			}
		}
		return scriptConfidence(body, c, cand), true
	}
	return "", false
}

// scriptConfidence ranks payloads that stay inside a script block by
// whether the spliced block still compiles
func scriptConfidence(body string, c htmlctx.Context, cand payloads.Candidate) string {
	stays := c.InScript() && !strings.Contains(strings.ToLower(cand.Payload), "</script")
	if !stays {
		if cand.Executable && c.InAttribute() {
			return ConfidenceMedium
		}
		return ConfidenceHigh
	}
	blocks, err := parser.ScriptBlocks([]byte(body))
	if err != nil {
		return ConfidenceMedium
	}
	for _, b := range blocks {
		if !strings.Contains(b, cand.Payload) {
			continue
		}
		if err := payloads.ScriptCompiles(b); err != nil {
			logger.Debug("Spliced script does not compile", "error", err)
			return ConfidenceMedium
		}
		return ConfidenceHigh
	}
	return ConfidenceMedium
}

func (s *Scanner) confirmInBrowser(ctx context.Context, target *url.URL, p Parameter, payload, marker string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	var (
		fired bool
		err   error
	)
	if p.Method == http.MethodPost {
		fired, err = s.confirmer.DialogFiredForm(ctx, target.String(), p.Name, payload, marker)
	} else {
		fired, err = s.confirmer.DialogFired(ctx, generateExploitURL(target, p, payload), marker)
	}
	if err != nil {
		logger.Warn("Browser confirmation failed", "parameter", p.Name, "error", err)
		return false
	}
	return fired
}

// distinctContexts keeps the first occurrence of every distinct context
func distinctContexts(occs []htmlctx.Occurrence) []htmlctx.Occurrence {
	seen := make(map[string]bool)
	var out []htmlctx.Occurrence
	for _, o := range occs {
		key := o.Primary().String()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, o)
	}
	return out
}

func rank(confidence string) int {
	switch confidence {
	case ConfidenceLow:
		return 1
	case ConfidenceMedium:
		return 2
	case ConfidenceHigh:
		return 3
	case ConfidenceConfirmed:
		return 4
	}
	return 0
}
