package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cybertron10/contextscan/internal/htmlctx"
)

// ErrInvalid wraps every validation failure
var ErrInvalid = errors.New("invalid configuration")

// Config is one configuration layer. Nil fields are unset and leave the
// lower layer in place.
type Config struct {
	URL            *string
	Headers        *map[string]string
	Headless       *bool
	Quiet          *bool
	Timeout        *time.Duration
	Concurrency    *int
	MaxPayloads    *int
	SkipCharCheck  *bool
	Output         *string
	Format         *string
	IgnoreContexts *[]string
	Wordlist       *string
}

// Settings are the resolved values a scan runs with
type Settings struct {
	URL            string
	Headers        map[string]string
	Headless       bool
	Quiet          bool
	Timeout        time.Duration
	Concurrency    int
	MaxPayloads    int
	SkipCharCheck  bool
	Output         string
	Format         string
	IgnoreContexts []string
	Wordlist       string // path, empty disables hidden parameter discovery
}

// Defaults returns the built-in bottom layer
func Defaults() Settings {
	return Settings{
		Headers:     map[string]string{},
		Timeout:     15 * time.Second,
		Concurrency: 4,
		MaxPayloads: 8,
		Format:      "text",
	}
}

// Merge applies layers over base in order, later layers winning
func Merge(base Settings, layers ...Config) Settings {
	out := base
	out.Headers = cloneHeaders(base.Headers)
	for _, l := range layers {
		if l.URL != nil {
			out.URL = strings.TrimSpace(*l.URL)
		}
		if l.Headers != nil {
			for k, v := range *l.Headers {
				out.Headers[k] = v
			}
		}
		if l.Headless != nil {
			out.Headless = *l.Headless
		}
		if l.Quiet != nil {
			out.Quiet = *l.Quiet
		}
		if l.Timeout != nil {
			out.Timeout = *l.Timeout
		}
		if l.Concurrency != nil {
			out.Concurrency = *l.Concurrency
		}
		if l.MaxPayloads != nil {
			out.MaxPayloads = *l.MaxPayloads
		}
		if l.SkipCharCheck != nil {
			out.SkipCharCheck = *l.SkipCharCheck
		}
		if l.Output != nil {
			out.Output = strings.TrimSpace(*l.Output)
		}
		if l.Format != nil {
			out.Format = strings.ToLower(strings.TrimSpace(*l.Format))
		}
		if l.IgnoreContexts != nil {
			out.IgnoreContexts = append([]string(nil), (*l.IgnoreContexts)...)
		}
		if l.Wordlist != nil {
			out.Wordlist = strings.TrimSpace(*l.Wordlist)
		}
	}
	return out
}

// Validate checks ranges and names
func (s Settings) Validate() error {
	if s.Concurrency < 1 || s.Concurrency > 256 {
		return fmt.Errorf("%w: concurrency must be between 1 and 256, got %d", ErrInvalid, s.Concurrency)
	}
	if s.Timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive, got %s", ErrInvalid, s.Timeout)
	}
	if s.MaxPayloads < 0 {
		return fmt.Errorf("%w: max_payloads cannot be negative", ErrInvalid)
	}
	switch s.Format {
	case "text", "json":
	default:
		return fmt.Errorf("%w: unknown format %q", ErrInvalid, s.Format)
	}
	for _, name := range s.IgnoreContexts {
		if _, ok := htmlctx.KindByName(name); !ok {
			return fmt.Errorf("%w: unknown context %q", ErrInvalid, name)
		}
	}
	return nil
}

// IgnoredKinds resolves IgnoreContexts; call after Validate
func (s Settings) IgnoredKinds() map[htmlctx.Kind]bool {
	out := make(map[htmlctx.Kind]bool, len(s.IgnoreContexts))
	for _, name := range s.IgnoreContexts {
		if k, ok := htmlctx.KindByName(name); ok {
			out[k] = true
		}
	}
	return out
}

func cloneHeaders(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
