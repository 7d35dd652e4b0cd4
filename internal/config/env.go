package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// FromEnv builds a layer from CONTEXTSCAN_* variables
func FromEnv(getenv func(string) string) (Config, error) {
	if getenv == nil {
		getenv = func(string) string { return "" }
	}
	var cfg Config
	var errs []error

	setString := func(target **string, key string) {
		raw := strings.TrimSpace(getenv(key))
		if raw == "" {
			return
		}
		*target = &raw
	}
	setBool := func(target **bool, key string) {
		raw := strings.TrimSpace(getenv(key))
		if raw == "" {
			return
		}
		v, err := parseBool(raw, key)
		if err != nil {
			errs = append(errs, err)
			return
		}
		*target = &v
	}
	setInt := func(target **int, key string) {
		raw := strings.TrimSpace(getenv(key))
		if raw == "" {
			return
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid integer value for %s: %q", key, raw))
			return
		}
		*target = &v
	}

	setString(&cfg.URL, "CONTEXTSCAN_URL")
	setBool(&cfg.Headless, "CONTEXTSCAN_HEADLESS")
	setBool(&cfg.Quiet, "CONTEXTSCAN_QUIET")
	setInt(&cfg.Concurrency, "CONTEXTSCAN_CONCURRENCY")
	setInt(&cfg.MaxPayloads, "CONTEXTSCAN_MAX_PAYLOADS")
	setBool(&cfg.SkipCharCheck, "CONTEXTSCAN_SKIP_CHARCHECK")
	setString(&cfg.Output, "CONTEXTSCAN_OUTPUT")
	setString(&cfg.Format, "CONTEXTSCAN_FORMAT")
	setString(&cfg.Wordlist, "CONTEXTSCAN_WORDLIST")
	if raw := strings.TrimSpace(getenv("CONTEXTSCAN_TIMEOUT")); raw != "" {
		d, err := parseDuration(raw, "CONTEXTSCAN_TIMEOUT")
		if err != nil {
			errs = append(errs, err)
		} else {
			cfg.Timeout = &d
		}
	}
	if raw := strings.TrimSpace(getenv("CONTEXTSCAN_IGNORE_CONTEXTS")); raw != "" {
		list := splitList(raw)
		cfg.IgnoreContexts = &list
	}

	if len(errs) > 0 {
		return cfg, errors.Join(errs...)
	}
	return cfg, nil
}
