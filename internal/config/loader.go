package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

var keyMap = map[string]string{
	"url":             "url",
	"target":          "url",
	"headers":         "headers",
	"headless":        "headless",
	"quiet":           "quiet",
	"timeout":         "timeout",
	"concurrency":     "concurrency",
	"workers":         "concurrency",
	"max_payloads":    "max_payloads",
	"skip_charcheck":  "skip_charcheck",
	"skip_char_check": "skip_charcheck",
	"output":          "output",
	"format":          "format",
	"ignore_contexts": "ignore_contexts",
	"wordlist":        "wordlist",
}

// Load reads a YAML, TOML or JSON file chosen by extension. An empty path
// yields an empty layer.
func Load(path string) (Config, error) {
	var cfg Config
	path = strings.TrimSpace(path)
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	var raw map[string]any
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if decodeErr := yaml.Unmarshal(data, &raw); decodeErr != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, decodeErr)
		}
	case ".toml":
		if decodeErr := toml.Unmarshal(data, &raw); decodeErr != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, decodeErr)
		}
	case ".json":
		if decodeErr := json.Unmarshal(data, &raw); decodeErr != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, decodeErr)
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	if raw == nil {
		return cfg, nil
	}
	cfg, err = decode(raw)
	if err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func decode(raw map[string]any) (Config, error) {
	var cfg Config
	for key, value := range raw {
		canonical, ok := keyMap[normalizeKey(key)]
		if !ok {
			return cfg, fmt.Errorf("unknown config key: %s", key)
		}
		switch canonical {
		case "url":
			s, err := expectString(value, canonical)
			if err != nil {
				return cfg, err
			}
			cfg.URL = &s
		case "headers":
			h, err := expectHeaders(value, canonical)
			if err != nil {
				return cfg, err
			}
			cfg.Headers = &h
		case "headless":
			b, err := expectBool(value, canonical)
			if err != nil {
				return cfg, err
			}
			cfg.Headless = &b
		case "quiet":
			b, err := expectBool(value, canonical)
			if err != nil {
				return cfg, err
			}
			cfg.Quiet = &b
		case "timeout":
			d, err := expectDuration(value, canonical)
			if err != nil {
				return cfg, err
			}
			cfg.Timeout = &d
		case "concurrency":
			n, err := expectInt(value, canonical)
			if err != nil {
				return cfg, err
			}
			cfg.Concurrency = &n
		case "max_payloads":
			n, err := expectInt(value, canonical)
			if err != nil {
				return cfg, err
			}
			cfg.MaxPayloads = &n
		case "skip_charcheck":
			b, err := expectBool(value, canonical)
			if err != nil {
				return cfg, err
			}
			cfg.SkipCharCheck = &b
		case "output":
			s, err := expectString(value, canonical)
			if err != nil {
				return cfg, err
			}
			cfg.Output = &s
		case "format":
			s, err := expectString(value, canonical)
			if err != nil {
				return cfg, err
			}
			cfg.Format = &s
		case "ignore_contexts":
			list, err := expectStringList(value, canonical)
			if err != nil {
				return cfg, err
			}
			cfg.IgnoreContexts = &list
		case "wordlist":
			s, err := expectString(value, canonical)
			if err != nil {
				return cfg, err
			}
			cfg.Wordlist = &s
		}
	}
	return cfg, nil
}

func expectString(value any, field string) (string, error) {
	if value == nil {
		return "", fmt.Errorf("%s cannot be null", field)
	}
	if s, ok := value.(string); ok {
		return s, nil
	}
	return "", fmt.Errorf("expected string for %s, got %T", field, value)
}

func expectBool(value any, field string) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		return parseBool(v, field)
	default:
		return false, fmt.Errorf("expected bool for %s, got %T", field, value)
	}
}

func expectInt(value any, field string) (int, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v != float64(int(v)) {
			return 0, fmt.Errorf("expected integer for %s, got %v", field, value)
		}
		return int(v), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, fmt.Errorf("invalid integer value for %s: %q", field, v)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("expected integer for %s, got %T", field, value)
	}
}

// expectDuration takes a Go duration string or a number of seconds
func expectDuration(value any, field string) (time.Duration, error) {
	if s, ok := value.(string); ok {
		return parseDuration(s, field)
	}
	n, err := expectInt(value, field)
	if err != nil {
		return 0, fmt.Errorf("expected duration for %s, got %T", field, value)
	}
	return time.Duration(n) * time.Second, nil
}

func expectStringList(value any, field string) ([]string, error) {
	switch v := value.(type) {
	case string:
		return splitList(v), nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, err := expectString(item, field)
			if err != nil {
				return nil, err
			}
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected string or list for %s, got %T", field, value)
	}
}

func expectHeaders(value any, field string) (map[string]string, error) {
	m, ok := value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected map for %s, got %T", field, value)
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		s, err := expectString(v, field+"."+k)
		if err != nil {
			return nil, err
		}
		out[k] = s
	}
	return out, nil
}

func parseBool(raw, field string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean value for %s: %q", field, raw)
}

func parseDuration(raw, field string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if n, err := strconv.Atoi(raw); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid duration for %s: %q", field, raw)
	}
	return d, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func normalizeKey(key string) string {
	norm := strings.ToLower(strings.TrimSpace(key))
	return strings.ReplaceAll(norm, "-", "_")
}
