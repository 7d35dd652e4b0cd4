package scanner

import (
	"time"

	"github.com/cybertron10/contextscan/internal/charfilter"
	"github.com/cybertron10/contextscan/internal/htmlctx"
)

// Config holds scanner configuration
type Config struct {
	URL           string
	Headers       map[string]string
	Quiet         bool
	Headless      bool
	Timeout       time.Duration
	Concurrency   int
	MaxPayloads   int // per context, 0 tries every candidate
	SkipCharCheck bool
	// Wordlist names extra parameters to probe for hidden reflections
	Wordlist []string
	// IgnoreContexts are reflection contexts that are reported but not attacked
	IgnoreContexts map[htmlctx.Kind]bool
}

// Confidence levels, weakest first
const (
	ConfidenceLow       = "low"
	ConfidenceMedium    = "medium"
	ConfidenceHigh      = "high"
	ConfidenceConfirmed = "confirmed"
)

// ScanResult represents the result of a reflection scan
type ScanResult struct {
	URL                  string          `json:"url"`
	Timestamp            time.Time       `json:"timestamp"`
	Success              bool            `json:"success"`
	Error                string          `json:"error,omitempty"`
	ParametersTested     int             `json:"parameters_tested"`
	VulnerabilitiesFound int             `json:"vulnerabilities_found"`
	ParametersFound      []string        `json:"parameters_found"`
	Vulnerabilities      []Vulnerability `json:"vulnerabilities"`
	Reflections          []Reflection    `json:"reflections"`
	ReflectingParams     []string        `json:"reflecting_parameters"`
	SkippedParams        []string        `json:"skipped_parameters"`
	ScanDuration         time.Duration   `json:"scan_duration"`
}

// Vulnerability is a confirmed or likely injection in one context
type Vulnerability struct {
	Parameter                  string   `json:"parameter"`
	Context                    string   `json:"context"`
	Contexts                   []string `json:"contexts"`
	WorkingPayloads            []string `json:"working_payloads"`
	ExploitURL                 string   `json:"exploit_url"`
	Method                     string   `json:"method"`
	IsDirectlyExploitable      bool     `json:"is_directly_exploitable"`
	ManualInterventionRequired bool     `json:"manual_intervention_required"`
	Confidence                 string   `json:"confidence"`
}

// Reflection records where a parameter's marker came back
type Reflection struct {
	Parameter string             `json:"parameter"`
	Marker    string             `json:"marker"`
	Contexts  []string           `json:"contexts"`
	Filter    *charfilter.Report `json:"filter,omitempty"`
}

// Parameter represents a discovered parameter
type Parameter struct {
	Name   string `json:"name"`
	Type   string `json:"type"` // query, form or hidden
	Method string `json:"method"`
	Action string `json:"action,omitempty"`
}
