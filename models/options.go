package models

import (
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Log levels accepted in lint options
const (
	LogLevelDebug = "DEBUG"
	LogLevelInfo  = "INFO"
	LogLevelWarn  = "WARN"
	LogLevelError = "ERROR"
)

// DefaultTimeoutMs is applied when a request does not set options.timeout
const DefaultTimeoutMs = 30000

// LintOptions carries the per-request knobs accepted by every linter route.
// Zero values mean "not set"; Normalized fills in defaults.
type LintOptions struct {
	ValidateAll     bool           `json:"validate_all,omitempty"`
	ExcludePatterns []string       `json:"exclude_patterns,omitempty"`
	IncludePatterns []string       `json:"include_patterns,omitempty"`
	LogLevel        string         `json:"log_level,omitempty"`
	TimeoutMs       int            `json:"timeout,omitempty"`
	Fix             bool           `json:"fix,omitempty"`
	ConfigFile      string         `json:"config_file,omitempty"`
	Rules           map[string]any `json:"rules,omitempty"`
}

// Normalized returns the canonical form of the options: every key present,
// defaults applied, pattern arrays sorted, log level upper-cased. Two inputs
// that differ only in key order or array order normalize identically, which
// is what makes the options hash deterministic.
func (o *LintOptions) Normalized() map[string]any {
	opts := o
	if opts == nil {
		opts = &LintOptions{}
	}

	exclude := append([]string{}, opts.ExcludePatterns...)
	include := append([]string{}, opts.IncludePatterns...)
	sort.Strings(exclude)
	sort.Strings(include)

	level := strings.ToUpper(opts.LogLevel)
	switch level {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
	default:
		level = LogLevelInfo
	}

	timeout := opts.TimeoutMs
	if timeout <= 0 {
		timeout = DefaultTimeoutMs
	}

	rules := opts.Rules
	if rules == nil {
		rules = map[string]any{}
	}

	return map[string]any{
		"validate_all":     opts.ValidateAll,
		"exclude_patterns": exclude,
		"include_patterns": include,
		"log_level":        level,
		"timeout":          timeout,
		"fix":              opts.Fix,
		"config_file":      opts.ConfigFile,
		"rules":            rules,
	}
}

// Timeout returns the effective request timeout in milliseconds
func (o *LintOptions) Timeout() int {
	if o == nil || o.TimeoutMs <= 0 {
		return DefaultTimeoutMs
	}
	return o.TimeoutMs
}

// AllowsFile reports whether a workspace-relative path survives the
// include/exclude pattern filters. Include patterns, when present, act as an
// allowlist; exclude patterns always win.
func (o *LintOptions) AllowsFile(relPath string) bool {
	if o == nil {
		return true
	}
	for _, pattern := range o.ExcludePatterns {
		if ok, err := doublestar.Match(pattern, relPath); err == nil && ok {
			return false
		}
	}
	if len(o.IncludePatterns) == 0 {
		return true
	}
	for _, pattern := range o.IncludePatterns {
		if ok, err := doublestar.Match(pattern, relPath); err == nil && ok {
			return true
		}
	}
	return false
}
