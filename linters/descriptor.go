package linters

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/samber/lo"
)

// Output formats the API can render
const (
	FormatJSON  = "json"
	FormatText  = "text"
	FormatSARIF = "sarif"
)

// Descriptor is the static description of one supported linter: how to
// invoke it, which files it accepts, and how to interpret what it prints.
type Descriptor struct {
	// Name is the identifier used in routes and cache keys (e.g., "eslint")
	Name string `json:"name"`

	// Executable is the binary probed on PATH
	Executable string `json:"executable"`

	// BaseArgs always precede any option-derived args
	BaseArgs []string `json:"base_args"`

	// Extensions lists accepted file suffixes (".go") or exact base names
	// ("Dockerfile")
	Extensions []string `json:"extensions"`

	// TimeoutMs caps a single run; request timeouts are clamped to it
	TimeoutMs int `json:"timeout_ms"`

	// ParserID selects the output parser from the parser table
	ParserID string `json:"parser_id"`

	// AcceptsFix and FixArg gate --fix style flags
	AcceptsFix bool   `json:"accepts_fix"`
	FixArg     string `json:"fix_arg,omitempty"`

	// AcceptsConfig and ConfigArg gate explicit config file flags
	AcceptsConfig bool   `json:"accepts_config"`
	ConfigArg     string `json:"config_arg,omitempty"`

	// OutputFormats the API will render for this linter
	OutputFormats []string `json:"output_formats"`

	// FindingsExitCodes are exit codes that mean "ran to completion and
	// found issues"; any other non-zero exit is a failure
	FindingsExitCodes []int `json:"findings_exit_codes"`

	// DiagnosticsOnStderr is set for tools that report findings on stderr
	DiagnosticsOnStderr bool `json:"diagnostics_on_stderr,omitempty"`

	// VersionArgs invoke the binary for the availability probe
	VersionArgs []string `json:"version_args"`
}

// SupportsFile reports whether the linter accepts the given file name
func (d *Descriptor) SupportsFile(name string) bool {
	base := filepath.Base(name)
	ext := strings.ToLower(filepath.Ext(base))
	for _, e := range d.Extensions {
		if strings.HasPrefix(e, ".") {
			if ext == e {
				return true
			}
		} else if base == e {
			return true
		}
	}
	return false
}

// SupportsFormat reports whether the API renders this output format for the
// linter
func (d *Descriptor) SupportsFormat(format string) bool {
	return lo.Contains(d.OutputFormats, format)
}

// IsFindingsExit reports whether the exit code means "issues found" rather
// than a tool failure
func (d *Descriptor) IsFindingsExit(code int) bool {
	return lo.Contains(d.FindingsExitCodes, code)
}

// Registry manages the static descriptor table
type Registry struct {
	descriptors map[string]*Descriptor
}

// NewRegistry creates a registry from the given descriptors
func NewRegistry(descriptors ...*Descriptor) *Registry {
	r := &Registry{descriptors: make(map[string]*Descriptor, len(descriptors))}
	for _, d := range descriptors {
		r.descriptors[d.Name] = d
	}
	return r
}

// Get retrieves a descriptor by linter name
func (r *Registry) Get(name string) (*Descriptor, bool) {
	d, ok := r.descriptors[name]
	return d, ok
}

// Has checks if a linter is registered
func (r *Registry) Has(name string) bool {
	_, ok := r.descriptors[name]
	return ok
}

// Count returns the number of registered linters
func (r *Registry) Count() int {
	return len(r.descriptors)
}

// Names returns all registered linter names, sorted
func (r *Registry) Names() []string {
	names := lo.Keys(r.descriptors)
	sort.Strings(names)
	return names
}

// List returns all descriptors ordered by name
func (r *Registry) List() []*Descriptor {
	out := make([]*Descriptor, 0, len(r.descriptors))
	for _, name := range r.Names() {
		out = append(out, r.descriptors[name])
	}
	return out
}

// Default returns the built-in registry. The table is the single source of
// truth for which linters exist; adding a linter means adding a descriptor
// here and a parser to the parser table.
func Default() *Registry {
	return NewRegistry(
		&Descriptor{
			Name:              "eslint",
			Executable:        "eslint",
			BaseArgs:          []string{"--format", "json"},
			Extensions:        []string{".js", ".jsx", ".ts", ".tsx", ".mjs", ".cjs"},
			TimeoutMs:         60000,
			ParserID:          "eslint-json",
			AcceptsFix:        true,
			FixArg:            "--fix",
			AcceptsConfig:     true,
			ConfigArg:         "--config",
			OutputFormats:     []string{FormatJSON, FormatText, FormatSARIF},
			FindingsExitCodes: []int{1},
			VersionArgs:       []string{"--version"},
		},
		&Descriptor{
			Name:              "golangci-lint",
			Executable:        "golangci-lint",
			BaseArgs:          []string{"run", "--out-format", "json"},
			Extensions:        []string{".go"},
			TimeoutMs:         120000,
			ParserID:          "golangci-json",
			AcceptsConfig:     true,
			ConfigArg:         "--config",
			OutputFormats:     []string{FormatJSON, FormatText, FormatSARIF},
			FindingsExitCodes: []int{1},
			VersionArgs:       []string{"version"},
		},
		&Descriptor{
			Name:              "ruff",
			Executable:        "ruff",
			BaseArgs:          []string{"check", "--output-format", "json"},
			Extensions:        []string{".py", ".pyi"},
			TimeoutMs:         60000,
			ParserID:          "ruff-json",
			AcceptsFix:        true,
			FixArg:            "--fix",
			AcceptsConfig:     true,
			ConfigArg:         "--config",
			OutputFormats:     []string{FormatJSON, FormatText, FormatSARIF},
			FindingsExitCodes: []int{1},
			VersionArgs:       []string{"--version"},
		},
		&Descriptor{
			Name:              "shellcheck",
			Executable:        "shellcheck",
			BaseArgs:          []string{"--format=json"},
			Extensions:        []string{".sh", ".bash", ".ksh"},
			TimeoutMs:         60000,
			ParserID:          "shellcheck-json",
			OutputFormats:     []string{FormatJSON, FormatText, FormatSARIF},
			FindingsExitCodes: []int{1},
			VersionArgs:       []string{"--version"},
		},
		&Descriptor{
			Name:              "hadolint",
			Executable:        "hadolint",
			BaseArgs:          []string{"--format", "json"},
			Extensions:        []string{"Dockerfile", ".dockerfile"},
			TimeoutMs:         60000,
			ParserID:          "hadolint-json",
			OutputFormats:     []string{FormatJSON, FormatText, FormatSARIF},
			FindingsExitCodes: []int{1},
			VersionArgs:       []string{"--version"},
		},
		&Descriptor{
			Name:                "markdownlint",
			Executable:          "markdownlint",
			Extensions:          []string{".md", ".markdown"},
			TimeoutMs:           60000,
			ParserID:            "markdownlint-text",
			AcceptsFix:          true,
			FixArg:              "--fix",
			AcceptsConfig:       true,
			ConfigArg:           "--config",
			OutputFormats:       []string{FormatJSON, FormatText},
			FindingsExitCodes:   []int{1},
			DiagnosticsOnStderr: true,
			VersionArgs:         []string{"--version"},
		},
		&Descriptor{
			Name:              "yamllint",
			Executable:        "yamllint",
			BaseArgs:          []string{"-f", "parsable"},
			Extensions:        []string{".yml", ".yaml"},
			TimeoutMs:         60000,
			ParserID:          "yamllint-parsable",
			AcceptsConfig:     true,
			ConfigArg:         "-c",
			OutputFormats:     []string{FormatJSON, FormatText},
			FindingsExitCodes: []int{1},
			VersionArgs:       []string{"--version"},
		},
		&Descriptor{
			Name:              "vale",
			Executable:        "vale",
			BaseArgs:          []string{"--output=JSON"},
			Extensions:        []string{".md", ".txt", ".rst"},
			TimeoutMs:         60000,
			ParserID:          "vale-json",
			AcceptsConfig:     true,
			ConfigArg:         "--config",
			OutputFormats:     []string{FormatJSON, FormatText},
			FindingsExitCodes: []int{1},
			VersionArgs:       []string{"--version"},
		},
	)
}
