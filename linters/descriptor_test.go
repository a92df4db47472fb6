package linters

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	registry := Default()

	t.Run("known linters are registered", func(t *testing.T) {
		for _, name := range []string{"eslint", "golangci-lint", "ruff", "shellcheck", "hadolint", "markdownlint", "yamllint", "vale"} {
			assert.True(t, registry.Has(name), "missing linter %s", name)
		}
		assert.Equal(t, 8, registry.Count())
	})

	t.Run("unknown linter is not found", func(t *testing.T) {
		_, ok := registry.Get("invalidlinter")
		assert.False(t, ok)
		assert.False(t, registry.Has("invalidlinter"))
	})

	t.Run("names are sorted", func(t *testing.T) {
		names := registry.Names()
		assert.IsIncreasing(t, names)
		assert.Len(t, names, registry.Count())
	})

	t.Run("descriptors carry a timeout and parser", func(t *testing.T) {
		for _, d := range registry.List() {
			assert.Positive(t, d.TimeoutMs, "%s has no timeout", d.Name)
			assert.NotEmpty(t, d.ParserID, "%s has no parser", d.Name)
			assert.NotEmpty(t, d.Extensions, "%s accepts no files", d.Name)
			assert.NotEmpty(t, d.OutputFormats, "%s renders no formats", d.Name)
		}
	})
}

func TestDescriptorSupportsFile(t *testing.T) {
	registry := Default()

	tests := []struct {
		linter string
		file   string
		want   bool
	}{
		{"eslint", "src/app.js", true},
		{"eslint", "src/app.tsx", true},
		{"eslint", "main.go", false},
		{"golangci-lint", "main.go", true},
		{"ruff", "script.py", true},
		{"ruff", "script.PY", true},
		{"hadolint", "Dockerfile", true},
		{"hadolint", "api.dockerfile", true},
		{"hadolint", "Makefile", false},
		{"yamllint", "deploy.yaml", true},
		{"vale", "README.md", true},
	}

	for _, tt := range tests {
		t.Run(tt.linter+"/"+tt.file, func(t *testing.T) {
			d, ok := registry.Get(tt.linter)
			require.True(t, ok)
			assert.Equal(t, tt.want, d.SupportsFile(tt.file))
		})
	}
}

func TestDescriptorSupportsFormat(t *testing.T) {
	registry := Default()

	eslint, _ := registry.Get("eslint")
	assert.True(t, eslint.SupportsFormat(FormatJSON))
	assert.True(t, eslint.SupportsFormat(FormatSARIF))

	yamllint, _ := registry.Get("yamllint")
	assert.True(t, yamllint.SupportsFormat(FormatText))
	assert.False(t, yamllint.SupportsFormat(FormatSARIF))
}

func TestDescriptorIsFindingsExit(t *testing.T) {
	eslint, _ := Default().Get("eslint")
	assert.True(t, eslint.IsFindingsExit(1))
	assert.False(t, eslint.IsFindingsExit(2))
	assert.False(t, eslint.IsFindingsExit(0))
}
