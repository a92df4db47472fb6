package config

import (
	"os"
	"path/filepath"

	"github.com/flanksource/commons/logger"
	"github.com/pelletier/go-toml/v2"
)

// LinterConfigPatterns defines the configuration files each linter looks for
// inside a workspace, in priority order.
var LinterConfigPatterns = map[string][]string{
	"golangci-lint": {
		".golangci.yml",
		".golangci.yaml",
		".golangci.toml",
		".golangci.json",
	},
	"ruff": {
		"ruff.toml",
		".ruff.toml",
		"pyproject.toml", // needs a [tool.ruff] section
	},
	"eslint": {
		"eslint.config.js",
		"eslint.config.mjs",
		"eslint.config.cjs",
		".eslintrc.js",
		".eslintrc.cjs",
		".eslintrc.json",
		".eslintrc.yml",
		".eslintrc.yaml",
		".eslintrc",
	},
	"vale": {
		".vale.ini",
		"_vale.ini",
	},
	"markdownlint": {
		".markdownlint.json",
		".markdownlint.jsonc",
		".markdownlint.yaml",
		".markdownlint.yml",
		".markdownlintrc",
	},
	"yamllint": {
		".yamllint",
		".yamllint.yaml",
		".yamllint.yml",
	},
}

// FindLinterConfig returns the first config file in the workspace that the
// linter would pick up, or ok=false when none exists. pyproject.toml only
// counts when it actually carries the linter's [tool.*] table.
func FindLinterConfig(rootDir, linter string) (string, bool) {
	patterns, ok := LinterConfigPatterns[linter]
	if !ok {
		return "", false
	}

	for _, pattern := range patterns {
		configPath := filepath.Join(rootDir, pattern)
		info, err := os.Stat(configPath)
		if err != nil || info.IsDir() {
			continue
		}
		if pattern == "pyproject.toml" && !hasToolSection(configPath, linter) {
			continue
		}
		logger.Debugf("Found %s config: %s", linter, pattern)
		return configPath, true
	}
	return "", false
}

// DetectLinterConfigs scans a directory for linter configuration files and
// returns a map of linter names to whether their config was found
func DetectLinterConfigs(rootDir string) map[string]bool {
	configsFound := make(map[string]bool, len(LinterConfigPatterns))
	for linter := range LinterConfigPatterns {
		_, found := FindLinterConfig(rootDir, linter)
		configsFound[linter] = found
	}
	return configsFound
}

// hasToolSection checks if a pyproject.toml file has a [tool.<linter>] table
func hasToolSection(pyprojectPath string, linter string) bool {
	data, err := os.ReadFile(pyprojectPath)
	if err != nil {
		return false
	}

	var pyproject struct {
		Tool map[string]any `toml:"tool"`
	}
	if err := toml.Unmarshal(data, &pyproject); err != nil {
		logger.Debugf("Failed to parse %s: %v", pyprojectPath, err)
		return false
	}

	_, ok := pyproject.Tool[linter]
	return ok
}
