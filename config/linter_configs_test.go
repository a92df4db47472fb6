package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindLinterConfig(t *testing.T) {
	t.Run("unknown linter", func(t *testing.T) {
		_, found := FindLinterConfig(t.TempDir(), "invalidlinter")
		assert.False(t, found)
	})

	t.Run("empty workspace", func(t *testing.T) {
		_, found := FindLinterConfig(t.TempDir(), "eslint")
		assert.False(t, found)
	})

	t.Run("first pattern in priority order wins", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, ".eslintrc.json"), []byte("{}"), 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "eslint.config.js"), []byte(""), 0o644))

		path, found := FindLinterConfig(dir, "eslint")
		require.True(t, found)
		assert.Equal(t, filepath.Join(dir, "eslint.config.js"), path)
	})

	t.Run("directories do not count", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.MkdirAll(filepath.Join(dir, ".yamllint"), 0o755))

		_, found := FindLinterConfig(dir, "yamllint")
		assert.False(t, found)
	})

	t.Run("pyproject.toml needs the tool table", func(t *testing.T) {
		dir := t.TempDir()
		pyproject := filepath.Join(dir, "pyproject.toml")

		require.NoError(t, os.WriteFile(pyproject, []byte("[project]\nname = \"x\"\n"), 0o644))
		_, found := FindLinterConfig(dir, "ruff")
		assert.False(t, found, "pyproject without [tool.ruff] must not count")

		require.NoError(t, os.WriteFile(pyproject, []byte("[tool.ruff]\nline-length = 100\n"), 0o644))
		path, found := FindLinterConfig(dir, "ruff")
		require.True(t, found)
		assert.Equal(t, pyproject, path)
	})
}

func TestDetectLinterConfigs(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".golangci.yml"), []byte(""), 0o644))

	found := DetectLinterConfigs(dir)
	assert.True(t, found["golangci-lint"])
	assert.False(t, found["eslint"])
}
