package cache

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/flanksource/lint-api/models"
)

var hexPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

func TestContentHash(t *testing.T) {
	t.Run("is 64 lowercase hex chars", func(t *testing.T) {
		assert.Regexp(t, hexPattern, ContentHash([]byte("console.log(1)")))
		assert.Regexp(t, hexPattern, ContentHash(nil))
	})

	t.Run("differs for different bytes", func(t *testing.T) {
		assert.NotEqual(t, ContentHash([]byte("a")), ContentHash([]byte("b")))
	})

	t.Run("is deterministic", func(t *testing.T) {
		assert.Equal(t, ContentHash([]byte("same")), ContentHash([]byte("same")))
	})
}

func TestOptionsHash(t *testing.T) {
	t.Run("is stable across key and array order", func(t *testing.T) {
		a := &models.LintOptions{ValidateAll: true, ExcludePatterns: []string{"b", "a"}, TimeoutMs: 5000}
		b := &models.LintOptions{TimeoutMs: 5000, ExcludePatterns: []string{"a", "b"}, ValidateAll: true}
		assert.Equal(t, OptionsHash(a), OptionsHash(b))
	})

	t.Run("nil and empty options hash identically", func(t *testing.T) {
		assert.Equal(t, OptionsHash(nil), OptionsHash(&models.LintOptions{}))
	})

	t.Run("differs when an option differs", func(t *testing.T) {
		assert.NotEqual(t,
			OptionsHash(&models.LintOptions{Fix: true}),
			OptionsHash(&models.LintOptions{Fix: false}))
	})

	t.Run("is 64 hex chars", func(t *testing.T) {
		assert.Regexp(t, hexPattern, OptionsHash(nil))
	})
}

func TestKey(t *testing.T) {
	key := Key("abc123", "eslint", "json", "def456")
	assert.Equal(t, "eslint:json:abc123:def456", key)
}
