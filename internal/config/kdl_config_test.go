package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKDLEmptyReturnsDefaults(t *testing.T) {
	cfg, err := parseKDL("")
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 30, cfg.Fetch.TimeoutSec)
	assert.Equal(t, int64(10*1024*1024), cfg.Fetch.MaxBytes)
	assert.True(t, cfg.Fetch.PreferFull)
	assert.Equal(t, 3.0, cfg.Index.HeadingsBoost)
	assert.Equal(t, 20, cfg.Search.DefaultLimit)
}

func TestParseKDLFetchOverrides(t *testing.T) {
	kdlContent := `
fetch {
    timeout_sec 45
    max_bytes "5MB"
    retry_attempts 5
    prefer_full false
}
`
	cfg, err := parseKDL(kdlContent)
	require.NoError(t, err)

	assert.Equal(t, 45, cfg.Fetch.TimeoutSec)
	assert.Equal(t, int64(5*1024*1024), cfg.Fetch.MaxBytes)
	assert.Equal(t, 5, cfg.Fetch.RetryAttempts)
	assert.False(t, cfg.Fetch.PreferFull)
}

func TestParseKDLIndexAndSearchOverrides(t *testing.T) {
	kdlContent := `
index {
    headings_boost 5.0
    phrase_boost 1.5
    snippet_max_len 400
}
search {
    default_limit 10
    max_limit 50
}
log {
    level "debug"
}
`
	cfg, err := parseKDL(kdlContent)
	require.NoError(t, err)

	assert.Equal(t, 5.0, cfg.Index.HeadingsBoost)
	assert.Equal(t, 1.5, cfg.Index.PhraseBoost)
	assert.Equal(t, 400, cfg.Index.SnippetMaxLen)
	assert.Equal(t, 10, cfg.Search.DefaultLimit)
	assert.Equal(t, 50, cfg.Search.MaxLimit)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestParseKDLPartialOverridePreservesOtherDefaults(t *testing.T) {
	cfg, err := parseKDL(`index { headings_boost 9.0 }`)
	require.NoError(t, err)

	assert.Equal(t, 9.0, cfg.Index.HeadingsBoost)
	assert.Equal(t, 1.2, cfg.Index.PhraseBoost) // untouched default
}

func TestParseKDLIntegerSizeWithoutSuffix(t *testing.T) {
	cfg, err := parseKDL(`fetch { max_bytes 1024 }`)
	require.NoError(t, err)
	assert.Equal(t, int64(1024), cfg.Fetch.MaxBytes)
}

func TestLoadKDLMissingFileReturnsNilWithoutError(t *testing.T) {
	cfg, err := LoadKDL(t.TempDir())
	require.NoError(t, err)
	assert.Nil(t, cfg)
}
