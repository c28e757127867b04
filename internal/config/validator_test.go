package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAndSetDefaultsFillsZeroValues(t *testing.T) {
	cfg := &Config{}
	require.NoError(t, NewValidator().ValidateAndSetDefaults(cfg))

	assert.Equal(t, 30, cfg.Fetch.TimeoutSec)
	assert.Equal(t, int64(10*1024*1024), cfg.Fetch.MaxBytes)
	assert.Equal(t, 3, cfg.Fetch.RetryAttempts)
	assert.Equal(t, 300, cfg.Index.SnippetMaxLen)
	assert.Equal(t, 20, cfg.Search.DefaultLimit)
	assert.Equal(t, 100, cfg.Search.MaxLimit)
}

func TestValidateFetchRejectsNegativeValues(t *testing.T) {
	v := NewValidator()
	assert.Error(t, v.validateFetch(&Fetch{TimeoutSec: -1}))
	assert.Error(t, v.validateFetch(&Fetch{MaxBytes: -1}))
	assert.Error(t, v.validateFetch(&Fetch{RetryAttempts: -1}))
	assert.Error(t, v.validateFetch(&Fetch{BaseDelayMs: -1}))
	assert.Error(t, v.validateFetch(&Fetch{MaxBytes: 1000 * 1024 * 1024}))
	assert.NoError(t, v.validateFetch(&Fetch{TimeoutSec: 30, MaxBytes: 1024, RetryAttempts: 3, BaseDelayMs: 250}))
}

func TestValidateIndexRejectsNegativeBoosts(t *testing.T) {
	v := NewValidator()
	assert.Error(t, v.validateIndex(&Index{HeadingsBoost: -1}))
	assert.Error(t, v.validateIndex(&Index{PhraseBoost: -1}))
	assert.Error(t, v.validateIndex(&Index{SnippetMaxLen: -1}))
	assert.NoError(t, v.validateIndex(&Index{HeadingsBoost: 3, PhraseBoost: 1.2, SnippetMaxLen: 300}))
}

func TestValidateSearchRejectsInvertedLimits(t *testing.T) {
	v := NewValidator()
	assert.Error(t, v.validateSearch(&Search{DefaultLimit: 0, MaxLimit: 10}))
	assert.Error(t, v.validateSearch(&Search{DefaultLimit: 10, MaxLimit: 0}))
	assert.Error(t, v.validateSearch(&Search{DefaultLimit: 50, MaxLimit: 10}))
	assert.NoError(t, v.validateSearch(&Search{DefaultLimit: 10, MaxLimit: 50}))
}

func TestValidateConfigConvenienceWrapper(t *testing.T) {
	cfg := &Config{Search: Search{DefaultLimit: 50, MaxLimit: 10}}
	assert.Error(t, ValidateConfig(cfg))

	cfg = &Config{}
	assert.NoError(t, ValidateConfig(cfg))
}
