package config

import (
	"fmt"

	"github.com/outfitter-dev/blz/internal/blzerrors"
)

// Validator checks a loaded Config for nonsensical values and fills in
// fixed built-in defaults for unset fields, matching the teacher's
// ValidateAndSetDefaults two-phase shape.
type Validator struct{}

// NewValidator creates a Validator.
func NewValidator() *Validator { return &Validator{} }

// ValidateAndSetDefaults fills any zero-valued field with its smart
// default first, then validates the result: a bare &Config{} is a
// legitimate input (the zero value means "unset," not "invalid"), and
// only becomes rejectable once defaults are applied and something is
// still out of range (e.g. an explicit negative value).
func (v *Validator) ValidateAndSetDefaults(cfg *Config) error {
	v.setSmartDefaults(cfg)

	if err := v.validateFetch(&cfg.Fetch); err != nil {
		return blzerrors.NewInvalidError("config.fetch", "", err.Error())
	}
	if err := v.validateIndex(&cfg.Index); err != nil {
		return blzerrors.NewInvalidError("config.index", "", err.Error())
	}
	if err := v.validateSearch(&cfg.Search); err != nil {
		return blzerrors.NewInvalidError("config.search", "", err.Error())
	}
	return nil
}

func (v *Validator) validateFetch(f *Fetch) error {
	if f.TimeoutSec < 0 {
		return fmt.Errorf("timeout_sec cannot be negative, got %d", f.TimeoutSec)
	}
	if f.MaxBytes < 0 {
		return fmt.Errorf("max_bytes cannot be negative, got %d", f.MaxBytes)
	}
	if f.MaxBytes > 500*1024*1024 {
		return fmt.Errorf("max_bytes should not exceed 500MB, got %d", f.MaxBytes)
	}
	if f.RetryAttempts < 0 {
		return fmt.Errorf("retry_attempts cannot be negative, got %d", f.RetryAttempts)
	}
	if f.BaseDelayMs < 0 {
		return fmt.Errorf("base_delay_ms cannot be negative, got %d", f.BaseDelayMs)
	}
	return nil
}

func (v *Validator) validateIndex(idx *Index) error {
	if idx.HeadingsBoost < 0 {
		return fmt.Errorf("headings_boost cannot be negative, got %v", idx.HeadingsBoost)
	}
	if idx.PhraseBoost < 0 {
		return fmt.Errorf("phrase_boost cannot be negative, got %v", idx.PhraseBoost)
	}
	if idx.SnippetMaxLen < 0 {
		return fmt.Errorf("snippet_max_len cannot be negative, got %d", idx.SnippetMaxLen)
	}
	return nil
}

func (v *Validator) validateSearch(s *Search) error {
	if s.DefaultLimit <= 0 {
		return fmt.Errorf("default_limit must be positive, got %d", s.DefaultLimit)
	}
	if s.MaxLimit <= 0 {
		return fmt.Errorf("max_limit must be positive, got %d", s.MaxLimit)
	}
	if s.DefaultLimit > s.MaxLimit {
		return fmt.Errorf("default_limit (%d) cannot exceed max_limit (%d)", s.DefaultLimit, s.MaxLimit)
	}
	return nil
}

// setSmartDefaults fills in any field a zero-value Config would leave
// unusable, mirroring the teacher's CPU-count-based fallback pattern.
func (v *Validator) setSmartDefaults(cfg *Config) {
	if cfg.Fetch.TimeoutSec == 0 {
		cfg.Fetch.TimeoutSec = 30
	}
	if cfg.Fetch.MaxBytes == 0 {
		cfg.Fetch.MaxBytes = 10 * 1024 * 1024
	}
	if cfg.Fetch.RetryAttempts == 0 {
		cfg.Fetch.RetryAttempts = 3
	}
	if cfg.Index.SnippetMaxLen == 0 {
		cfg.Index.SnippetMaxLen = 300
	}
	if cfg.Search.DefaultLimit == 0 {
		cfg.Search.DefaultLimit = 20
	}
	if cfg.Search.MaxLimit == 0 {
		cfg.Search.MaxLimit = 100
	}
}

// ValidateConfig is a convenience wrapper for callers that just want a
// yes/no validity check without holding onto a Validator.
func ValidateConfig(cfg *Config) error {
	return NewValidator().ValidateAndSetDefaults(cfg)
}
