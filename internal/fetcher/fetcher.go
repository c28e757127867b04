// Package fetcher implements conditional HTTP retrieval of
// llms.txt / llms-full.txt documents (spec §4.3), including flavor
// negotiation, size/time limits, and retry-with-backoff for
// transient failures.
package fetcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/outfitter-dev/blz/internal/blzerrors"
	"github.com/outfitter-dev/blz/internal/types"
)

// OutcomeKind is the fetch outcome sum type (spec §4.3).
type OutcomeKind string

const (
	OutcomeModified    OutcomeKind = "modified"
	OutcomeNotModified OutcomeKind = "not_modified"
)

// Prior carries the previous fetch's conditional-GET fields.
type Prior struct {
	ETag         string
	LastModified string
	SHA256       string
}

// Outcome is the tagged result of one Fetch call. Failed outcomes are
// returned as an error instead of a Kind, matching Go idiom: only
// Modified/NotModified are "successful" tags worth branching on.
type Outcome struct {
	Kind         OutcomeKind
	Bytes        []byte
	ETag         string
	LastModified string
	SHA256       string
	Flavor       types.Flavor
	URL          string // the flavor URL actually fetched
}

// Options configures limits and retry policy. Zero values fall back
// to spec defaults.
type Options struct {
	MaxBytes      int64
	Timeout       time.Duration
	RetryAttempts int
	BaseDelay     time.Duration
	Flavor        FlavorPolicy
}

// FlavorPolicy controls which published variant is preferred and
// whether a pinned URL replaces the default negotiation. It is set once
// per Fetcher through Options, not per call or per source (spec
// §9 Open Question: "the Fetcher gains a FlavorPolicy parameter but
// the Index schema is unchanged").
type FlavorPolicy struct {
	// PreferFull, when true (the default), tries llms-full.txt before
	// llms.txt. When false, only llms.txt is attempted.
	PreferFull bool
	// Pin, if non-empty, fetches exactly this URL with no negotiation.
	Pin string
}

func (o Options) withDefaults() Options {
	if o.MaxBytes == 0 {
		o.MaxBytes = types.DefaultMaxFetchBytes
	}
	if o.Timeout == 0 {
		o.Timeout = types.DefaultFetchTimeout
	}
	if o.RetryAttempts == 0 {
		o.RetryAttempts = 3
	}
	if o.BaseDelay == 0 {
		o.BaseDelay = 250 * time.Millisecond
	}
	if !o.Flavor.PreferFull && o.Flavor.Pin == "" {
		o.Flavor.PreferFull = true
	}
	return o
}

// Fetcher performs conditional GETs for one engine instance, reusing
// a single *http.Client (and therefore its connection pool / TLS
// session cache) across sources.
type Fetcher struct {
	client *http.Client
	opts   Options
}

// New builds a Fetcher. A nil client gets a sane default: HTTP/2
// enabled, timeout applied via context rather than on the client: one
// Options.Timeout per candidate URL, covering all of its retries, and
// any deadline on the caller's context applies as well.
func New(client *http.Client, opts Options) *Fetcher {
	if client == nil {
		client = &http.Client{}
	}
	return &Fetcher{client: client, opts: opts.withDefaults()}
}

// Fetch retrieves url, preferring llms-full.txt per the configured
// FlavorPolicy, sending conditional headers when prior is non-nil,
// and retrying transient failures with exponential backoff + jitter.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, prior *Prior) (*Outcome, error) {
	candidates, err := flavorCandidates(rawURL, f.opts.Flavor)
	if err != nil {
		return nil, blzerrors.NewInvalidError("url", rawURL, err.Error())
	}

	var lastErr error
	for i, cand := range candidates {
		out, err := f.fetchOne(ctx, cand.url, cand.flavor, prior)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if httpErr, ok := err.(*blzerrors.HttpError); ok && httpErr.StatusCode == http.StatusNotFound && i < len(candidates)-1 {
			continue // fall back to the next flavor candidate
		}
		return nil, err
	}
	return nil, lastErr
}

type flavorCandidate struct {
	url    string
	flavor types.Flavor
}

// flavorCandidates computes the ordered list of URLs to try. Query
// strings and fragments never confuse the heuristic because it
// operates on url.URL.Path, not the raw string (spec §4.3).
func flavorCandidates(rawURL string, policy FlavorPolicy) ([]flavorCandidate, error) {
	if policy.Pin != "" {
		return []flavorCandidate{{url: policy.Pin, flavor: flavorFromPath(policy.Pin)}}, nil
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}

	base := *u
	path := base.Path
	switch {
	case strings.HasSuffix(path, "/"+string(types.FlavorFull)):
		return []flavorCandidate{{url: u.String(), flavor: types.FlavorFull}}, nil
	case strings.HasSuffix(path, "/"+string(types.FlavorBase)):
		if !policy.PreferFull {
			return []flavorCandidate{{url: u.String(), flavor: types.FlavorBase}}, nil
		}
		fullU := base
		fullU.Path = strings.TrimSuffix(path, string(types.FlavorBase)) + string(types.FlavorFull)
		baseU := base
		return []flavorCandidate{
			{url: fullU.String(), flavor: types.FlavorFull},
			{url: baseU.String(), flavor: types.FlavorBase},
		}, nil
	default:
		// Bare base path: try the full variant first, then llms.txt.
		trimmed := strings.TrimSuffix(path, "/")
		fullU := base
		fullU.Path = trimmed + "/" + string(types.FlavorFull)
		baseU := base
		baseU.Path = trimmed + "/" + string(types.FlavorBase)
		if !policy.PreferFull {
			return []flavorCandidate{{url: baseU.String(), flavor: types.FlavorBase}}, nil
		}
		return []flavorCandidate{
			{url: fullU.String(), flavor: types.FlavorFull},
			{url: baseU.String(), flavor: types.FlavorBase},
		}, nil
	}
}

func flavorFromPath(rawURL string) types.Flavor {
	if strings.HasSuffix(rawURL, string(types.FlavorFull)) {
		return types.FlavorFull
	}
	return types.FlavorBase
}

func (f *Fetcher) fetchOne(ctx context.Context, url string, flavor types.Flavor, prior *Prior) (*Outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, f.opts.Timeout)
	defer cancel()

	var lastErr error
	for attempt := 0; attempt < f.opts.RetryAttempts; attempt++ {
		if attempt > 0 {
			delay := backoff(f.opts.BaseDelay, attempt)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, blzerrors.NewNetworkError(url, attempt, ctx.Err())
			}
		}

		out, retryable, err := f.attempt(ctx, url, flavor, prior)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !retryable {
			return nil, err
		}
	}
	return nil, blzerrors.NewNetworkError(url, f.opts.RetryAttempts, lastErr)
}

// attempt performs one HTTP round trip. The bool return reports
// whether the caller should retry on failure.
func (f *Fetcher) attempt(ctx context.Context, rawURL string, flavor types.Flavor, prior *Prior) (*Outcome, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, false, blzerrors.NewInvalidError("url", rawURL, err.Error())
	}
	if prior != nil {
		if prior.ETag != "" {
			req.Header.Set("If-None-Match", prior.ETag)
		}
		if prior.LastModified != "" {
			req.Header.Set("If-Modified-Since", prior.LastModified)
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, true, blzerrors.NewNetworkError(rawURL, 1, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return &Outcome{Kind: OutcomeNotModified, URL: rawURL, Flavor: flavor}, false, nil
	}

	if resp.StatusCode >= 500 {
		return nil, true, blzerrors.NewHttpError(rawURL, resp.StatusCode)
	}
	if resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusTooManyRequests {
		return nil, true, blzerrors.NewHttpError(rawURL, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return nil, false, blzerrors.NewHttpError(rawURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.opts.MaxBytes+1))
	if err != nil {
		return nil, true, blzerrors.NewNetworkError(rawURL, 1, err)
	}
	if int64(len(body)) > f.opts.MaxBytes {
		return nil, false, blzerrors.NewInvalidError("body", rawURL, "exceeds max fetch size")
	}

	sum := sha256.Sum256(body)
	digest := hex.EncodeToString(sum[:])

	if prior != nil && prior.SHA256 != "" && prior.SHA256 == digest {
		// Server ignored conditional headers but returned identical
		// content; treat as NotModified (spec §4.3).
		return &Outcome{Kind: OutcomeNotModified, URL: rawURL, Flavor: flavor}, false, nil
	}

	return &Outcome{
		Kind:         OutcomeModified,
		Bytes:        body,
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
		SHA256:       digest,
		Flavor:       flavor,
		URL:          rawURL,
	}, false, nil
}

func backoff(base time.Duration, attempt int) time.Duration {
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
	}
	jitter := time.Duration(rand.Int63n(int64(base)))
	return d + jitter
}
