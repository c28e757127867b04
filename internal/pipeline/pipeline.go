// Package pipeline orchestrates the multi-step update described in
// spec §4.5: lock, conditional fetch, parse, atomic write, index
// rebuild-and-swap, reader-pool invalidation. It is the one place that
// knows how internal/storage, internal/fetcher, internal/parser, and
// internal/index compose; every other package stays ignorant of the
// others.
package pipeline

import (
	"context"
	"net/http"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/outfitter-dev/blz/internal/blzerrors"
	"github.com/outfitter-dev/blz/internal/descriptor"
	"github.com/outfitter-dev/blz/internal/fetcher"
	"github.com/outfitter-dev/blz/internal/index"
	"github.com/outfitter-dev/blz/internal/obslog"
	"github.com/outfitter-dev/blz/internal/parser"
	"github.com/outfitter-dev/blz/internal/storage"
	"github.com/outfitter-dev/blz/internal/types"
)

// Pipeline wires storage, fetcher, parser, and index together for one
// engine instance. All its exported methods are safe for concurrent
// use across goroutines and across sources; concurrent calls for the
// *same* source collapse onto a single in-flight fetch via singleflight
// and then serialize on the store's per-source lock.
type Pipeline struct {
	store   *storage.Store
	fetcher *fetcher.Fetcher
	pool    *index.Pool
	cfgRoot string
	sf      singleflight.Group
	log     zerolog.Logger
}

// New builds a Pipeline over an already-open Store and Pool, using
// client (nil for a default one) for HTTP and configRoot for
// descriptor storage.
func New(store *storage.Store, pool *index.Pool, client *http.Client, configRoot string, opts fetcher.Options) *Pipeline {
	return &Pipeline{
		store:   store,
		fetcher: fetcher.New(client, opts),
		pool:    pool,
		cfgRoot: configRoot,
		log:     obslog.Default(),
	}
}

// Add registers a brand-new source: fetch, parse, write, index, and
// persist a descriptor (spec §4.5 step "add"). Fails with ExistsError
// if source is already registered.
func (p *Pipeline) Add(ctx context.Context, source, rawURL string, desc *types.Descriptor) (*types.SourceSummary, error) {
	runID := uuid.New().String()
	log := p.log.With().Str("run_id", runID).Str("source", source).Str("op", "add").Logger()

	if err := storage.ValidateName(source, false); err != nil {
		return nil, err
	}
	if err := p.store.Create(source); err != nil {
		return nil, err
	}

	lock, err := p.store.Lock(source)
	if err != nil {
		return nil, err
	}
	defer lock.Unlock()

	outcome, err := p.fetcher.Fetch(ctx, rawURL, nil)
	if err != nil {
		log.Error().Err(err).Msg("fetch failed")
		return nil, err
	}

	doc, err := parser.Parse(source, outcome.Bytes)
	if err != nil {
		log.Error().Err(err).Msg("parse failed")
		return nil, err
	}

	meta := &types.SourceMetadata{
		URL:          rawURL,
		ETag:         outcome.ETag,
		LastModified: outcome.LastModified,
		SHA256:       outcome.SHA256,
		FetchedAt:    now(),
		Flavor:       outcome.Flavor,
	}
	if err := p.store.WriteSource(source, outcome.Bytes, doc, meta); err != nil {
		return nil, err
	}

	if err := rebuildIndex(p.store, p.pool, source, doc.Blocks); err != nil {
		return nil, err
	}

	if desc != nil {
		desc.Source = source
		if err := descriptor.Save(p.cfgRoot, desc); err != nil {
			log.Warn().Err(err).Msg("descriptor save failed; source is still usable")
		}
	}

	log.Info().Int("blocks", len(doc.Blocks)).Msg("source added")
	return &types.SourceSummary{
		Source:     source,
		URL:        rawURL,
		Flavor:     outcome.Flavor,
		FetchedAt:  meta.FetchedAt,
		SHA256:     outcome.SHA256,
		BlockCount: len(doc.Blocks),
		LineCount:  countLines(doc),
	}, nil
}

// Update re-fetches a registered source and, if its content changed,
// re-parses, re-archives the prior raw document, and rebuilds the
// index (spec §4.5). Concurrent Update calls for the same source
// collapse onto one in-flight fetch+rebuild.
func (p *Pipeline) Update(ctx context.Context, source string) (*types.UpdateSummary, error) {
	v, err, _ := p.sf.Do(source, func() (any, error) {
		return p.update(ctx, source)
	})
	if err != nil {
		return nil, err
	}
	return v.(*types.UpdateSummary), nil
}

func (p *Pipeline) update(ctx context.Context, source string) (*types.UpdateSummary, error) {
	start := time.Now()
	runID := uuid.New().String()
	log := p.log.With().Str("run_id", runID).Str("source", source).Str("op", "update").Logger()

	meta, err := p.store.LoadMetadata(source)
	if err != nil {
		return nil, err
	}

	lock, err := p.store.Lock(source)
	if err != nil {
		return nil, err
	}
	defer lock.Unlock()

	prior := &fetcher.Prior{ETag: meta.ETag, LastModified: meta.LastModified, SHA256: meta.SHA256}
	outcome, err := p.fetcher.Fetch(ctx, meta.URL, prior)
	if err != nil {
		log.Error().Err(err).Msg("fetch failed")
		return &types.UpdateSummary{Source: source, Status: types.UpdateStatusFailed, DurationMs: elapsedMs(start)}, err
	}

	if outcome.Kind == fetcher.OutcomeNotModified {
		meta.FetchedAt = now()
		if err := p.store.WriteMetadataOnly(source, meta); err != nil {
			return nil, err
		}
		log.Info().Msg("not modified")
		return &types.UpdateSummary{
			Source:     source,
			Status:     types.UpdateStatusNotModified,
			DurationMs: elapsedMs(start),
		}, nil
	}

	doc, err := parser.Parse(source, outcome.Bytes)
	if err != nil {
		log.Error().Err(err).Msg("parse failed")
		return &types.UpdateSummary{Source: source, Status: types.UpdateStatusFailed, DurationMs: elapsedMs(start)}, err
	}

	if err := p.store.ArchiveCurrent(source, meta.FetchedAt, meta.SHA256); err != nil {
		return nil, err
	}

	bytesIn := int64(len(outcome.Bytes))
	newMeta := &types.SourceMetadata{
		URL:          meta.URL,
		ETag:         outcome.ETag,
		LastModified: outcome.LastModified,
		SHA256:       outcome.SHA256,
		FetchedAt:    now(),
		Flavor:       outcome.Flavor,
		Aliases:      meta.Aliases,
	}
	if err := p.store.WriteSource(source, outcome.Bytes, doc, newMeta); err != nil {
		return nil, err
	}

	if err := rebuildIndex(p.store, p.pool, source, doc.Blocks); err != nil {
		return nil, err
	}

	log.Info().Int("blocks", len(doc.Blocks)).Int64("bytes", bytesIn).Msg("source updated")
	return &types.UpdateSummary{
		Source:     source,
		Status:     types.UpdateStatusModified,
		BytesIn:    bytesIn,
		BytesOut:   bytesIn,
		DurationMs: elapsedMs(start),
	}, nil
}

// UpdateAll runs Update concurrently across sources (bounded by
// GOMAXPROCS, matching the search fan-out's concurrency model) and
// aggregates per-source failures into one MultiError rather than
// aborting the whole batch on the first failure.
func (p *Pipeline) UpdateAll(ctx context.Context, sources []string) ([]*types.UpdateSummary, error) {
	results := make([]*types.UpdateSummary, len(sources))
	var errs []error
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallel())
	for i, src := range sources {
		i, src := i, src
		g.Go(func() error {
			res, err := p.Update(gctx, src)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				results[i] = &types.UpdateSummary{Source: src, Status: types.UpdateStatusFailed}
				return nil
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	return results, toMultiErr(errs)
}

// Remove deletes a source's on-disk state, descriptor, and reader-pool
// entry. The caller is responsible for alias bookkeeping elsewhere
// (pkg/blz owns alias uniqueness, not this package).
func (p *Pipeline) Remove(ctx context.Context, source string) error {
	lock, err := p.store.Lock(source)
	if err != nil {
		return err
	}
	defer lock.Unlock()

	p.pool.Invalidate(source)
	if err := p.store.Remove(source); err != nil {
		return err
	}
	return descriptor.Remove(p.cfgRoot, source)
}

// rebuildIndex writes a fresh index into a sibling directory, then
// performs the rename dance (spec §4.4 "Writer lifecycle"): old ->
// .index.old, new -> .index, then best-effort removal of .index.old.
// The reader pool is invalidated only after the rename succeeds, so a
// search in flight during the swap either sees the old index to
// completion or (after Invalidate) reopens the new one; it never sees
// a half-written directory.
func rebuildIndex(store *storage.Store, pool *index.Pool, source string, blocks []types.Block) error {
	liveDir := store.IndexDir(source)
	newDir := liveDir + ".new"
	oldDir := liveDir + ".old"

	_ = os.RemoveAll(newDir) // leftover from a prior crashed rebuild
	if err := index.Rebuild(newDir, source, blocks); err != nil {
		return err
	}

	if _, err := os.Stat(liveDir); err == nil {
		_ = os.RemoveAll(oldDir) // leftover from a prior crashed swap
		if err := os.Rename(liveDir, oldDir); err != nil {
			return blzerrors.NewIndexError(source, "swap_out", err)
		}
	}
	if err := os.Rename(newDir, liveDir); err != nil {
		return blzerrors.NewIndexError(source, "swap_in", err)
	}

	pool.Invalidate(source)
	_ = os.RemoveAll(oldDir)
	return nil
}

func countLines(doc *types.ParsedDocument) int {
	max := 0
	for _, b := range doc.Blocks {
		if b.EndLine > max {
			max = b.EndLine
		}
	}
	return max
}

func elapsedMs(start time.Time) int64 { return time.Since(start).Milliseconds() }

func maxParallel() int {
	n := runtime.GOMAXPROCS(0)
	if n < 1 {
		return 1
	}
	return n
}

// now is the pipeline's one clock read, isolated so tests can override
// behavior deterministically if ever needed; production code always
// calls real wall-clock time.
func now() time.Time { return time.Now() }

func toMultiErr(errs []error) error {
	me := blzerrors.NewMultiError(errs)
	if me == nil {
		return nil
	}
	return me
}
