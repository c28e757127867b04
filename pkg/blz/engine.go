// Package blz is blz's public library surface: the single entry point
// (Engine) that wires internal/storage, internal/fetcher,
// internal/parser, internal/index, and internal/pipeline into the
// add/update/remove/search/get/list/toc/alias operations from spec §6.
// cmd/blz and cmd/blz-mcp are thin front ends over this package; they
// hold no business logic of their own.
package blz

import (
	"context"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/outfitter-dev/blz/internal/blzerrors"
	"github.com/outfitter-dev/blz/internal/config"
	"github.com/outfitter-dev/blz/internal/descriptor"
	"github.com/outfitter-dev/blz/internal/fetcher"
	"github.com/outfitter-dev/blz/internal/index"
	"github.com/outfitter-dev/blz/internal/parser"
	"github.com/outfitter-dev/blz/internal/pipeline"
	"github.com/outfitter-dev/blz/internal/storage"
	"github.com/outfitter-dev/blz/internal/types"
)

// Engine is a single blz instance bound to one data/config directory
// pair. It is safe for concurrent use.
type Engine struct {
	cfg      *config.Config
	store    *storage.Store
	pool     *index.Pool
	pipeline *pipeline.Pipeline
}

// Open builds an Engine from cfg (pass config.Load()'s result, or
// config.Default() for an ephemeral/test instance). client is the
// *http.Client used for fetches; nil gets a default one.
func Open(cfg *config.Config, client *http.Client) *Engine {
	store := storage.NewStore(cfg.DataDir)
	pool := index.NewPool()
	fopts := fetcher.Options{
		MaxBytes:      cfg.Fetch.MaxBytes,
		Timeout:       time.Duration(cfg.Fetch.TimeoutSec) * time.Second,
		RetryAttempts: cfg.Fetch.RetryAttempts,
		BaseDelay:     time.Duration(cfg.Fetch.BaseDelayMs) * time.Millisecond,
		Flavor:        fetcher.FlavorPolicy{PreferFull: cfg.Fetch.PreferFull},
	}
	return &Engine{
		cfg:      cfg,
		store:    store,
		pool:     pool,
		pipeline: pipeline.New(store, pool, client, cfg.ConfigDir, fopts),
	}
}

// Add registers and fetches a new source (spec §6 "add").
func (e *Engine) Add(ctx context.Context, source, url string, desc *types.Descriptor) (*types.SourceSummary, error) {
	return e.pipeline.Add(ctx, source, url, desc)
}

// Update re-fetches one already-registered source (spec §6 "update").
func (e *Engine) Update(ctx context.Context, name string) (*types.UpdateSummary, error) {
	source, err := e.store.Resolve(name)
	if err != nil {
		return nil, err
	}
	return e.pipeline.Update(ctx, source)
}

// UpdateAll re-fetches every registered source concurrently, or just
// names if non-empty (spec §6 "update --all").
func (e *Engine) UpdateAll(ctx context.Context, names []string) ([]*types.UpdateSummary, error) {
	sources := names
	if len(sources) == 0 {
		all, err := e.store.ListSources()
		if err != nil {
			return nil, err
		}
		sources = all
	}
	return e.pipeline.UpdateAll(ctx, sources)
}

// Remove deletes a source entirely (spec §6 "remove").
func (e *Engine) Remove(ctx context.Context, name string) error {
	source, err := e.store.Resolve(name)
	if err != nil {
		return err
	}
	return e.pipeline.Remove(ctx, source)
}

// List returns a summary of every registered source (spec §6 "list").
func (e *Engine) List() ([]types.SourceSummary, error) {
	sources, err := e.store.ListSources()
	if err != nil {
		return nil, err
	}
	return e.summarize(sources)
}

// ListMatching returns a summary of every registered source whose
// identifier matches a doublestar glob pattern, for collaborators
// that want to filter the directory scan itself rather than filter
// List()'s output (spec §11 domain stack).
func (e *Engine) ListMatching(pattern string) ([]types.SourceSummary, error) {
	sources, err := e.store.ListSourcesMatching(pattern)
	if err != nil {
		return nil, err
	}
	return e.summarize(sources)
}

func (e *Engine) summarize(sources []string) ([]types.SourceSummary, error) {
	out := make([]types.SourceSummary, 0, len(sources))
	for _, src := range sources {
		meta, err := e.store.LoadMetadata(src)
		if err != nil {
			continue
		}
		doc, err := e.store.LoadParsed(src)
		blockCount, lineCount := 0, 0
		if err == nil {
			blockCount = len(doc.Blocks)
			for _, b := range doc.Blocks {
				if b.EndLine > lineCount {
					lineCount = b.EndLine
				}
			}
		}

		summary := types.SourceSummary{
			Source:     src,
			URL:        meta.URL,
			Flavor:     meta.Flavor,
			FetchedAt:  meta.FetchedAt,
			SHA256:     meta.SHA256,
			BlockCount: blockCount,
			LineCount:  lineCount,
		}
		if d, err := descriptor.Load(e.cfg.ConfigDir, src); err == nil {
			summary.Description = d.Description
			summary.Tags = d.Tags
		}
		out = append(out, summary)
	}
	return out, nil
}

// Get returns the exact text for a line range in a source (spec §6
// "get"), clamping End to the document's last line and rejecting a
// Start past EOF.
func (e *Engine) Get(name string, requested types.LineRange) (*types.TextFragment, error) {
	source, err := e.store.Resolve(name)
	if err != nil {
		return nil, err
	}
	doc, err := e.store.LoadParsed(source)
	if err != nil {
		return nil, err
	}
	lastLine := 0
	for _, b := range doc.Blocks {
		if b.EndLine > lastLine {
			lastLine = b.EndLine
		}
	}

	clamped, ok := requested.Clamp(lastLine)
	if !ok {
		return nil, blzerrors.NewInvalidError("line_range", requested.String(), "start line is beyond end of document")
	}

	raw, err := e.store.ReadRaw(source)
	if err != nil {
		return nil, err
	}
	li := parser.NewLineIndex(raw)
	text, ok := li.Slice(clamped.Start, clamped.End)
	if !ok {
		return nil, blzerrors.NewInvalidError("line_range", clamped.String(), "out of range")
	}

	return &types.TextFragment{
		Source:    source,
		Range:     clamped,
		Text:      text,
		Clamped:   clamped != requested,
		Requested: requested,
	}, nil
}

// TOC returns a source's derived table of contents (spec §6 "toc").
func (e *Engine) TOC(name string) ([]*types.TOCNode, error) {
	source, err := e.store.Resolve(name)
	if err != nil {
		return nil, err
	}
	doc, err := e.store.LoadParsed(source)
	if err != nil {
		return nil, err
	}
	return doc.TOC, nil
}

// Search runs a query across names (all registered sources if empty),
// merges and paginates results, and attaches per-source metadata
// (spec §6 "search").
func (e *Engine) Search(ctx context.Context, query string, names []string, page, limit int) (*types.SearchResponse, error) {
	if limit <= 0 {
		return nil, blzerrors.NewInvalidError("limit", strconv.Itoa(limit), "must be greater than zero")
	}
	if page < 1 {
		return nil, blzerrors.NewInvalidError("page", strconv.Itoa(page), "page is 1-based; page 0 is rejected")
	}
	if limit > e.cfg.Search.MaxLimit {
		limit = e.cfg.Search.MaxLimit
	}

	resolved, unresolved, err := e.resolveSources(names)
	if err != nil {
		return nil, err
	}

	sources := make([]index.SourceIndex, 0, len(resolved))
	metaBySource := make(map[string]*types.SourceMetadata, len(resolved))
	for _, src := range resolved {
		meta, err := e.store.LoadMetadata(src)
		if err != nil {
			continue
		}
		metaBySource[src] = meta
		sources = append(sources, index.SourceIndex{Name: src, Dir: e.store.IndexDir(src)})
	}

	start := time.Now()
	result, err := e.pool.Search(ctx, index.SearchRequest{
		Query:         query,
		Sources:       sources,
		Limit:         limit,
		Page:          page,
		SnippetMaxLen: e.cfg.Index.SnippetMaxLen,
	})
	if err != nil {
		return nil, err
	}

	hits := make([]types.SearchHit, 0, len(result.Hits))
	for _, h := range result.Hits {
		meta := metaBySource[h.Source]
		hit := types.SearchHit{
			Source:          h.Source,
			HeadingPath:     h.HeadingPath,
			LineRange:       h.LineRange,
			Score:           h.Score,
			ScorePercentile: h.Percentile,
			Snippet:         h.Snippet,
			Anchor:          h.Anchor,
		}
		if meta != nil {
			hit.SourceURL = meta.URL
			hit.FetchedAt = meta.FetchedAt
		}
		hits = append(hits, hit)
	}

	incompleteSrcs := result.IncompleteSrcs
	errs := result.Errors
	for _, n := range unresolved {
		incompleteSrcs = append(incompleteSrcs, n)
		errs = append(errs, n+": source not found")
	}

	return &types.SearchResponse{
		Query:          query,
		Page:           page,
		Limit:          limit,
		TotalResults:   result.Total,
		ExecutionTime:  time.Since(start),
		Partial:        result.Partial || len(unresolved) > 0,
		IncompleteSrcs: incompleteSrcs,
		Errors:         errs,
		Results:        hits,
	}, nil
}

// resolveSources resolves names to canonical source identifiers,
// collecting any that don't exist as warnings rather than failing
// outright: spec §7 requires search against a non-existent --source to
// return zero results with a warning, not a hard error. A failure to
// list the registered sources at all (names empty) is still a hard
// error: that's an operational failure, not an unresolvable name.
func (e *Engine) resolveSources(names []string) (resolved, unresolved []string, err error) {
	if len(names) == 0 {
		all, err := e.store.ListSources()
		if err != nil {
			return nil, nil, err
		}
		return all, nil, nil
	}
	resolved = make([]string, 0, len(names))
	for _, n := range names {
		src, rerr := e.store.Resolve(n)
		if rerr != nil {
			unresolved = append(unresolved, n)
			continue
		}
		resolved = append(resolved, src)
	}
	return resolved, unresolved, nil
}

// AliasAdd registers alias for source, after checking alias isn't
// already claimed by a different source (spec §4.2 alias uniqueness,
// enforced here since internal/storage.Resolve has no write access).
func (e *Engine) AliasAdd(source, alias string) error {
	if err := storage.ValidateName(alias, true); err != nil {
		return err
	}
	canonical, err := e.store.Resolve(source)
	if err != nil {
		return err
	}

	if existing, err := e.store.Resolve(alias); err == nil && existing != canonical {
		return blzerrors.NewExistsError(alias)
	}

	meta, err := e.store.LoadMetadata(canonical)
	if err != nil {
		return err
	}
	for _, a := range meta.Aliases {
		if a == alias {
			return nil // already present, idempotent
		}
	}
	meta.Aliases = append(meta.Aliases, alias)
	return e.store.WriteMetadataOnly(canonical, meta)
}

// AliasRemove unregisters alias from source.
func (e *Engine) AliasRemove(source, alias string) error {
	canonical, err := e.store.Resolve(source)
	if err != nil {
		return err
	}
	meta, err := e.store.LoadMetadata(canonical)
	if err != nil {
		return err
	}
	kept := meta.Aliases[:0]
	for _, a := range meta.Aliases {
		if a != alias {
			kept = append(kept, a)
		}
	}
	meta.Aliases = kept
	return e.store.WriteMetadataOnly(canonical, meta)
}

// AliasList returns every alias registered for source.
func (e *Engine) AliasList(source string) ([]string, error) {
	canonical, err := e.store.Resolve(source)
	if err != nil {
		return nil, err
	}
	meta, err := e.store.LoadMetadata(canonical)
	if err != nil {
		return nil, err
	}
	out := append([]string(nil), meta.Aliases...)
	sort.Strings(out)
	return out, nil
}
