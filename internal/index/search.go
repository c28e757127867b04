package index

import (
	"context"
	"runtime"
	"sort"
	"strconv"
	"sync"

	"github.com/blevesearch/bleve/v2"
	bleveQ "github.com/blevesearch/bleve/v2/search/query"
	"golang.org/x/sync/errgroup"

	"github.com/outfitter-dev/blz/internal/blzerrors"
	"github.com/outfitter-dev/blz/internal/types"
)

// SourceIndex names one source's index directory, as resolved by the
// caller (internal/storage owns the directory layout; this package
// stays ignorant of it so it has no import-cycle on internal/storage).
type SourceIndex struct {
	Name string
	Dir  string
}

// SearchRequest is index.Pool.Search's input (spec §4.4 "Execution").
type SearchRequest struct {
	Query         string
	Sources       []SourceIndex
	Limit         int
	Page          int
	SnippetMaxLen int
}

// RawHit is one merged result before the caller (pkg/blz) attaches
// per-source metadata (URL, fetched_at, staleness).
type RawHit struct {
	Source      string
	HeadingPath []string
	LineRange   types.LineRange
	Score       float64
	Percentile  float64
	Snippet     string
	Anchor      string
}

// SearchResult is index.Pool.Search's output.
type SearchResult struct {
	Total          int
	Hits           []RawHit
	Partial        bool
	IncompleteSrcs []string
	Errors         []string
}

// perSourceLimit is how many hits each source contributes to the
// merge candidate pool before global pagination, per spec §4.4 step 3
// ("retain the global top limit*page items").
func perSourceLimit(limit, page int) int {
	n := limit * page
	if n < limit {
		n = limit
	}
	return n
}

// Search fans out req across every named source concurrently (spec
// §4.4 "Concurrency model"), merges results by BM25 score with a
// deterministic tie-break, and applies page/limit slicing.
func (p *Pool) Search(ctx context.Context, req SearchRequest) (*SearchResult, error) {
	if req.Page < 1 {
		return nil, blzerrors.NewInvalidError("page", strconv.Itoa(req.Page), "page is 1-based; page 0 is rejected")
	}
	if req.SnippetMaxLen <= 0 {
		req.SnippetMaxLen = types.DefaultSnippetMaxLen
	}

	bq, err := ParseQuery(req.Query)
	if err != nil {
		return nil, err
	}
	if bq == nil {
		return &SearchResult{}, nil
	}

	terms := queryTerms(req.Query)
	topK := perSourceLimit(req.Limit, req.Page)

	var (
		mu         sync.Mutex
		all        []RawHit
		incomplete []string
		errs       []string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelism())

	for _, src := range req.Sources {
		src := src
		g.Go(func() error {
			hits, err := p.searchOne(gctx, src, bq, topK, terms, req.SnippetMaxLen)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if gctx.Err() != nil {
					incomplete = append(incomplete, src.Name)
					return nil // deadline: partial result, not a hard failure
				}
				errs = append(errs, src.Name+": "+err.Error())
				return nil
			}
			all = append(all, hits...)
			return nil
		})
	}
	// errgroup.Wait only ever returns an error from Go's own return
	// value, which this loop never produces — failures are recorded
	// per-source above instead, matching spec §4.4 "Failure semantics".
	_ = g.Wait()

	sortHits(all)
	total := len(all)
	assignPercentiles(all)

	start := (req.Page - 1) * req.Limit
	end := start + req.Limit
	if start > len(all) {
		start = len(all)
	}
	if end > len(all) {
		end = len(all)
	}

	return &SearchResult{
		Total:          total,
		Hits:           all[start:end],
		Partial:        len(incomplete) > 0,
		IncompleteSrcs: incomplete,
		Errors:         errs,
	}, nil
}

// searchOne executes bq against a single source's reader and converts
// the top topK bleve hits into RawHits, including snippet extraction
// (spec §4.4 steps 2 and 5).
func (p *Pool) searchOne(ctx context.Context, src SourceIndex, bq bleveQ.Query, topK int, terms []string, snippetMaxLen int) ([]RawHit, error) {
	h, err := p.Acquire(src.Name, src.Dir)
	if err != nil {
		return nil, err
	}
	defer h.Release()

	sr := bleve.NewSearchRequestOptions(bq, topK, 0, false)
	sr.Fields = []string{FieldPath, FieldAnchor, FieldStartLine, FieldEndLine, FieldContentRaw}

	result, err := h.Index().SearchInContext(ctx, sr)
	if err != nil {
		return nil, blzerrors.NewIndexError(src.Name, "search", err)
	}

	hits := make([]RawHit, 0, len(result.Hits))
	for _, dm := range result.Hits {
		content, _ := dm.Fields[FieldContentRaw].(string)
		hits = append(hits, RawHit{
			Source:      src.Name,
			HeadingPath: splitHeadingPath(stringField(dm.Fields, FieldPath)),
			LineRange: types.LineRange{
				Start: intField(dm.Fields, FieldStartLine),
				End:   intField(dm.Fields, FieldEndLine),
			},
			Score:   dm.Score,
			Anchor:  stringField(dm.Fields, FieldAnchor),
			Snippet: ExtractSnippet(content, terms, snippetMaxLen),
		})
	}
	return hits, nil
}

func stringField(fields map[string]any, name string) string {
	s, _ := fields[name].(string)
	return s
}

func intField(fields map[string]any, name string) int {
	switch v := fields[name].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

func splitHeadingPath(joined string) []string {
	if joined == "" {
		return nil
	}
	var out []string
	for _, p := range splitOnSeparator(joined, " > ") {
		out = append(out, p)
	}
	return out
}

func splitOnSeparator(s, sep string) []string {
	var out []string
	for {
		i := indexOf(s, sep)
		if i < 0 {
			out = append(out, s)
			return out
		}
		out = append(out, s[:i])
		s = s[i+len(sep):]
	}
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

func maxParallelism() int {
	n := runtime.GOMAXPROCS(0)
	if n < 1 {
		return 1
	}
	return n
}

func queryTerms(raw string) []string {
	toks, err := lex(raw)
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(toks))
	for _, t := range toks {
		if t.excluded {
			continue
		}
		out = append(out, t.text)
	}
	return out
}

func sortHits(hits []RawHit) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		if hits[i].Source != hits[j].Source {
			return hits[i].Source < hits[j].Source
		}
		return hits[i].LineRange.Start < hits[j].LineRange.Start
	})
}

func assignPercentiles(hits []RawHit) {
	n := len(hits)
	if n == 0 {
		return
	}
	for i := range hits {
		// Rank-based percentile: the top hit is the 100th percentile,
		// the bottom hit approaches 0.
		hits[i].Percentile = 100 * float64(n-i) / float64(n)
	}
}
