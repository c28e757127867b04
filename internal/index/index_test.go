package index

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/outfitter-dev/blz/internal/types"
)

func buildTestIndex(t *testing.T, source string, blocks []types.Block) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), source, ".index")
	require.NoError(t, Rebuild(dir, source, blocks))
	return dir
}

func TestSearchBasicHit(t *testing.T) {
	blocks := []types.Block{
		{Path: []string{"A"}, StartLine: 1, EndLine: 2, Content: "# A\nhello", Anchor: "a"},
		{Path: []string{"B"}, StartLine: 3, EndLine: 4, Content: "# B\nworld", Anchor: "b"},
	}
	dir := buildTestIndex(t, "demo", blocks)

	pool := NewPool()
	res, err := pool.Search(context.Background(), SearchRequest{
		Query:   "hello",
		Sources: []SourceIndex{{Name: "demo", Dir: dir}},
		Limit:   10,
		Page:    1,
	})
	require.NoError(t, err)
	require.Len(t, res.Hits, 1)
	assert.Equal(t, []string{"A"}, res.Hits[0].HeadingPath)
	assert.Equal(t, 1, res.Hits[0].LineRange.Start)
	assert.Contains(t, res.Hits[0].Snippet, "hello")
	assert.Greater(t, res.Hits[0].Score, 0.0)
}

func TestSearchPhraseVsOR(t *testing.T) {
	blocks := []types.Block{
		{Path: []string{"T"}, StartLine: 1, EndLine: 2, Content: "# T\nfoo bar baz", Anchor: "t"},
		{Path: []string{"T"}, StartLine: 3, EndLine: 4, Content: "# T\nbar foo baz", Anchor: "t-2"},
	}
	dir := buildTestIndex(t, "demo", blocks)
	pool := NewPool()

	phraseRes, err := pool.Search(context.Background(), SearchRequest{
		Query:   `"foo bar"`,
		Sources: []SourceIndex{{Name: "demo", Dir: dir}},
		Limit:   10, Page: 1,
	})
	require.NoError(t, err)
	assert.Len(t, phraseRes.Hits, 1)

	orRes, err := pool.Search(context.Background(), SearchRequest{
		Query:   "foo bar",
		Sources: []SourceIndex{{Name: "demo", Dir: dir}},
		Limit:   10, Page: 1,
	})
	require.NoError(t, err)
	assert.Len(t, orRes.Hits, 2)
}

func TestSearchEmptyQueryReturnsZeroResults(t *testing.T) {
	dir := buildTestIndex(t, "demo", []types.Block{{Path: []string{"A"}, StartLine: 1, EndLine: 1, Content: "# A", Anchor: "a"}})
	pool := NewPool()
	res, err := pool.Search(context.Background(), SearchRequest{
		Query:   "",
		Sources: []SourceIndex{{Name: "demo", Dir: dir}},
		Limit:   10, Page: 1,
	})
	require.NoError(t, err)
	assert.Empty(t, res.Hits)
}

func TestSearchRejectsPageZero(t *testing.T) {
	dir := buildTestIndex(t, "demo", []types.Block{{Path: []string{"A"}, StartLine: 1, EndLine: 1, Content: "# A", Anchor: "a"}})
	pool := NewPool()
	_, err := pool.Search(context.Background(), SearchRequest{
		Query:   "a",
		Sources: []SourceIndex{{Name: "demo", Dir: dir}},
		Limit:   10, Page: 0,
	})
	assert.Error(t, err)
}

func TestSearchMultiSourceFanOut(t *testing.T) {
	dir1 := buildTestIndex(t, "s1", []types.Block{{Path: []string{"X"}, StartLine: 1, EndLine: 2, Content: "# X\noverlap term", Anchor: "x"}})
	dir2 := buildTestIndex(t, "s2", []types.Block{{Path: []string{"Y"}, StartLine: 1, EndLine: 2, Content: "# Y\noverlap term", Anchor: "y"}})

	pool := NewPool()
	res, err := pool.Search(context.Background(), SearchRequest{
		Query: "overlap",
		Sources: []SourceIndex{
			{Name: "s1", Dir: dir1},
			{Name: "s2", Dir: dir2},
		},
		Limit: 10, Page: 1,
	})
	require.NoError(t, err)
	assert.Len(t, res.Hits, 2)
}

func TestSearchPaginationNoOverlap(t *testing.T) {
	var blocks []types.Block
	for i := 0; i < 5; i++ {
		blocks = append(blocks, types.Block{
			Path: []string{"H"}, StartLine: i*2 + 1, EndLine: i*2 + 2,
			Content: "# H\nfindme content", Anchor: "h",
		})
	}
	dir := buildTestIndex(t, "demo", blocks)
	pool := NewPool()

	page1, err := pool.Search(context.Background(), SearchRequest{Query: "findme", Sources: []SourceIndex{{Name: "demo", Dir: dir}}, Limit: 2, Page: 1})
	require.NoError(t, err)
	page2, err := pool.Search(context.Background(), SearchRequest{Query: "findme", Sources: []SourceIndex{{Name: "demo", Dir: dir}}, Limit: 2, Page: 2})
	require.NoError(t, err)

	seen := map[int]bool{}
	for _, h := range page1.Hits {
		seen[h.LineRange.Start] = true
	}
	for _, h := range page2.Hits {
		assert.False(t, seen[h.LineRange.Start])
	}
}

func TestPoolInvalidateReopens(t *testing.T) {
	dir := buildTestIndex(t, "demo", []types.Block{{Path: []string{"A"}, StartLine: 1, EndLine: 1, Content: "# A", Anchor: "a"}})
	pool := NewPool()

	h1, err := pool.Acquire("demo", dir)
	require.NoError(t, err)
	h1.Release()

	pool.Invalidate("demo")

	h2, err := pool.Acquire("demo", dir)
	require.NoError(t, err)
	defer h2.Release()
	assert.NotNil(t, h2.Index())
}
