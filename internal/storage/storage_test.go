package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/outfitter-dev/blz/internal/types"
)

func newTestStore(t *testing.T) *Store {
	return NewStore(t.TempDir())
}

func TestCreateThenExists(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Create("react"))

	meta := &types.SourceMetadata{URL: "https://react.dev", SHA256: "abc", FetchedAt: time.Now()}
	require.NoError(t, s.WriteSource("react", []byte("# H\nbody\n"), &types.ParsedDocument{Source: "react"}, meta))

	assert.True(t, s.Exists("react"))
}

func TestCreateTwiceFails(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Create("react"))
	require.NoError(t, s.WriteSource("react", []byte("x"), &types.ParsedDocument{Source: "react"}, &types.SourceMetadata{}))

	require.Error(t, s.Create("react"))
}

func TestWriteSourceThenReadBack(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Create("react"))

	raw := []byte("# H\nv1\n")
	doc := &types.ParsedDocument{Source: "react", Blocks: []types.Block{{Path: []string{"H"}, StartLine: 1, EndLine: 2, Content: "# H\nv1", Anchor: "h"}}}
	meta := &types.SourceMetadata{URL: "https://x", SHA256: SHA256Hex(raw), FetchedAt: time.Now()}

	require.NoError(t, s.WriteSource("react", raw, doc, meta))

	gotRaw, err := s.ReadRaw("react")
	require.NoError(t, err)
	assert.Equal(t, raw, gotRaw)

	gotDoc, err := s.LoadParsed("react")
	require.NoError(t, err)
	assert.Equal(t, doc.Blocks[0].Content, gotDoc.Blocks[0].Content)

	gotMeta, err := s.LoadMetadata("react")
	require.NoError(t, err)
	assert.Equal(t, meta.SHA256, gotMeta.SHA256)
}

func TestArchiveOnChange(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Create("react"))

	v1 := []byte("# H\nv1\n")
	fetchedAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, s.WriteSource("react", v1, &types.ParsedDocument{Source: "react"}, &types.SourceMetadata{SHA256: SHA256Hex(v1), FetchedAt: fetchedAt}))

	require.NoError(t, s.ArchiveCurrent("react", fetchedAt, SHA256Hex(v1)))

	v2 := []byte("# H\nv2\n")
	require.NoError(t, s.WriteSource("react", v2, &types.ParsedDocument{Source: "react"}, &types.SourceMetadata{SHA256: SHA256Hex(v2), FetchedAt: time.Now()}))

	archives, err := s.ListArchives("react")
	require.NoError(t, err)
	require.Len(t, archives, 1)

	gotRaw, err := s.ReadRaw("react")
	require.NoError(t, err)
	assert.Equal(t, v2, gotRaw)
}

func TestResolveCaseInsensitiveAlias(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Create("react"))
	require.NoError(t, s.WriteSource("react", []byte("x"), &types.ParsedDocument{Source: "react"},
		&types.SourceMetadata{Aliases: []string{"ReactJS"}}))

	src, err := s.Resolve("reactjs")
	require.NoError(t, err)
	assert.Equal(t, "react", src)

	src, err = s.Resolve("REACT")
	require.NoError(t, err)
	assert.Equal(t, "react", src)
}

func TestResolveUnknownReturnsNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Resolve("ghost")
	require.Error(t, err)
}

func TestRemoveDeletesDirectory(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Create("react"))
	require.NoError(t, s.WriteSource("react", []byte("x"), &types.ParsedDocument{Source: "react"}, &types.SourceMetadata{}))

	require.NoError(t, s.Remove("react"))
	assert.False(t, s.Exists("react"))
}

func TestListSourcesIgnoresDirsWithoutMetadata(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Create("react"))
	require.NoError(t, s.WriteSource("react", []byte("x"), &types.ParsedDocument{Source: "react"}, &types.SourceMetadata{}))

	// A bare directory with no metadata.json should not appear.
	require.NoError(t, s.Create("incomplete"))

	sources, err := s.ListSources()
	require.NoError(t, err)
	assert.Equal(t, []string{"react"}, sources)
}

func TestArchiveCurrentSkipsDuplicateViaXXHashPreCheck(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Create("react"))

	v1 := []byte("# H\nv1\n")
	fetchedAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, s.WriteSource("react", v1, &types.ParsedDocument{Source: "react"}, &types.SourceMetadata{SHA256: SHA256Hex(v1), FetchedAt: fetchedAt}))
	require.NoError(t, s.ArchiveCurrent("react", fetchedAt, SHA256Hex(v1)))

	// Re-archive byte-identical content at a later timestamp: the
	// xxhash pre-check should short-circuit before any new file is
	// written, even though the timestamp-derived name would differ.
	require.NoError(t, s.WriteSource("react", v1, &types.ParsedDocument{Source: "react"}, &types.SourceMetadata{SHA256: SHA256Hex(v1), FetchedAt: fetchedAt.Add(time.Hour)}))
	require.NoError(t, s.ArchiveCurrent("react", fetchedAt.Add(time.Hour), SHA256Hex(v1)))

	archives, err := s.ListArchives("react")
	require.NoError(t, err)
	assert.Len(t, archives, 1)
}

func TestListSourcesMatchingFiltersByGlob(t *testing.T) {
	s := newTestStore(t)
	for _, name := range []string{"react-docs", "react-router", "vue-docs"} {
		require.NoError(t, s.Create(name))
		require.NoError(t, s.WriteSource(name, []byte("x"), &types.ParsedDocument{Source: name}, &types.SourceMetadata{}))
	}

	matches, err := s.ListSourcesMatching("react-*")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"react-docs", "react-router"}, matches)
}

func TestValidateNameRejectsTraversal(t *testing.T) {
	assert.Error(t, ValidateName("../etc", false))
	assert.Error(t, ValidateName("", false))
	assert.Error(t, ValidateName("con", false))
	assert.NoError(t, ValidateName("react-router", false))
	assert.NoError(t, ValidateName("@scope/pkg", true))
	assert.Error(t, ValidateName("@scope/pkg", false))
}
