package index

import (
	"os"
	"path/filepath"

	"github.com/blevesearch/bleve/v2"

	"github.com/outfitter-dev/blz/internal/blzerrors"
	"github.com/outfitter-dev/blz/internal/types"
)

// batchSize bounds how many documents are staged per bleve batch
// commit, keeping memory bounded for the rare very large document.
const batchSize = 500

// Rebuild writes a brand-new index for source into dir from scratch
// (spec §4.4 "Writer lifecycle": no incremental per-block updates).
// dir must not already exist; callers doing a live swap build into a
// fresh sibling directory first (internal/pipeline handles the
// rename dance).
func Rebuild(dir string, source string, blocks []types.Block) error {
	if _, err := os.Stat(dir); err == nil {
		return blzerrors.NewIndexError(source, "rebuild", os.ErrExist)
	}
	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return blzerrors.NewIndexError(source, "rebuild", err)
	}

	idx, err := bleve.New(dir, buildMapping())
	if err != nil {
		return blzerrors.NewIndexError(source, "create", err)
	}
	defer idx.Close()

	batch := idx.NewBatch()
	pending := 0
	for _, b := range blocks {
		doc := blockDoc{
			Source:     source,
			Path:       b.HeadingPath(),
			Headings:   leafHeading(b.Path),
			Content:    b.Content,
			ContentRaw: b.Content,
			StartLine:  b.StartLine,
			EndLine:    b.EndLine,
			Anchor:     b.Anchor,
		}
		if err := batch.Index(docID(source, b.Anchor, b.StartLine), doc); err != nil {
			return blzerrors.NewIndexError(source, "batch_index", err)
		}
		pending++
		if pending >= batchSize {
			if err := idx.Batch(batch); err != nil {
				return blzerrors.NewIndexError(source, "batch_commit", err)
			}
			batch = idx.NewBatch()
			pending = 0
		}
	}
	if pending > 0 {
		if err := idx.Batch(batch); err != nil {
			return blzerrors.NewIndexError(source, "batch_commit", err)
		}
	}

	// Closing the writer handle here (via defer) is the commit's
	// durability boundary; the caller's rename dance is what makes it
	// the *visible* publication point for readers.
	return nil
}

func leafHeading(path []string) string {
	if len(path) == 0 {
		return ""
	}
	return path[len(path)-1]
}
