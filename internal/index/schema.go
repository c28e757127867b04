// Package index builds and queries the per-source full-text search
// index described in spec §4.4, on top of
// github.com/blevesearch/bleve/v2 — the retrieval pack's one
// embeddable full-text search library. Each source gets its own
// bleve index nested under <source>/.index/, matching the ownership
// rule in spec §3: Storage owns the directory, Index owns what's
// inside it.
package index

import (
	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
)

// Field names, matching spec §4.4's schema table exactly.
const (
	FieldSource     = "source"
	FieldPath       = "path"
	FieldHeadings   = "headings"
	FieldContent    = "content"
	FieldContentRaw = "content_raw"
	FieldStartLine  = "start_line"
	FieldEndLine    = "end_line"
	FieldAnchor     = "anchor"
)

// HeadingsBoost is the query-time boost applied to matches in the
// headings field relative to content (spec §4.4: "boosted ... e.g. x3").
const HeadingsBoost = 3.0

// PhraseBoostMultiplier is the additive multiplier applied to phrase
// matches over bare-term matches (spec §4.4 "Scoring").
const PhraseBoostMultiplier = 1.2

// buildMapping constructs the document mapping shared by every
// source's index. The analyzer is the built-in "standard" analyzer:
// lowercasing, unicode segmentation, no stemming — spec §4.4 is
// explicit that documentation terms should not be stemmed.
func buildMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()
	im.DefaultAnalyzer = "standard"

	doc := bleve.NewDocumentMapping()

	keyword := bleve.NewTextFieldMapping()
	keyword.Analyzer = "keyword"
	keyword.Store = true
	keyword.Index = true
	doc.AddFieldMappingsAt(FieldSource, keyword)

	anchorField := bleve.NewTextFieldMapping()
	anchorField.Analyzer = "keyword"
	anchorField.Store = true
	anchorField.Index = true
	doc.AddFieldMappingsAt(FieldAnchor, anchorField)

	pathField := bleve.NewTextFieldMapping()
	pathField.Analyzer = "standard"
	pathField.Store = true
	pathField.Index = true
	doc.AddFieldMappingsAt(FieldPath, pathField)

	headingsField := bleve.NewTextFieldMapping()
	headingsField.Analyzer = "standard"
	headingsField.Store = false
	headingsField.Index = true
	doc.AddFieldMappingsAt(FieldHeadings, headingsField)

	contentField := bleve.NewTextFieldMapping()
	contentField.Analyzer = "standard"
	contentField.Store = false
	contentField.Index = true
	doc.AddFieldMappingsAt(FieldContent, contentField)

	contentRawField := bleve.NewTextFieldMapping()
	contentRawField.Analyzer = "keyword"
	contentRawField.Store = true
	contentRawField.Index = false
	contentRawField.IncludeInAll = false
	doc.AddFieldMappingsAt(FieldContentRaw, contentRawField)

	startLine := bleve.NewNumericFieldMapping()
	startLine.Store = true
	startLine.Index = false
	doc.AddFieldMappingsAt(FieldStartLine, startLine)

	endLine := bleve.NewNumericFieldMapping()
	endLine.Store = true
	endLine.Index = false
	doc.AddFieldMappingsAt(FieldEndLine, endLine)

	im.DefaultMapping = doc
	return im
}

// blockDoc is the document shape indexed for one heading block.
type blockDoc struct {
	Source     string `json:"source"`
	Path       string `json:"path"`
	Headings   string `json:"headings"`
	Content    string `json:"content"`
	ContentRaw string `json:"content_raw"`
	StartLine  int    `json:"start_line"`
	EndLine    int    `json:"end_line"`
	Anchor     string `json:"anchor"`
}

func docID(source, anchor string, startLine int) string {
	// Anchors are unique within a document after disambiguation
	// (spec §4.1 step 8), so anchor alone would do, but the line
	// number is folded in as a defensive tiebreaker against any
	// future relaxation of that guarantee.
	return source + "#" + anchor + "#" + itoa(startLine)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
