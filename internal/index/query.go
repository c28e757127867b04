package index

import (
	"strings"

	bleveQ "github.com/blevesearch/bleve/v2/search/query"

	"github.com/outfitter-dev/blz/internal/blzerrors"
)

var allowedFields = map[string]bool{
	FieldPath:     true,
	FieldHeadings: true,
	FieldAnchor:   true,
}

// token is one lexed piece of a search query (spec §4.4 "Query
// language").
type token struct {
	text     string
	field    string // "" for unscoped tokens
	phrase   bool
	required bool
	excluded bool
}

// ParseQuery lexes and compiles the user-facing query language into a
// bleve boolean query. An empty query (after trimming) returns a nil
// query and no error: callers should treat that as "zero hits, not
// an error" per spec §4.4/§8.
func ParseQuery(raw string) (bleveQ.Query, error) {
	toks, err := lex(raw)
	if err != nil {
		return nil, err
	}
	if len(toks) == 0 {
		return nil, nil
	}

	boolQ := bleveQ.NewBooleanQuery()
	hasClause := false
	for _, t := range toks {
		clauses, err := termQueries(t)
		if err != nil {
			return nil, err
		}
		combined := combineOr(clauses)
		if combined == nil {
			continue
		}
		hasClause = true
		switch {
		case t.excluded:
			boolQ.AddMustNot(combined)
		case t.required || t.field != "":
			boolQ.AddMust(combined)
		default:
			boolQ.AddShould(combined)
		}
	}
	if !hasClause {
		return nil, nil
	}
	return boolQ, nil
}

// lex splits raw into tokens, honoring double-quoted phrases and
// +/-/field: prefixes (spec §4.4).
func lex(raw string) ([]token, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	var toks []token
	i := 0
	for i < len(raw) {
		if raw[i] == ' ' {
			i++
			continue
		}

		required, excluded := false, false
		switch raw[i] {
		case '+':
			required = true
			i++
		case '-':
			excluded = true
			i++
		}

		field := ""
		if j := strings.IndexByte(raw[i:], ':'); j >= 0 && !strings.ContainsAny(raw[i:i+j], " \"") && j > 0 {
			candidate := raw[i : i+j]
			if !allowedFields[candidate] {
				return nil, blzerrors.NewInvalidError("query", raw, "unknown field "+candidate)
			}
			field = candidate
			i += j + 1
		}

		if i < len(raw) && raw[i] == '"' {
			end := strings.IndexByte(raw[i+1:], '"')
			if end < 0 {
				// unterminated quote: treat the remainder as the phrase
				end = len(raw) - i - 1
			}
			text := raw[i+1 : i+1+end]
			toks = append(toks, token{text: text, field: field, phrase: true, required: required, excluded: excluded})
			i = i + 1 + end + 1
			continue
		}

		start := i
		for i < len(raw) && raw[i] != ' ' {
			i++
		}
		text := raw[start:i]
		if text == "" {
			continue
		}
		toks = append(toks, token{text: text, field: field, required: required, excluded: excluded})
	}
	return toks, nil
}

// termQueries builds the field-scoped queries for one token. A bare
// (unscoped) token expands to a disjunction across content, headings
// and path, with headings boosted x3 (spec §4.4); a field-scoped
// token queries that field only, exact-match for "anchor".
func termQueries(t token) ([]bleveQ.Query, error) {
	boost := 1.0
	if t.phrase {
		boost = PhraseBoostMultiplier
	}

	if t.field != "" {
		q := fieldQuery(t.field, t.text, t.phrase)
		q.SetBoost(boost)
		return []bleveQ.Query{q}, nil
	}

	content := fieldQuery(FieldContent, t.text, t.phrase)
	content.SetBoost(boost)

	headings := fieldQuery(FieldHeadings, t.text, t.phrase)
	headings.SetBoost(boost * HeadingsBoost)

	path := fieldQuery(FieldPath, t.text, t.phrase)
	path.SetBoost(boost)

	return []bleveQ.Query{content, headings, path}, nil
}

// boostableQuery is satisfied by every bleve query type this package
// constructs; it lets termQueries set a boost without a type switch.
type boostableQuery interface {
	bleveQ.Query
	SetBoost(b float64)
}

func fieldQuery(field, text string, phrase bool) boostableQuery {
	if field == FieldAnchor {
		q := bleveQ.NewTermQuery(text)
		q.SetField(field)
		return q
	}
	if phrase {
		q := bleveQ.NewMatchPhraseQuery(text)
		q.SetField(field)
		return q
	}
	q := bleveQ.NewMatchQuery(text)
	q.SetField(field)
	return q
}

func combineOr(qs []bleveQ.Query) bleveQ.Query {
	if len(qs) == 0 {
		return nil
	}
	if len(qs) == 1 {
		return qs[0]
	}
	return bleveQ.NewDisjunctionQuery(qs)
}
