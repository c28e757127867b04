package index

import (
	"strings"
	"unicode"
)

// ExtractSnippet implements spec §4.4 "Snippet extraction": locate
// the first case-insensitive match of any query term (character
// indices, never byte indices), expand a window derived from
// maxLen, and snap to character boundaries so multi-byte UTF-8 is
// never split (spec §8 boundary behavior).
func ExtractSnippet(content string, terms []string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = 1 // degenerate but never divides by zero downstream
	}
	runes := []rune(content)
	if len(runes) == 0 {
		return ""
	}

	pos := firstMatch(runes, terms)
	if pos < 0 {
		return truncateFront(runes, maxLen)
	}

	before := ceilDiv(maxLen, 2)
	after := maxLen / 2

	start := pos - before
	end := pos + after
	if start < 0 {
		end += -start
		start = 0
	}
	if end > len(runes) {
		start -= end - len(runes)
		end = len(runes)
		if start < 0 {
			start = 0
		}
	}
	if end-start > maxLen {
		end = start + maxLen
	}

	var b strings.Builder
	if start > 0 {
		b.WriteString("…")
	}
	b.WriteString(string(runes[start:end]))
	if end < len(runes) {
		b.WriteString("…")
	}
	return b.String()
}

func truncateFront(runes []rune, maxLen int) string {
	if len(runes) <= maxLen {
		return string(runes)
	}
	return string(runes[:maxLen]) + "…"
}

// firstMatch returns the rune index of the first character of the
// first case-insensitive occurrence of any term, or -1.
func firstMatch(runes []rune, terms []string) int {
	if len(terms) == 0 {
		return -1
	}
	lowerContent := make([]rune, len(runes))
	for i, r := range runes {
		lowerContent[i] = unicode.ToLower(r)
	}

	best := -1
	for _, term := range terms {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		termRunes := []rune(strings.ToLower(term))
		idx := indexRunes(lowerContent, termRunes)
		if idx >= 0 && (best < 0 || idx < best) {
			best = idx
		}
	}
	return best
}

func indexRunes(haystack, needle []rune) int {
	if len(needle) == 0 || len(needle) > len(haystack) {
		return -1
	}
	for i := 0; i+len(needle) <= len(haystack); i++ {
		match := true
		for j := range needle {
			if haystack[i+j] != needle[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
