package types

import (
	"strings"
	"unicode"

	"github.com/bmatcuk/doublestar/v4"
)

// reservedNames blocks OS-reserved device names on Windows, which the
// storage layer must refuse even on Unix hosts so a data directory
// stays portable across platforms.
var reservedNames = map[string]bool{
	"con": true, "prn": true, "aux": true, "nul": true,
	"com1": true, "com2": true, "com3": true, "com4": true, "com5": true,
	"com6": true, "com7": true, "com8": true, "com9": true,
	"lpt1": true, "lpt2": true, "lpt3": true, "lpt4": true, "lpt5": true,
	"lpt6": true, "lpt7": true, "lpt8": true, "lpt9": true,
}

// reservedPatterns blocks identifiers that would collide with
// storage-internal files/directories (spec §4.2 "reserved names"),
// matched with the same glob engine used for list filters
// (storage.ListSourcesMatching) so the two stay consistent.
var reservedPatterns = []string{
	".*", "archives", "metadata.json", "llms.json", "llms.txt",
}

func matchesReservedPattern(s string) bool {
	lower := strings.ToLower(s)
	for _, pattern := range reservedPatterns {
		if ok, _ := doublestar.Match(pattern, lower); ok {
			return true
		}
	}
	return false
}

// ValidateIdentifier checks a canonical source identifier: ASCII
// letters of either case, digits, '-', '_' and '.', no "..", no path separators, no reserved names, length <= 255, and no
// "@"/"/" (those are only permitted in aliases, for scoped package
// names like "@scope/pkg").
func ValidateIdentifier(s string) bool {
	return validateName(s, false)
}

// ValidateAlias checks an alias, which additionally permits "@" and
// "/" so package-manager-style names resolve (e.g. "@scope/pkg").
func ValidateAlias(s string) bool {
	return validateName(s, true)
}

func validateName(s string, allowScoped bool) bool {
	if s == "" || len(s) > MaxSourceIdentifierLen {
		return false
	}
	if strings.Contains(s, "..") {
		return false
	}
	if reservedNames[strings.ToLower(s)] {
		return false
	}
	if matchesReservedPattern(s) {
		return false
	}
	for _, r := range s {
		if isAllowedNameRune(r, allowScoped) {
			continue
		}
		return false
	}
	return true
}

func isAllowedNameRune(r rune, allowScoped bool) bool {
	switch {
	case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		return true
	case r == '.' || r == '_' || r == '-':
		return true
	case allowScoped && (r == '@' || r == '/'):
		return true
	default:
		return false
	}
}

// NormalizeAlias lowercases an alias for case-insensitive resolution.
// Alias resolution is purely name rewriting: it never changes which
// source a name ultimately belongs to.
func NormalizeAlias(s string) string {
	return strings.ToLower(s)
}

// Slugify derives an anchor-safe slug from free text: lowercase,
// punctuation stripped, spaces collapsed to single hyphens.
func Slugify(s string) string {
	var b strings.Builder
	lastHyphen := true // treat start as "already hyphenated" to avoid leading '-'
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(unicode.ToLower(r))
			lastHyphen = false
		case unicode.IsSpace(r) || r == '-' || r == '_' || r == '>' || r == '/':
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		default:
			// punctuation: drop silently
		}
	}
	out := strings.Trim(b.String(), "-")
	if out == "" {
		return "section"
	}
	return out
}

// AnchorFromPath derives a block anchor from its heading path, the
// way the parser does for every block before disambiguation (see
// internal/parser.disambiguateAnchors).
func AnchorFromPath(path []string) string {
	return Slugify(joinPath(path))
}
