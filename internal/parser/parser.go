// Package parser turns an llms.txt / llms-full.txt document into an
// ordered sequence of heading-anchored blocks plus a table-of-contents
// tree, as specified in spec §4.1. It never parses arbitrary Markdown
// — only ATX headings, fenced code blocks, and prose.
package parser

import (
	"strings"
	"unicode/utf8"

	"github.com/outfitter-dev/blz/internal/blzerrors"
	"github.com/outfitter-dev/blz/internal/types"
)

// Parse converts raw document bytes into blocks and a TOC. Invalid
// UTF-8 is replaced with U+FFFD, never fatal. Parse never panics.
// It fails only with a blzerrors.ParseError{Reason: ErrEmptyReason}
// when the input is empty after trimming.
func Parse(source string, raw []byte) (*types.ParsedDocument, error) {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return nil, blzerrors.NewParseError(source, blzerrors.ErrEmptyReason)
	}
	if !utf8.Valid(raw) {
		raw = []byte(strings.ToValidUTF8(string(raw), "�"))
	}

	li := NewLineIndex(raw)
	blocks := scanBlocks(li)
	for i := range blocks {
		blocks[i].Path = append([]string(nil), blocks[i].Path...)
	}
	disambiguateAnchors(blocks)
	toc := buildTOC(blocks)

	return &types.ParsedDocument{Source: source, Blocks: blocks, TOC: toc}, nil
}

type headingStackEntry struct {
	depth int
	title string
}

// scanBlocks is the single left-to-right pass described in spec
// §4.1 steps 2-6.
func scanBlocks(li *LineIndex) []types.Block {
	var blocks []types.Block
	var stack []headingStackEntry // current heading titles by depth
	inFence := false
	var fenceMarker byte // '`' or '~', once opened

	blockStart := 1
	currentPath := func() []string {
		out := make([]string, len(stack))
		for i, e := range stack {
			out[i] = e.title
		}
		return out
	}

	closeBlock := func(endLine int, path []string) {
		if endLine < blockStart {
			return // nothing but blank lines (or nothing) before the first heading
		}
		content, ok := li.Slice(blockStart, endLine)
		if !ok {
			return
		}
		blocks = append(blocks, types.Block{
			Path:      path,
			StartLine: blockStart,
			EndLine:   endLine,
			Content:   content,
		})
	}

	lastNonBlank := 0
	n := li.LineCount()
	for lineNum := 1; lineNum <= n; lineNum++ {
		line, _ := li.Line(lineNum)

		if !inFence {
			if depth, title, ok := headingMatch(line); ok {
				// Close the block that was open up to the previous
				// non-blank line (spec §4.1 step 4).
				closeBlock(maxInt(lastNonBlank, blockStart-1), currentPath())

				// Pop stack to depth-1, then push the new title.
				for len(stack) > 0 && stack[len(stack)-1].depth >= depth {
					stack = stack[:len(stack)-1]
				}
				stack = append(stack, headingStackEntry{depth: depth, title: title})

				blockStart = lineNum
				lastNonBlank = lineNum
				continue
			}
		}

		if marker, opens := fenceToggle(line, inFence, fenceMarker); opens != fenceState(inFence) {
			inFence = !inFence
			if inFence {
				fenceMarker = marker
			}
		}

		if strings.TrimSpace(line) != "" {
			lastNonBlank = lineNum
		}
	}

	// EOF: close the final block (spec §4.1 step 6). Trailing blank
	// lines belong to the last block, so close through n, not
	// lastNonBlank, when there is any content at all.
	if n >= blockStart {
		closeBlock(n, currentPath())
	}

	return blocks
}

type fenceState bool

// fenceToggle reports the fence marker involved and whether the fence
// should be considered "open" after this line. A line opens/closes a
// fence when it starts with ``` or ~~~ after at most 3 leading spaces
// (spec §4.1 step 5); 4+ leading spaces makes it an indented code
// block line, which this parser otherwise ignores (headings are
// still suppressed by indentation via headingMatch, not by fence
// state, since indented code blocks don't nest/toggle).
func fenceToggle(line string, currentlyOpen bool, openMarker byte) (marker byte, open fenceState) {
	trimmed := stripLeadingSpaces(line, 3)
	if trimmed == line && len(line)-len(strings.TrimLeft(line, " ")) >= 4 {
		return 0, fenceState(currentlyOpen) // indented code, not a fence delimiter
	}
	switch {
	case strings.HasPrefix(trimmed, "```"):
		marker = '`'
	case strings.HasPrefix(trimmed, "~~~"):
		marker = '~'
	default:
		return 0, fenceState(currentlyOpen)
	}
	if currentlyOpen {
		if marker != openMarker {
			return openMarker, fenceState(true) // different fence char inside a fence: no-op
		}
		return marker, fenceState(false)
	}
	return marker, fenceState(true)
}

// stripLeadingSpaces removes up to max leading spaces (not tabs) and
// returns the line unchanged if it had a tab or more than max spaces
// of indentation.
func stripLeadingSpaces(line string, max int) string {
	i := 0
	for i < len(line) && i < max && line[i] == ' ' {
		i++
	}
	if i < len(line) && (line[i] == ' ' || line[i] == '\t') {
		return line // more indentation than allowed
	}
	return line[i:]
}

// headingMatch reports whether line is an ATX heading: 1-6 '#'
// followed by at least one space, not preceded by >=4 spaces or a tab
// (spec §4.1 step 3). Trailing closing '#'s (ATX-closed form) and
// surrounding space are stripped from the title.
func headingMatch(line string) (depth int, title string, ok bool) {
	leading := len(line) - len(strings.TrimLeft(line, " "))
	if leading >= 4 || strings.HasPrefix(line, "\t") {
		return 0, "", false
	}
	trimmed := line[leading:]

	depth = 0
	for depth < len(trimmed) && trimmed[depth] == '#' {
		depth++
	}
	if depth == 0 || depth > 6 {
		return 0, "", false
	}
	if depth >= len(trimmed) || (trimmed[depth] != ' ' && trimmed[depth] != '\t') {
		return 0, "", false
	}

	title = strings.TrimSpace(trimmed[depth:])
	title = strings.TrimRight(title, "#")
	title = strings.TrimSpace(title)
	return depth, title, true
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// disambiguateAnchors derives each block's anchor from its path, then
// appends "-2", "-3", ... to document-order collisions (spec §4.1
// step 8).
func disambiguateAnchors(blocks []types.Block) {
	seen := make(map[string]int)
	for i := range blocks {
		base := types.AnchorFromPath(blocks[i].Path)
		seen[base]++
		if n := seen[base]; n == 1 {
			blocks[i].Anchor = base
		} else {
			blocks[i].Anchor = base + "-" + itoa(n)
		}
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := [20]byte{}
	i := len(digits)
	for n > 0 {
		i--
		digits[i] = byte('0' + n%10)
		n /= 10
	}
	return string(digits[i:])
}

// buildTOC walks blocks in order, attaching each to its heading-stack
// parent by Path prefix (spec §4.1 step 7).
func buildTOC(blocks []types.Block) []*types.TOCNode {
	var roots []*types.TOCNode
	// stack[i] is the node most recently pushed at depth i+1.
	var stack []*types.TOCNode

	for _, b := range blocks {
		if len(b.Path) == 0 {
			continue // synthetic root block carries no TOC node
		}
		node := &types.TOCNode{
			Title:  b.Path[len(b.Path)-1],
			Anchor: b.Anchor,
			Range:  types.LineRange{Start: b.StartLine, End: b.EndLine},
		}
		depth := len(b.Path)
		if depth > len(stack) {
			stack = append(stack, make([]*types.TOCNode, depth-len(stack))...)
		}
		stack = stack[:depth]
		stack[depth-1] = node

		if depth == 1 {
			roots = append(roots, node)
		} else if parent := stack[depth-2]; parent != nil {
			parent.Children = append(parent.Children, node)
		} else {
			roots = append(roots, node)
		}
	}
	return roots
}

// Render joins the parsed blocks' Content with single "\n" separators.
// Blank lines inside a block are kept, but blank lines directly before
// a heading (or before the first heading) belong to no block and are
// not emitted, so the result equals the source only when it has no
// such lines (modulo a single optional trailing newline).
func Render(doc *types.ParsedDocument) string {
	var b strings.Builder
	for i, blk := range doc.Blocks {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(blk.Content)
	}
	return b.String()
}
