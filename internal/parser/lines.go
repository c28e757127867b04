package parser

import "bytes"

// lineScanner provides single-pass, low-allocation line iteration over
// byte content, tracking byte offsets as it goes. Adapted from the
// teacher's zero-allocation line scanner (internal/core/line_scanner.go):
// same scan-forward/no-strings.Split shape, but this variant also
// records each line's start byte offset so callers get a line index
// for free instead of recomputing it in a second pass.
type lineScanner struct {
	data    []byte
	pos     int
	lineNum int
	start   int
	end     int // exclusive, before the \n (content keeps a trailing \r, if any)
	done    bool
}

func newLineScanner(data []byte) *lineScanner {
	return &lineScanner{data: data}
}

// scan advances to the next line, returning false once exhausted.
func (s *lineScanner) scan() bool {
	if s.done {
		return false
	}
	if s.pos >= len(s.data) {
		s.done = true
		return false
	}
	s.start = s.pos
	s.lineNum++

	idx := bytes.IndexByte(s.data[s.pos:], '\n')
	if idx < 0 {
		s.end = len(s.data)
		s.pos = len(s.data)
	} else {
		s.end = s.pos + idx
		s.pos = s.pos + idx + 1
	}
	return true
}

func (s *lineScanner) lineNumber() int { return s.lineNum }

// bytesNoEOL returns the line content with the trailing \n stripped.
// A CRLF-encoded line keeps its \r byte: only the \n is a separator,
// per spec's "CRLF is normalized only in the line-index byte offsets;
// content preserves the original bytes."
func (s *lineScanner) bytesNoEOL() []byte { return s.data[s.start:s.end] }

// startOffset is the byte offset of the first byte of the current line.
func (s *lineScanner) startOffset() int { return s.start }

// splitLines splits data into lines (trailing \n stripped, \r kept)
// and the byte offset of the start of each line, in one pass. This is
// the line index described in spec §3: rebuilt on every load, never
// persisted.
func splitLines(data []byte) (lines [][]byte, offsets []int) {
	count := bytes.Count(data, []byte{'\n'}) + 1
	lines = make([][]byte, 0, count)
	offsets = make([]int, 0, count)

	s := newLineScanner(data)
	for s.scan() {
		lines = append(lines, s.bytesNoEOL())
		offsets = append(offsets, s.startOffset())
	}
	// A trailing newline produces no further content-bearing line in
	// bytes.Count's arithmetic but does advance pos to len(data); if
	// data is empty entirely, return no lines.
	if len(data) == 0 {
		return nil, nil
	}
	return lines, offsets
}

// LineIndex converts between 1-based inclusive line ranges and byte
// slices of the original document in O(1), per spec §3 "Line index".
type LineIndex struct {
	data    []byte
	offsets []int // offsets[i] = byte offset of line i+1 (1-based line i+1)
	lines   [][]byte
}

// NewLineIndex rebuilds a LineIndex from raw document bytes.
func NewLineIndex(data []byte) *LineIndex {
	lines, offsets := splitLines(data)
	return &LineIndex{data: data, offsets: offsets, lines: lines}
}

// LineCount returns the number of lines in the document.
func (li *LineIndex) LineCount() int { return len(li.lines) }

// Line returns the content of the given 1-based line, with the
// trailing \n stripped (a CRLF line keeps its \r).
func (li *LineIndex) Line(n int) (string, bool) {
	if n < 1 || n > len(li.lines) {
		return "", false
	}
	return string(li.lines[n-1]), true
}

// Slice returns the byte range [start,end] (1-based, inclusive)
// joined by "\n", matching spec §3 I2: "the block text is exactly the
// slice lines[start_line-1 ..= end_line-1]".
func (li *LineIndex) Slice(start, end int) (string, bool) {
	if start < 1 || end > len(li.lines) || start > end {
		return "", false
	}
	out := make([]byte, 0, end-start+1)
	for i := start; i <= end; i++ {
		if i > start {
			out = append(out, '\n')
		}
		out = append(out, li.lines[i-1]...)
	}
	return string(out), true
}

// ByteOffset returns the byte offset of the first byte of line n.
func (li *LineIndex) ByteOffset(n int) (int, bool) {
	if n < 1 || n > len(li.offsets) {
		return 0, false
	}
	return li.offsets[n-1], true
}
