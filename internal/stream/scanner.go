// Package stream turns child stdout/stderr byte streams into client frames
// and awaiting-input edges. Stdout is scanned for the prompt sentinel the
// python bootstrap emits before each blocking read; a rolling carry buffer
// resolves sentinels that span chunk boundaries.
package stream

import "strings"

// Sentinel is the reserved stdout marker announcing a blocking read.
const Sentinel = "<<<OC_AWAIT>>>"

// ChunkSize bounds a single read from a child stream.
const ChunkSize = 1024

// Piece is one scanner output: either literal text or a sentinel hit.
type Piece struct {
	Text     string
	Sentinel bool
}

// SentinelScanner splits a byte stream into text pieces and sentinel hits.
// The scanner retains, between Feed calls, the longest suffix of the input
// that is a proper prefix of the sentinel, so a marker split across reads
// is still recognized exactly once.
type SentinelScanner struct {
	carry string
}

// Feed consumes one chunk and returns the pieces it completes.
func (s *SentinelScanner) Feed(chunk []byte) []Piece {
	text := s.carry + string(chunk)
	s.carry = ""

	var pieces []Piece
	i := 0
	for {
		j := strings.Index(text[i:], Sentinel)
		if j < 0 {
			tail := longestSentinelPrefixSuffix(text[i:])
			emit := text[i : len(text)-tail]
			if emit != "" {
				pieces = append(pieces, Piece{Text: emit})
			}
			if tail > 0 {
				s.carry = text[len(text)-tail:]
			}
			return pieces
		}
		j += i
		if j > i {
			pieces = append(pieces, Piece{Text: text[i:j]})
		}
		pieces = append(pieces, Piece{Sentinel: true})
		i = j + len(Sentinel)
	}
}

// Flush returns any residual carry at EOF. A partial sentinel at stream end
// is ordinary output.
func (s *SentinelScanner) Flush() string {
	out := s.carry
	s.carry = ""
	return out
}

// longestSentinelPrefixSuffix returns the length of the longest suffix of
// text that is a proper prefix of the sentinel.
func longestSentinelPrefixSuffix(text string) int {
	max := len(Sentinel) - 1
	if len(text) < max {
		max = len(text)
	}
	for k := max; k > 0; k-- {
		if strings.HasSuffix(text, Sentinel[:k]) {
			return k
		}
	}
	return 0
}
