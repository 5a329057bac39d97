package chunker

import (
	"strings"
	"unicode/utf8"
)

// boundaryTokens are preferred cut points, searched backward from a window's
// end so chunks end on sentence or paragraph boundaries instead of
// mid-sentence.
var boundaryTokens = []string{". ", "? ", "! ", "\n\n"}

// Chunk splits text into overlapping pieces of at most size runes. Within
// each window it cuts at the boundary token nearest the window end, falling
// back to the raw size cut when no boundary exists. The next window starts
// overlap runes before the cut so consecutive chunks share context.
//
// The output is fully deterministic for a given input and parameters; the
// deterministic vector-id scheme depends on that.
func Chunk(text string, size, overlap int) []string {
	if size <= 0 {
		size = 1000
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 2
	}

	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	var chunks []string
	start := 0
	for {
		remaining := len(runes) - start
		if remaining <= size {
			chunks = append(chunks, string(runes[start:]))
			break
		}

		end := start + size
		cut := end
		window := string(runes[start:end])
		if b := lastBoundary(window); b > 0 {
			cut = start + b
		}
		chunks = append(chunks, string(runes[start:cut]))

		next := cut - overlap
		if next <= start {
			// Overlap would stall the scan; advance past the cut instead.
			next = cut
		}
		start = next
	}
	return chunks
}

// lastBoundary returns the rune offset just past the boundary token nearest
// the end of window, or -1 when no token occurs.
func lastBoundary(window string) int {
	best := -1
	for _, tok := range boundaryTokens {
		if i := strings.LastIndex(window, tok); i >= 0 {
			if end := i + len(tok); end > best {
				best = end
			}
		}
	}
	if best < 0 {
		return -1
	}
	// strings.LastIndex works in bytes; convert to a rune offset.
	return utf8.RuneCountInString(window[:best])
}
