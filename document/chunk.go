package document

import "strings"

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// Chunk splits text into overlapping windows of at most size characters.
// When a window ends strictly inside the text it is shortened to the last
// sentence terminator found in its second half, so chunks avoid breaking
// mid-sentence. Consecutive windows overlap by overlap characters. Chunks
// that are empty after trimming are dropped.
func Chunk(text string, size int, overlap int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}

	if overlap < 0 {
		overlap = 0
	}

	if overlap >= size {
		overlap = size / 2
	}

	var chunks []string

	start := 0
	for start < len(text) {
		end := start + size
		if end > len(text) {
			end = len(text)
		}

		window := text[start:end]

		if end < len(text) {
			// Only cut at a terminator past the window midpoint; an earlier
			// one would produce degenerate, heavily overlapping chunks.
			if pos := strings.LastIndex(window, "."); pos > size/2 {
				end = start + pos + 1
				window = text[start:end]
			}
		}

		if trimmed := strings.TrimSpace(window); trimmed != "" {
			chunks = append(chunks, trimmed)
		}

		if end >= len(text) {
			break
		}

		next := end - overlap
		if next <= start {
			// A sentence cut can pull end back inside the overlap region;
			// the window must still move forward.
			next = end
		}

		start = next
	}

	return chunks
}
