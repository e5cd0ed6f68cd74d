package document

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChunkEmptyText(t *testing.T) {
	assert.Empty(t, Chunk("", 1000, 200))
	assert.Empty(t, Chunk("   \n\t  ", 1000, 200))
}

func TestChunkShortText(t *testing.T) {
	assert := assert.New(t)

	chunks := Chunk("Sofrecom support hours are 9am-6pm.", 1000, 200)

	assert.Len(chunks, 1)
	assert.Equal("Sofrecom support hours are 9am-6pm.", chunks[0])
}

func TestChunkLongText(t *testing.T) {
	assert := assert.New(t)

	sentence := "Le support Sofrecom est ouvert de neuf heures a dix-huit heures. "
	text := strings.Repeat(sentence, 39)
	assert.GreaterOrEqual(len(text), 2500)

	chunks := Chunk(text, 1000, 200)

	assert.GreaterOrEqual(len(chunks), 2)
	for _, chunk := range chunks {
		assert.NotEmpty(chunk)
		assert.LessOrEqual(len(chunk), 1000)
	}
}

func TestChunkIdempotent(t *testing.T) {
	assert := assert.New(t)

	text := strings.Repeat("Une phrase complete qui se termine proprement. ", 60)

	first := Chunk(text, 1000, 200)
	second := Chunk(text, 1000, 200)

	assert.Equal(first, second)
}

func TestChunkCutsAtSentenceTerminator(t *testing.T) {
	assert := assert.New(t)

	text := "aaaaaaaaaaaaaaa. bbbbbbbbbbbbcc"

	chunks := Chunk(text, 20, 5)

	assert.Len(chunks, 2)
	assert.Equal("aaaaaaaaaaaaaaa.", chunks[0])
	assert.Equal("aaaa. bbbbbbbbbbbbcc", chunks[1])
}

func TestChunkIgnoresEarlyTerminator(t *testing.T) {
	assert := assert.New(t)

	// The only terminator sits in the first half of the window, so the
	// window keeps its full size.
	text := "ab. " + strings.Repeat("c", 30)

	chunks := Chunk(text, 20, 0)

	assert.Equal("ab. "+strings.Repeat("c", 16), chunks[0])
}

func TestChunkLargeOverlapProgresses(t *testing.T) {
	assert := assert.New(t)

	// A sentence cut just past the window midpoint pulls the window end back
	// inside the overlap region; the next window must still start forward.
	text := strings.Repeat("x", 600) + "." + strings.Repeat("x", 1400)

	chunks := Chunk(text, 1000, 800)

	assert.NotEmpty(chunks)
	assert.Equal(strings.Repeat("x", 600)+".", chunks[0])
	for _, chunk := range chunks {
		assert.NotEmpty(chunk)
	}
}

func TestChunkOverlap(t *testing.T) {
	assert := assert.New(t)

	text := strings.Repeat("x", 250)

	chunks := Chunk(text, 100, 20)

	assert.Len(chunks, 3)
	assert.Equal(100, len(chunks[0]))

	// Consecutive windows share overlap characters.
	assert.Equal(chunks[0][80:], chunks[1][:20])
}
