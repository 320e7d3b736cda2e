// Package chunker subdivides parsed text segments into word-bounded chunks
// sized for one inference call. Splitting is pure and deterministic: the same
// segment always yields the same chunk sequence, which keeps retries
// idempotent and tests reproducible.
package chunker

import (
	"iter"
	"strings"

	"github.com/hawkaii/fastspeech/internal/markup"
)

// Chunk is one inference-sized slice of a segment. Concatenating the Words of
// all chunks in (Segment, Index) order reconstructs the segment's
// whitespace-normalized text.
type Chunk struct {
	Words   []string
	Segment int
	Alpha   float64
	Index   int
}

// Text joins the chunk's words with single spaces.
func (c Chunk) Text() string {
	return strings.Join(c.Words, " ")
}

// Split returns the chunk sequence for one segment. The sequence is lazy,
// finite, and restartable: ranging over it twice yields identical chunks.
// Words are never split; maxWords bounds every chunk, with values below one
// treated as one. Whitespace-only segments yield no chunks.
func Split(segment markup.Segment, maxWords int) iter.Seq[Chunk] {
	if maxWords < 1 {
		maxWords = 1
	}

	return func(yield func(Chunk) bool) {
		words := strings.Fields(segment.Text)

		for index := 0; index*maxWords < len(words); index++ {
			start := index * maxWords
			end := min(start+maxWords, len(words))

			chunk := Chunk{
				Words:   words[start:end],
				Segment: segment.Order,
				Alpha:   segment.Alpha,
				Index:   index,
			}

			if !yield(chunk) {
				return
			}
		}
	}
}
