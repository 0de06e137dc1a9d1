package chunker

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/xxxsen/docfinder/internal/model"
	appErr "github.com/xxxsen/docfinder/internal/pkg/errors"
)

type span struct {
	start int
	end   int
}

// Chunk splits doc into windows of size words that advance by size-overlap words.
// Chunk boundaries only depend on (text, size, overlap).
func Chunk(doc model.Document, size, overlap int) ([]model.Chunk, error) {
	if err := Validate(size, overlap); err != nil {
		return nil, err
	}
	words := wordSpans(doc.Text)
	if len(words) == 0 {
		return nil, nil
	}
	step := size - overlap
	chunks := make([]model.Chunk, 0, (len(words)+step-1)/step)
	for first := 0; ; first += step {
		last := first + size
		if last > len(words) {
			last = len(words)
		}
		start, end := words[first].start, words[last-1].end
		text := doc.Text[start:end]
		chunks = append(chunks, model.Chunk{
			ID:         ChunkID(doc.ID, start),
			DocumentID: doc.ID,
			Source:     doc.Source,
			Text:       text,
			Start:      start,
			End:        end,
			TokenCount: EstimateTokens(text),
		})
		if last == len(words) {
			break
		}
	}
	return chunks, nil
}

func Validate(size, overlap int) error {
	if size <= 0 {
		return appErr.New(appErr.ErrInvalid, "chunk size must be positive")
	}
	if overlap < 0 || overlap >= size {
		return appErr.New(appErr.ErrInvalid, "chunk overlap must be in [0, chunk size)")
	}
	return nil
}

func ChunkID(documentID string, offset int) string {
	return documentID + ":" + strconv.Itoa(offset)
}

func wordSpans(text string) []span {
	var spans []span
	start := -1
	for i, r := range text {
		if unicode.IsSpace(r) {
			if start >= 0 {
				spans = append(spans, span{start: start, end: i})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		spans = append(spans, span{start: start, end: len(text)})
	}
	return spans
}

// EstimateTokens counts words plus one per non-ascii rune, which keeps CJK text from looking tiny.
func EstimateTokens(text string) int {
	count := 0
	for _, r := range text {
		if r >= utf8.RuneSelf {
			count++
		}
	}
	count += len(strings.Fields(text))
	if count == 0 && len(text) > 0 {
		return 1
	}
	return count
}
