// Package rulebook indexes the membership analysis rulebook for
// semantic retrieval. The rulebook text is chunked on paragraph and
// heading boundaries, embedded, and persisted to a local SQLite index.
package rulebook

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// minChunkRunes filters heading stubs and page furniture out of the
// index.
const minChunkRunes = 50

// sentenceChunkRunes is the packing target when the source has no
// paragraph structure.
const sentenceChunkRunes = 500

var (
	blockStartRE  = regexp.MustCompile(`\n\n|\n#`)
	sentenceEndRE = regexp.MustCompile(`[.!?]\s+`)
)

// Chunk splits rulebook text into retrieval units. Paragraph and
// heading boundaries win; text without any falls back to packing
// sentences into roughly 500-character chunks.
func Chunk(text string) []string {
	var chunks []string
	for _, block := range splitBlocks(text) {
		block = strings.TrimSpace(block)
		if utf8.RuneCountInString(block) > minChunkRunes {
			chunks = append(chunks, block)
		}
	}
	if len(chunks) > 0 {
		return chunks
	}
	return packSentences(splitSentences(text))
}

// splitBlocks cuts the text before every blank line or heading line,
// keeping the delimiter with the block it introduces.
func splitBlocks(text string) []string {
	matches := blockStartRE.FindAllStringIndex(text, -1)
	var blocks []string
	prev := 0
	for _, m := range matches {
		if m[0] > prev {
			blocks = append(blocks, text[prev:m[0]])
		}
		prev = m[0]
	}
	blocks = append(blocks, text[prev:])
	return blocks
}

// splitSentences splits after terminal punctuation followed by
// whitespace, keeping the punctuation with its sentence.
func splitSentences(text string) []string {
	matches := sentenceEndRE.FindAllStringIndex(text, -1)
	var sentences []string
	prev := 0
	for _, m := range matches {
		sentences = append(sentences, text[prev:m[0]+1])
		prev = m[1]
	}
	if prev < len(text) {
		sentences = append(sentences, text[prev:])
	}
	return sentences
}

func packSentences(sentences []string) []string {
	var chunks []string
	var current strings.Builder
	for _, sentence := range sentences {
		current.WriteString(sentence)
		current.WriteString(" ")
		if utf8.RuneCountInString(current.String()) > sentenceChunkRunes {
			chunks = append(chunks, strings.TrimSpace(current.String()))
			current.Reset()
		}
	}
	if trailing := strings.TrimSpace(current.String()); trailing != "" {
		chunks = append(chunks, trailing)
	}
	return chunks
}
