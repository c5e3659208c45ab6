// Package chunker splits page text into bounded, overlapping chunks along
// paragraph and sentence boundaries. It is pure: no I/O, deterministic
// output for a given input.
package chunker

import (
	"regexp"
	"strings"
)

const (
	DefaultMaxChunkSize = 512 // estimated tokens
	DefaultChunkOverlap = 50  // words carried into the next chunk
)

// Chunk is one bounded segment of a page's cleaned text. StartChar/EndChar
// are offsets into the cleaned text, best-effort only: normalization means
// they are not byte-exact against the raw source.
type Chunk struct {
	Text       string `json:"text"`
	PageNumber int    `json:"page_number"`
	ChunkIndex int    `json:"chunk_index"`
	StartChar  int    `json:"start_char"`
	EndChar    int    `json:"end_char"`
	TokenCount int    `json:"token_count"`
}

type Chunker struct {
	maxChunkSize int
	chunkOverlap int
}

var (
	sentencePattern   = regexp.MustCompile(`[.!?]+\s+`)
	paragraphPattern  = regexp.MustCompile(`\n\s*\n`)
	spaceRunPattern   = regexp.MustCompile(`[ \t]+`)
	blankRunPattern   = regexp.MustCompile(`\n{3,}`)
	edgeSpacePattern  = regexp.MustCompile(` ?\n ?`)
	controlPattern    = regexp.MustCompile("[\x00-\x08\x0b\x0c\x0e-\x1f\x7f]")
	doubleQuotePat    = regexp.MustCompile(`[“”„‟]`)
	singleQuotePat    = regexp.MustCompile(`[‘’‚‛]`)
	spaceBeforePunct  = regexp.MustCompile(`[ \t]+([.,:;!?])`)
	// intra-line whitespace only: crossing newlines here would glue
	// paragraphs together before SplitParagraphs sees them
	missingSpaceAfter = regexp.MustCompile(`([.!?])[ \t]*([A-Z])`)
)

func New(maxChunkSize, chunkOverlap int) *Chunker {
	if maxChunkSize <= 0 {
		maxChunkSize = DefaultMaxChunkSize
	}
	if chunkOverlap < 0 {
		chunkOverlap = 0
	}
	return &Chunker{maxChunkSize: maxChunkSize, chunkOverlap: chunkOverlap}
}

// CleanText normalizes whitespace and glyphs while preserving blank-line
// paragraph breaks.
func (c *Chunker) CleanText(text string) string {
	text = strings.ReplaceAll(text, "\f", "\n")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = controlPattern.ReplaceAllString(text, "")

	text = doubleQuotePat.ReplaceAllString(text, `"`)
	text = singleQuotePat.ReplaceAllString(text, "'")

	text = spaceRunPattern.ReplaceAllString(text, " ")
	text = edgeSpacePattern.ReplaceAllString(text, "\n")
	text = blankRunPattern.ReplaceAllString(text, "\n\n")

	text = spaceBeforePunct.ReplaceAllString(text, "$1")
	text = missingSpaceAfter.ReplaceAllString(text, "$1 $2")

	return strings.TrimSpace(text)
}

// EstimateTokens is the len/4 heuristic; no real tokenizer is involved.
func (c *Chunker) EstimateTokens(text string) int {
	return len(text) / 4
}

func (c *Chunker) SplitParagraphs(text string) []string {
	parts := paragraphPattern.Split(text, -1)
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// SplitSentences splits on sentence-ending punctuation followed by
// whitespace, keeping the punctuation with its sentence.
func (c *Chunker) SplitSentences(text string) []string {
	var sentences []string
	prev := 0
	for _, m := range sentencePattern.FindAllStringIndex(text, -1) {
		// keep the punctuation run, drop the trailing whitespace
		end := m[0]
		for end < m[1] && isSentencePunct(text[end]) {
			end++
		}
		if s := strings.TrimSpace(text[prev:end]); s != "" {
			sentences = append(sentences, s)
		}
		prev = m[1]
	}
	if s := strings.TrimSpace(text[prev:]); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

func isSentencePunct(b byte) bool {
	return b == '.' || b == '!' || b == '?'
}

// ChunkText splits the text of one page into chunks of at most maxChunkSize
// estimated tokens, carrying chunkOverlap trailing words of each closed
// chunk into the next. A single sentence larger than the bound is emitted
// oversized rather than broken mid-word.
func (c *Chunker) ChunkText(text string, pageNumber int) []Chunk {
	cleaned := c.CleanText(text)
	if cleaned == "" {
		return nil
	}

	if c.EstimateTokens(cleaned) <= c.maxChunkSize {
		return []Chunk{{
			Text:       cleaned,
			PageNumber: pageNumber,
			ChunkIndex: 0,
			StartChar:  0,
			EndChar:    len(cleaned),
			TokenCount: c.EstimateTokens(cleaned),
		}}
	}

	var chunks []Chunk
	chunkIndex := 0
	current := ""
	currentStart := 0
	cursor := 0

	flush := func() {
		if current == "" {
			return
		}
		current = strings.TrimSpace(current)
		chunks = append(chunks, Chunk{
			Text:       current,
			PageNumber: pageNumber,
			ChunkIndex: chunkIndex,
			StartChar:  currentStart,
			EndChar:    currentStart + len(current),
			TokenCount: c.EstimateTokens(current),
		})
		chunkIndex++
	}

	for _, paragraph := range c.SplitParagraphs(cleaned) {
		paragraphStart := cursor
		if idx := strings.Index(cleaned[cursor:], paragraph); idx >= 0 {
			paragraphStart = cursor + idx
		}
		cursor = paragraphStart + len(paragraph)

		paragraphTokens := c.EstimateTokens(paragraph)
		currentTokens := c.EstimateTokens(current)

		switch {
		// an oversized paragraph goes to the sentence splitter even when
		// text is already accumulated; only a single unsplittable
		// sentence may exceed the bound
		case paragraphTokens > c.maxChunkSize:
			flush()
			sentenceChunks := c.chunkBySentences(paragraph, pageNumber, chunkIndex, paragraphStart)
			chunks = append(chunks, sentenceChunks...)
			chunkIndex += len(sentenceChunks)
			current = ""
			currentStart = cursor

		case currentTokens+paragraphTokens > c.maxChunkSize && current != "":
			flush()
			if overlap := c.overlapText(current); overlap != "" {
				current = overlap + " " + paragraph
				currentStart = paragraphStart - len(overlap) - 1
				if currentStart < 0 {
					currentStart = 0
				}
			} else {
				current = paragraph
				currentStart = paragraphStart
			}

		default:
			if current == "" {
				current = paragraph
				currentStart = paragraphStart
			} else {
				current += "\n\n" + paragraph
			}
		}
	}

	flush()
	return chunks
}

// chunkBySentences handles a paragraph that alone exceeds the size bound,
// continuing the shared chunk index counter.
func (c *Chunker) chunkBySentences(text string, pageNumber, startIndex, baseOffset int) []Chunk {
	var chunks []Chunk
	chunkIndex := startIndex
	current := ""
	currentStart := baseOffset

	flush := func() {
		if current == "" {
			return
		}
		current = strings.TrimSpace(current)
		chunks = append(chunks, Chunk{
			Text:       current,
			PageNumber: pageNumber,
			ChunkIndex: chunkIndex,
			StartChar:  currentStart,
			EndChar:    currentStart + len(current),
			TokenCount: c.EstimateTokens(current),
		})
		chunkIndex++
		currentStart += len(current)
	}

	for _, sentence := range c.SplitSentences(text) {
		sentenceTokens := c.EstimateTokens(sentence)
		currentTokens := c.EstimateTokens(current)

		if currentTokens+sentenceTokens > c.maxChunkSize && current != "" {
			flush()
			if overlap := c.overlapText(chunks[len(chunks)-1].Text); overlap != "" {
				current = overlap + " " + sentence
			} else {
				current = sentence
			}
		} else if current == "" {
			current = sentence
		} else {
			current += " " + sentence
		}
	}

	flush()
	return chunks
}

// overlapText returns the trailing chunkOverlap words of text. When the text
// has fewer words than the overlap, the whole text is reused.
func (c *Chunker) overlapText(text string) string {
	if c.chunkOverlap == 0 {
		return ""
	}
	words := strings.Fields(text)
	if len(words) <= c.chunkOverlap {
		return text
	}
	return strings.Join(words[len(words)-c.chunkOverlap:], " ")
}
