package rag

import (
	"strings"

	"github.com/fyrsmithlabs/raglab/internal/vectorstore"
)

const promptTemplate = `You are a helpful assistant. Use the CONTEXT to answer concisely and cite sources by filename.

QUESTION: {question}
CONTEXT:
{context}`

// BuildPrompt renders the grounded prompt. Chunk texts are joined in rank
// order with a blank line between them; an empty chunk list yields an empty
// context.
func BuildPrompt(question string, chunks []string) string {
	return strings.NewReplacer(
		"{question}", question,
		"{context}", strings.Join(chunks, "\n\n"),
	).Replace(promptTemplate)
}

// CollectSources returns the distinct non-empty source filenames of matches
// in first-seen order.
func CollectSources(matches []vectorstore.Match) []string {
	sources := make([]string, 0, len(matches))
	seen := make(map[string]struct{}, len(matches))
	for _, m := range matches {
		src := m.Source()
		if src == "" {
			continue
		}
		if _, dup := seen[src]; dup {
			continue
		}
		seen[src] = struct{}{}
		sources = append(sources, src)
	}
	return sources
}

func chunkTexts(matches []vectorstore.Match) []string {
	texts := make([]string, len(matches))
	for i, m := range matches {
		texts[i] = m.Text
	}
	return texts
}
