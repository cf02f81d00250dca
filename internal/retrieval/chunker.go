// Package retrieval splits text into passages and ranks stored vectors
// against a query vector.
package retrieval

import (
	"strings"

	"github.com/KaramelBytes/csvagent/internal/utils"
)

// DefaultChunkTokens bounds a passage when no limit is given.
const DefaultChunkTokens = 400

// ChunkByTokens groups the paragraphs of text into passages of at most
// maxTokens, repeating up to overlap tokens of trailing paragraphs at the
// start of the next passage. Paragraphs larger than maxTokens are split on
// line and then word boundaries.
func ChunkByTokens(text string, maxTokens, overlap int) []string {
	if maxTokens <= 0 {
		maxTokens = DefaultChunkTokens
	}
	if overlap < 0 || overlap >= maxTokens {
		overlap = 0
	}
	var units []string
	for _, p := range paragraphs(text) {
		units = append(units, splitOversized(p, maxTokens)...)
	}

	var chunks, window []string
	size := 0
	for _, u := range units {
		n := utils.CountTokens(u)
		if size+n > maxTokens && len(window) > 0 {
			chunks = append(chunks, strings.Join(window, "\n\n"))
			window, size = tail(window, overlap)
		}
		window = append(window, u)
		size += n
	}
	if len(window) > 0 {
		chunks = append(chunks, strings.Join(window, "\n\n"))
	}
	return chunks
}

func paragraphs(s string) []string {
	var out []string
	for _, p := range strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func splitOversized(p string, maxTokens int) []string {
	if utils.CountTokens(p) <= maxTokens {
		return []string{p}
	}
	sep := "\n"
	parts := strings.Split(p, sep)
	if len(parts) == 1 {
		sep = " "
		parts = strings.Fields(p)
	}
	var out []string
	var cur strings.Builder
	for _, part := range parts {
		if cur.Len() > 0 && utils.CountTokens(cur.String()+sep+part) > maxTokens {
			out = append(out, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteString(sep)
		}
		cur.WriteString(part)
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}

// tail keeps the trailing units whose tokens fit in overlap.
func tail(units []string, overlap int) ([]string, int) {
	if overlap == 0 {
		return nil, 0
	}
	var out []string
	size := 0
	for i := len(units) - 1; i >= 0; i-- {
		n := utils.CountTokens(units[i])
		if size+n > overlap {
			break
		}
		out = append([]string{units[i]}, out...)
		size += n
	}
	return out, size
}
