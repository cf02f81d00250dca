// Package notes reads data dictionaries and other free-form documents that
// describe a dataset, so the agent can use them as context.
package notes

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/KaramelBytes/csvagent/internal/apperr"
	"github.com/KaramelBytes/csvagent/internal/utils"
)

// DefaultMaxTokens bounds the notes added to a prompt.
const DefaultMaxTokens = 1500

// Reader extracts text from one document format.
type Reader interface {
	CanRead(filename string) bool
	Read(content []byte) (string, error)
}

var registry []Reader

// Register adds a reader. Readers registered first win.
func Register(r Reader) {
	registry = append(registry, r)
}

// Load reads path with the first matching reader and truncates the text to
// maxTokens (DefaultMaxTokens when <= 0). Unknown extensions are read as
// plain text when they are valid UTF-8.
func Load(path string, maxTokens int) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%s: %w", path, apperr.ErrFileNotFound)
		}
		return "", fmt.Errorf("read notes: %w", err)
	}
	text, err := Parse(filepath.Base(path), data)
	if err != nil {
		return "", err
	}
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return utils.TruncateToTokenLimit(text, maxTokens), nil
}

// Parse extracts the text of content, choosing the reader by filename.
func Parse(filename string, content []byte) (string, error) {
	for _, r := range registry {
		if r.CanRead(filename) {
			text, err := r.Read(content)
			if err != nil {
				return "", err
			}
			return strings.TrimSpace(text), nil
		}
	}
	if !utf8.Valid(content) {
		return "", fmt.Errorf("%s is not a text document: %w", filename, apperr.ErrUnsupportedFormat)
	}
	return strings.TrimSpace(normalizeNewlines(string(content))), nil
}

func normalizeNewlines(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	// Collapse >2 consecutive newlines to exactly two
	for strings.Contains(text, "\n\n\n") {
		text = strings.ReplaceAll(text, "\n\n\n", "\n\n")
	}
	return text
}

func init() {
	Register(textReader{})
	Register(markdownReader{})
	Register(docxReader{})
}
