package notes

import (
	"strings"
)

type textReader struct{}

func (textReader) CanRead(filename string) bool {
	return strings.HasSuffix(strings.ToLower(filename), ".txt")
}

func (textReader) Read(content []byte) (string, error) {
	return normalizeNewlines(string(content)), nil
}

type markdownReader struct{}

func (markdownReader) CanRead(filename string) bool {
	name := strings.ToLower(filename)
	return strings.HasSuffix(name, ".md") || strings.HasSuffix(name, ".markdown")
}

// Read drops a leading YAML front matter block.
func (markdownReader) Read(content []byte) (string, error) {
	text := normalizeNewlines(string(content))
	if strings.HasPrefix(text, "---\n") {
		if end := strings.Index(text[4:], "\n---"); end >= 0 {
			text = text[4+end+4:]
		}
	}
	return text, nil
}
