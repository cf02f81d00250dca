package report

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
)

// Heading is a section title with its generated anchor.
type Heading struct {
	Level int
	Text  string
	ID    string
}

// Headings parses src and returns its headings in document order.
func Headings(src []byte) ([]Heading, error) {
	md := goldmark.New(goldmark.WithParserOptions(parser.WithAutoHeadingID()))
	doc := md.Parser().Parse(text.NewReader(src))
	var out []Heading
	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		h, ok := n.(*ast.Heading)
		if !ok {
			return ast.WalkContinue, nil
		}
		hd := Heading{Level: h.Level, Text: inlineText(h, src)}
		if v, ok := h.AttributeString("id"); ok {
			if id, ok := v.([]byte); ok {
				hd.ID = string(id)
			}
		}
		out = append(out, hd)
		return ast.WalkSkipChildren, nil
	})
	return out, err
}

func inlineText(n ast.Node, src []byte) string {
	var b strings.Builder
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch t := c.(type) {
		case *ast.Text:
			b.Write(t.Segment.Value(src))
			if t.SoftLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(t.Value)
		default:
			b.WriteString(inlineText(c, src))
		}
	}
	return b.String()
}

// TOC lists the level 2 and 3 headings of md as a nested Markdown list.
func TOC(md string) (string, error) {
	hs, err := Headings([]byte(md))
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, h := range hs {
		if h.Level < 2 || h.Level > 3 {
			continue
		}
		indent := strings.Repeat("  ", h.Level-2)
		fmt.Fprintf(&b, "%s- [%s](#%s)\n", indent, h.Text, h.ID)
	}
	return b.String(), nil
}

// Render formats md for a terminal of the given width.
func Render(md string, width int) (string, error) {
	if width <= 0 {
		width = 100
	}
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(width))
	if err != nil {
		return "", fmt.Errorf("terminal renderer: %w", err)
	}
	out, err := r.Render(md)
	if err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return out, nil
}
