// Package render turns generated lesson Markdown into HTML, separating any
// <think>...</think> reasoning segments a model emitted from the answer.
package render

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

const (
	thinkOpen  = "<think>"
	thinkClose = "</think>"
)

var md = goldmark.New(goldmark.WithExtensions(extension.GFM))

// Document is rendered content.
type Document struct {
	Thinking []string `json:"thinking"`
	HTML     string   `json:"html"`
}

// Split separates reasoning segments from the answer text. An unterminated
// trailing segment, as seen mid-stream, counts as reasoning.
func Split(content string) (thinking []string, answer string) {
	var body strings.Builder
	rest := content
	for {
		start := strings.Index(rest, thinkOpen)
		if start < 0 {
			body.WriteString(rest)
			break
		}
		body.WriteString(rest[:start])
		rest = rest[start+len(thinkOpen):]

		end := strings.Index(rest, thinkClose)
		if end < 0 {
			if t := strings.TrimSpace(rest); t != "" {
				thinking = append(thinking, t)
			}
			break
		}
		if t := strings.TrimSpace(rest[:end]); t != "" {
			thinking = append(thinking, t)
		}
		rest = rest[end+len(thinkClose):]
	}
	return thinking, strings.TrimSpace(body.String())
}

// Render converts content to a Document.
func Render(content string) (Document, error) {
	thinking, answer := Split(content)
	doc := Document{Thinking: make([]string, 0, len(thinking))}
	for _, t := range thinking {
		html, err := toHTML(t)
		if err != nil {
			return Document{}, err
		}
		doc.Thinking = append(doc.Thinking, html)
	}
	html, err := toHTML(answer)
	if err != nil {
		return Document{}, err
	}
	doc.HTML = html
	return doc, nil
}

func toHTML(src string) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(src), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return buf.String(), nil
}
