// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package mapview

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// Popup is shown when a graphic is clicked. Content is HTML.
type Popup struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

var (
	markdownInstance goldmark.Markdown
	markdownOnce     sync.Once
)

func getMarkdown() goldmark.Markdown {
	markdownOnce.Do(func() {
		// Raw HTML in the source is dropped (goldmark's default); popup
		// text often comes from feature attributes.
		markdownInstance = goldmark.New(goldmark.WithExtensions(extension.GFM))
	})
	return markdownInstance
}

// MarkdownPopup renders content as GitHub-flavored Markdown into a
// popup's HTML content.
func MarkdownPopup(title, content string) (Popup, error) {
	var buffer bytes.Buffer
	if err := getMarkdown().Convert([]byte(content), &buffer); err != nil {
		return Popup{}, fmt.Errorf("mapview: rendering popup markdown: %w", err)
	}
	return Popup{Title: title, Content: buffer.String()}, nil
}
