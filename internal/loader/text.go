// Package loader extracts page text from raw document streams.
package loader

import (
	"context"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/cloo-solutions/veritexai/internal/domain"
)

// TextLoader reads markdown and plain text. Form feeds split pages;
// contiguous runs of pipe-prefixed lines are marked as table spans so
// chunking keeps them whole.
type TextLoader struct{}

func NewTextLoader() *TextLoader {
	return &TextLoader{}
}

func (l *TextLoader) Load(_ context.Context, name string, r io.Reader) ([]domain.PageContent, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	if !utf8.Valid(raw) {
		return nil, domain.NewDomainError(domain.ErrCodeMalformedDocument, "document is not valid utf-8")
	}
	text := string(raw)
	if strings.TrimSpace(text) == "" {
		return nil, domain.NewDomainError(domain.ErrCodeMalformedDocument, "document produced no usable text")
	}

	pageTexts := strings.Split(text, "\f")
	pages := make([]domain.PageContent, 0, len(pageTexts))
	for i, pageText := range pageTexts {
		pages = append(pages, domain.PageContent{
			PageNumber: i + 1,
			Text:       pageText,
			TableSpans: tableSpans(pageText),
		})
	}
	return pages, nil
}

// tableSpans finds markdown tables: runs of two or more consecutive
// lines whose first non-blank character is a pipe. A lone pipe line is
// not a table. Offsets are rune positions into the page text.
func tableSpans(text string) []domain.Span {
	runes := []rune(text)

	var spans []domain.Span
	lineStart := 0
	runStart := -1
	runLines := 0
	runEnd := 0

	flush := func() {
		if runLines >= 2 {
			spans = append(spans, domain.Span{Start: runStart, End: runEnd})
		}
		runStart = -1
		runLines = 0
	}

	for i := 0; i <= len(runes); i++ {
		if i < len(runes) && runes[i] != '\n' {
			continue
		}
		if isTableLine(runes[lineStart:i]) {
			if runStart < 0 {
				runStart = lineStart
			}
			runLines++
			runEnd = i
		} else {
			flush()
		}
		lineStart = i + 1
	}
	flush()
	return spans
}

func isTableLine(line []rune) bool {
	for _, r := range line {
		if r == ' ' || r == '\t' {
			continue
		}
		return r == '|'
	}
	return false
}
