package service

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/cloo-solutions/veritexai/internal/domain"
)

// DefaultMaxContextChars bounds the assembled context size.
const DefaultMaxContextChars = 12000

// AssembleConfig tunes context assembly.
type AssembleConfig struct {
	MaxContextChars int
}

// DefaultAssembleConfig provides the standard assembly parameters.
func DefaultAssembleConfig() AssembleConfig {
	return AssembleConfig{MaxContextChars: DefaultMaxContextChars}
}

// ContextAssembler renders reranked chunks into a single context
// string with per-document citation headers, bounded in size.
type ContextAssembler struct {
	cfg AssembleConfig
}

// NewContextAssembler creates an assembler.
func NewContextAssembler(cfg AssembleConfig) *ContextAssembler {
	if cfg.MaxContextChars <= 0 {
		cfg.MaxContextChars = DefaultMaxContextChars
	}
	return &ContextAssembler{cfg: cfg}
}

type docGroup struct {
	chunks []domain.ScoredChunk
	best   float64
}

// Assemble renders the chunks, which arrive in reading order, into
// the final context. When the rendering would exceed maxChars, whole
// document groups are dropped lowest best score first; chunks are
// never cut mid-text. A zero maxChars uses the configured default.
func (a *ContextAssembler) Assemble(chunks []domain.ScoredChunk, maxChars int) domain.ContextResult {
	if maxChars <= 0 {
		maxChars = a.cfg.MaxContextChars
	}
	if len(chunks) == 0 {
		return domain.ContextResult{Citations: []domain.Citation{}, Chunks: []domain.ScoredChunk{}}
	}

	groups := groupByDocument(chunks)

	// Drop whole documents until the rendering fits, keeping at least
	// one group alive.
	text := renderGroups(groups)
	for utf8.RuneCountInString(text) > maxChars && len(groups) > 1 {
		groups = dropLowestGroup(groups)
		text = renderGroups(groups)
	}

	// A single remaining group sheds its weakest chunks instead. The
	// last chunk standing is returned even when oversized, so a
	// non-empty input never assembles to nothing.
	if len(groups) == 1 {
		for utf8.RuneCountInString(text) > maxChars && len(groups[0].chunks) > 1 {
			groups[0] = dropWeakestChunk(groups[0])
			text = renderGroups(groups)
		}
	}

	kept := make([]domain.ScoredChunk, 0, len(chunks))
	citations := make([]domain.Citation, 0, len(chunks))
	for _, g := range groups {
		for _, c := range g.chunks {
			kept = append(kept, c)
			citations = append(citations, domain.Citation{
				Filename:     c.Filename,
				SectionTitle: c.SectionTitle,
				PageNumber:   c.PageNumber,
				ChunkIndex:   c.Index,
				Score:        c.Score,
			})
		}
	}

	return domain.ContextResult{Text: text, Citations: citations, Chunks: kept}
}

// groupByDocument splits the chunks into per-document groups,
// preserving their incoming order.
func groupByDocument(chunks []domain.ScoredChunk) []docGroup {
	index := make(map[string]int)
	groups := make([]docGroup, 0)
	for _, c := range chunks {
		i, ok := index[c.DocumentID]
		if !ok {
			i = len(groups)
			index[c.DocumentID] = i
			groups = append(groups, docGroup{best: c.Score})
		}
		g := groups[i]
		g.chunks = append(g.chunks, c)
		if c.Score > g.best {
			g.best = c.Score
		}
		groups[i] = g
	}
	return groups
}

// dropLowestGroup removes the group with the lowest best score; on a
// tie the later group goes, so earlier reading positions survive.
func dropLowestGroup(groups []docGroup) []docGroup {
	lowest := 0
	for i, g := range groups {
		if g.best <= groups[lowest].best {
			lowest = i
		}
	}
	return append(groups[:lowest], groups[lowest+1:]...)
}

// dropWeakestChunk removes the lowest scoring chunk from the group; on
// a tie the later chunk goes.
func dropWeakestChunk(g docGroup) docGroup {
	weakest := 0
	for i, c := range g.chunks {
		if c.Score <= g.chunks[weakest].Score {
			weakest = i
		}
	}
	g.chunks = append(g.chunks[:weakest], g.chunks[weakest+1:]...)
	return g
}

func renderGroups(groups []docGroup) string {
	parts := make([]string, 0, len(groups))
	for _, g := range groups {
		if len(g.chunks) == 0 {
			continue
		}
		var b strings.Builder
		b.WriteString(citationHeader(g))
		for _, c := range g.chunks {
			b.WriteString("\n\n")
			b.WriteString(c.Content)
		}
		parts = append(parts, b.String())
	}
	return strings.Join(parts, "\n\n")
}

// citationHeader renders the group's source line, e.g.
// [source: guide.md — Getting Started, chunk 2,3, p.4, score 0.91].
func citationHeader(g docGroup) string {
	first := g.chunks[0]
	var b strings.Builder
	b.WriteString("[source: ")
	b.WriteString(first.Filename)
	if first.SectionTitle != "" {
		b.WriteString(" — ")
		b.WriteString(first.SectionTitle)
	}
	indexes := make([]string, len(g.chunks))
	for i, c := range g.chunks {
		indexes[i] = fmt.Sprintf("%d", c.Index)
	}
	fmt.Fprintf(&b, ", chunk %s", strings.Join(indexes, ","))
	if first.PageNumber > 0 {
		fmt.Fprintf(&b, ", p.%d", first.PageNumber)
	}
	fmt.Fprintf(&b, ", score %.2f", g.best)
	b.WriteString("]")
	return b.String()
}
