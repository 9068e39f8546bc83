package service

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"github.com/cloo-solutions/veritexai/internal/domain"
)

// ChunkConfig controls how document text is split for embedding.
type ChunkConfig struct {
	// ChunkSize is the target chunk length in runes.
	ChunkSize int
	// Overlap is how many runes consecutive chunks share at the boundary.
	Overlap int
	// TableChunkSize caps standalone table chunks, which are never
	// split mid-row.
	TableChunkSize int
	// MinChunkChars drops fragments shorter than this after trimming.
	// Table chunks are always kept.
	MinChunkChars int
}

// DefaultChunkConfig provides sane defaults for chunking.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		ChunkSize:      1200,
		Overlap:        150,
		TableChunkSize: 2000,
		MinChunkChars:  10,
	}
}

// Validate checks the configuration is internally consistent.
func (c ChunkConfig) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk size must be positive", domain.ErrInvalidChunkConfig)
	}
	if c.Overlap < 0 || c.Overlap >= c.ChunkSize {
		return fmt.Errorf("%w: overlap must be in [0, chunk size)", domain.ErrInvalidChunkConfig)
	}
	if c.TableChunkSize <= 0 {
		return fmt.Errorf("%w: table chunk size must be positive", domain.ErrInvalidChunkConfig)
	}
	if c.MinChunkChars < 0 {
		return fmt.Errorf("%w: min chunk chars must not be negative", domain.ErrInvalidChunkConfig)
	}
	return nil
}

// ChunkDocument splits the pages of one document into ordered chunks.
// Boundaries prefer paragraph breaks, then sentence ends, then word
// breaks; only an unbroken run longer than the chunk size is cut hard.
// Table spans become standalone chunks that never split mid-row.
// Identical input and config always produce identical chunks.
func ChunkDocument(docID string, pages []domain.PageContent, cfg ChunkConfig) ([]domain.Chunk, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	empty := true
	for _, p := range pages {
		if strings.TrimSpace(p.Text) != "" {
			empty = false
			break
		}
	}
	if empty {
		return nil, domain.NewDomainError(domain.ErrCodeMalformedDocument, "document produced no usable text")
	}

	var chunks []domain.Chunk
	section := ""
	for _, page := range pages {
		runes := []rune(page.Text)
		headings := scanHeadings(runes)
		pageSection := section

		for _, seg := range segmentPage(runes, page.TableSpans) {
			var pieces []piece
			if seg.table {
				pieces = splitTable(runes, seg.start, seg.end, cfg.TableChunkSize)
			} else {
				pieces = splitProse(runes, seg.start, seg.end, cfg)
			}

			for _, pc := range pieces {
				content := strings.TrimSpace(string(runes[pc.start:pc.end]))
				if content == "" {
					continue
				}
				if !seg.table && len([]rune(content)) < cfg.MinChunkChars {
					continue
				}

				chunks = append(chunks, domain.Chunk{
					ID:           chunkID(docID, len(chunks)),
					DocumentID:   docID,
					Index:        len(chunks),
					Content:      content,
					SectionTitle: latestHeading(headings, pc.start, pageSection),
					PageNumber:   page.PageNumber,
					IsTable:      seg.table,
					CharStart:    pc.start,
					CharEnd:      pc.end,
				})
			}
		}

		if len(headings) > 0 {
			section = headings[len(headings)-1].title
		}
	}

	if len(chunks) == 0 {
		return nil, domain.NewDomainError(domain.ErrCodeMalformedDocument, "document produced no usable chunks")
	}
	return chunks, nil
}

// chunkID derives a stable chunk identifier from the document and
// position, so re-chunking an unchanged document replaces in place.
func chunkID(docID string, index int) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("%s#%d", docID, index))).String()
}

type segment struct {
	start, end int
	table      bool
}

type piece struct {
	start, end int
}

// segmentPage orders the page into alternating prose and table
// segments. Spans are clipped to the page, sorted, and overlapping or
// inverted spans are ignored.
func segmentPage(runes []rune, spans []domain.Span) []segment {
	clipped := make([]domain.Span, 0, len(spans))
	for _, s := range spans {
		if s.Start < 0 {
			s.Start = 0
		}
		if s.End > len(runes) {
			s.End = len(runes)
		}
		if s.Start < s.End {
			clipped = append(clipped, s)
		}
	}
	sort.Slice(clipped, func(i, j int) bool { return clipped[i].Start < clipped[j].Start })

	var segs []segment
	pos := 0
	for _, s := range clipped {
		if s.Start < pos {
			continue
		}
		if s.Start > pos {
			segs = append(segs, segment{start: pos, end: s.Start})
		}
		segs = append(segs, segment{start: s.Start, end: s.End, table: true})
		pos = s.End
	}
	if pos < len(runes) {
		segs = append(segs, segment{start: pos, end: len(runes)})
	}
	return segs
}

// splitProse windows [start, end) into chunk-sized pieces, cutting at
// the best boundary available and backing up by the overlap.
func splitProse(runes []rune, start, end int, cfg ChunkConfig) []piece {
	var pieces []piece
	pos := start
	for pos < end {
		if end-pos <= cfg.ChunkSize {
			pieces = append(pieces, piece{start: pos, end: end})
			break
		}

		limit := pos + cfg.ChunkSize
		cut := findCut(runes, pos, limit)
		pieces = append(pieces, piece{start: pos, end: cut})

		next := cut
		if cfg.Overlap > 0 && cut-pos > cfg.Overlap {
			next = cut - cfg.Overlap
		}
		if next <= pos {
			next = cut
		}
		pos = next
	}
	return pieces
}

// findCut picks the cut point in (pos, limit]: the last paragraph
// break, else the last sentence end, else the last whitespace, else a
// hard cut at limit for an unbroken run.
func findCut(runes []rune, pos, limit int) int {
	// Paragraph and sentence cuts below the floor would produce
	// fragments; those fall through to the word boundary scan.
	floor := pos + (limit-pos)/4

	if cut := lastParagraphBreak(runes, floor, limit); cut > 0 {
		return cut
	}
	if cut := lastSentenceEnd(runes, floor, limit); cut > 0 {
		return cut
	}
	for i := limit; i > pos+1; i-- {
		if unicode.IsSpace(runes[i-1]) {
			return i
		}
	}
	return limit
}

func lastParagraphBreak(runes []rune, floor, limit int) int {
	for i := limit; i > floor+1; i-- {
		if runes[i-1] == '\n' && runes[i-2] == '\n' {
			return i
		}
	}
	return 0
}

func lastSentenceEnd(runes []rune, floor, limit int) int {
	for i := limit; i > floor; i-- {
		r := runes[i-1]
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if i == len(runes) || unicode.IsSpace(runes[i]) {
			return i
		}
	}
	return 0
}

// splitTable emits whole tables up to maxSize, splitting oversized
// ones on row boundaries only. A single row longer than maxSize is
// emitted as-is rather than cut mid-row.
func splitTable(runes []rune, start, end, maxSize int) []piece {
	if end-start <= maxSize {
		return []piece{{start: start, end: end}}
	}

	var pieces []piece
	rowStart := start
	pieceStart := start
	for i := start; i <= end; i++ {
		if i != end && runes[i] != '\n' {
			continue
		}
		rowEnd := i
		if i != end {
			rowEnd = i + 1
		}
		if rowEnd-pieceStart > maxSize && rowStart > pieceStart {
			pieces = append(pieces, piece{start: pieceStart, end: rowStart})
			pieceStart = rowStart
		}
		rowStart = rowEnd
	}
	if pieceStart < end {
		pieces = append(pieces, piece{start: pieceStart, end: end})
	}
	return pieces
}

type heading struct {
	offset int
	title  string
}

// scanHeadings finds markdown-style headings so chunks can carry the
// section they fall under.
func scanHeadings(runes []rune) []heading {
	var headings []heading
	lineStart := 0
	for i := 0; i <= len(runes); i++ {
		if i != len(runes) && runes[i] != '\n' {
			continue
		}
		line := string(runes[lineStart:i])
		if title, ok := headingTitle(line); ok {
			headings = append(headings, heading{offset: lineStart, title: title})
		}
		lineStart = i + 1
	}
	return headings
}

func headingTitle(line string) (string, bool) {
	trimmed := strings.TrimLeft(line, " \t")
	level := 0
	for level < len(trimmed) && trimmed[level] == '#' {
		level++
	}
	if level < 1 || level > 6 || level >= len(trimmed) || trimmed[level] != ' ' {
		return "", false
	}
	title := strings.TrimSpace(trimmed[level+1:])
	if title == "" {
		return "", false
	}
	return title, true
}

// latestHeading returns the title of the last heading at or before
// offset, falling back to the carried-over section.
func latestHeading(headings []heading, offset int, current string) string {
	for _, h := range headings {
		if h.offset > offset {
			break
		}
		current = h.title
	}
	return current
}
