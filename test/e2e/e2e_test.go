package e2e

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/veritexai/internal/domain"
	"github.com/cloo-solutions/veritexai/internal/service"
)

// topics with disjoint vocabularies, so each carries its own region of
// the fake embedding space. Each paragraph repeats its vocabulary until
// it roughly fills one chunk.
var topics = []struct {
	marker   string
	sentence string
}{
	{"harbor", "The harbor pilot guides container vessels past the breakwater at dawn while cranes unload cargo onto waiting freight trains."},
	{"orchard", "The orchard keeper prunes apple branches before blossom season so pollinating bees reach every flowering limb easily."},
	{"turbine", "The turbine hall houses steam generators whose rotor blades spin at precise frequencies feeding the electrical grid."},
	{"zephyr", "The zephyr glider rides thermal updrafts above limestone cliffs where falcons nest during the spring migration."},
	{"lantern", "The lantern festival fills the river valley with floating paper lights carried downstream by the evening current."},
	{"quarry", "The quarry crew drills granite benches in measured lifts hauling dressed stone blocks to the masonry yard below."},
}

func topicParagraph(i int) string {
	t := topics[i]
	var b strings.Builder
	for b.Len() < 1000 {
		b.WriteString(t.sentence)
		b.WriteString(" ")
	}
	return strings.TrimSpace(b.String())
}

func multiTopicDocument() string {
	parts := make([]string, len(topics))
	for i := range topics {
		parts[i] = topicParagraph(i)
	}
	return strings.Join(parts, "\n\n")
}

func TestIngestAndQuery(t *testing.T) {
	eng := newEngine(t, defaultEngineOptions())
	ctx := context.Background()

	report, err := eng.ingest.IngestReader(ctx, "field-notes.md", strings.NewReader(multiTopicDocument()))
	require.NoError(t, err)
	require.Equal(t, domain.DocOutcomeIngested, report.Outcome)
	require.GreaterOrEqual(t, report.Chunks, len(topics))
	assert.Equal(t, report.Chunks, eng.store.Len())

	result, err := eng.query.Query(ctx, "who rides the zephyr glider over the cliffs", service.QueryOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, result.Chunks)

	assert.Contains(t, result.Chunks[0].Content, "zephyr",
		"the chunk matching the query must rank first")
	assert.Contains(t, result.Text, "zephyr")
	assert.Contains(t, result.Text, "[source: field-notes.md")

	require.NotEmpty(t, result.Citations)
	for _, c := range result.Citations {
		assert.Equal(t, "field-notes.md", c.Filename)
	}
}

func TestQueryCacheAvoidsSecondSearch(t *testing.T) {
	eng := newEngine(t, defaultEngineOptions())
	ctx := context.Background()

	_, err := eng.ingest.IngestReader(ctx, "doc.md", strings.NewReader(multiTopicDocument()))
	require.NoError(t, err)

	first, err := eng.query.Query(ctx, "turbine hall steam generators", service.QueryOptions{})
	require.NoError(t, err)
	searchesAfterFirst := eng.store.searchCount()

	second, err := eng.query.Query(ctx, "turbine hall steam generators", service.QueryOptions{})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, searchesAfterFirst, eng.store.searchCount(),
		"a cached query must not hit the vector store again")
}

func TestReingestReplacesDocumentAndInvalidatesCache(t *testing.T) {
	eng := newEngine(t, defaultEngineOptions())
	ctx := context.Background()

	report, err := eng.ingest.IngestReader(ctx, "guide.md", strings.NewReader(topicParagraph(0)))
	require.NoError(t, err)
	require.Equal(t, domain.DocOutcomeIngested, report.Outcome)
	firstID := report.DocumentID

	result, err := eng.query.Query(ctx, "harbor pilot container vessels", service.QueryOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, result.Chunks)

	// Same filename, new content: same document identity, old chunks gone.
	report, err = eng.ingest.IngestReader(ctx, "guide.md", strings.NewReader(topicParagraph(3)))
	require.NoError(t, err)
	require.Equal(t, domain.DocOutcomeIngested, report.Outcome)
	assert.Equal(t, firstID, report.DocumentID)
	assert.Equal(t, report.Chunks, eng.store.Len())

	doc, err := eng.registry.GetByFilename(ctx, "guide.md")
	require.NoError(t, err)
	assert.Equal(t, firstID, doc.ID)

	result, err = eng.query.Query(ctx, "harbor pilot container vessels", service.QueryOptions{})
	require.NoError(t, err)
	assert.Empty(t, result.Chunks,
		"re-ingest must invalidate cached results for the replaced content")
}

func TestPartialEmbeddingFailureIsReported(t *testing.T) {
	eng := newEngine(t, defaultEngineOptions())
	ctx := context.Background()

	eng.inference.failOn("zephyr", fmt.Errorf("item rejected"))

	report, err := eng.ingest.IngestReader(ctx, "notes.md", strings.NewReader(multiTopicDocument()))
	require.NoError(t, err)

	assert.Equal(t, domain.DocOutcomeFailed, report.Outcome)
	assert.Greater(t, report.Failed, 0)
	assert.Equal(t, report.Chunks, report.Embedded+report.Failed,
		"every chunk must be accounted for")
	assert.Equal(t, 0, eng.store.Len(),
		"a partially embedded document must not reach the store")
}

func TestTightContextBudgetDropsWholeGroups(t *testing.T) {
	opts := defaultEngineOptions()
	opts.maxChars = 1400
	eng := newEngine(t, opts)
	ctx := context.Background()

	_, err := eng.ingest.IngestReader(ctx, "turbines.md", strings.NewReader(topicParagraph(2)))
	require.NoError(t, err)
	_, err = eng.ingest.IngestReader(ctx, "quarry.md", strings.NewReader(topicParagraph(5)))
	require.NoError(t, err)

	// Both documents clear the similarity floor, the turbine one scores
	// higher; only one group fits the budget.
	result, err := eng.query.Query(ctx, "turbine rotor blades spin feeding the grid while the quarry crew hauls stone", service.QueryOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, result.Chunks)

	assert.LessOrEqual(t, len(result.Text), opts.maxChars)
	for _, c := range result.Citations {
		assert.Equal(t, "turbines.md", c.Filename,
			"the lower scoring group must be dropped whole")
	}
	// No chunk was truncated: every cited chunk's text appears intact.
	for _, c := range result.Chunks {
		assert.Contains(t, result.Text, c.Content)
	}
}

func TestNoRelevantContent(t *testing.T) {
	eng := newEngine(t, defaultEngineOptions())
	ctx := context.Background()

	_, err := eng.ingest.IngestReader(ctx, "doc.md", strings.NewReader(topicParagraph(0)))
	require.NoError(t, err)

	result, err := eng.query.Query(ctx, "quantum cryptography key exchange protocols", service.QueryOptions{})
	require.NoError(t, err, "no relevant content is an empty result, not an error")
	assert.Empty(t, result.Chunks)
	assert.Empty(t, result.Text)
}

func TestDeleteDocument(t *testing.T) {
	eng := newEngine(t, defaultEngineOptions())
	ctx := context.Background()

	report, err := eng.ingest.IngestReader(ctx, "doc.md", strings.NewReader(topicParagraph(4)))
	require.NoError(t, err)

	result, err := eng.query.Query(ctx, "lantern festival floating lights", service.QueryOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, result.Chunks)

	require.NoError(t, eng.ingest.DeleteDocument(ctx, report.DocumentID))
	assert.Equal(t, 0, eng.store.Len())

	_, err = eng.registry.GetByID(ctx, report.DocumentID)
	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)

	result, err = eng.query.Query(ctx, "lantern festival floating lights", service.QueryOptions{})
	require.NoError(t, err)
	assert.Empty(t, result.Chunks,
		"delete must invalidate cached results for the removed document")
}

func TestFilteredQuery(t *testing.T) {
	eng := newEngine(t, defaultEngineOptions())
	ctx := context.Background()

	_, err := eng.ingest.IngestReader(ctx, "a.md", strings.NewReader(topicParagraph(1)))
	require.NoError(t, err)
	_, err = eng.ingest.IngestReader(ctx, "b.txt", strings.NewReader(topicParagraph(1)))
	require.NoError(t, err)

	result, err := eng.query.Query(ctx, "orchard keeper prunes apple branches", service.QueryOptions{
		Filter: domain.Filter{FileType: "txt"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, result.Chunks)
	for _, c := range result.Citations {
		assert.Equal(t, "b.txt", c.Filename)
	}
}
