package index

import (
	"context"
	"fmt"
	"testing"

	"github.com/blevesearch/bleve/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDocs(n int) []*SearchDocument {
	docs := make([]*SearchDocument, 0, n)
	for i := 0; i < n; i++ {
		docs = append(docs, &SearchDocument{
			EndpointID:     fmt.Sprintf("GET:/users/%d", i),
			EndpointPath:   fmt.Sprintf("/users/%d", i),
			Method:         "GET",
			Summary:        "List users",
			OperationType:  OpList,
			ResourceName:   "users",
			SearchableText: "list users",
		})
	}
	return docs
}

func TestBuildActivateAndSearch(t *testing.T) {
	generations, err := NewGenerations(t.TempDir())
	require.NoError(t, err)

	builder := NewBuilder(generations, 2, nil)
	stats, err := builder.Build(context.Background(), testDocs(5))
	require.NoError(t, err)
	assert.Equal(t, uint64(5), stats.DocumentCount)
	assert.Positive(t, stats.SizeBytes)

	require.NoError(t, generations.Activate(stats.Generation))

	reader, err := OpenReader(generations)
	require.NoError(t, err)
	defer reader.Close()

	assert.Equal(t, stats.Generation, reader.Generation())

	count, err := reader.DocCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(5), count)

	req := bleve.NewSearchRequest(bleve.NewMatchQuery("users"))
	req.Size = 10
	result, err := reader.Search(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), result.Total)
}

func TestGenerationSwapInvalidatesOld(t *testing.T) {
	generations, err := NewGenerations(t.TempDir())
	require.NoError(t, err)
	builder := NewBuilder(generations, 0, nil)

	first, err := builder.Build(context.Background(), testDocs(2))
	require.NoError(t, err)
	require.NoError(t, generations.Activate(first.Generation))

	reader, err := OpenReader(generations)
	require.NoError(t, err)
	defer reader.Close()

	second, err := builder.Build(context.Background(), testDocs(4))
	require.NoError(t, err)
	require.NoError(t, generations.Activate(second.Generation))

	// The open reader still serves the old generation until reloaded.
	count, err := reader.DocCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)

	require.NoError(t, reader.Reload())
	count, err = reader.DocCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(4), count)

	require.NoError(t, generations.CleanupStale())
	current, err := generations.Current()
	require.NoError(t, err)
	assert.Equal(t, second.Generation, current)
}

func TestOpenReaderWithoutGeneration(t *testing.T) {
	generations, err := NewGenerations(t.TempDir())
	require.NoError(t, err)
	_, err = OpenReader(generations)
	require.Error(t, err)
}

func TestFieldTerms(t *testing.T) {
	generations, err := NewGenerations(t.TempDir())
	require.NoError(t, err)
	builder := NewBuilder(generations, 0, nil)
	stats, err := builder.Build(context.Background(), testDocs(3))
	require.NoError(t, err)
	require.NoError(t, generations.Activate(stats.Generation))

	reader, err := OpenReader(generations)
	require.NoError(t, err)
	defer reader.Close()

	terms, err := reader.FieldTerms(FieldResourceName, 0)
	require.NoError(t, err)
	assert.Contains(t, terms, "users")
}
