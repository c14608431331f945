package knowledge

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hospital-assistant/internal/logger"
	"hospital-assistant/pkg"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name     string
		a, b     Vector
		expected float64
	}{
		{"identical", Vector{1, 0, 0}, Vector{1, 0, 0}, 1.0},
		{"orthogonal", Vector{1, 0, 0}, Vector{0, 1, 0}, 0.0},
		{"opposite", Vector{1, 0, 0}, Vector{-1, 0, 0}, -1.0},
		{"similar", Vector{1, 1, 0}, Vector{1, 0, 0}, 0.707},
		{"empty", Vector{}, Vector{}, 0.0},
		{"different lengths", Vector{1, 0}, Vector{1, 0, 0}, 0.0},
		{"zero vector", Vector{0, 0, 0}, Vector{1, 0, 0}, 0.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, CosineSimilarity(tt.a, tt.b), 0.01)
		})
	}
}

func TestSplitSections(t *testing.T) {
	doc := "# Title\nintro line\n## One\nfirst body\n## Two\nsecond body"
	got := SplitSections(doc)
	require.Len(t, got, 3)
	assert.Equal(t, "# Title\nintro line", got[0])
	assert.Equal(t, "## One\nfirst body", got[1])
	assert.Equal(t, "## Two\nsecond body", got[2])
}

func TestSourceLabel(t *testing.T) {
	assert.Equal(t, "Insurance Billing", SourceLabel("insurance_billing.md"))
	assert.Equal(t, "Hospital General", SourceLabel("faqs/hospital_general.md"))
}

func TestLoadFSSkipsTinyChunksAndTagsAccess(t *testing.T) {
	fsys := fstest.MapFS{
		"visiting.md":        {Data: []byte("# Visits\n## Hours\nWards are open from 11 AM to 1 PM daily for visitors.")},
		"patient_reports.md": {Data: []byte("## Reports\nCollect ready reports from the counter with your patient code.")},
		"notes.txt":          {Data: []byte("ignored entirely because it is not markdown")},
	}
	chunks, err := LoadFS(fsys)
	require.NoError(t, err)
	require.Len(t, chunks, 2)

	assert.Equal(t, "Patient Reports", chunks[0].Source)
	assert.False(t, chunks[0].Public())
	assert.Equal(t, "Visiting", chunks[1].Source)
	assert.True(t, chunks[1].Public())
	assert.NotContains(t, chunks[1].Content, "# Visits")
}

func newIndexed(t *testing.T) *Retriever {
	t.Helper()
	r := NewRetriever(HashEmbedder{}, logger.Discard())
	require.NoError(t, r.IndexFS(context.Background(), DefaultFAQs()))
	require.NotZero(t, r.Len())
	return r
}

func TestQueryRanksRelevantSection(t *testing.T) {
	r := newIndexed(t)
	got, err := r.Query(context.Background(), "what are cardiology department timings?", DefaultTopK, pkg.AccessPublic)
	require.NoError(t, err)
	require.Len(t, got, DefaultTopK)

	assert.Equal(t, "Departments Timings", got[0].Source)
	assert.Contains(t, got[0].Content, "Cardiology")
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i-1].Score, got[i].Score)
	}
	for _, s := range got {
		assert.Equal(t, s.Score, math.Round(s.Score*1000)/1000)
	}
}

func TestGuestsNeverSeeRestrictedChunks(t *testing.T) {
	r := newIndexed(t)
	ctx := context.Background()
	q := "report collection counter patient code"

	guest, err := r.Query(ctx, q, 10, pkg.AccessPublic)
	require.NoError(t, err)
	for _, s := range guest {
		assert.NotEqual(t, "patient_services.md", s.File)
	}

	verified, err := r.Query(ctx, q, 1, pkg.AccessAll)
	require.NoError(t, err)
	require.Len(t, verified, 1)
	assert.Equal(t, "patient_services.md", verified[0].File)
}

func TestQueryEmptyIndex(t *testing.T) {
	r := NewRetriever(HashEmbedder{}, logger.Discard())
	got, err := r.Query(context.Background(), "anything", 4, pkg.AccessAll)
	require.NoError(t, err)
	assert.Empty(t, got)
}

type failingEmbedder struct{}

func (failingEmbedder) Embed(context.Context, []string) ([]Vector, error) {
	return nil, errors.New("embedding service down")
}

func TestIndexPropagatesEmbedderError(t *testing.T) {
	r := NewRetriever(failingEmbedder{}, logger.Discard())
	err := r.IndexFS(context.Background(), DefaultFAQs())
	assert.ErrorContains(t, err, "embedding service down")
	assert.Zero(t, r.Len())
}

func TestOpenAIEmbedder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		// returned out of order on purpose
		fmt.Fprint(w, `{"object":"list","model":"text-embedding-3-small","data":[
			{"object":"embedding","index":1,"embedding":[0,1]},
			{"object":"embedding","index":0,"embedding":[1,0]}]}`)
	}))
	defer srv.Close()

	e := NewOpenAIEmbedder("sk-test", srv.URL+"/v1", "")
	got, err := e.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, Vector{1, 0}, got[0])
	assert.Equal(t, Vector{0, 1}, got[1])
}
