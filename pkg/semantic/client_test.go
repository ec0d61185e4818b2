package semantic

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-semantic/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-semantic/pkg/models"
)

func TestClient_Load_Success(t *testing.T) {
	var gotBody map[string]any
	var gotAuth string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/cubejs-api/v1/load", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotBody)

		_, _ = w.Write([]byte(`{
			"data": [{"Film.rating": "PG", "Film.count": "194"}],
			"query": {"sql": "SELECT rating, count(*) FROM film GROUP BY 1"}
		}`))
	}))
	defer server.Close()

	client := NewClient(Config{APIURL: server.URL + "/cubejs-api/v1/", Token: "cube-secret"}, zap.NewNop())

	resp, err := client.Load(context.Background(), &models.Query{
		Dimensions: []string{"Film.rating"},
		Measures:   []string{"Film.count"},
	})
	require.NoError(t, err)

	assert.Equal(t, "cube-secret", gotAuth)
	require.Contains(t, gotBody, "query")
	query := gotBody["query"].(map[string]any)
	assert.Equal(t, []any{"Film.rating"}, query["dimensions"])
	assert.NotContains(t, query, "joins")

	require.Len(t, resp.Data, 1)
	assert.Equal(t, "PG", resp.Data[0]["Film.rating"])
	assert.Equal(t, "SELECT rating, count(*) FROM film GROUP BY 1", resp.Query.SQL)
	assert.Empty(t, resp.Error)
}

func TestClient_Load_ErrorPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error": "Can't find join path to join 'Actor', 'Address'"}`))
	}))
	defer server.Close()

	resp, err := NewClient(Config{APIURL: server.URL}, zap.NewNop()).
		Load(context.Background(), &models.Query{Measures: []string{"Actor.count"}})
	require.NoError(t, err)
	assert.Equal(t, "Can't find join path to join 'Actor', 'Address'", resp.Error)
}

func TestClient_Load_Non2xx(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantDetail string
	}{
		{
			name:       "wrapped error",
			body:       `{"error": "'count' not found for path 'Film.count'"}`,
			wantDetail: "'count' not found for path 'Film.count'",
		},
		{
			name:       "plain body",
			body:       "upstream unavailable",
			wantDetail: "upstream unavailable",
		},
		{
			name:       "structured error",
			body:       `{"error": {"message": "bad"}}`,
			wantDetail: `{"message": "bad"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := NewClient(Config{APIURL: server.URL}, zap.NewNop()).
				Load(context.Background(), &models.Query{Measures: []string{"Film.count"}})
			require.Error(t, err)

			apiErr, ok := IsAPIError(err)
			require.True(t, ok)
			assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
			assert.Equal(t, tt.wantDetail, apiErr.Detail)
		})
	}
}

func TestClient_Meta(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/meta", r.URL.Path)
		_, _ = w.Write([]byte(`{"cubes": [
			{"name": "Film", "dimensions": [{"name": "Film.title", "type": "string"}], "measures": [{"name": "Film.count", "type": "count"}], "joins": [{"name": "Language", "relationship": "belongsTo"}]},
			{"name": "Language"}
		]}`))
	}))
	defer server.Close()

	meta, err := NewClient(Config{APIURL: server.URL}, zap.NewNop()).Meta(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"Film", "Language"}, meta.CubeNames())
	summaries := meta.Summaries()
	require.Len(t, summaries, 2)
	assert.Equal(t, []string{"Film.title"}, summaries[0].Dimensions)
	assert.Equal(t, []string{"Language"}, summaries[0].Joins)
	assert.Empty(t, summaries[1].Measures)
}

func TestClient_TransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := NewClient(Config{APIURL: url}, zap.NewNop()).
		Load(context.Background(), &models.Query{Measures: []string{"Film.count"}})
	require.Error(t, err)

	_, ok := IsAPIError(err)
	assert.False(t, ok)
}

func TestClient_UndecodableReply(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html>proxy error</html>"))
	}))
	defer server.Close()

	client := NewClient(Config{APIURL: server.URL}, zap.NewNop())

	_, err := client.Load(context.Background(), &models.Query{Measures: []string{"Film.count"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrUnexpectedReply))

	_, err = client.Meta(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrUnexpectedReply))
}
