package jobs

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brianmills2718/osint-deep-research/integration"
)

func TestExecuteRejectsParentheses(t *testing.T) {
	j, err := New("", 0)
	require.NoError(t, err)

	_, err = j.Execute(context.Background(), integration.QueryParams{FreeText: "(cyber) AND security"})
	require.Error(t, err)
}

func TestExecuteSplitsCompositeOnZeroResults(t *testing.T) {
	var requests []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		keywords := r.URL.Query().Get("keywords")
		requests = append(requests, keywords)
		w.Header().Set("Content-Type", "application/json")
		if keywords == "cyber OR security" {
			w.Write([]byte(`{"results":[],"total":0}`))
			return
		}
		w.Write([]byte(`{"results":[{"id":"1","title":"Analyst","agency":"DHS","location":"DC","url":"https://x","summary":"s"}],"total":1}`))
	}))
	defer srv.Close()

	j, err := New("", 0)
	require.NoError(t, err)
	j.baseURL = srv.URL

	result, err := j.Execute(context.Background(), integration.QueryParams{FreeText: "cyber OR security"})
	require.NoError(t, err)
	assert.NotEmpty(t, result.Items)
	assert.Contains(t, requests, "cyber OR security")
	assert.Contains(t, requests, "cyber")
	assert.Contains(t, requests, "security")
}
