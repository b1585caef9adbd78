package register

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brianmills2718/osint-deep-research/integration"
)

func TestExecuteStopsPagingAfterShortPage(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		if calls == 1 {
			w.Write([]byte(`{"results":[
				{"document_number":"1","title":"a","abstract":"x","html_url":"https://a"},
				{"document_number":"2","title":"b","abstract":"y","html_url":"https://b"}
			],"count":3}`))
			return
		}
		w.Write([]byte(`{"results":[{"document_number":"3","title":"c","abstract":"z","html_url":"https://c"}],"count":3}`))
	}))
	defer srv.Close()

	r, err := New(0)
	require.NoError(t, err)
	r.baseURL = srv.URL

	result, err := r.Execute(context.Background(), integration.QueryParams{FreeText: "tariffs", ResultLimit: 3})
	require.NoError(t, err)
	assert.Len(t, result.Items, 2)
}
