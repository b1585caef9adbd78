package media

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brianmills2718/osint-deep-research/integration"
)

func TestNewRequiresCredential(t *testing.T) {
	_, err := New("", 0)
	require.Error(t, err)
}

func TestExecuteCapsAtTwoORPhrases(t *testing.T) {
	var gotPhrases []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPhrases = r.URL.Query()["phrase"]
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"items":[{"id":"1","title":"t","caption":"c","url":"https://x"}],"total":1}`))
	}))
	defer srv.Close()

	m, err := New("key", 0)
	require.NoError(t, err)
	m.baseURL = srv.URL

	_, err = m.Execute(context.Background(), integration.QueryParams{
		FreeText: `"alpha" OR "beta" OR "gamma"`,
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, len(gotPhrases), maxORPhrases)
}
