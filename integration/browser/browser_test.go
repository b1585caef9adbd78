package browser

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brianmills2718/osint-deep-research/integration"
)

func TestNewReturnsUnavailableWhenDisabled(t *testing.T) {
	_, err := New(false, 0)
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestExecuteReturnsAntiBotChallengeOnDetectedMarker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>Please complete the CAPTCHA to continue</body></html>`))
	}))
	defer srv.Close()

	b, err := New(true, 0)
	require.NoError(t, err)

	_, err = b.Execute(context.Background(), integration.QueryParams{FreeText: srv.URL})
	require.ErrorIs(t, err, integration.ErrAntiBotChallenge)
}

func TestExecuteExtractsTitleAndText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><head><title>Example Page</title></head><body>Hello world</body></html>`))
	}))
	defer srv.Close()

	b, err := New(true, 0)
	require.NoError(t, err)

	result, err := b.Execute(context.Background(), integration.QueryParams{FreeText: srv.URL})
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	assert.Equal(t, "Example Page", result.Items[0].Title)
	assert.Contains(t, result.Items[0].Snippet, "Hello world")
}
