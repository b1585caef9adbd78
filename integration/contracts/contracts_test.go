package contracts

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brianmills2718/osint-deep-research/integration"
)

func TestNewRequiresCredential(t *testing.T) {
	_, err := New("", 0)
	require.Error(t, err)
}

func TestExecuteClampsDateWindowToOneYear(t *testing.T) {
	var gotFrom, gotTo string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotFrom = r.URL.Query().Get("date_from")
		gotTo = r.URL.Query().Get("date_to")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"awards":[],"total":0}`))
	}))
	defer srv.Close()

	c, err := New("key", 0)
	require.NoError(t, err)
	c.baseURL = srv.URL

	to := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	from := to.AddDate(-5, 0, 0)

	_, err = c.Execute(context.Background(), integration.QueryParams{
		FreeText: "acme",
		DateFrom: from,
		DateTo:   to,
	})
	require.NoError(t, err)

	gotFromTime, _ := time.Parse("2006-01-02", gotFrom)
	gotToTime, _ := time.Parse("2006-01-02", gotTo)
	assert.LessOrEqual(t, gotToTime.Sub(gotFromTime), maxWindow)
}

func TestExecuteReturnsErrorOnRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c, err := New("key", 0)
	require.NoError(t, err)
	c.baseURL = srv.URL

	_, err = c.Execute(context.Background(), integration.QueryParams{FreeText: "acme"})
	require.Error(t, err)
}

func TestIsCriticalReturnsTrue(t *testing.T) {
	c, err := New("key", 0)
	require.NoError(t, err)
	assert.True(t, c.IsCritical())
}
