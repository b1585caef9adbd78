package main

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brianmills2718/osint-deep-research/logging"
	"github.com/brianmills2718/osint-deep-research/registry"
)

func TestParseRunEventsPath(t *testing.T) {
	cases := []struct {
		path    string
		wantID  string
		wantOK  bool
	}{
		{"/runs/abc-123/events", "abc-123", true},
		{"/runs/abc-123", "", false},
		{"/runs/abc-123/logs", "", false},
		{"/runs//events", "", false},
		{"/runs/", "", false},
	}
	for _, c := range cases {
		id, ok := parseRunEventsPath(c.path)
		assert.Equal(t, c.wantOK, ok, c.path)
		assert.Equal(t, c.wantID, id, c.path)
	}
}

func TestHandleRunsRejectsEmptyQuestion(t *testing.T) {
	reg, err := registry.New("", nil)
	require.NoError(t, err)
	srv := &server{logger: &logging.NoOpLogger{}, reg: reg}

	req := httptest.NewRequest("POST", "/runs", strings.NewReader(`{"question":""}`))
	w := httptest.NewRecorder()

	srv.handleRuns(w, req)

	assert.Equal(t, 400, w.Code)
}

func TestHandleRunsRejectsNonPost(t *testing.T) {
	reg, err := registry.New("", nil)
	require.NoError(t, err)
	srv := &server{logger: &logging.NoOpLogger{}, reg: reg}

	req := httptest.NewRequest("GET", "/runs", nil)
	w := httptest.NewRecorder()

	srv.handleRuns(w, req)

	assert.Equal(t, 405, w.Code)
}

func TestHandleSourcesReturnsRegisteredStatuses(t *testing.T) {
	reg, err := registry.New("", nil)
	require.NoError(t, err)
	srv := &server{logger: &logging.NoOpLogger{}, reg: reg}

	req := httptest.NewRequest("GET", "/sources", nil)
	w := httptest.NewRecorder()

	srv.handleSources(w, req)

	assert.Equal(t, 200, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
}
