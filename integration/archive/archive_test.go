package archive

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brianmills2718/osint-deep-research/integration"
)

func writeChunk(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func TestExecuteScoresByKeywordMatchCountDescending(t *testing.T) {
	dir := t.TempDir()
	writeChunk(t, dir, "chan1.json", `{"messages":[
		{"id":"1","channel":"c1","author":"a","content":"talk about section 702 and fisa reform"},
		{"id":"2","channel":"c1","author":"b","content":"just section 702"},
		{"id":"3","channel":"c1","author":"c","content":"unrelated chat"}
	]}`)

	arc, err := New(dir, nil)
	require.NoError(t, err)

	result, err := arc.Execute(context.Background(), integration.QueryParams{
		Structured: map[string]interface{}{"keywords": []string{"section 702", "fisa"}},
	})
	require.NoError(t, err)
	require.Len(t, result.Items, 2)
	assert.Equal(t, "1", result.Items[0].ID)
	assert.Equal(t, "2", result.Items[1].ID)
}

func TestExecuteSkipsCorruptFileWithoutFailing(t *testing.T) {
	dir := t.TempDir()
	writeChunk(t, dir, "good.json", `{"messages":[{"id":"1","channel":"c1","author":"a","content":"keyword here"}]}`)
	writeChunk(t, dir, "bad.json", `{"messages":[{"id":"2","channel":"c1","author":"a","content":"keyword"`)

	arc, err := New(dir, nil)
	require.NoError(t, err)

	result, err := arc.Execute(context.Background(), integration.QueryParams{
		Structured: map[string]interface{}{"keywords": []string{"keyword"}},
	})
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	assert.Equal(t, "1", result.Items[0].ID)
}

func TestDecodeLenientToleratesTrailingCommasAndControlChars(t *testing.T) {
	raw := []byte("{\"messages\":[{\"id\":\"1\",\x07\"channel\":\"c\",\"author\":\"a\",\"content\":\"hi\",},],}")
	chunk, err := decodeLenient(raw)
	require.NoError(t, err)
	require.Len(t, chunk.Messages, 1)
	assert.Equal(t, "1", chunk.Messages[0].ID)
}

func TestExecuteReturnsEmptyWithNoKeywords(t *testing.T) {
	dir := t.TempDir()
	arc, err := New(dir, nil)
	require.NoError(t, err)

	result, err := arc.Execute(context.Background(), integration.QueryParams{})
	require.NoError(t, err)
	assert.Empty(t, result.Items)
}
