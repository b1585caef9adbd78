package research

import (
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brianmills2718/osint-deep-research/execlog"
	"github.com/brianmills2718/osint-deep-research/registry"
)

func TestTailEventsStopsOnRunFinished(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "events-*.jsonl")
	require.NoError(t, err)

	write := func(ev execlog.Event) {
		b, err := json.Marshal(ev)
		require.NoError(t, err)
		_, err = f.Write(append(b, '\n'))
		require.NoError(t, err)
	}
	write(execlog.Event{Kind: "run.started"})
	write(execlog.Event{Kind: "run.finished"})

	_, err = f.Seek(0, 0)
	require.NoError(t, err)

	out := make(chan execlog.Event, 8)
	done := make(chan struct{})
	go func() {
		tailEvents(f, out)
		close(done)
	}()

	var kinds []string
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("tailEvents did not return after run.finished")
	}
	for ev := range out {
		kinds = append(kinds, ev.Kind)
	}
	assert.Equal(t, []string{"run.started", "run.finished"}, kinds)
}

func TestListSourcesReflectsRegistryStatus(t *testing.T) {
	reg, err := registry.New("", nil)
	require.NoError(t, err)

	statuses := ListSources(reg)
	assert.Empty(t, statuses)
}
