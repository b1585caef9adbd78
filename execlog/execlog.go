// Package execlog implements ExecutionLogger: an append-only JSONL event
// stream recording every step of a run (subtask dispatch, source
// results, retries, relevance scores, entity extraction, synthesis), and
// a parallel raw-response store holding each integration's unprocessed
// payload keyed by subtask/source/attempt. Writes are queued onto a
// buffered channel and drained by a single goroutine so that logging
// never blocks the engine's hot path on disk I/O, mirroring the
// teacher's async-boundary pattern for decoupling call sites from
// downstream I/O. Every event is also mirrored to the structured logger
// at Debug level and, as an OpenTelemetry span event, giving operators
// three views of the same stream without three separate code paths.
package execlog

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/brianmills2718/osint-deep-research/logging"
	"github.com/brianmills2718/osint-deep-research/telemetry"
)

// Event is one append-only log entry.
type Event struct {
	Timestamp time.Time              `json:"timestamp"`
	RunID     string                 `json:"run_id"`
	Kind      string                 `json:"kind"`
	SubtaskID string                 `json:"subtask_id,omitempty"`
	SourceID  string                 `json:"source_id,omitempty"`
	Attempt   int                    `json:"attempt,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

const writeQueueDepth = 256

// Logger is one run's execution log plus its raw-response store.
type Logger struct {
	runID      string
	events     *os.File
	writer     *bufio.Writer
	writerMu   sync.Mutex
	queue      chan Event
	done       chan struct{}
	tel        telemetry.Telemetry
	log        logging.Logger
	baseCtx    context.Context
	rawDir     string
}

// New creates the execution log and raw-response directory for one run
// under outputRoot/runID/. log receives a Debug-level mirror of every
// event alongside the JSONL file and the OTel span event, so operators
// can follow a run in whichever of the three views they have open
// without the engine writing to each one separately.
func New(outputRoot, runID string, tel telemetry.Telemetry, log logging.Logger) (*Logger, error) {
	if tel == nil {
		tel = &telemetry.NoOp{}
	}
	if log == nil {
		log = &logging.NoOpLogger{}
	}

	runDir := filepath.Join(outputRoot, runID)
	rawDir := filepath.Join(runDir, "raw")
	if err := os.MkdirAll(rawDir, 0o755); err != nil {
		return nil, fmt.Errorf("execlog: creating run directory: %w", err)
	}

	f, err := os.OpenFile(filepath.Join(runDir, "events.jsonl"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("execlog: opening events log: %w", err)
	}

	l := &Logger{
		runID:  runID,
		events: f,
		writer: bufio.NewWriter(f),
		queue:   make(chan Event, writeQueueDepth),
		done:    make(chan struct{}),
		tel:     tel,
		log:     log,
		baseCtx: context.Background(),
		rawDir:  rawDir,
	}

	go l.drain()
	return l, nil
}

// Log enqueues an event for the drain goroutine to write. It never
// blocks on disk I/O; if the queue is full (a sustained, abnormal write
// burst), Log blocks only on channel send, still off the engine's
// critical path since the caller is a logging call, not request
// handling.
func (l *Logger) Log(kind, subtaskID, sourceID string, attempt int, fields map[string]interface{}) {
	l.queue <- Event{
		Timestamp: time.Now(),
		RunID:     l.runID,
		Kind:      kind,
		SubtaskID: subtaskID,
		SourceID:  sourceID,
		Attempt:   attempt,
		Fields:    fields,
	}
}

func (l *Logger) drain() {
	defer close(l.done)
	for ev := range l.queue {
		l.writeEvent(ev)
	}
}

func (l *Logger) writeEvent(ev Event) {
	l.writerMu.Lock()
	defer l.writerMu.Unlock()

	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	data = append(data, '\n')
	if _, err := l.writer.Write(data); err != nil {
		return
	}
	l.writer.Flush()

	l.log.Debug(ev.Kind, map[string]interface{}{
		"run_id":     ev.RunID,
		"subtask_id": ev.SubtaskID,
		"source_id":  ev.SourceID,
		"attempt":    ev.Attempt,
		"fields":     ev.Fields,
	})

	_, span := l.tel.StartSpan(l.baseCtx, "execlog.event")
	span.SetAttribute("kind", ev.Kind)
	if ev.SubtaskID != "" {
		span.SetAttribute("subtask_id", ev.SubtaskID)
	}
	if ev.SourceID != "" {
		span.SetAttribute("source_id", ev.SourceID)
	}
	span.AddEvent(ev.Kind, map[string]interface{}{"subtask_id": ev.SubtaskID, "source_id": ev.SourceID})
	span.End()
}

// StoreRaw writes an integration's unprocessed upstream payload,
// keyed by subtask/source/attempt, to the raw-response store.
func (l *Logger) StoreRaw(subtaskID, sourceID string, attempt int, payload []byte) error {
	name := fmt.Sprintf("%s__%s__%d.json", subtaskID, sourceID, attempt)
	path := filepath.Join(l.rawDir, name)
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return fmt.Errorf("execlog: storing raw response: %w", err)
	}
	return nil
}

// Close drains any remaining queued events and flushes the underlying
// file. After Close returns, Log must not be called again.
func (l *Logger) Close() error {
	close(l.queue)
	<-l.done

	l.writerMu.Lock()
	defer l.writerMu.Unlock()
	if err := l.writer.Flush(); err != nil {
		return fmt.Errorf("execlog: flushing events log: %w", err)
	}
	return l.events.Close()
}
