package orchestrator

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// TraceWriter writes TraceEvents to a JSONL trace file. Each event is
// flushed and synced at write time so a watcher tailing the file sees
// step results as they land.
type TraceWriter struct {
	file   *os.File
	writer *bufio.Writer
	enc    *json.Encoder
	runID  string
}

// NewTraceWriter creates a trace writer that appends to the given file.
func NewTraceWriter(path, runID string) (*TraceWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open trace file: %w", err)
	}
	w := bufio.NewWriter(f)
	return &TraceWriter{
		file:   f,
		writer: w,
		enc:    json.NewEncoder(w),
		runID:  runID,
	}, nil
}

// Write appends a TraceEvent and flushes to disk.
func (tw *TraceWriter) Write(event TraceEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.RunID == "" {
		event.RunID = tw.runID
	}
	if err := tw.enc.Encode(event); err != nil {
		return fmt.Errorf("encode trace event: %w", err)
	}
	if err := tw.writer.Flush(); err != nil {
		return fmt.Errorf("flush trace: %w", err)
	}
	if err := tw.file.Sync(); err != nil {
		return fmt.Errorf("sync trace: %w", err)
	}
	return nil
}

// Close flushes and closes the trace file.
func (tw *TraceWriter) Close() error {
	if err := tw.writer.Flush(); err != nil {
		return err
	}
	return tw.file.Close()
}
