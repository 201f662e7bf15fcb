package tui

import (
	"bufio"
	"encoding/json"
	"io"
	"os"

	"github.com/arvelex/veriplan/pkg/orchestrator"
)

// traceTail incrementally reads trace events from a JSONL file across polls.
// A missing file is not an error; the run may not have started yet.
type traceTail struct {
	path   string
	offset int64
}

func newTraceTail(path string) *traceTail {
	return &traceTail{path: path}
}

// next returns the events appended since the previous call.
func (t *traceTail) next() ([]orchestrator.TraceEvent, error) {
	f, err := os.Open(t.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	if _, err := f.Seek(t.offset, io.SeekStart); err != nil {
		return nil, err
	}

	var events []orchestrator.TraceEvent
	reader := bufio.NewReader(f)
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			// A partial line stays unread until the writer finishes it.
			break
		}
		t.offset += int64(len(line))
		var evt orchestrator.TraceEvent
		if json.Unmarshal(line, &evt) == nil {
			events = append(events, evt)
		}
	}
	return events, nil
}
