// Package replay drives a session from a recorded JSONL event script.
package replay

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/candi/dictation/internal/recognition"
)

// Kind is the facility callback a script line produces.
type Kind string

const (
	KindStart  Kind = "start"
	KindResult Kind = "result"
	KindError  Kind = "error"
	KindEnd    Kind = "end"
)

// Step is one script line.
type Step struct {
	AfterMS     int                    `json:"after_ms"`
	Event       Kind                   `json:"event"`
	ResultIndex int                    `json:"result_index,omitempty"`
	Fragments   []recognition.Fragment `json:"fragments,omitempty"`
	Error       recognition.ErrorKind  `json:"error,omitempty"`
}

// Delay is the pause before the step fires.
func (s Step) Delay() time.Duration {
	return time.Duration(s.AfterMS) * time.Millisecond
}

// Batch converts a result step to a recognition batch.
func (s Step) Batch() recognition.Batch {
	return recognition.Batch{ResultIndex: s.ResultIndex, Fragments: s.Fragments}
}

// Script is an ordered list of steps. Each "end" step closes one segment;
// an automatic restart resumes at the next segment.
type Script []Step

// Parse reads a JSONL script. Blank lines and lines starting with # are
// skipped.
func Parse(r io.Reader) (Script, error) {
	var script Script
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		var step Step
		decoder := json.NewDecoder(strings.NewReader(line))
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&step); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		if err := step.validate(); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		script = append(script, step)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	return script, nil
}

// Load parses the script at path.
func Load(path string) (Script, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open replay script: %w", err)
	}
	defer f.Close()
	script, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse replay script %q: %w", path, err)
	}
	return script, nil
}

func (s Step) validate() error {
	if s.AfterMS < 0 {
		return fmt.Errorf("after_ms must be >= 0")
	}
	switch s.Event {
	case KindStart, KindEnd:
	case KindResult:
		if s.ResultIndex < 0 {
			return fmt.Errorf("result_index must be >= 0")
		}
	case KindError:
		if strings.TrimSpace(string(s.Error)) == "" {
			return fmt.Errorf("error event requires an error kind")
		}
	default:
		return fmt.Errorf("unknown event %q", s.Event)
	}
	return nil
}
