package batch

import (
	"fmt"
	"io"
	"time"
)

// EventKind is the outcome of one output task.
type EventKind int

const (
	// Written means the transform ran and its output was stored.
	Written EventKind = iota
	// Skipped means the output already existed and nothing ran.
	Skipped
	// Failed means the task produced no output.
	Failed
)

func (k EventKind) String() string {
	switch k {
	case Written:
		return "written"
	case Skipped:
		return "skipped"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is the signal emitted once per (source, variant) task.
type Event struct {
	Kind     EventKind
	Source   string
	Output   string
	Variant  string
	Bytes    int
	Duration time.Duration
	Err      error
}

// Reporter receives task events. Run calls it from a single goroutine.
type Reporter interface {
	Report(Event)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(Event)

// Report calls f(e).
func (f ReporterFunc) Report(e Event) { f(e) }

// ConsoleReporter prints one line per output: a skipped marker when the
// file already existed, a written marker otherwise, and the error for
// failures.
type ConsoleReporter struct {
	Out io.Writer
}

// Report prints e.
func (c ConsoleReporter) Report(e Event) {
	switch e.Kind {
	case Written:
		fmt.Fprintf(c.Out, "☑️  written  %s\n", e.Output)
	case Skipped:
		fmt.Fprintf(c.Out, "⚠️  skipped  %s\n", e.Output)
	case Failed:
		fmt.Fprintf(c.Out, "❌ failed   %s: %v\n", e.Output, e.Err)
	}
}

// TaskError attaches the source, variant and output path to a task failure.
type TaskError struct {
	Source  string
	Variant string
	Output  string
	Err     error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("%s [%s] -> %s: %v", e.Source, e.Variant, e.Output, e.Err)
}

func (e *TaskError) Unwrap() error { return e.Err }

// Summary aggregates the events of one run.
type Summary struct {
	Written int
	Skipped int
	Failed  int

	// Outputs lists every output present after the run (written or skipped).
	Outputs []string
	// Errors lists every failed task.
	Errors []*TaskError
}

func (s *Summary) add(e Event) {
	switch e.Kind {
	case Written:
		s.Written++
		s.Outputs = append(s.Outputs, e.Output)
	case Skipped:
		s.Skipped++
		s.Outputs = append(s.Outputs, e.Output)
	case Failed:
		s.Failed++
		s.Errors = append(s.Errors, &TaskError{Source: e.Source, Variant: e.Variant, Output: e.Output, Err: e.Err})
	}
}

// Merge adds other's counts and lists to s.
func (s *Summary) Merge(other Summary) {
	s.Written += other.Written
	s.Skipped += other.Skipped
	s.Failed += other.Failed
	s.Outputs = append(s.Outputs, other.Outputs...)
	s.Errors = append(s.Errors, other.Errors...)
}

// OK reports whether no task failed.
func (s Summary) OK() bool {
	return s.Failed == 0
}
