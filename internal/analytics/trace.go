package analytics

import "fmt"

// Sink receives the structured log records emitted by the core. It is
// satisfied by *logging.Logger.
type Sink interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
}

// NopSink discards everything
type NopSink struct{}

func (NopSink) Debug(string, ...interface{}) {}
func (NopSink) Info(string, ...interface{})  {}
func (NopSink) Warn(string, ...interface{})  {}

// Trace is the ordered list of human-readable decision lines produced by a
// single pipeline invocation. Each line is mirrored to the sink. A Trace is
// owned by one invocation and is not safe for concurrent use. A nil *Trace
// discards lines.
type Trace struct {
	lines []string
	sink  Sink
}

// NewTrace creates an empty trace. A nil sink discards log records.
func NewTrace(sink Sink) *Trace {
	if sink == nil {
		sink = NopSink{}
	}
	return &Trace{sink: sink}
}

// Add appends a line
func (t *Trace) Add(format string, args ...interface{}) {
	if t == nil {
		return
	}
	line := fmt.Sprintf(format, args...)
	t.lines = append(t.lines, line)
	t.sink.Debug(line)
}

// Warn appends a line and reports it to the sink at warning level
func (t *Trace) Warn(format string, args ...interface{}) {
	if t == nil {
		return
	}
	line := fmt.Sprintf(format, args...)
	t.lines = append(t.lines, line)
	t.sink.Warn(line)
}

// Sink returns the sink lines are mirrored to
func (t *Trace) Sink() Sink {
	if t == nil {
		return NopSink{}
	}
	return t.sink
}

// Lines returns a copy of the recorded lines
func (t *Trace) Lines() []string {
	if t == nil {
		return nil
	}
	out := make([]string, len(t.lines))
	copy(out, t.lines)
	return out
}

// Len returns the number of recorded lines
func (t *Trace) Len() int {
	if t == nil {
		return 0
	}
	return len(t.lines)
}
