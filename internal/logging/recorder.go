package logging

import (
	"context"
	"sync"
)

// Entry is a single record captured by a Recorder.
type Entry struct {
	Level     LogLevel
	Component string
	Message   string
	Err       error
	Fields    map[string]any
}

// Recorder is an in-memory Logger for tests and for tooling that wants to
// inspect diagnostics (e.g. the CLI's --warnings output).
type Recorder struct {
	mu      *sync.Mutex
	entries *[]Entry

	component string
	fields    map[string]any
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		mu:      &sync.Mutex{},
		entries: &[]Entry{},
		fields:  map[string]any{},
	}
}

func (r *Recorder) Debug(_ context.Context, msg string, fields ...any) {
	r.record(LevelDebug, nil, msg, fields)
}

func (r *Recorder) Info(_ context.Context, msg string, fields ...any) {
	r.record(LevelInfo, nil, msg, fields)
}

func (r *Recorder) Warn(_ context.Context, err error, msg string, fields ...any) {
	r.record(LevelWarn, err, msg, fields)
}

func (r *Recorder) Error(_ context.Context, err error, msg string, fields ...any) {
	r.record(LevelError, err, msg, fields)
}

func (r *Recorder) With(fields ...any) Logger {
	next := *r
	next.fields = r.merge(fields)
	return &next
}

func (r *Recorder) WithComponent(component string) Logger {
	next := *r
	next.component = component
	return &next
}

// Entries returns a copy of everything recorded so far.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Entry(nil), (*r.entries)...)
}

// Filter returns the entries recorded at the given level.
func (r *Recorder) Filter(level LogLevel) []Entry {
	var out []Entry
	for _, e := range r.Entries() {
		if e.Level == level {
			out = append(out, e)
		}
	}
	return out
}

func (r *Recorder) merge(fields []any) map[string]any {
	merged := make(map[string]any, len(r.fields)+len(fields)/2)
	for k, v := range r.fields {
		merged[k] = v
	}
	for i := 0; i+1 < len(fields); i += 2 {
		if key, ok := fields[i].(string); ok {
			merged[key] = fields[i+1]
		}
	}
	return merged
}

func (r *Recorder) record(level LogLevel, err error, msg string, fields []any) {
	entry := Entry{
		Level:     level,
		Component: r.component,
		Message:   msg,
		Err:       err,
		Fields:    r.merge(fields),
	}
	r.mu.Lock()
	*r.entries = append(*r.entries, entry)
	r.mu.Unlock()
}
