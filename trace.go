package lumetric

import (
	"time"
)

// Trace is the top-level record of one end-to-end operation. It holds a
// name, free-form input/output payloads, tags, and an ordered set of spans.
type Trace struct {
	client      *Client
	id          string
	name        string
	projectName string
	threadID    string
	metadata    map[string]any
	tags        []string
	input       any
	output      any
	startTime   time.Time
	endTime     *time.Time
	ended       bool
}

// ID returns the trace ID.
func (t *Trace) ID() string {
	return t.id
}

// Name returns the trace name.
func (t *Trace) Name() string {
	return t.name
}

// ProjectName returns the destination project of the trace.
func (t *Trace) ProjectName() string {
	return t.projectName
}

func (t *Trace) sendCreate() {
	if !t.client.Enabled() {
		return
	}

	t.client.addRecord(record{
		Type: "trace-create",
		Body: map[string]any{
			"id":          t.id,
			"name":        t.name,
			"projectName": t.projectName,
			"threadId":    t.threadID,
			"metadata":    t.metadata,
			"tags":        t.tags,
			"input":       t.input,
			"output":      t.output,
			"startTime":   t.startTime.Format(time.RFC3339Nano),
		},
	})
}

// Span creates a span under this trace. Use SpanOptions.ParentSpanID or
// Span.Span to nest spans.
func (t *Trace) Span(opts SpanOptions) *Span {
	return newSpan(t.client, t.id, opts)
}

// TraceUpdateOptions holds options for updating a trace.
type TraceUpdateOptions struct {
	Name     *string
	ThreadID *string
	Metadata map[string]any
	Tags     []string
	Input    any
	Output   any
}

// Update updates the trace properties and queues a trace-update record.
func (t *Trace) Update(opts TraceUpdateOptions) {
	if opts.Name != nil {
		t.name = *opts.Name
	}
	if opts.ThreadID != nil {
		t.threadID = *opts.ThreadID
	}
	if opts.Metadata != nil {
		for k, v := range opts.Metadata {
			t.metadata[k] = v
		}
	}
	if opts.Tags != nil {
		t.tags = opts.Tags
	}
	if opts.Input != nil {
		t.input = opts.Input
	}
	if opts.Output != nil {
		t.output = opts.Output
	}

	if !t.client.Enabled() {
		return
	}

	body := map[string]any{
		"id":          t.id,
		"name":        t.name,
		"projectName": t.projectName,
		"threadId":    t.threadID,
		"metadata":    t.metadata,
		"tags":        t.tags,
		"input":       t.input,
		"output":      t.output,
	}
	if t.endTime != nil {
		body["endTime"] = t.endTime.Format(time.RFC3339Nano)
	}

	t.client.addRecord(record{
		Type: "trace-update",
		Body: body,
	})
}

// TraceEndOptions holds options for ending a trace.
type TraceEndOptions struct {
	Output any
}

// End marks the trace completed and records the completion timestamp.
// Calling End more than once has no effect.
func (t *Trace) End(opts *TraceEndOptions) {
	if t.ended {
		return
	}

	t.ended = true
	now := t.client.clock.Now().UTC()
	t.endTime = &now

	if opts != nil && opts.Output != nil {
		t.output = opts.Output
	}

	t.Update(TraceUpdateOptions{Output: t.output})
}

// EndTime returns the completion timestamp, or nil while the trace is open.
func (t *Trace) EndTime() *time.Time {
	return t.endTime
}

// Score attaches a feedback score to this trace.
func (t *Trace) Score(name string, value float64, opts *ScoreAddOptions) {
	score := FeedbackScore{
		TraceID: t.id,
		Name:    name,
		Value:   value,
	}
	if opts != nil {
		score.Reason = opts.Reason
		score.CategoryName = opts.CategoryName
	}

	t.client.LogFeedbackScores(score)
}

// ScoreAddOptions holds additional options for attaching a score.
type ScoreAddOptions struct {
	Reason       string
	CategoryName string
}
