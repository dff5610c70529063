package lumetric

import (
	"time"

	"github.com/google/uuid"
)

// SpanType tags a span with the kind of work it records.
type SpanType string

const (
	SpanTypeGeneral SpanType = "general"
	SpanTypeLLM     SpanType = "llm"
	SpanTypeTool    SpanType = "tool"
)

// SpanOptions holds options for creating a span.
type SpanOptions struct {
	Name         string
	ID           string
	Type         SpanType
	ParentSpanID string
	Metadata     map[string]any
	Tags         []string
	Input        any
	Output       any

	// Model and Provider annotate llm-type spans.
	Model    string
	Provider string
}

// Span is a sub-operation within a trace. Spans may nest: a span created
// through Span.Span is parented to that span rather than the trace root.
type Span struct {
	client       *Client
	traceID      string
	id           string
	parentSpanID string
	name         string
	spanType     SpanType
	model        string
	provider     string
	metadata     map[string]any
	tags         []string
	input        any
	output       any
	usage        *Usage
	startTime    time.Time
	endTime      *time.Time
	ended        bool
}

// Usage holds token usage for llm-type spans.
type Usage struct {
	PromptTokens     int `json:"promptTokens,omitempty"`
	CompletionTokens int `json:"completionTokens,omitempty"`
	TotalTokens      int `json:"totalTokens,omitempty"`
}

func newSpan(client *Client, traceID string, opts SpanOptions) *Span {
	if opts.ID == "" {
		opts.ID = uuid.New().String()
	}
	if opts.Type == "" {
		opts.Type = SpanTypeGeneral
	}

	span := &Span{
		client:       client,
		traceID:      traceID,
		id:           opts.ID,
		parentSpanID: opts.ParentSpanID,
		name:         opts.Name,
		spanType:     opts.Type,
		model:        opts.Model,
		provider:     opts.Provider,
		metadata:     opts.Metadata,
		tags:         opts.Tags,
		input:        opts.Input,
		output:       opts.Output,
		startTime:    client.clock.Now().UTC(),
	}

	if span.metadata == nil {
		span.metadata = make(map[string]any)
	}

	span.sendCreate()
	return span
}

// ID returns the span ID.
func (s *Span) ID() string {
	return s.id
}

// TraceID returns the ID of the trace this span belongs to.
func (s *Span) TraceID() string {
	return s.traceID
}

// ParentSpanID returns the parent span ID, or "" for a root-level span.
func (s *Span) ParentSpanID() string {
	return s.parentSpanID
}

// Type returns the span type tag.
func (s *Span) Type() SpanType {
	return s.spanType
}

// Span creates a child span nested under this span.
func (s *Span) Span(opts SpanOptions) *Span {
	if opts.ParentSpanID == "" {
		opts.ParentSpanID = s.id
	}
	return newSpan(s.client, s.traceID, opts)
}

func (s *Span) sendCreate() {
	if !s.client.Enabled() {
		return
	}

	s.client.addRecord(record{
		Type: "span-create",
		Body: map[string]any{
			"id":           s.id,
			"traceId":      s.traceID,
			"parentSpanId": s.parentSpanID,
			"name":         s.name,
			"type":         string(s.spanType),
			"model":        s.model,
			"provider":     s.provider,
			"metadata":     s.metadata,
			"tags":         s.tags,
			"input":        s.input,
			"output":       s.output,
			"startTime":    s.startTime.Format(time.RFC3339Nano),
		},
	})
}

// SpanUpdateOptions holds options for updating a span.
type SpanUpdateOptions struct {
	Metadata map[string]any
	Tags     []string
	Input    any
	Output   any
	Usage    *Usage
	Model    string
}

// Update updates the span properties and queues a span-update record.
func (s *Span) Update(opts SpanUpdateOptions) {
	if opts.Metadata != nil {
		for k, v := range opts.Metadata {
			s.metadata[k] = v
		}
	}
	if opts.Tags != nil {
		s.tags = opts.Tags
	}
	if opts.Input != nil {
		s.input = opts.Input
	}
	if opts.Output != nil {
		s.output = opts.Output
	}
	if opts.Usage != nil {
		s.usage = opts.Usage
	}
	if opts.Model != "" {
		s.model = opts.Model
	}

	if !s.client.Enabled() {
		return
	}

	s.client.addRecord(record{
		Type: "span-update",
		Body: s.updateBody(),
	})
}

// SpanEndOptions holds options for ending a span.
type SpanEndOptions struct {
	Output any
	Usage  *Usage
	Model  string
}

// End marks the span completed and records the completion timestamp.
// Calling End more than once has no effect.
func (s *Span) End(opts *SpanEndOptions) {
	if s.ended {
		return
	}

	s.ended = true
	now := s.client.clock.Now().UTC()
	s.endTime = &now

	if opts != nil {
		if opts.Output != nil {
			s.output = opts.Output
		}
		if opts.Usage != nil {
			s.usage = opts.Usage
		}
		if opts.Model != "" {
			s.model = opts.Model
		}
	}

	if !s.client.Enabled() {
		return
	}

	s.client.addRecord(record{
		Type: "span-update",
		Body: s.updateBody(),
	})
}

func (s *Span) updateBody() map[string]any {
	body := map[string]any{
		"id":       s.id,
		"traceId":  s.traceID,
		"metadata": s.metadata,
		"input":    s.input,
		"output":   s.output,
		"model":    s.model,
	}
	if s.tags != nil {
		body["tags"] = s.tags
	}
	if s.usage != nil {
		body["usage"] = map[string]any{
			"promptTokens":     s.usage.PromptTokens,
			"completionTokens": s.usage.CompletionTokens,
			"totalTokens":      s.usage.TotalTokens,
		}
	}
	if s.endTime != nil {
		body["endTime"] = s.endTime.Format(time.RFC3339Nano)
	}
	return body
}

// EndTime returns the completion timestamp, or nil while the span is open.
func (s *Span) EndTime() *time.Time {
	return s.endTime
}

// Score attaches a feedback score to this span.
func (s *Span) Score(name string, value float64, opts *ScoreAddOptions) {
	score := FeedbackScore{
		SpanID: s.id,
		Name:   name,
		Value:  value,
	}
	if opts != nil {
		score.Reason = opts.Reason
		score.CategoryName = opts.CategoryName
	}

	s.client.LogFeedbackScores(score)
}
