// Package lumetric provides the Go SDK for the Lumetric LLM observability platform.
//
// Example usage:
//
//	client := lumetric.New(lumetric.Config{
//		APIKey:      "your-api-key",
//		Host:        "https://api.lumetric.io",
//		ProjectName: "my-project",
//	})
//	defer client.Shutdown()
//
//	ctx := context.Background()
//	trace := client.Trace(ctx, lumetric.TraceOptions{
//		Name:  "chat-completion",
//		Input: map[string]any{"question": "Hello"},
//	})
//
//	span := trace.Span(lumetric.SpanOptions{
//		Name:  "llm-call",
//		Type:  lumetric.SpanTypeLLM,
//		Model: "gpt-4o",
//		Input: map[string]any{"prompt": "Hello"},
//	})
//	span.End(&lumetric.SpanEndOptions{Output: "Hi there!"})
//
//	trace.End(nil)
//	client.Flush()
package lumetric

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zoobzio/clockz"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	// DefaultHost is the Lumetric ingestion endpoint used when none is configured.
	DefaultHost = "https://api.lumetric.io"

	// DefaultMaxQueueSize is the maximum number of records in the queue before dropping oldest.
	DefaultMaxQueueSize = 10000

	ingestionPath = "/api/public/ingestion"
	userAgent     = "lumetric-go/0.2.0"
)

// Config holds the configuration for the Lumetric client.
type Config struct {
	// APIKey is the API key for authentication.
	APIKey string

	// Host is the Lumetric API host URL.
	Host string

	// ProjectName is the destination project for traces. Falls back to
	// the LUMETRIC_PROJECT_NAME environment variable, then to "default".
	ProjectName string

	// Workspace is an optional workspace override sent with every request.
	Workspace string

	// Enabled controls whether tracing is enabled. Defaults to true.
	Enabled *bool

	// FlushAt is the number of records before auto-flush. Defaults to 20.
	FlushAt int

	// FlushInterval is the duration between auto-flushes. Defaults to 5 seconds.
	FlushInterval time.Duration

	// MaxRetries is the number of attempts for failed batch sends. Defaults to 3.
	MaxRetries int

	// Timeout is the per-request timeout. Defaults to 10 seconds.
	Timeout time.Duration

	// MaxQueueSize is the maximum number of records in the queue. Defaults
	// to 10000. When exceeded, oldest records are dropped.
	MaxQueueSize int

	// RateLimit is the maximum number of outbound API requests per second.
	// Defaults to 50.
	RateLimit float64

	// RateBurst is the burst allowance for RateLimit. Defaults to 100.
	RateBurst int

	// Logger receives diagnostic output from background operations.
	// Defaults to a nop logger.
	Logger *zap.Logger

	// OnError is an optional callback for errors that occur during
	// background operations like flushing. If nil, errors go to Logger.
	OnError func(err error)
}

// record is a single queued ingestion record.
type record struct {
	Type string         `json:"type"`
	Body map[string]any `json:"body"`
}

// Client is the main Lumetric client.
type Client struct {
	config     Config
	logger     *zap.Logger
	httpClient *http.Client
	limiter    *rate.Limiter
	clock      clockz.Clock

	queue     []record
	queueMu   sync.Mutex
	sendMu    sync.Mutex
	flushCh   chan struct{}
	doneCh    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
	dropped   int64

	prompts  *promptCache
	datasets sync.Map // dataset name -> *Dataset, so dedup state survives re-lookups
}

// New creates a new Lumetric client and registers it as the global client.
func New(config Config) *Client {
	return newClient(config, clockz.RealClock)
}

func newClient(config Config, clock clockz.Clock) *Client {
	if config.Host == "" {
		config.Host = DefaultHost
	}
	if config.ProjectName == "" {
		config.ProjectName = os.Getenv("LUMETRIC_PROJECT_NAME")
	}
	if config.ProjectName == "" {
		config.ProjectName = "default"
	}
	if config.Enabled == nil {
		enabled := true
		config.Enabled = &enabled
	}
	if config.FlushAt == 0 {
		config.FlushAt = 20
	}
	if config.FlushInterval == 0 {
		config.FlushInterval = 5 * time.Second
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = 3
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.MaxQueueSize == 0 {
		config.MaxQueueSize = DefaultMaxQueueSize
	}
	if config.RateLimit == 0 {
		config.RateLimit = 50
	}
	if config.RateBurst == 0 {
		config.RateBurst = 100
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	c := &Client{
		config: config,
		logger: config.Logger,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), config.RateBurst),
		clock:   clock,
		queue:   make([]record, 0),
		flushCh: make(chan struct{}, 1),
		doneCh:  make(chan struct{}),
		prompts: newPromptCache(),
	}

	c.wg.Add(1)
	go c.flushLoop()

	SetGlobalClient(c)

	return c
}

// Enabled returns whether tracing is enabled.
func (c *Client) Enabled() bool {
	return c.config.Enabled != nil && *c.config.Enabled
}

// ProjectName returns the configured destination project.
func (c *Client) ProjectName() string {
	return c.config.ProjectName
}

// Trace creates a new trace. The call queues a trace-create record and
// returns immediately; transmission happens on the background worker.
func (c *Client) Trace(ctx context.Context, opts TraceOptions) *Trace {
	if opts.ID == "" {
		opts.ID = uuid.New().String()
	}

	projectName := opts.ProjectName
	if projectName == "" {
		projectName = c.config.ProjectName
	}

	trace := &Trace{
		client:      c,
		id:          opts.ID,
		name:        opts.Name,
		projectName: projectName,
		threadID:    opts.ThreadID,
		metadata:    opts.Metadata,
		tags:        opts.Tags,
		input:       opts.Input,
		output:      opts.Output,
		startTime:   c.clock.Now().UTC(),
	}

	if trace.metadata == nil {
		trace.metadata = make(map[string]any)
	}
	if trace.tags == nil {
		trace.tags = []string{}
	}

	trace.sendCreate()

	return trace
}

// FeedbackScore is a named numeric annotation attached to a trace or span
// after the fact. Exactly one of TraceID or SpanID should be set.
type FeedbackScore struct {
	TraceID      string
	SpanID       string
	Name         string
	Value        float64
	Reason       string
	CategoryName string
}

// LogFeedbackScores attaches scores to previously created traces or spans
// by identifier. Fire-and-forget: entries without a name or target are
// dropped with a diagnostic, never an error.
func (c *Client) LogFeedbackScores(scores ...FeedbackScore) {
	if !c.Enabled() {
		return
	}

	for _, score := range scores {
		if score.Name == "" || (score.TraceID == "" && score.SpanID == "") {
			c.reportError(fmt.Errorf("lumetric: skipping feedback score without name or target id"))
			continue
		}

		c.addRecord(record{
			Type: "score-create",
			Body: map[string]any{
				"id":           uuid.New().String(),
				"traceId":      score.TraceID,
				"spanId":       score.SpanID,
				"name":         score.Name,
				"value":        score.Value,
				"reason":       score.Reason,
				"categoryName": score.CategoryName,
				"source":       "sdk",
			},
		})
	}
}

// Flush sends all records queued before the call and blocks until they
// have been transmitted, including batches a background flush already
// has in flight. Records queued concurrently ride the next flush.
func (c *Client) Flush() {
	c.queueMu.Lock()
	records := c.queue
	c.queue = make([]record, 0)
	c.queueMu.Unlock()

	// Sends are serialized, so taking the lock also waits out any batch
	// the background worker is still transmitting.
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	c.sendBatch(context.Background(), records)
}

// Shutdown stops the background worker and flushes remaining records.
// Safe to call more than once.
func (c *Client) Shutdown() {
	c.closeOnce.Do(func() { close(c.doneCh) })
	c.wg.Wait()
	c.Flush()
}

// DroppedRecords returns the total number of records dropped due to queue overflow.
func (c *Client) DroppedRecords() int64 {
	c.queueMu.Lock()
	defer c.queueMu.Unlock()
	return c.dropped
}

func (c *Client) addRecord(rec record) {
	c.queueMu.Lock()

	// Enforce queue size limit - drop oldest records if necessary.
	if len(c.queue) >= c.config.MaxQueueSize {
		over := len(c.queue) - c.config.MaxQueueSize + 1
		c.queue = c.queue[over:]
		c.dropped += int64(over)
		c.reportError(fmt.Errorf("lumetric: queue overflow, dropped %d records (total dropped: %d)", over, c.dropped))
	}

	c.queue = append(c.queue, rec)
	shouldFlush := len(c.queue) >= c.config.FlushAt
	c.queueMu.Unlock()

	if shouldFlush {
		select {
		case c.flushCh <- struct{}{}:
		default:
		}
	}
}

func (c *Client) flushLoop() {
	defer c.wg.Done()

	for {
		select {
		case <-c.doneCh:
			return
		case <-c.flushCh:
			c.Flush()
		case <-c.clock.After(c.config.FlushInterval):
			c.Flush()
		}
	}
}

func (c *Client) sendBatch(ctx context.Context, records []record) {
	if len(records) == 0 {
		return
	}

	payload := map[string]any{
		"batch": records,
	}

	data, err := json.Marshal(payload)
	if err != nil {
		c.reportError(fmt.Errorf("lumetric: failed to marshal batch: %w", err))
		return
	}

	url := c.config.Host + ingestionPath

	var lastErr error
	for attempt := 0; attempt < c.config.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			c.reportError(fmt.Errorf("lumetric: context cancelled: %w", ctx.Err()))
			return
		}

		if err := c.limiter.Wait(ctx); err != nil {
			c.reportError(fmt.Errorf("lumetric: rate limit wait: %w", err))
			return
		}

		reqCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)

		req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(data))
		if err != nil {
			cancel()
			lastErr = fmt.Errorf("failed to create request: %w", err)
			continue
		}
		c.setHeaders(req)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		cancel()

		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			if ctx.Err() != nil {
				c.reportError(fmt.Errorf("lumetric: context cancelled during request: %w", ctx.Err()))
				return
			}
			c.backoff(ctx, time.Duration(1<<attempt)*500*time.Millisecond)
			continue
		}
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			c.logger.Debug("flushed batch",
				zap.Int("records", len(records)),
				zap.Int("attempt", attempt+1),
			)
			return
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			retryAfter := 5
			if h := resp.Header.Get("Retry-After"); h != "" {
				fmt.Sscanf(h, "%d", &retryAfter)
			}
			lastErr = fmt.Errorf("rate limited (429), retry after %ds", retryAfter)
			c.backoff(ctx, time.Duration(retryAfter)*time.Second)
			continue
		}

		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
			c.backoff(ctx, time.Duration(1<<attempt)*500*time.Millisecond)
			continue
		}

		// Client error - don't retry.
		c.reportError(fmt.Errorf("lumetric: client error %d, not retrying", resp.StatusCode))
		return
	}

	if lastErr != nil {
		c.reportError(fmt.Errorf("lumetric: failed after %d attempts: %w", c.config.MaxRetries, lastErr))
	}
}

func (c *Client) backoff(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-c.clock.After(d):
	}
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	req.Header.Set("User-Agent", userAgent)
	if c.config.Workspace != "" {
		req.Header.Set("X-Lumetric-Workspace", c.config.Workspace)
	}
}

// request performs a synchronous authenticated JSON call against the REST
// API. Used by the dataset and prompt surfaces, never by the ingestion path.
func (c *Client) request(ctx context.Context, method, path string, body, out any) (int, error) {
	var buf *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal request body: %w", err)
		}
		buf = bytes.NewReader(data)
	} else {
		buf = bytes.NewReader(nil)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return 0, fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.Host+path, buf)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return resp.StatusCode, nil
}

// reportError reports an error using the configured callback or the logger.
func (c *Client) reportError(err error) {
	if c.config.OnError != nil {
		c.config.OnError(err)
		return
	}
	c.logger.Warn("background operation failed", zap.Error(err))
}

// TraceOptions holds options for creating a trace.
type TraceOptions struct {
	Name        string
	ID          string
	ProjectName string
	ThreadID    string
	Metadata    map[string]any
	Tags        []string
	Input       any
	Output      any
}
