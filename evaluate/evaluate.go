// Package evaluate runs tasks over dataset items and scores the results.
package evaluate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	lumetric "github.com/lumetric/lumetric-go"
)

// Task produces an output for one dataset item. Errors returned (or panics
// raised) by a task are captured per item and recorded as score reasons;
// they never abort the run.
type Task func(ctx context.Context, item lumetric.DatasetItem) (map[string]any, error)

// Options configures an evaluation run.
type Options struct {
	// ExperimentName labels the run's traces. Defaults to "evaluation".
	ExperimentName string

	// ProjectName overrides the destination project for the run's traces.
	ProjectName string

	// Workers is the number of items evaluated concurrently. Defaults to 4.
	Workers int

	// Metrics score each item's output. A run without metrics still
	// produces traces, just no scores.
	Metrics []Metric

	// Logger receives per-item progress. Defaults to a nop logger.
	Logger *zap.Logger
}

// TestResult is the outcome of evaluating a single dataset item.
type TestResult struct {
	Item    lumetric.DatasetItem
	TraceID string
	Output  map[string]any
	Scores  []ScoreResult

	// TaskError holds the task's error message when the task failed.
	// The same message is recorded as the Reason of the item's scores.
	TaskError string
}

// Result is the aggregate outcome of an evaluation run.
type Result struct {
	ExperimentName string
	DatasetName    string
	StartedAt      time.Time
	Duration       time.Duration
	TestResults    []TestResult
}

// FailedCount returns the number of items whose task failed.
func (r *Result) FailedCount() int {
	failed := 0
	for _, tr := range r.TestResults {
		if tr.TaskError != "" {
			failed++
		}
	}
	return failed
}

// Run evaluates every item of the dataset with the task, scores the outputs
// with the configured metrics, and logs one trace plus feedback scores per
// item through the client. Run flushes the client before returning so the
// run's records are delivered.
func Run(ctx context.Context, client *lumetric.Client, dataset *lumetric.Dataset, task Task, opts Options) (*Result, error) {
	if client == nil {
		return nil, fmt.Errorf("evaluate: client is required")
	}
	if task == nil {
		return nil, fmt.Errorf("evaluate: task is required")
	}
	if opts.ExperimentName == "" {
		opts.ExperimentName = "evaluation"
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	items, err := dataset.Items(ctx)
	if err != nil {
		return nil, fmt.Errorf("evaluate: failed to load dataset items: %w", err)
	}

	started := time.Now().UTC()
	result := &Result{
		ExperimentName: opts.ExperimentName,
		DatasetName:    dataset.Name(),
		StartedAt:      started,
		TestResults:    make([]TestResult, 0, len(items)),
	}

	jobs := make(chan lumetric.DatasetItem)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range jobs {
				tr := runItem(ctx, client, task, item, opts)
				mu.Lock()
				result.TestResults = append(result.TestResults, tr)
				mu.Unlock()
			}
		}()
	}

	for _, item := range items {
		select {
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return result, ctx.Err()
		case jobs <- item:
		}
	}
	close(jobs)
	wg.Wait()

	result.Duration = time.Since(started)

	opts.Logger.Info("evaluation finished",
		zap.String("experiment", opts.ExperimentName),
		zap.String("dataset", dataset.Name()),
		zap.Int("items", len(result.TestResults)),
		zap.Int("failed", result.FailedCount()),
		zap.Duration("duration", result.Duration),
	)

	client.Flush()

	return result, nil
}

func runItem(ctx context.Context, client *lumetric.Client, task Task, item lumetric.DatasetItem, opts Options) TestResult {
	trace := client.Trace(ctx, lumetric.TraceOptions{
		Name:        opts.ExperimentName,
		ProjectName: opts.ProjectName,
		Input:       item.Input,
		Metadata: map[string]any{
			"dataset_item_id": item.ID,
			"experiment":      opts.ExperimentName,
		},
		Tags: []string{"evaluation"},
	})

	output, err := safeTask(ctx, task, item)

	tr := TestResult{
		Item:    item,
		TraceID: trace.ID(),
		Output:  output,
	}

	if err != nil {
		tr.TaskError = err.Error()
		tr.Scores = errorScores(opts.Metrics, err)
		trace.Update(lumetric.TraceUpdateOptions{
			Metadata: map[string]any{"error": err.Error()},
		})
		opts.Logger.Warn("evaluation task failed",
			zap.String("trace_id", trace.ID()),
			zap.String("dataset_item_id", item.ID),
			zap.Error(err),
		)
	} else {
		input := MetricInput{Item: item, Output: output}
		for _, metric := range opts.Metrics {
			score, scoreErr := metric.Score(input)
			if scoreErr != nil {
				// A failing metric is recorded the same way as a failing
				// task: zero value, message as reason.
				score = ScoreResult{Name: metric.Name(), Value: 0, Reason: scoreErr.Error()}
			}
			tr.Scores = append(tr.Scores, score)
		}
	}

	feedback := make([]lumetric.FeedbackScore, 0, len(tr.Scores))
	for _, score := range tr.Scores {
		feedback = append(feedback, lumetric.FeedbackScore{
			TraceID: trace.ID(),
			Name:    score.Name,
			Value:   score.Value,
			Reason:  score.Reason,
		})
	}
	if len(feedback) > 0 {
		client.LogFeedbackScores(feedback...)
	}

	var traceOutput any
	if output != nil {
		traceOutput = output
	}
	trace.End(&lumetric.TraceEndOptions{Output: traceOutput})

	return tr
}

// safeTask invokes the task, converting panics into errors so one bad item
// cannot take down the run.
func safeTask(ctx context.Context, task Task, item lumetric.DatasetItem) (output map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			output = nil
			err = fmt.Errorf("task panic: %v", r)
		}
	}()
	return task(ctx, item)
}

// errorScores produces one zero-valued score per metric carrying the task
// error as reason. With no metrics configured, a single "task" score is
// produced so the failure is still visible on the trace.
func errorScores(metrics []Metric, err error) []ScoreResult {
	if len(metrics) == 0 {
		return []ScoreResult{{Name: "task", Value: 0, Reason: err.Error()}}
	}

	scores := make([]ScoreResult, 0, len(metrics))
	for _, metric := range metrics {
		scores = append(scores, ScoreResult{Name: metric.Name(), Value: 0, Reason: err.Error()})
	}
	return scores
}
