// Package batch drives preprocessing over a manifest of recordings with
// a bounded worker pool. Each recording is independent: failures and
// coverage skips are recorded in the summary, never propagated across
// workers.
package batch

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nsrrkit/psgprep/internal/annotation"
	"github.com/nsrrkit/psgprep/internal/channelmap"
	"github.com/nsrrkit/psgprep/internal/conf"
	"github.com/nsrrkit/psgprep/internal/container"
	"github.com/nsrrkit/psgprep/internal/errors"
	"github.com/nsrrkit/psgprep/internal/logging"
	"github.com/nsrrkit/psgprep/internal/modality"
	"github.com/nsrrkit/psgprep/internal/observability/metrics"
	"github.com/nsrrkit/psgprep/internal/recording"
	"github.com/nsrrkit/psgprep/internal/sigproc"
)

// Recording outcome statuses.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// Result is the outcome of one recording.
type Result struct {
	SubjectID      string                 `json:"subject_id"`
	Status         string                 `json:"status"`
	Reason         string                 `json:"reason,omitempty"`
	Channels       int                    `json:"channels,omitempty"`
	Dropped        int                    `json:"dropped,omitempty"`
	Sync           *annotation.SyncReport `json:"sync,omitempty"`
	Stages         map[string]int         `json:"stage_distribution,omitempty"`
	ElapsedSeconds float64                `json:"elapsed_seconds"`
}

// Summary aggregates a whole batch run.
type Summary struct {
	Processed         int            `json:"processed"`
	Failed            int            `json:"failed"`
	Skipped           int            `json:"skipped"`
	FailureReasons    map[string]int `json:"failure_reasons,omitempty"`
	SkipReasons       map[string]int `json:"skip_reasons,omitempty"`
	StageDistribution map[string]int `json:"stage_distribution,omitempty"`
	Results           []Result       `json:"results"`
}

// Runner executes batch preprocessing. Safe for a single Run call at a
// time; all shared state is read-only configuration.
type Runner struct {
	settings  *conf.Settings
	mapper    *channelmap.Mapper
	detector  *modality.Detector
	processor *sigproc.Processor
	annot     *annotation.Processor
	metrics   *metrics.PipelineMetrics
	log       *slog.Logger
}

// New builds a Runner. A nil metrics value disables instrumentation.
func New(settings *conf.Settings, m *metrics.PipelineMetrics) *Runner {
	return &Runner{
		settings:  settings,
		mapper:    channelmap.New(&settings.Pipeline),
		detector:  modality.New(&settings.Pipeline),
		processor: sigproc.New(&settings.Pipeline),
		annot:     annotation.NewProcessor(settings.Pipeline.EpochSeconds),
		metrics:   m,
		log:       logging.ForModule("batch"),
	}
}

// Run processes every manifest item with at most Batch.Workers in
// flight. The returned summary covers all items; the error is non-nil
// only when the parent context was canceled.
func (r *Runner) Run(ctx context.Context, items []Item) (*Summary, error) {
	if err := os.MkdirAll(r.settings.Batch.OutputDir, 0o755); err != nil {
		return nil, errors.New(err).
			Component("batch").
			Category(errors.CategoryFileIO).
			Context("output_dir", r.settings.Batch.OutputDir).
			Build()
	}

	workers := r.settings.Batch.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	results := make([]Result, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, item := range items {
		g.Go(func() error {
			rctx := gctx
			if r.settings.Batch.TimeoutSeconds > 0 {
				var cancel context.CancelFunc
				rctx, cancel = context.WithTimeout(gctx,
					time.Duration(r.settings.Batch.TimeoutSeconds)*time.Second)
				defer cancel()
			}
			results[i] = r.processOne(rctx, item)
			return nil
		})
	}
	_ = g.Wait() // workers never return errors

	summary := summarize(results)
	r.log.Info("batch complete",
		"processed", summary.Processed,
		"failed", summary.Failed,
		"skipped", summary.Skipped)
	return summary, ctx.Err()
}

// processOne runs the full pipeline for one recording. Every failure
// path produces a categorized Result; nothing here panics or aborts
// sibling recordings.
func (r *Runner) processOne(ctx context.Context, item Item) Result {
	start := time.Now()
	log := r.log.With("subject", item.SubjectID, "cohort", item.Cohort)

	res := Result{SubjectID: item.SubjectID, Status: StatusFailed}
	defer func() {
		res.ElapsedSeconds = time.Since(start).Seconds()
		if r.metrics != nil {
			r.metrics.RecordingsProcessed.WithLabelValues(res.Status).Inc()
			r.metrics.ProcessingDuration.WithLabelValues(cohortLabel(item.Cohort)).
				Observe(res.ElapsedSeconds)
			if res.Status == StatusFailed {
				r.metrics.FailureReasons.WithLabelValues(res.Reason).Inc()
			}
		}
	}()

	fail := func(stage string, err error) Result {
		res.Reason = string(errors.CategoryOf(err))
		log.Error("recording failed", "stage", stage, "error", err, "category", res.Reason)
		return res
	}

	if err := ctx.Err(); err != nil {
		return fail("start", cancellation(err))
	}

	rec, err := recording.OpenEDF(item.EDFPath)
	if err != nil {
		return fail("open", err)
	}
	defer rec.Close()

	detected := r.mapper.Resolve(rec.ChannelLabels())
	if len(detected) == 0 {
		res.Reason = string(errors.CategoryChannelMiss)
		log.Error("no channel label resolved", "labels", rec.ChannelLabels())
		return res
	}

	if ok, reason := r.detector.MeetsCoverage(detected, &r.settings.Pipeline.Coverage); !ok {
		res.Status = StatusSkipped
		res.Reason = reason
		log.Warn("coverage gate not met", "reason", reason,
			"missing", r.detector.Missing(detected))
		return res
	}

	if err := ctx.Err(); err != nil {
		return fail("condition", cancellation(err))
	}

	c, diag, err := r.processor.Condition(rec, detected)
	if err != nil {
		return fail("condition", err)
	}
	res.Channels = diag.Processed
	res.Dropped = len(diag.Dropped)
	r.recordConditioning(diag)

	var stages []int8
	if item.AnnotationPath != "" {
		stages, res.Sync, err = r.processAnnotations(item, c.Attrs.DurationSeconds)
		if err != nil {
			return fail("annotation", err)
		}
		res.Stages = annotation.Distribution(stages)
		if r.metrics != nil {
			r.metrics.SyncAdjustments.WithLabelValues(string(res.Sync.Action)).Inc()
		}
	}

	if err := ctx.Err(); err != nil {
		return fail("write", cancellation(err))
	}

	outBase := filepath.Join(r.settings.Batch.OutputDir, item.SubjectID)
	if err := container.Write(outBase+".psgc", c); err != nil {
		return fail("write", err)
	}
	if stages != nil {
		if err := container.WriteStages(outBase+".stages", stages, r.settings.Pipeline.EpochSeconds); err != nil {
			return fail("write", err)
		}
	}

	res.Status = StatusSuccess
	res.Reason = ""
	log.Info("recording processed",
		"channels", res.Channels,
		"dropped", res.Dropped,
		"elapsed", time.Since(start).Round(time.Millisecond))
	return res
}

// processAnnotations parses the cohort's annotation file and reconciles
// the stage array against the signal duration.
func (r *Runner) processAnnotations(item Item, signalDuration float64) ([]int8, *annotation.SyncReport, error) {
	src, ok := annotation.SourceFor(item.Cohort)
	if !ok {
		return nil, nil, errors.Newf("no annotation adapter for cohort %q", item.Cohort).
			Component("batch").
			Category(errors.CategoryAnnotationParse).
			Context("cohort", item.Cohort).
			Build()
	}

	f, err := os.Open(item.AnnotationPath)
	if err != nil {
		return nil, nil, errors.New(err).
			Component("batch").
			Category(errors.CategoryFileIO).
			Context("path", item.AnnotationPath).
			Build()
	}
	defer f.Close()

	events, err := src.Parse(f)
	if err != nil {
		return nil, nil, err
	}

	grid := r.annot.ToFixedGrid(events)
	synced, report := r.annot.Synchronize(grid, signalDuration)
	return synced, &report, nil
}

func (r *Runner) recordConditioning(diag sigproc.Diagnostics) {
	if r.metrics == nil {
		return
	}
	for group, n := range diag.GroupCounts {
		r.metrics.ChannelsProcessed.WithLabelValues(group).Add(float64(n))
	}
	for _, reason := range diag.Dropped {
		r.metrics.ChannelsDropped.WithLabelValues(reason).Inc()
	}
}

func summarize(results []Result) *Summary {
	s := &Summary{
		FailureReasons:    make(map[string]int),
		SkipReasons:       make(map[string]int),
		StageDistribution: make(map[string]int),
		Results:           results,
	}
	for i := range results {
		res := &results[i]
		switch res.Status {
		case StatusSuccess:
			s.Processed++
		case StatusSkipped:
			s.Skipped++
			s.SkipReasons[res.Reason]++
		default:
			s.Failed++
			s.FailureReasons[res.Reason]++
		}
		for stage, n := range res.Stages {
			s.StageDistribution[stage] += n
		}
	}
	return s
}

func cancellation(err error) error {
	return errors.New(err).
		Component("batch").
		Category(errors.CategoryCancellation).
		Build()
}

func cohortLabel(cohort string) string {
	if cohort == "" {
		return "unknown"
	}
	return cohort
}
