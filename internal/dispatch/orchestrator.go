package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mr1hm/go-drone-routes/internal/mapview"
	"github.com/mr1hm/go-drone-routes/internal/metrics"
	"github.com/mr1hm/go-drone-routes/internal/models"
	"github.com/mr1hm/go-drone-routes/internal/plan"
)

// RunRecorder accepts journal entries. It must not block for long.
type RunRecorder interface {
	Submit(run *models.Run)
}

// Publisher is told about every snapshot the orchestrator applies.
type Publisher interface {
	Publish(snap mapview.Snapshot)
}

// Outcome is the result of a submission that reached the map view.
type Outcome struct {
	RunID    string
	Seq      uint64
	Echo     string // pretty-printed planner response
	Plan     models.DeliveryPlan
	Report   plan.Report
	Stats    mapview.RenderStats
	Viewport *models.Viewport // nil when there was nothing to fit
	Snapshot mapview.Snapshot
}

// Orchestrator runs the submit → parse → render → fit pipeline against one
// map view. Only the most recently issued submission may change the view:
// issuing a new one cancels the request of the previous one.
type Orchestrator struct {
	planner   Planner
	view      *mapview.MapView
	recorder  RunRecorder
	publisher Publisher

	mu     sync.Mutex
	seq    uint64
	cancel context.CancelFunc
}

// NewOrchestrator wires the pipeline. recorder and publisher may be nil.
func NewOrchestrator(planner Planner, view *mapview.MapView, recorder RunRecorder, publisher Publisher) *Orchestrator {
	return &Orchestrator{
		planner:   planner,
		view:      view,
		recorder:  recorder,
		publisher: publisher,
	}
}

// Submit sends input to the planner and, on success, redraws the map view.
// Errors are *TransportError, *HTTPError, *DecodeError or ErrSuperseded; in
// every error case the map view is left as it was.
func (o *Orchestrator) Submit(ctx context.Context, input string) (*Outcome, error) {
	run := &models.Run{
		ID:         uuid.NewString(),
		InputBytes: len(input),
		StartedAt:  time.Now(),
	}

	reqCtx, seq := o.begin(ctx)
	defer o.end(seq)
	run.Seq = seq

	out, err := o.run(reqCtx, seq, input, run)
	o.finish(run, err)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Seq returns the sequence number of the most recently issued submission.
func (o *Orchestrator) Seq() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.seq
}

func (o *Orchestrator) begin(ctx context.Context) (context.Context, uint64) {
	reqCtx, cancel := context.WithCancel(ctx)

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancel != nil {
		o.cancel()
	}
	o.seq++
	o.cancel = cancel
	return reqCtx, o.seq
}

func (o *Orchestrator) end(seq uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.seq == seq && o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
}

func (o *Orchestrator) latest(seq uint64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.seq == seq
}

func (o *Orchestrator) run(ctx context.Context, seq uint64, input string, run *models.Run) (*Outcome, error) {
	body, err := o.planner.CalcDeliveryPath(ctx, input)
	if err != nil {
		if !o.latest(seq) {
			return nil, ErrSuperseded
		}
		var httpErr *HTTPError
		if errors.As(err, &httpErr) {
			run.HTTPStatus = httpErr.Status
		}
		return nil, err
	}

	var echo bytes.Buffer
	if err := json.Indent(&echo, bytes.TrimSpace(body), "", "  "); err != nil {
		return nil, &DecodeError{Err: err}
	}

	p, report := plan.Parse(body)
	if report.Total() > 0 {
		slog.Info("skipped malformed plan entries",
			"run_id", run.ID,
			"drone_paths", report.SkippedDronePaths,
			"deliveries", report.SkippedDeliveries,
			"points", report.DroppedPoints,
		)
	}
	metrics.RecordSkipped(report.SkippedDronePaths, report.SkippedDeliveries, report.DroppedPoints)
	run.Skipped = report.Total()

	out := &Outcome{
		RunID:  run.ID,
		Seq:    seq,
		Echo:   echo.String(),
		Plan:   p,
		Report: report,
	}

	overlays, stats := mapview.BuildOverlays(p)
	out.Stats = stats

	// Apply under the lock so a newer submission cannot interleave. Show swaps
	// the overlays and fits the view to them as one change.
	o.mu.Lock()
	if o.seq != seq {
		o.mu.Unlock()
		return nil, ErrSuperseded
	}
	out.Viewport, out.Snapshot = o.view.Show(overlays)
	o.mu.Unlock()

	metrics.SetOverlays(out.Stats.Lines, out.Stats.Markers)
	if o.publisher != nil {
		o.publisher.Publish(out.Snapshot)
	}

	run.Lines = out.Stats.Lines
	run.Markers = out.Stats.Markers
	run.Bounds = out.Viewport
	return out, nil
}

func (o *Orchestrator) finish(run *models.Run, err error) {
	run.Duration = time.Since(run.StartedAt)
	run.Outcome = outcomeOf(err)
	if err != nil {
		run.Error = Message(err)
	}

	metrics.ObserveDispatch(string(run.Outcome), run.Duration)

	switch run.Outcome {
	case models.RunOutcomeOK:
		slog.Info("dispatch applied", "run_id", run.ID, "seq", run.Seq, "lines", run.Lines, "markers", run.Markers)
	case models.RunOutcomeSuperseded:
		slog.Debug("dispatch superseded", "run_id", run.ID, "seq", run.Seq)
	default:
		slog.Warn("dispatch failed", "run_id", run.ID, "seq", run.Seq, "status", run.HTTPStatus, "error", err)
	}

	if o.recorder != nil {
		o.recorder.Submit(run)
	}
}

func outcomeOf(err error) models.RunOutcome {
	var (
		httpErr   *HTTPError
		decodeErr *DecodeError
	)
	switch {
	case err == nil:
		return models.RunOutcomeOK
	case errors.Is(err, ErrSuperseded):
		return models.RunOutcomeSuperseded
	case errors.As(err, &httpErr):
		return models.RunOutcomeHTTPError
	case errors.As(err, &decodeErr):
		return models.RunOutcomeDecodeError
	default:
		return models.RunOutcomeTransportError
	}
}
