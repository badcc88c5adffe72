package api

import (
	"time"

	"github.com/paulmach/orb/geojson"

	"github.com/mr1hm/go-drone-routes/internal/dispatch"
	"github.com/mr1hm/go-drone-routes/internal/mapview"
	"github.com/mr1hm/go-drone-routes/internal/models"
)

type DispatchResponse struct {
	RunID    string                     `json:"run_id"`
	Result   string                     `json:"result"`
	Overlays *geojson.FeatureCollection `json:"overlays"`
	Viewport *models.Viewport           `json:"viewport"`
	View     mapview.View               `json:"view"`
	Stats    mapview.RenderStats        `json:"stats"`
	Skipped  Skipped                    `json:"skipped"`
	Summary  PlanSummary                `json:"summary"`
}

type Skipped struct {
	DronePaths int `json:"drone_paths"`
	Deliveries int `json:"deliveries"`
	Points     int `json:"points"`
}

type PlanSummary struct {
	DronePaths int      `json:"drone_paths"`
	Deliveries int      `json:"deliveries"`
	TotalCost  *float64 `json:"total_cost,omitempty"`
	TotalMoves *int     `json:"total_moves,omitempty"`
}

type ViewResponse struct {
	Tiles   mapview.TileLayer `json:"tiles"`
	View    mapview.View      `json:"view"`
	Width   int               `json:"width"`
	Height  int               `json:"height"`
	Version uint64            `json:"version"`
}

// SnapshotEvent is the payload of a stream "snapshot" event.
type SnapshotEvent struct {
	Version  uint64                     `json:"version"`
	View     mapview.View               `json:"view"`
	Overlays *geojson.FeatureCollection `json:"overlays"`
}

type RunResponse struct {
	ID         string            `json:"id"`
	Seq        uint64            `json:"seq"`
	Outcome    models.RunOutcome `json:"outcome"`
	HTTPStatus int               `json:"http_status,omitempty"`
	Error      string            `json:"error,omitempty"`
	Lines      int               `json:"lines"`
	Markers    int               `json:"markers"`
	Skipped    int               `json:"skipped"`
	Bounds     *models.Viewport  `json:"bounds,omitempty"`
	InputBytes int               `json:"input_bytes"`
	StartedAt  time.Time         `json:"started_at"`
	DurationMs int64             `json:"duration_ms"`
}

func toRunResponse(r models.Run) RunResponse {
	return RunResponse{
		ID:         r.ID,
		Seq:        r.Seq,
		Outcome:    r.Outcome,
		HTTPStatus: r.HTTPStatus,
		Error:      r.Error,
		Lines:      r.Lines,
		Markers:    r.Markers,
		Skipped:    r.Skipped,
		Bounds:     r.Bounds,
		InputBytes: r.InputBytes,
		StartedAt:  r.StartedAt,
		DurationMs: r.Duration.Milliseconds(),
	}
}

func toDispatchResponse(out *dispatch.Outcome) DispatchResponse {
	return DispatchResponse{
		RunID:    out.RunID,
		Result:   out.Echo,
		Overlays: mapview.FeatureCollection(out.Snapshot.Overlays),
		Viewport: out.Viewport,
		View:     out.Snapshot.View,
		Stats:    out.Stats,
		Skipped: Skipped{
			DronePaths: out.Report.SkippedDronePaths,
			Deliveries: out.Report.SkippedDeliveries,
			Points:     out.Report.DroppedPoints,
		},
		Summary: PlanSummary{
			DronePaths: len(out.Plan.DronePaths),
			Deliveries: out.Plan.DeliveryCount(),
			TotalCost:  out.Plan.TotalCost,
			TotalMoves: out.Plan.TotalMoves,
		},
	}
}

func toSnapshotEvent(snap mapview.Snapshot) SnapshotEvent {
	return SnapshotEvent{
		Version:  snap.Version,
		View:     snap.View,
		Overlays: mapview.FeatureCollection(snap.Overlays),
	}
}
