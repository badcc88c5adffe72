package mapview

import (
	"github.com/paulmach/orb"

	"github.com/mr1hm/go-drone-routes/internal/models"
)

type RenderStats struct {
	Lines   int `json:"lines"`
	Markers int `json:"markers"`
}

// Render replaces the contents of target with one path line and a start and
// end marker for every delivery that has at least one point. Deliveries with
// an empty flight path draw nothing.
func Render(plan models.DeliveryPlan, target OverlayTarget) RenderStats {
	overlays, stats := BuildOverlays(plan)
	target.Replace(overlays)
	return stats
}

// BuildOverlays converts a plan into overlays in delivery order without
// touching any layer group.
func BuildOverlays(plan models.DeliveryPlan) ([]Overlay, RenderStats) {
	var (
		overlays []Overlay
		stats    RenderStats
		index    int
	)

	for _, dp := range plan.DronePaths {
		for _, d := range dp.Deliveries {
			idx := index
			index++
			if len(d.FlightPath) == 0 {
				continue
			}

			ls := make(orb.LineString, 0, len(d.FlightPath))
			for _, p := range d.FlightPath {
				ls = append(ls, p.Orb())
			}

			line := NewLine(ls, PathStyle)
			start := NewPoint(ls[0], RoleStart, StartStyle)
			end := NewPoint(ls[len(ls)-1], RoleEnd, EndStyle)
			for _, o := range []*Overlay{&line, &start, &end} {
				o.DroneID = dp.DroneID
				o.DeliveryIndex = idx
				o.DeliveryID = d.DeliveryID
			}

			overlays = append(overlays, line, start, end)
			stats.Lines++
			stats.Markers += 2
		}
	}

	return overlays, stats
}
