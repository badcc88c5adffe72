package mapview

import (
	"github.com/paulmach/orb"

	"github.com/mr1hm/go-drone-routes/internal/models"
)

// Points collects every vertex of every line overlay and every marker point,
// in draw order. Overlays of an unknown kind contribute nothing.
func Points(overlays []Overlay) orb.MultiPoint {
	var mp orb.MultiPoint
	for _, o := range overlays {
		switch o.Kind {
		case KindLine:
			mp = append(mp, o.Line...)
		case KindPoint:
			mp = append(mp, o.Point)
		}
	}
	return mp
}

// ComputeBounds returns the tightest viewport containing all overlay points.
// It reports false when there is nothing to frame.
func ComputeBounds(overlays []Overlay) (models.Viewport, bool) {
	return boundsOf(Points(overlays))
}

func boundsOf(mp orb.MultiPoint) (models.Viewport, bool) {
	if len(mp) == 0 {
		return models.Viewport{}, false
	}
	b := mp.Bound()
	return models.Viewport{
		Min: models.FromOrb(b.Min),
		Max: models.FromOrb(b.Max),
	}, true
}
