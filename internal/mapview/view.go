package mapview

import (
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/mr1hm/go-drone-routes/internal/models"
)

const tileSize = 256

// TileLayer is the base layer the overlays are drawn over.
type TileLayer struct {
	URLTemplate string   `json:"url_template"` // {s}, {z}, {x}, {y} placeholders
	Attribution string   `json:"attribution"`
	Subdomains  []string `json:"subdomains,omitempty"`
}

type Options struct {
	Tiles   TileLayer
	Center  models.GeoPoint
	Zoom    int
	MinZoom int
	MaxZoom int
	Width   int // px
	Height  int // px
	Padding int // px kept free on every side when fitting
}

// Validate reports options that would make fitting undefined: a zoom range
// out of order or a map no larger than its padding.
func (o Options) Validate() error {
	for _, p := range []string{"{z}", "{x}", "{y}"} {
		if !strings.Contains(o.Tiles.URLTemplate, p) {
			return fmt.Errorf("tile URL %q is missing %s", o.Tiles.URLTemplate, p)
		}
	}
	if o.MinZoom < 0 || o.MinZoom > o.MaxZoom {
		return fmt.Errorf("invalid zoom range: %d..%d", o.MinZoom, o.MaxZoom)
	}
	if o.Zoom < o.MinZoom || o.Zoom > o.MaxZoom {
		return fmt.Errorf("map zoom %d outside %d..%d", o.Zoom, o.MinZoom, o.MaxZoom)
	}
	if o.Padding < 0 || o.Width <= 2*o.Padding || o.Height <= 2*o.Padding {
		return fmt.Errorf("map size %dx%d too small for padding %d", o.Width, o.Height, o.Padding)
	}
	return nil
}

// View is the current framing of the map.
type View struct {
	Center models.GeoPoint  `json:"center"`
	Zoom   int              `json:"zoom"`
	Bounds *models.Viewport `json:"bounds,omitempty"`
}

// Snapshot is an immutable copy of what the map shows. Version increases
// whenever the overlays or the view change.
type Snapshot struct {
	Version  uint64
	Overlays []Overlay
	View     View
}

// MapView owns the tile layer, the overlay group and the current view. One is
// created at startup and lives for the whole process.
type MapView struct {
	opts   Options
	layers *LayerGroup

	// mu guards view and viewVersion. Show and Snapshot also hold it across
	// the layer group so overlays and framing change together.
	mu          sync.RWMutex
	view        View
	viewVersion uint64
}

func New(opts Options) *MapView {
	return &MapView{
		opts:   opts,
		layers: NewLayerGroup(),
		view: View{
			Center: opts.Center,
			Zoom:   opts.Zoom,
		},
	}
}

func (m *MapView) Tiles() TileLayer {
	return m.opts.Tiles
}

func (m *MapView) Size() (int, int) {
	return m.opts.Width, m.opts.Height
}

func (m *MapView) Layers() *LayerGroup {
	return m.layers
}

func (m *MapView) View() View {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.view
}

func (m *MapView) SetView(center models.GeoPoint, zoom int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.view = View{Center: center, Zoom: m.clampZoom(zoom)}
	m.viewVersion++
}

// FitBounds centers the view on v at the largest zoom where v fits inside the
// map size minus padding. A zero-area viewport goes to MaxZoom.
func (m *MapView) FitBounds(v models.Viewport) View {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fitLocked(v)
}

func (m *MapView) fitLocked(v models.Viewport) View {
	bounds := v
	m.view = View{
		Center: v.Center(),
		Zoom:   m.boundsZoom(v),
		Bounds: &bounds,
	}
	m.viewVersion++
	return m.view
}

// Show replaces the overlays and fits the view to them in one step: a
// concurrent Snapshot sees the old overlays with the old view or the new
// overlays with the new view. The view is left alone when the overlays have
// no points, and the returned viewport is nil.
func (m *MapView) Show(overlays []Overlay) (*models.Viewport, Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.layers.Replace(overlays)

	var fitted *models.Viewport
	if v, ok := ComputeBounds(m.layers.Overlays()); ok {
		m.fitLocked(v)
		fitted = &v
	}
	return fitted, m.snapshotLocked()
}

// FitPoints fits the view to pts. It reports false and leaves the view alone
// when pts is empty.
func (m *MapView) FitPoints(pts []models.GeoPoint) (View, bool) {
	if len(pts) == 0 {
		return m.View(), false
	}
	v := models.Viewport{Min: pts[0], Max: pts[0]}
	for _, p := range pts[1:] {
		v.Min.Lat = math.Min(v.Min.Lat, p.Lat)
		v.Min.Lng = math.Min(v.Min.Lng, p.Lng)
		v.Max.Lat = math.Max(v.Max.Lat, p.Lat)
		v.Max.Lng = math.Max(v.Max.Lng, p.Lng)
	}
	return m.FitBounds(v), true
}

// FitOverlays fits the view to everything in the layer group.
func (m *MapView) FitOverlays() (View, bool) {
	v, ok := ComputeBounds(m.layers.Overlays())
	if !ok {
		return m.View(), false
	}
	return m.FitBounds(v), true
}

func (m *MapView) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked()
}

func (m *MapView) snapshotLocked() Snapshot {
	m.layers.mu.RLock()
	overlays := make([]Overlay, len(m.layers.overlays))
	copy(overlays, m.layers.overlays)
	layersVersion := m.layers.version
	m.layers.mu.RUnlock()

	return Snapshot{
		Version:  layersVersion + m.viewVersion,
		Overlays: overlays,
		View:     m.view,
	}
}

func (m *MapView) boundsZoom(v models.Viewport) int {
	if v.IsPoint() {
		return m.opts.MaxZoom
	}

	width := float64(m.opts.Width - 2*m.opts.Padding)
	height := float64(m.opts.Height - 2*m.opts.Padding)

	// Extent in world units at zoom 0 (the world is one tile wide).
	dx := (v.Max.Lng - v.Min.Lng) / 360
	dy := math.Abs(mercatorY(v.Max.Lat) - mercatorY(v.Min.Lat))

	zoom := m.opts.MaxZoom
	if dx > 0 {
		zoom = min(zoom, int(math.Floor(math.Log2(width/(dx*tileSize)))))
	}
	if dy > 0 {
		zoom = min(zoom, int(math.Floor(math.Log2(height/(dy*tileSize)))))
	}
	return m.clampZoom(zoom)
}

func (m *MapView) clampZoom(z int) int {
	return max(m.opts.MinZoom, min(m.opts.MaxZoom, z))
}

// mercatorY maps a latitude to the [0, 1] Web Mercator y range at zoom 0.
func mercatorY(lat float64) float64 {
	const maxLat = 85.0511287798
	lat = math.Max(-maxLat, math.Min(maxLat, lat))
	rad := lat * math.Pi / 180
	return (1 - math.Log(math.Tan(rad)+1/math.Cos(rad))/math.Pi) / 2
}
