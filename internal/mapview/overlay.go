package mapview

import (
	"sync"

	"github.com/paulmach/orb"
)

// Kind tags which geometry field of an Overlay is populated.
type Kind int

const (
	KindLine Kind = iota + 1
	KindPoint
)

func (k Kind) String() string {
	switch k {
	case KindLine:
		return "line"
	case KindPoint:
		return "point"
	default:
		return "unknown"
	}
}

type Role string

const (
	RolePath  Role = "path"
	RoleStart Role = "start"
	RoleEnd   Role = "end"
)

type Style struct {
	Color  string  `json:"color"`
	Weight float64 `json:"weight,omitempty"` // line width in px
	Radius float64 `json:"radius,omitempty"` // marker radius in px
}

var (
	PathStyle  = Style{Color: "blue", Weight: 3}
	StartStyle = Style{Color: "green", Radius: 4}
	EndStyle   = Style{Color: "red", Radius: 4}
)

// Overlay is one renderable geometry on top of the tile layer. Line is set
// for KindLine, Point for KindPoint.
type Overlay struct {
	Kind  Kind
	Role  Role
	Line  orb.LineString
	Point orb.Point
	Style Style

	DroneID       string
	DeliveryIndex int  // position of the delivery in render order
	DeliveryID    *int // planner's id, nil when absent
}

func NewLine(ls orb.LineString, style Style) Overlay {
	return Overlay{Kind: KindLine, Role: RolePath, Line: ls, Style: style}
}

func NewPoint(p orb.Point, role Role, style Style) Overlay {
	return Overlay{Kind: KindPoint, Role: role, Point: p, Style: style}
}

// Geometry returns the overlay's geometry, or nil for an unknown kind.
func (o Overlay) Geometry() orb.Geometry {
	switch o.Kind {
	case KindLine:
		return o.Line
	case KindPoint:
		return o.Point
	default:
		return nil
	}
}

// OverlayTarget receives a fully built overlay set in one step.
type OverlayTarget interface {
	Replace(overlays []Overlay)
}

// LayerGroup holds the overlays currently drawn on a map view, in draw order.
type LayerGroup struct {
	mu       sync.RWMutex
	overlays []Overlay
	version  uint64
}

func NewLayerGroup() *LayerGroup {
	return &LayerGroup{}
}

func (g *LayerGroup) Add(overlays ...Overlay) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.overlays = append(g.overlays, overlays...)
	g.version++
}

func (g *LayerGroup) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.overlays = nil
	g.version++
}

// Replace clears the group and adds overlays under a single lock, so readers
// see either the old set or the new one.
func (g *LayerGroup) Replace(overlays []Overlay) {
	cp := make([]Overlay, len(overlays))
	copy(cp, overlays)

	g.mu.Lock()
	defer g.mu.Unlock()
	g.overlays = cp
	g.version++
}

// Each calls fn for every overlay in draw order. fn must not modify the group.
func (g *LayerGroup) Each(fn func(Overlay)) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, o := range g.overlays {
		fn(o)
	}
}

// Overlays returns a copy of the current overlays.
func (g *LayerGroup) Overlays() []Overlay {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Overlay, len(g.overlays))
	copy(out, g.overlays)
	return out
}

func (g *LayerGroup) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.overlays)
}

// Version increases on every mutation.
func (g *LayerGroup) Version() uint64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.version
}
