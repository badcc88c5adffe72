package models

import "github.com/paulmach/orb"

// GeoPoint is a single latitude/longitude sample of a flight path.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Orb returns the point in orb's [lng, lat] order.
func (p GeoPoint) Orb() orb.Point {
	return orb.Point{p.Lng, p.Lat}
}

func FromOrb(p orb.Point) GeoPoint {
	return GeoPoint{Lat: p.Lat(), Lng: p.Lon()}
}

type Delivery struct {
	DeliveryID *int       `json:"deliveryId,omitempty"` // nil for return-only segments
	FlightPath []GeoPoint `json:"flightPath"`
}

type DronePath struct {
	DroneID    string     `json:"droneId,omitempty"`
	Deliveries []Delivery `json:"deliveries"`
}

// DeliveryPlan is the planner's calcDeliveryPath response.
type DeliveryPlan struct {
	DronePaths []DronePath `json:"dronePaths"`
	TotalCost  *float64    `json:"totalCost,omitempty"`
	TotalMoves *int        `json:"totalMoves,omitempty"`
}

// DeliveryCount returns the number of deliveries across all drone paths.
func (p *DeliveryPlan) DeliveryCount() int {
	n := 0
	for _, dp := range p.DronePaths {
		n += len(dp.Deliveries)
	}
	return n
}

// Viewport is a min/max bounding region in degrees.
type Viewport struct {
	Min GeoPoint `json:"min"`
	Max GeoPoint `json:"max"`
}

func (v Viewport) Center() GeoPoint {
	return GeoPoint{
		Lat: (v.Min.Lat + v.Max.Lat) / 2,
		Lng: (v.Min.Lng + v.Max.Lng) / 2,
	}
}

func (v Viewport) Contains(p GeoPoint) bool {
	return p.Lat >= v.Min.Lat && p.Lat <= v.Max.Lat &&
		p.Lng >= v.Min.Lng && p.Lng <= v.Max.Lng
}

// IsPoint reports whether the viewport has zero area in both dimensions.
func (v Viewport) IsPoint() bool {
	return v.Min == v.Max
}
