package mapview

import (
	"github.com/paulmach/orb/geojson"
)

// FeatureCollection encodes overlays as GeoJSON features in draw order.
// Overlays of an unknown kind are left out.
func FeatureCollection(overlays []Overlay) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, o := range overlays {
		g := o.Geometry()
		if g == nil {
			continue
		}

		f := geojson.NewFeature(g)
		f.Properties["kind"] = o.Kind.String()
		f.Properties["role"] = string(o.Role)
		f.Properties["color"] = o.Style.Color
		if o.Style.Weight > 0 {
			f.Properties["weight"] = o.Style.Weight
		}
		if o.Style.Radius > 0 {
			f.Properties["radius"] = o.Style.Radius
		}
		f.Properties["delivery_index"] = o.DeliveryIndex
		if o.DroneID != "" {
			f.Properties["drone_id"] = o.DroneID
		}
		if o.DeliveryID != nil {
			f.Properties["delivery_id"] = *o.DeliveryID
		}
		fc.Append(f)
	}
	return fc
}
