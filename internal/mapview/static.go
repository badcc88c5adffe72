package mapview

import (
	"fmt"
	"image"
	"image/png"
	"io"
	"strings"

	sm "github.com/flopp/go-staticmaps"
	"github.com/golang/geo/s2"
	"github.com/paulmach/orb"
)

var defaultShards = []string{"a", "b", "c"}

// StaticRenderer draws the current map view, tiles and overlays, into an image.
type StaticRenderer struct {
	view  *MapView
	tiles *sm.TileProvider
}

func NewStaticRenderer(view *MapView) *StaticRenderer {
	return &StaticRenderer{
		view:  view,
		tiles: tileProvider(view.Tiles()),
	}
}

func (r *StaticRenderer) Render() (image.Image, error) {
	ctx, err := r.buildContext(r.view.Snapshot())
	if err != nil {
		return nil, err
	}
	img, err := ctx.Render()
	if err != nil {
		return nil, fmt.Errorf("error rendering map: %w", err)
	}
	return img, nil
}

func (r *StaticRenderer) RenderPNG(w io.Writer) error {
	img, err := r.Render()
	if err != nil {
		return err
	}
	if err := png.Encode(w, img); err != nil {
		return fmt.Errorf("error encoding png: %w", err)
	}
	return nil
}

func (r *StaticRenderer) buildContext(snap Snapshot) (*sm.Context, error) {
	ctx := sm.NewContext()
	width, height := r.view.Size()
	ctx.SetSize(width, height)
	ctx.SetTileProvider(r.tiles)
	ctx.SetCenter(toLatLng(snap.View.Center.Orb()))
	ctx.SetZoom(snap.View.Zoom)

	for _, o := range snap.Overlays {
		obj, err := mapObject(o)
		if err != nil {
			return nil, err
		}
		if obj != nil {
			ctx.AddObject(obj)
		}
	}
	return ctx, nil
}

func mapObject(o Overlay) (sm.MapObject, error) {
	col, err := sm.ParseColorString(o.Style.Color)
	if err != nil {
		return nil, fmt.Errorf("error parsing overlay color %q: %w", o.Style.Color, err)
	}

	switch o.Kind {
	case KindLine:
		return sm.NewPath(toLatLngs(o.Line), col, o.Style.Weight), nil
	case KindPoint:
		return sm.NewMarker(toLatLng(o.Point), col, 4*o.Style.Radius), nil
	default:
		return nil, nil
	}
}

func toLatLng(p orb.Point) s2.LatLng {
	return s2.LatLngFromDegrees(p.Lat(), p.Lon())
}

func toLatLngs(ls orb.LineString) []s2.LatLng {
	out := make([]s2.LatLng, 0, len(ls))
	for _, p := range ls {
		out = append(out, toLatLng(p))
	}
	return out
}

// tileProvider turns a {s}/{z}/{x}/{y} URL template into go-staticmaps'
// positional pattern.
func tileProvider(t TileLayer) *sm.TileProvider {
	shards := t.Subdomains
	if len(shards) == 0 && strings.Contains(t.URLTemplate, "{s}") {
		shards = defaultShards
	}
	return &sm.TileProvider{
		Name:        "custom",
		Attribution: t.Attribution,
		TileSize:    tileSize,
		URLPattern:  urlPattern(t.URLTemplate),
		Shards:      shards,
	}
}

func urlPattern(template string) string {
	return strings.NewReplacer(
		"%", "%%",
		"{s}", "%[1]s",
		"{z}", "%[2]d",
		"{x}", "%[3]d",
		"{y}", "%[4]d",
	).Replace(template)
}
