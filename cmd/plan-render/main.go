// Command plan-render draws a saved calcDeliveryPath response without a
// running planner. It prints the overlays as GeoJSON and can also write a
// PNG of the fitted view.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/mr1hm/go-drone-routes/internal/logging"
	"github.com/mr1hm/go-drone-routes/internal/mapview"
	"github.com/mr1hm/go-drone-routes/internal/models"
	"github.com/mr1hm/go-drone-routes/internal/plan"
)

func main() {
	_ = godotenv.Load()

	var (
		in       = flag.String("in", "-", "planner response file, - for stdin")
		out      = flag.String("out", "-", "GeoJSON output file, - for stdout")
		pngPath  = flag.String("png", "", "also render the fitted view to this PNG file")
		tileURL  = flag.String("tiles", "https://tile.openstreetmap.org/{z}/{x}/{y}.png", "tile URL template")
		width    = flag.Int("width", 1024, "map width in px")
		height   = flag.Int("height", 768, "map height in px")
		padding  = flag.Int("padding", 0, "px kept free around the fitted bounds")
		maxZoom  = flag.Int("max-zoom", 18, "largest zoom used when fitting")
		logLevel = flag.String("log-level", "warn", "debug, info, warn or error")
	)
	flag.Parse()

	// Logs go to stderr so stdout stays valid GeoJSON.
	slog.SetDefault(logging.New(os.Stderr, *logLevel))

	opts := mapview.Options{
		Tiles:   mapview.TileLayer{URLTemplate: *tileURL, Attribution: "© OpenStreetMap contributors"},
		Center:  models.GeoPoint{Lat: 55.94468066708487, Lng: -3.1863580788986368},
		Zoom:    min(15, *maxZoom),
		MaxZoom: *maxZoom,
		Width:   *width,
		Height:  *height,
		Padding: *padding,
	}
	if err := opts.Validate(); err != nil {
		logging.Fatalf("Invalid map options: %v", err)
	}

	raw, err := readInput(*in)
	if err != nil {
		logging.Fatalf("Failed to read planner response: %v", err)
	}
	if !json.Valid(raw) {
		logging.Fatalf("Input is not JSON")
	}

	p, report := plan.Parse(raw)
	if report.Total() > 0 {
		slog.Warn("skipped malformed plan entries",
			"drone_paths", report.SkippedDronePaths,
			"deliveries", report.SkippedDeliveries,
			"points", report.DroppedPoints,
		)
	}

	view := mapview.New(opts)

	stats := mapview.Render(p, view.Layers())
	if v, ok := mapview.ComputeBounds(view.Layers().Overlays()); ok {
		fitted := view.FitBounds(v)
		slog.Info("fitted view", "lat", fitted.Center.Lat, "lng", fitted.Center.Lng, "zoom", fitted.Zoom)
	}
	slog.Info("rendered plan", "lines", stats.Lines, "markers", stats.Markers)

	if err := writeGeoJSON(*out, view.Layers().Overlays()); err != nil {
		logging.Fatalf("Failed to write GeoJSON: %v", err)
	}

	if *pngPath != "" {
		if err := writePNG(*pngPath, mapview.NewStaticRenderer(view)); err != nil {
			logging.Fatalf("Failed to write PNG: %v", err)
		}
	}
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func writeGeoJSON(path string, overlays []mapview.Overlay) error {
	data, err := json.MarshalIndent(mapview.FeatureCollection(overlays), "", "  ")
	if err != nil {
		return fmt.Errorf("error encoding overlays: %w", err)
	}
	data = append(data, '\n')

	if path == "-" {
		_, err = os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func writePNG(path string, r *mapview.StaticRenderer) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("error creating %s: %w", path, err)
	}
	if err := r.RenderPNG(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
