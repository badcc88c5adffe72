package plan

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"math"
	"strconv"

	"github.com/mr1hm/go-drone-routes/internal/models"
)

// Report counts the entries Parse dropped because they did not match the
// expected shape. Dropping is not an error: the rest of the plan still renders.
type Report struct {
	SkippedDronePaths int `json:"drone_paths"`
	SkippedDeliveries int `json:"deliveries"`
	DroppedPoints     int `json:"points"`
}

func (r Report) Total() int {
	return r.SkippedDronePaths + r.SkippedDeliveries + r.DroppedPoints
}

// object holds one JSON object level. Keys are looked up exactly as the
// planner spells them; encoding/json struct decoding would fold case.
type object map[string]json.RawMessage

func decodeObject(raw json.RawMessage) (object, bool) {
	if isAbsent(raw) {
		return nil, false
	}
	var obj object
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, false
	}
	return obj, true
}

// Parse walks a calcDeliveryPath response body into a DeliveryPlan.
//
// A body without dronePaths (or one that is not an object at all) is an empty
// plan. Malformed drone paths, deliveries and points are skipped one at a time
// and counted in the returned Report.
func Parse(raw []byte) (models.DeliveryPlan, Report) {
	var (
		plan   models.DeliveryPlan
		report Report
	)

	top, ok := decodeObject(raw)
	if !ok {
		slog.Debug("planner response is not an object, treating as empty plan")
		return plan, report
	}

	plan.TotalCost = parseFloatPtr(top["totalCost"])
	if n, ok := parseInt(top["totalMoves"]); ok {
		plan.TotalMoves = &n
	}

	if isAbsent(top["dronePaths"]) {
		return plan, report
	}

	var dronePaths []json.RawMessage
	if err := json.Unmarshal(top["dronePaths"], &dronePaths); err != nil {
		slog.Debug("dronePaths is not a list", "error", err)
		report.SkippedDronePaths++
		return plan, report
	}

	plan.DronePaths = make([]models.DronePath, 0, len(dronePaths))
	for i, rawDP := range dronePaths {
		dp, ok := parseDronePath(rawDP, &report)
		if !ok {
			slog.Debug("skipping malformed drone path", "index", i)
			report.SkippedDronePaths++
			continue
		}
		plan.DronePaths = append(plan.DronePaths, dp)
	}

	return plan, report
}

func parseDronePath(raw json.RawMessage, report *Report) (models.DronePath, bool) {
	dp, ok := decodeObject(raw)
	if !ok || isAbsent(dp["deliveries"]) {
		return models.DronePath{}, false
	}

	var deliveries []json.RawMessage
	if err := json.Unmarshal(dp["deliveries"], &deliveries); err != nil {
		return models.DronePath{}, false
	}

	out := models.DronePath{
		DroneID:    parseID(dp["droneId"]),
		Deliveries: make([]models.Delivery, 0, len(deliveries)),
	}
	for i, rawD := range deliveries {
		d, ok := parseDelivery(rawD, report)
		if !ok {
			slog.Debug("skipping malformed delivery", "drone_id", out.DroneID, "index", i)
			report.SkippedDeliveries++
			continue
		}
		out.Deliveries = append(out.Deliveries, d)
	}
	return out, true
}

func parseDelivery(raw json.RawMessage, report *Report) (models.Delivery, bool) {
	d, ok := decodeObject(raw)
	if !ok || isAbsent(d["flightPath"]) {
		return models.Delivery{}, false
	}

	var points []json.RawMessage
	if err := json.Unmarshal(d["flightPath"], &points); err != nil {
		return models.Delivery{}, false
	}

	out := models.Delivery{
		FlightPath: make([]models.GeoPoint, 0, len(points)),
	}
	if id, ok := parseInt(d["deliveryId"]); ok {
		out.DeliveryID = &id
	}
	for _, rawP := range points {
		p, ok := parsePoint(rawP)
		if !ok {
			report.DroppedPoints++
			continue
		}
		out.FlightPath = append(out.FlightPath, p)
	}
	return out, true
}

func parsePoint(raw json.RawMessage) (models.GeoPoint, bool) {
	p, ok := decodeObject(raw)
	if !ok {
		return models.GeoPoint{}, false
	}
	lat, ok := parseFloat(p["lat"])
	if !ok {
		return models.GeoPoint{}, false
	}
	lng, ok := parseFloat(p["lng"])
	if !ok {
		return models.GeoPoint{}, false
	}
	return models.GeoPoint{Lat: lat, Lng: lng}, true
}

// parseFloat accepts a JSON number or a string holding one. NaN and the
// infinities are rejected.
func parseFloat(raw json.RawMessage) (float64, bool) {
	if isAbsent(raw) {
		return 0, false
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, false
		}
		f, err = strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func parseFloatPtr(raw json.RawMessage) *float64 {
	if f, ok := parseFloat(raw); ok {
		return &f
	}
	return nil
}

func parseInt(raw json.RawMessage) (int, bool) {
	f, ok := parseFloat(raw)
	if !ok || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, false
	}
	return int(f), true
}

// parseID keeps drone identifiers as text; the planner sends numbers today.
func parseID(raw json.RawMessage) string {
	if isAbsent(raw) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	if f, ok := parseFloat(raw); ok {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return ""
}

func isAbsent(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
