// Package export renders alerts for download.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/kilianp07/sosdispatch/core/model"
)

// Formats accepted by Write.
const (
	FormatJSON    = "json"
	FormatGeoJSON = "geojson"
	FormatCSV     = "csv"
)

// ContentType returns the MIME type of format.
func ContentType(format string) string {
	switch format {
	case FormatGeoJSON:
		return "application/geo+json"
	case FormatCSV:
		return "text/csv"
	default:
		return "application/json"
	}
}

// Write renders alerts in the requested format.
func Write(w io.Writer, format string, alerts []model.Alert) error {
	switch format {
	case FormatJSON, "":
		return WriteJSON(w, alerts)
	case FormatGeoJSON:
		return WriteGeoJSON(w, alerts)
	case FormatCSV:
		return WriteCSV(w, alerts)
	}
	return fmt.Errorf("export: unknown format %q", format)
}

// WriteJSON writes the alerts as a JSON array.
func WriteJSON(w io.Writer, alerts []model.Alert) error {
	if alerts == nil {
		alerts = []model.Alert{}
	}
	return json.NewEncoder(w).Encode(alerts)
}

type featureCollection struct {
	Type     string    `json:"type"`
	Features []feature `json:"features"`
}

type feature struct {
	Type       string         `json:"type"`
	ID         string         `json:"id"`
	Geometry   point          `json:"geometry"`
	Properties map[string]any `json:"properties"`
}

type point struct {
	Type string `json:"type"`
	// Coordinates are longitude first.
	Coordinates [2]float64 `json:"coordinates"`
}

// WriteGeoJSON writes the alerts as a FeatureCollection of points.
func WriteGeoJSON(w io.Writer, alerts []model.Alert) error {
	fc := featureCollection{Type: "FeatureCollection", Features: make([]feature, 0, len(alerts))}
	for _, a := range alerts {
		props := map[string]any{
			"address":    a.Address,
			"message":    a.Message,
			"priority":   a.Priority,
			"read":       a.Read,
			"created_at": a.CreatedAt.Format(time.RFC3339),
			"status":     string(a.DispatchStatus()),
		}
		if d := a.Dispatch; d != nil {
			props["unit_id"] = d.UnitID
			props["last_unit_id"] = d.LastUnitID
			props["eta_minutes"] = d.ETAMinutes
		}
		fc.Features = append(fc.Features, feature{
			Type:       "Feature",
			ID:         a.ID,
			Geometry:   point{Type: "Point", Coordinates: [2]float64{a.Location.Lon, a.Location.Lat}},
			Properties: props,
		})
	}
	return json.NewEncoder(w).Encode(fc)
}

// WriteCSV writes one row per alert.
func WriteCSV(w io.Writer, alerts []model.Alert) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"id", "created_at", "latitude", "longitude", "address", "message", "read", "status", "unit_id", "eta_minutes"}); err != nil {
		return err
	}
	for _, a := range alerts {
		var unit, eta string
		if d := a.Dispatch; d != nil {
			unit = d.UnitID
			if unit == "" {
				unit = d.LastUnitID
			}
			eta = strconv.Itoa(d.ETAMinutes)
		}
		rec := []string{
			a.ID,
			a.CreatedAt.Format(time.RFC3339),
			strconv.FormatFloat(a.Location.Lat, 'f', -1, 64),
			strconv.FormatFloat(a.Location.Lon, 'f', -1, 64),
			a.Address,
			a.Message,
			strconv.FormatBool(a.Read),
			string(a.DispatchStatus()),
			unit,
			eta,
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
