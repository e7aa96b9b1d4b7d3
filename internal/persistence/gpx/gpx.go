// Package gpx writes the final-save GPX 1.1 export: one <trk> per filter
// pipeline, each <trkpt> carrying the recorded timestamp. gpxPoint has an
// uncertainty_m extension field, but Write never fills it, so no exported
// point carries an uncertainty.
package gpx

import (
	"encoding/xml"
	"fmt"
	"os"
	"time"

	"github.com/banshee-data/motiontrack/internal/telemetry"
)

const creator = "motiontrack"

type gpxDoc struct {
	XMLName xml.Name   `xml:"gpx"`
	Version string     `xml:"version,attr"`
	Creator string     `xml:"creator,attr"`
	Xmlns   string     `xml:"xmlns,attr"`
	Tracks  []gpxTrack `xml:"trk"`
}

type gpxTrack struct {
	Name string       `xml:"name"`
	Segs []gpxSegment `xml:"trkseg"`
}

type gpxSegment struct {
	Points []gpxPoint `xml:"trkpt"`
}

type gpxPoint struct {
	Lat        float64  `xml:"lat,attr"`
	Lon        float64  `xml:"lon,attr"`
	Time       string   `xml:"time"`
	UncertainM *float64 `xml:"extensions>uncertainty_m,omitempty"`
}

// trackLabels maps each telemetry filter series to the human-readable
// track name used in the GPX export.
var trackLabels = map[telemetry.FilterKey]string{
	telemetry.FilterGPSRaw:         "GPS Raw",
	telemetry.FilterEKF13:         "EKF-13",
	telemetry.FilterESEKF8:        "ES-EKF-8",
	telemetry.FilterComplementary:  "Complementary",
	telemetry.FilterESEKF8DeadReck: "ES-EKF-8 Dead Reckoning",
}

// trackOrder fixes the <trk> emission order in the exported file.
var trackOrder = []telemetry.FilterKey{
	telemetry.FilterGPSRaw,
	telemetry.FilterEKF13,
	telemetry.FilterESEKF8,
	telemetry.FilterComplementary,
	telemetry.FilterESEKF8DeadReck,
}

// Write renders one GPX file containing a track per non-empty entry in
// trajectories, in a fixed filter order, and writes it to path.
func Write(path string, epoch time.Time, trajectories map[telemetry.FilterKey][]telemetry.TrajectoryPoint) error {
	doc := gpxDoc{
		Version: "1.1",
		Creator: creator,
		Xmlns:   "http://www.topografix.com/GPX/1/1",
	}

	for _, key := range trackOrder {
		points, ok := trajectories[key]
		if !ok || len(points) == 0 {
			continue
		}
		doc.Tracks = append(doc.Tracks, buildTrack(trackLabels[key], epoch, points))
	}

	data, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("gpx: marshal: %w", err)
	}
	out := append([]byte(xml.Header), data...)

	if err := os.WriteFile(path, out, 0644); err != nil {
		return fmt.Errorf("gpx: write %s: %w", path, err)
	}
	return nil
}

func buildTrack(name string, epoch time.Time, points []telemetry.TrajectoryPoint) gpxTrack {
	seg := gpxSegment{Points: make([]gpxPoint, 0, len(points))}
	for _, p := range points {
		pt := gpxPoint{
			Lat:  p.LatDeg,
			Lon:  p.LonDeg,
			Time: epoch.Add(time.Duration(p.T * float64(time.Second))).UTC().Format(time.RFC3339),
		}
		seg.Points = append(seg.Points, pt)
	}
	return gpxTrack{Name: name, Segs: []gpxSegment{seg}}
}
