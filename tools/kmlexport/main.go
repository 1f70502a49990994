// Package main provides a tool to export archived flight tracks to KML format.
// KML (Keyhole Markup Language) files can be viewed in Google Earth, Google Maps,
// and other mapping applications.
package main

import (
	"encoding/json"
	"encoding/xml"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"swimfeed/internal/persist"
	"swimfeed/internal/state"
)

// KML structures for XML marshalling.
// These follow the KML 2.2 specification: https://developers.google.com/kml/documentation/kmlreference

// KML is the root element of a KML document.
type KML struct {
	XMLName   xml.Name `xml:"kml"`
	Namespace string   `xml:"xmlns,attr"`
	Document  Document `xml:"Document"`
}

// Document contains the document metadata and features.
type Document struct {
	Name        string      `xml:"name"`
	Description string      `xml:"description,omitempty"`
	Placemarks  []Placemark `xml:"Placemark"`
}

// Placemark is one flight track.
type Placemark struct {
	Name        string     `xml:"name"`
	Description string     `xml:"description,omitempty"`
	LineString  LineString `xml:"LineString"`
}

// LineString holds the coordinate path of a track.
type LineString struct {
	Tessellate  int    `xml:"tessellate"`
	Coordinates string `xml:"coordinates"`
}

func main() {
	dir := flag.String("dir", "flight-history", "flight archive directory")
	day := flag.String("day", time.Now().UTC().Format("2006-01-02"), "archive day to export (YYYY-MM-DD)")
	match := flag.String("match", "", "only export flights whose callsign or GUFI contains this (case-insensitive)")
	minFixes := flag.Int("min-fixes", 2, "skip flights with fewer position fixes")
	output := flag.String("output", "", "Output KML file (default: stdout)")
	verbose := flag.Bool("v", false, "Verbose output")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	archive := persist.NewArchive(*dir, 0, nil, log)

	needle := strings.ToUpper(*match)
	var placemarks []Placemark
	scanned := 0

	err := archive.ReadDay(*day, func(raw json.RawMessage) bool {
		scanned++
		var rec state.FlightRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			fmt.Fprintf(os.Stderr, "Skipping malformed record: %v\n", err)
			return true
		}
		if needle != "" &&
			!strings.Contains(strings.ToUpper(rec.Callsign), needle) &&
			!strings.Contains(strings.ToUpper(rec.GUFI), needle) {
			return true
		}
		if len(rec.Positions) < *minFixes {
			return true
		}
		placemarks = append(placemarks, flightPlacemark(&rec))
		return true
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading archive day %s: %v\n", *day, err)
		os.Exit(1)
	}

	if len(placemarks) == 0 {
		fmt.Fprintf(os.Stderr, "No flights matched (%d records scanned)\n", scanned)
		os.Exit(0)
	}

	kml := KML{
		Namespace: "http://www.opengis.net/kml/2.2",
		Document: Document{
			Name:        fmt.Sprintf("Flight tracks %s", *day),
			Description: fmt.Sprintf("%d flights exported from the archive", len(placemarks)),
			Placemarks:  placemarks,
		},
	}

	wout := os.Stdout
	if *output != "" {
		f, err := os.Create(*output)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating file: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = f.Close() }()
		wout = f
	}

	if _, err := wout.WriteString(xml.Header); err != nil {
		fmt.Fprintf(os.Stderr, "Write error: %v\n", err)
		os.Exit(1)
	}
	enc := xml.NewEncoder(wout)
	enc.Indent("", "  ")
	if err := enc.Encode(kml); err != nil {
		fmt.Fprintf(os.Stderr, "KML encode error: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintln(wout)

	if *verbose {
		fmt.Fprintf(os.Stderr, "Wrote %d tracks (%d records scanned)\n", len(placemarks), scanned)
	}
}

// flightPlacemark converts one archived flight into a KML track.
func flightPlacemark(rec *state.FlightRecord) Placemark {
	var coords strings.Builder
	for _, p := range rec.Positions {
		// KML coordinate order is lon,lat[,alt].
		fmt.Fprintf(&coords, "%.6f,%.6f,0 ", p.Lon, p.Lat)
	}

	name := rec.Callsign
	if name == "" {
		name = rec.GUFI
	}
	desc := fmt.Sprintf("%s → %s", rec.Origin, rec.Destination)
	if rec.AircraftType != "" {
		desc += " (" + rec.AircraftType + ")"
	}

	return Placemark{
		Name:        name,
		Description: desc,
		LineString: LineString{
			Tessellate:  1,
			Coordinates: strings.TrimSpace(coords.String()),
		},
	}
}
