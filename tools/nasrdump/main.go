// Package main provides a tool to inspect an extracted NASR cycle directory.
// It loads the cycle the way the service does and dumps one named entry (or
// the index counts) as JSON, which is handy when a fix or procedure resolves
// somewhere unexpected.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"swimfeed/internal/geo"
	"swimfeed/internal/nasr"
)

func main() {
	dir := flag.String("dir", "nasr-data", "NASR data directory (contains per-cycle subdirs)")
	cycle := flag.String("cycle", "", "cycle effective date YYYY-MM-DD (default: current cycle)")
	kind := flag.String("kind", "find", "what to dump: find, airway, procedures, centerlines, counts")
	near := flag.String("near", "", "anchor lat,lon for ambiguous fix/navaid lookups")
	pretty := flag.Bool("pretty", true, "indent JSON output")
	flag.Parse()

	effective := nasr.CurrentCycle(time.Now().UTC())
	if *cycle != "" {
		t, err := time.Parse("2006-01-02", *cycle)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid -cycle: %v\n", err)
			os.Exit(2)
		}
		effective = t
	}

	idx, err := nasr.Load(*dir, effective)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading cycle: %v\n", err)
		os.Exit(1)
	}

	id := strings.ToUpper(flag.Arg(0))
	if *kind != "counts" && id == "" {
		fmt.Fprintln(os.Stderr, "Usage: nasrdump [-dir d] [-kind k] IDENTIFIER")
		os.Exit(2)
	}

	var out any
	switch *kind {
	case "find":
		anchor := parseNear(*near)
		pos, found, ok := idx.Find(id, anchor)
		if !ok {
			fmt.Fprintf(os.Stderr, "%s: not found\n", id)
			os.Exit(1)
		}
		out = map[string]any{"id": id, "kind": found, "pos": pos}
	case "airway":
		aw, ok := idx.Airway(id)
		if !ok {
			fmt.Fprintf(os.Stderr, "%s: no such airway\n", id)
			os.Exit(1)
		}
		out = aw
	case "procedures":
		procs := idx.Procedures(id)
		if len(procs) == 0 {
			fmt.Fprintf(os.Stderr, "%s: no procedures\n", id)
			os.Exit(1)
		}
		out = procs
	case "centerlines":
		out = idx.Centerlines(id)
	case "counts":
		out = idx.Counts()
	default:
		fmt.Fprintf(os.Stderr, "Unknown -kind %q\n", *kind)
		os.Exit(2)
	}

	enc := json.NewEncoder(os.Stdout)
	if *pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(out); err != nil {
		fmt.Fprintf(os.Stderr, "JSON encode error: %v\n", err)
		os.Exit(1)
	}
}

func parseNear(s string) geo.Point {
	if s == "" {
		return geo.Point{}
	}
	var p geo.Point
	if _, err := fmt.Sscanf(s, "%f,%f", &p.Lat, &p.Lon); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid -near %q (want lat,lon)\n", s)
		os.Exit(2)
	}
	return p
}
