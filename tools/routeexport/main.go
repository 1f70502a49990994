// Package main provides a tool to export observed city pairs from the flight
// history index to CSV format. The output is one row per pattern:
// callsign,ICAO1,ICAO2
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"os"
	"sort"

	"swimfeed/internal/persist"
)

// RouteExport represents one observed callsign and its airport pair.
type RouteExport struct {
	Callsign     string
	Origin       string
	Destination  string
	Observations int
}

func main() {
	db := flag.String("db", "flight-history/history.db", "flight history index database")
	day := flag.String("day", "", "restrict to one archive day (YYYY-MM-DD; default: all days)")
	output := flag.String("output", "", "Output CSV file (default: stdout)")
	minObservations := flag.Int("min-obs", 1, "Minimum observation count to include a route")
	showStats := flag.Bool("stats", false, "Show statistics only, don't export")
	verbose := flag.Bool("v", false, "Verbose output")
	flag.Parse()

	hist, err := persist.OpenHistory(*db)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening history: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = hist.Close() }()

	routes, err := getRoutes(hist, *day, *minObservations)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error querying routes: %v\n", err)
		os.Exit(1)
	}

	if *showStats {
		showRouteStats(routes)
		return
	}

	if len(routes) == 0 {
		fmt.Fprintf(os.Stderr, "No routes found matching criteria\n")
		os.Exit(0)
	}

	if *verbose {
		fmt.Fprintf(os.Stderr, "Exporting %d routes to CSV\n", len(routes))
	}

	var writer *csv.Writer
	if *output != "" {
		file, err := os.Create(*output)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating file: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = file.Close() }()
		writer = csv.NewWriter(file)
	} else {
		writer = csv.NewWriter(os.Stdout)
	}

	for _, route := range routes {
		if err := writer.Write([]string{route.Callsign, route.Origin, route.Destination}); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing row: %v\n", err)
			os.Exit(1)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		fmt.Fprintf(os.Stderr, "Error flushing CSV: %v\n", err)
		os.Exit(1)
	}

	if *verbose && *output != "" {
		fmt.Fprintf(os.Stderr, "Wrote %d routes to %s\n", len(routes), *output)
	}
}

// getRoutes aggregates indexed flights into distinct callsign/origin/destination
// triples with observation counts.
func getRoutes(hist *persist.History, day string, minObservations int) ([]RouteExport, error) {
	days := []string{day}
	if day == "" {
		var err error
		days, err = hist.Dates()
		if err != nil {
			return nil, fmt.Errorf("listing days: %w", err)
		}
	}

	counts := make(map[[3]string]int)
	for _, d := range days {
		rows, err := hist.Search(persist.HistoryQuery{Date: d, Limit: 1 << 20})
		if err != nil {
			return nil, fmt.Errorf("querying day %s: %w", d, err)
		}
		for _, r := range rows {
			// Radar-only tracks have no filed airports; skip them.
			if r.Callsign == "" || r.Origin == "" || r.Destination == "" {
				continue
			}
			counts[[3]string{r.Callsign, r.Origin, r.Destination}]++
		}
	}

	routes := make([]RouteExport, 0, len(counts))
	for key, n := range counts {
		if n < minObservations {
			continue
		}
		routes = append(routes, RouteExport{
			Callsign:     key[0],
			Origin:       key[1],
			Destination:  key[2],
			Observations: n,
		})
	}

	sort.Slice(routes, func(i, j int) bool {
		if routes[i].Observations != routes[j].Observations {
			return routes[i].Observations > routes[j].Observations
		}
		return routes[i].Callsign < routes[j].Callsign
	})
	return routes, nil
}

// showRouteStats displays statistics about the aggregated routes.
func showRouteStats(routes []RouteExport) {
	total := 0
	for _, r := range routes {
		total += r.Observations
	}

	fmt.Println("Route Statistics")
	fmt.Println("────────────────")
	fmt.Printf("Distinct routes:     %d\n", len(routes))
	fmt.Printf("Total observations:  %d\n", total)

	fmt.Println("\nTop 10 Most Observed Routes:")
	fmt.Printf("%-12s %-6s %-6s %6s\n", "Flight", "Origin", "Dest", "Obs")
	for i, r := range routes {
		if i == 10 {
			break
		}
		fmt.Printf("%-12s %-6s %-6s %6d\n", r.Callsign, r.Origin, r.Destination, r.Observations)
	}
}
