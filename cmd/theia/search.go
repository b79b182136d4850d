package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/nooodle-soup/Theia/internal/query"
	"github.com/nooodle-soup/Theia/pkg/theia"
)

func runSearch(args []string) int {
	fs := flag.NewFlagSet("search", flag.ExitOnError)

	configPath := fs.String("config", "", "Path to YAML config file")
	dataset := fs.String("dataset", "", "Dataset alias to search (required)")
	bbox := fs.String("bbox", "", "Bounding box as minLon,minLat,maxLon,maxLat")
	point := fs.String("point", "", "Point of interest as lon,lat")
	start := fs.String("start", "", "Start date (YYYY-MM-DD)")
	end := fs.String("end", "", "End date (YYYY-MM-DD)")
	maxCloud := fs.Int("max-cloud", -1, "Maximum cloud cover percentage")
	limit := fs.Int("limit", 0, "Maximum results to return")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: theia search [options]

Search scenes in a dataset. Prints one line per scene: entity id, display
id, cloud cover, and download eligibility.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return ExitInvalidArgs
	}

	if *dataset == "" {
		fmt.Fprintln(os.Stderr, "Error: -dataset is required")
		fs.Usage()
		return ExitInvalidArgs
	}

	params := query.SearchParams{
		Dataset:    *dataset,
		StartDate:  *start,
		EndDate:    *end,
		MaxResults: *limit,
	}
	if *maxCloud >= 0 {
		params.MaxCloudCover = maxCloud
	}
	if *bbox != "" {
		corners, err := parseBBox(*bbox)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return ExitInvalidArgs
		}
		params.BBox = corners
	}
	if *point != "" {
		lon, lat, err := parsePoint(*point)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return ExitInvalidArgs
		}
		params.Longitude = &lon
		params.Latitude = &lat
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitGeneralError
	}

	client, err := theia.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitGeneralError
	}

	ctx, cancel := signalContext()
	defer cancel()

	if err := client.Login(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitAuthError
	}
	defer client.Logout(ctx)

	result, err := client.SceneSearch(ctx, params)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitGeneralError
	}

	fmt.Printf("%d hits, %d returned\n", result.TotalHits, result.RecordsReturned)
	for _, s := range result.Scenes {
		cloud := "-"
		if s.CloudCover != nil {
			cloud = strconv.FormatFloat(*s.CloudCover, 'f', 1, 64)
		}
		eligible := " "
		if s.Downloadable {
			eligible = "d"
		}
		fmt.Printf("%s  %s  cloud=%s  [%s]\n", s.EntityID, s.DisplayID, cloud, eligible)
	}

	return ExitSuccess
}

// parseBBox parses "minLon,minLat,maxLon,maxLat" into corner coordinates.
func parseBBox(s string) ([]query.Coordinate, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return nil, fmt.Errorf("bbox must be minLon,minLat,maxLon,maxLat")
	}
	vals := make([]float64, 4)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("bbox value %q: %w", p, err)
		}
		vals[i] = v
	}
	return []query.Coordinate{
		{Longitude: vals[0], Latitude: vals[1]},
		{Longitude: vals[2], Latitude: vals[3]},
	}, nil
}

// parsePoint parses "lon,lat".
func parsePoint(s string) (lon, lat float64, err error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("point must be lon,lat")
	}
	lon, err = strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("point longitude %q: %w", parts[0], err)
	}
	lat, err = strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("point latitude %q: %w", parts[1], err)
	}
	return lon, lat, nil
}
