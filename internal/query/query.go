package query

import (
	"fmt"
	"time"
)

// dateLayout is the ISO 8601 date format the acquisition filter accepts.
const dateLayout = "2006-01-02"

// DefaultMaxResults bounds a search when the caller does not set a limit.
const DefaultMaxResults = 100

// ValidationError reports a SearchParams field that failed validation.
// It is always produced before any network call.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("query: invalid %s: %s", e.Field, e.Reason)
}

// SearchParams are the caller-facing search parameters. Spatial filtering
// takes either a bounding box (two corner coordinates) or a single point,
// not both.
type SearchParams struct {
	// Dataset is the dataset alias to search. Required.
	Dataset string

	// BBox is the bounding box corners: lower-left then upper-right.
	BBox []Coordinate

	// Longitude/Latitude select a single point of interest.
	Longitude *float64
	Latitude  *float64

	// StartDate and EndDate bound the acquisition dates, "YYYY-MM-DD".
	// Both must be set together.
	StartDate string
	EndDate   string

	// MinCloudCover and MaxCloudCover bound cloud cover percentage.
	MinCloudCover *int
	MaxCloudCover *int

	// Months filters seasonally, values 1 through 12.
	Months []int

	// MaxResults caps the result count. Default: DefaultMaxResults.
	MaxResults int
}

// Validate checks the params against the invariants of the wire contract.
// It returns a *ValidationError naming the first offending field.
func (p *SearchParams) Validate() error {
	if p.Dataset == "" {
		return &ValidationError{Field: "Dataset", Reason: "must not be empty"}
	}
	if p.MaxResults < 0 {
		return &ValidationError{Field: "MaxResults", Reason: "must not be negative"}
	}

	if (p.Longitude == nil) != (p.Latitude == nil) {
		return &ValidationError{Field: "Longitude", Reason: "longitude and latitude must be provided together"}
	}
	if p.BBox != nil && p.Longitude != nil {
		return &ValidationError{Field: "BBox", Reason: "provide either a bounding box or a point, not both"}
	}

	if p.Longitude != nil {
		if err := checkCoordinate("Longitude", Coordinate{Longitude: *p.Longitude, Latitude: *p.Latitude}); err != nil {
			return err
		}
	}

	if p.BBox != nil {
		if len(p.BBox) != 2 {
			return &ValidationError{Field: "BBox", Reason: "must hold exactly two corner coordinates"}
		}
		for _, c := range p.BBox {
			if err := checkCoordinate("BBox", c); err != nil {
				return err
			}
		}
		ll, ur := p.BBox[0], p.BBox[1]
		if ll.Longitude > ur.Longitude {
			return &ValidationError{Field: "BBox", Reason: "lower-left longitude exceeds upper-right longitude"}
		}
		if ll.Latitude > ur.Latitude {
			return &ValidationError{Field: "BBox", Reason: "lower-left latitude exceeds upper-right latitude"}
		}
	}

	if (p.StartDate == "") != (p.EndDate == "") {
		return &ValidationError{Field: "StartDate", Reason: "start and end dates must be provided together"}
	}
	if p.StartDate != "" {
		start, err := time.Parse(dateLayout, p.StartDate)
		if err != nil {
			return &ValidationError{Field: "StartDate", Reason: "must be formatted YYYY-MM-DD"}
		}
		end, err := time.Parse(dateLayout, p.EndDate)
		if err != nil {
			return &ValidationError{Field: "EndDate", Reason: "must be formatted YYYY-MM-DD"}
		}
		if start.After(end) {
			return &ValidationError{Field: "StartDate", Reason: "start date is after end date"}
		}
	}

	if p.MinCloudCover != nil && (*p.MinCloudCover < 0 || *p.MinCloudCover > 100) {
		return &ValidationError{Field: "MinCloudCover", Reason: "must be between 0 and 100"}
	}
	if p.MaxCloudCover != nil && (*p.MaxCloudCover < 0 || *p.MaxCloudCover > 100) {
		return &ValidationError{Field: "MaxCloudCover", Reason: "must be between 0 and 100"}
	}
	if p.MinCloudCover != nil && p.MaxCloudCover != nil && *p.MinCloudCover > *p.MaxCloudCover {
		return &ValidationError{Field: "MinCloudCover", Reason: "minimum cloud cover exceeds maximum"}
	}

	for _, m := range p.Months {
		if m < 1 || m > 12 {
			return &ValidationError{Field: "Months", Reason: "months must be between 1 and 12"}
		}
	}

	return nil
}

func checkCoordinate(field string, c Coordinate) error {
	if c.Latitude < -90 || c.Latitude > 90 {
		return &ValidationError{Field: field, Reason: "latitude must be between -90 and 90"}
	}
	if c.Longitude < -180 || c.Longitude > 180 {
		return &ValidationError{Field: field, Reason: "longitude must be between -180 and 180"}
	}
	return nil
}

// BuildSceneSearch validates the params and builds the scene-search wire
// payload. It is a pure function: identical params always produce an
// identical payload.
func BuildSceneSearch(p SearchParams) (*SceneSearch, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	filter := &SceneFilter{}

	switch {
	case p.BBox != nil:
		filter.SpatialFilter = &SpatialFilterMbr{
			FilterType: "mbr",
			LowerLeft:  p.BBox[0],
			UpperRight: p.BBox[1],
		}
	case p.Longitude != nil:
		// A point of interest is a degenerate bounding box.
		point := Coordinate{Longitude: *p.Longitude, Latitude: *p.Latitude}
		filter.SpatialFilter = &SpatialFilterMbr{
			FilterType: "mbr",
			LowerLeft:  point,
			UpperRight: point,
		}
	}

	if p.StartDate != "" {
		filter.AcquisitionFilter = &AcquisitionFilter{Start: p.StartDate, End: p.EndDate}
	}

	cloud := &CloudCoverFilter{Min: 0, Max: 30}
	if p.MinCloudCover != nil {
		cloud.Min = *p.MinCloudCover
	}
	if p.MaxCloudCover != nil {
		cloud.Max = *p.MaxCloudCover
	}
	filter.CloudCoverFilter = cloud

	if p.Months != nil {
		filter.SeasonalFilter = p.Months
	}

	maxResults := p.MaxResults
	if maxResults == 0 {
		maxResults = DefaultMaxResults
	}

	return &SceneSearch{
		DatasetName:  p.Dataset,
		MaxResults:   maxResults,
		MetadataType: "full",
		SceneFilter:  filter,
	}, nil
}
