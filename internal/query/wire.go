package query

// Wire types for the fixed M2M data type contract. Field names and shapes
// are dictated by the service and must not be changed.
// Reference: https://m2m.cr.usgs.gov/api/docs/datatypes/

// Coordinate is a single longitude/latitude pair.
type Coordinate struct {
	Longitude float64 `json:"longitude"`
	Latitude  float64 `json:"latitude"`
}

// SpatialFilterMbr filters spatially by minimum bounding rectangle.
type SpatialFilterMbr struct {
	FilterType string     `json:"filterType"` // always "mbr"
	LowerLeft  Coordinate `json:"lowerLeft"`
	UpperRight Coordinate `json:"upperRight"`
}

// AcquisitionFilter bounds results by acquisition date, ISO 8601 dates.
type AcquisitionFilter struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// CloudCoverFilter limits results by cloud cover percentage.
type CloudCoverFilter struct {
	Min            int  `json:"min"`
	Max            int  `json:"max"`
	IncludeUnknown bool `json:"includeUnknown"`
}

// SceneFilter is the composite filter applied during scene search.
type SceneFilter struct {
	AcquisitionFilter *AcquisitionFilter `json:"acquisitionFilter,omitempty"`
	CloudCoverFilter  *CloudCoverFilter  `json:"cloudCoverFilter,omitempty"`
	SeasonalFilter    []int              `json:"seasonalFilter,omitempty"`
	SpatialFilter     *SpatialFilterMbr  `json:"spatialFilter,omitempty"`
}

// SceneSearch is the payload for the scene-search endpoint.
type SceneSearch struct {
	DatasetName    string       `json:"datasetName"`
	MaxResults     int          `json:"maxResults"`
	StartingNumber int          `json:"startingNumber,omitempty"`
	MetadataType   string       `json:"metadataType"`
	SceneFilter    *SceneFilter `json:"sceneFilter,omitempty"`
}

// DatasetFilters is the payload for the dataset-filters endpoint.
type DatasetFilters struct {
	DatasetName string `json:"datasetName"`
}

// DataOwner is the payload for the data-owner endpoint.
type DataOwner struct {
	DataOwner string `json:"dataOwner"`
}

// SceneListAdd is the payload for the scene-list-add endpoint.
type SceneListAdd struct {
	ListID      string   `json:"listId"`
	DatasetName string   `json:"datasetName"`
	IDField     string   `json:"idField"` // "entityId" or "displayId"
	EntityIDs   []string `json:"entityIds,omitempty"`
}

// SceneListRemove is the payload for the scene-list-remove endpoint.
type SceneListRemove struct {
	ListID      string   `json:"listId"`
	DatasetName string   `json:"datasetName,omitempty"`
	EntityIDs   []string `json:"entityIds,omitempty"`
}

// DownloadOptions is the payload for the download-options endpoint.
type DownloadOptions struct {
	DatasetName string   `json:"datasetName"`
	EntityIDs   []string `json:"entityIds,omitempty"`
	ListID      string   `json:"listId,omitempty"`
}

// DownloadProduct is one entry in a download-request downloads list.
type DownloadProduct struct {
	EntityID  string `json:"entityId"`
	ProductID string `json:"productId"`
}

// DownloadRequest is the payload for the download-request endpoint.
type DownloadRequest struct {
	Downloads []DownloadProduct `json:"downloads"`
	Label     string            `json:"label"`
}

// DownloadRetrieve is the payload for the download-retrieve endpoint.
type DownloadRetrieve struct {
	Label string `json:"label"`
}
