package theia

import (
	"encoding/json"
	"fmt"
)

// Dataset describes a catalog dataset available to the account.
type Dataset struct {
	CollectionName string `json:"collectionName"`
	DatasetAlias   string `json:"datasetAlias"`
}

// MetadataField describes one searchable metadata field of a dataset,
// as returned by the dataset-filters endpoint.
type MetadataField struct {
	ID             string `json:"id"`
	FieldLabel     string `json:"fieldLabel"`
	DictionaryLink string `json:"dictionaryLink"`
}

// BrowseItem is one browse/thumbnail entry attached to a scene.
type BrowseItem struct {
	Name          string `json:"browseName"`
	BrowsePath    string `json:"browsePath"`
	ThumbnailPath string `json:"thumbnailPath"`
}

// SceneResult is one scene returned by SceneSearch.
type SceneResult struct {
	// EntityID is the scene identifier used by all other operations.
	EntityID string

	// DisplayID is the human-facing scene identifier.
	DisplayID string

	// Dataset is the dataset alias the scene was found in.
	Dataset string

	// CloudCover is the scene's cloud cover percentage, when known.
	CloudCover *float64

	// Downloadable reports whether the account may download the scene.
	Downloadable bool

	// PublishDate is the catalog publish date as reported by the service.
	PublishDate string

	// Metadata is the flattened fieldName -> value mapping.
	Metadata map[string]string

	// Browse holds thumbnail and browse image paths.
	Browse []BrowseItem
}

// SearchResult is the outcome of a SceneSearch call.
type SearchResult struct {
	TotalHits       int
	RecordsReturned int
	Scenes          []SceneResult
}

// Wire shapes of the scene-search response. Field names are fixed by the
// service.

type sceneSearchData struct {
	Results         []sceneResultWire `json:"results"`
	TotalHits       int               `json:"totalHits"`
	RecordsReturned int               `json:"recordsReturned"`
}

type sceneResultWire struct {
	EntityID    string       `json:"entityId"`
	DisplayID   string       `json:"displayId"`
	CloudCover  *float64     `json:"cloudCover"`
	PublishDate string       `json:"publishDate"`
	Options     sceneOptions `json:"options"`
	Metadata    []metaItem   `json:"metadata"`
	Browse      []BrowseItem `json:"browse"`
}

type sceneOptions struct {
	Download bool `json:"download"`
	Bulk     bool `json:"bulk"`
	Order    bool `json:"order"`
}

type metaItem struct {
	FieldName string `json:"fieldName"`
	Value     any    `json:"value"`
}

// productOption is one entry of the download-options response.
type productOption struct {
	ID          string `json:"id"`
	EntityID    string `json:"entityId"`
	Available   bool   `json:"available"`
	ProductName string `json:"productName"`
	Filesize    int64  `json:"filesize"`
}

// downloadRequestData is the download-request response.
type downloadRequestData struct {
	AvailableDownloads []downloadEntry `json:"availableDownloads"`
	PreparingDownloads []downloadEntry `json:"preparingDownloads"`
	Failed             []downloadEntry `json:"failed"`
}

// downloadRetrieveData is the download-retrieve response.
type downloadRetrieveData struct {
	Available []downloadEntry `json:"available"`
	Requested []downloadEntry `json:"requested"`
}

type downloadEntry struct {
	DownloadID json.Number `json:"downloadId"`
	EntityID   string      `json:"entityId"`
	URL        string      `json:"url"`
}

func (r sceneResultWire) toSceneResult(dataset string) SceneResult {
	meta := make(map[string]string, len(r.Metadata))
	for _, m := range r.Metadata {
		if m.Value == nil {
			continue
		}
		meta[m.FieldName] = fmt.Sprint(m.Value)
	}
	return SceneResult{
		EntityID:     r.EntityID,
		DisplayID:    r.DisplayID,
		Dataset:      dataset,
		CloudCover:   r.CloudCover,
		Downloadable: r.Options.Download,
		PublishDate:  r.PublishDate,
		Metadata:     meta,
		Browse:       r.Browse,
	}
}
