package theia

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"time"

	"github.com/google/uuid"
	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"

	"github.com/nooodle-soup/Theia/internal/config"
	"github.com/nooodle-soup/Theia/internal/downloader"
	"github.com/nooodle-soup/Theia/internal/progress"
	"github.com/nooodle-soup/Theia/internal/query"
	"github.com/nooodle-soup/Theia/internal/session"
	"github.com/nooodle-soup/Theia/internal/transport"
)

// defaultRetrieveInterval is how long to wait between download-retrieve
// polls while the service is still preparing a product.
const defaultRetrieveInterval = 30 * time.Second

// ErrNoProduct is returned when a scene has no downloadable product.
var ErrNoProduct = errors.New("theia: no downloadable product for scene")

// Client is the programmatic entry point: session lifecycle, catalog
// search, and scene downloads against the M2M API.
type Client struct {
	cfg       config.Config
	transport transport.Client
	session   *session.Manager

	retrieveInterval time.Duration
}

// New creates a Client from the given configuration.
func New(cfg config.Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	tp := transport.NewClient(transport.Options{
		BaseURL:           cfg.BaseURL,
		Timeout:           cfg.RequestTimeout,
		RetryAttempts:     cfg.Retry.Attempts,
		RetryBackoff:      cfg.Retry.Backoff,
		RetryMaxBackoff:   cfg.Retry.MaxBackoff,
		RequestsPerSecond: cfg.RequestsPerSecond,
	})

	sess, err := session.NewManager(tp, session.Credentials{
		Username: cfg.Username,
		Password: cfg.Password,
	}, session.Options{AutoRenew: cfg.AutoRenewSession})
	if err != nil {
		return nil, err
	}

	return &Client{
		cfg:              cfg,
		transport:        tp,
		session:          sess,
		retrieveInterval: defaultRetrieveInterval,
	}, nil
}

// newWithTransport wires a Client over an existing transport, for tests.
func newWithTransport(cfg config.Config, tp transport.Client) (*Client, error) {
	sess, err := session.NewManager(tp, session.Credentials{
		Username: cfg.Username,
		Password: cfg.Password,
	}, session.Options{AutoRenew: cfg.AutoRenewSession})
	if err != nil {
		return nil, err
	}
	return &Client{
		cfg:              cfg,
		transport:        tp,
		session:          sess,
		retrieveInterval: defaultRetrieveInterval,
	}, nil
}

// SetRetrieveInterval overrides the poll interval used while the service
// prepares download products.
func (c *Client) SetRetrieveInterval(d time.Duration) {
	if d > 0 {
		c.retrieveInterval = d
	}
}

// Login acquires an auth token for the configured credentials.
func (c *Client) Login(ctx context.Context) error {
	return c.session.Login(ctx)
}

// Logout invalidates the token. Idempotent.
func (c *Client) Logout(ctx context.Context) error {
	return c.session.Logout(ctx)
}

// SceneSearch validates params, builds the scene-search payload, and
// returns the parsed results. Validation failures surface before any
// network call.
func (c *Client) SceneSearch(ctx context.Context, params query.SearchParams) (*SearchResult, error) {
	payload, err := query.BuildSceneSearch(params)
	if err != nil {
		return nil, err
	}
	if _, err := c.session.EnsureValid(ctx); err != nil {
		return nil, err
	}

	slog.Info("searching scenes", "dataset", params.Dataset)
	data, err := c.transport.Post(ctx, "scene-search", payload)
	if err != nil {
		return nil, err
	}

	var wire sceneSearchData
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("%w: decode scene-search response: %v", transport.ErrService, err)
	}

	result := &SearchResult{
		TotalHits:       wire.TotalHits,
		RecordsReturned: wire.RecordsReturned,
		Scenes:          make([]SceneResult, 0, len(wire.Results)),
	}
	for _, r := range wire.Results {
		result.Scenes = append(result.Scenes, r.toSceneResult(params.Dataset))
	}
	return result, nil
}

// DatasetSearch lists the datasets available to the account.
func (c *Client) DatasetSearch(ctx context.Context) ([]Dataset, error) {
	if _, err := c.session.EnsureValid(ctx); err != nil {
		return nil, err
	}

	data, err := c.transport.Post(ctx, "dataset-search", nil)
	if err != nil {
		return nil, err
	}

	var datasets []Dataset
	if err := json.Unmarshal(data, &datasets); err != nil {
		return nil, fmt.Errorf("%w: decode dataset-search response: %v", transport.ErrService, err)
	}
	return datasets, nil
}

// DatasetFilters lists the searchable metadata fields of a dataset.
func (c *Client) DatasetFilters(ctx context.Context, dataset string) ([]MetadataField, error) {
	if dataset == "" {
		return nil, &query.ValidationError{Field: "Dataset", Reason: "must not be empty"}
	}
	if _, err := c.session.EnsureValid(ctx); err != nil {
		return nil, err
	}

	data, err := c.transport.Post(ctx, "dataset-filters", query.DatasetFilters{DatasetName: dataset})
	if err != nil {
		return nil, err
	}

	var fields []MetadataField
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("%w: decode dataset-filters response: %v", transport.ErrService, err)
	}
	return fields, nil
}

// DataOwner returns the contact record for a data owner. The response
// shape varies by owner, so the raw data field is returned.
func (c *Client) DataOwner(ctx context.Context, owner string) (json.RawMessage, error) {
	if _, err := c.session.EnsureValid(ctx); err != nil {
		return nil, err
	}
	return c.transport.Post(ctx, "data-owner", query.DataOwner{DataOwner: owner})
}

// Permissions lists the permissions granted to the account.
func (c *Client) Permissions(ctx context.Context) ([]string, error) {
	if _, err := c.session.EnsureValid(ctx); err != nil {
		return nil, err
	}

	data, err := c.transport.Post(ctx, "permissions", nil)
	if err != nil {
		return nil, err
	}

	var perms []string
	if err := json.Unmarshal(data, &perms); err != nil {
		return nil, fmt.Errorf("%w: decode permissions response: %v", transport.ErrService, err)
	}
	return perms, nil
}

// SceneListAdd adds scenes to a named scene list and returns the number of
// scenes the service recorded.
func (c *Client) SceneListAdd(ctx context.Context, listID, dataset string, sceneIDs []string) (int, error) {
	if _, err := c.session.EnsureValid(ctx); err != nil {
		return 0, err
	}

	data, err := c.transport.Post(ctx, "scene-list-add", query.SceneListAdd{
		ListID:      listID,
		DatasetName: dataset,
		IDField:     "entityId",
		EntityIDs:   sceneIDs,
	})
	if err != nil {
		return 0, err
	}

	var added int
	if err := json.Unmarshal(data, &added); err != nil {
		return 0, fmt.Errorf("%w: decode scene-list-add response: %v", transport.ErrService, err)
	}
	return added, nil
}

// SceneListRemove removes scenes from a named scene list.
func (c *Client) SceneListRemove(ctx context.Context, listID, dataset string, sceneIDs []string) error {
	if _, err := c.session.EnsureValid(ctx); err != nil {
		return err
	}

	_, err := c.transport.Post(ctx, "scene-list-remove", query.SceneListRemove{
		ListID:      listID,
		DatasetName: dataset,
		EntityIDs:   sceneIDs,
	})
	return err
}

// DownloadParams describe one Download call.
type DownloadParams struct {
	// Dataset is the dataset alias the scenes belong to. Required.
	Dataset string

	// SceneIDs are the entity ids to download. Required.
	SceneIDs []string

	// Destination overrides the configured destination directory.
	Destination string

	// Force re-transfers scenes already present at the destination.
	Force bool
}

func (p DownloadParams) validate() error {
	if p.Dataset == "" {
		return &query.ValidationError{Field: "Dataset", Reason: "must not be empty"}
	}
	if len(p.SceneIDs) == 0 {
		return &query.ValidationError{Field: "SceneIDs", Reason: "must not be empty"}
	}
	return nil
}

// Download resolves each scene to a direct URL and streams the archives to
// the destination directory with bounded concurrency. Partial completion is
// a normal outcome; inspect the report for per-scene terminal states.
// Download fails wholesale only when the session cannot be validated before
// scheduling or the destination is unusable.
func (c *Client) Download(ctx context.Context, p DownloadParams) (*downloader.Report, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}

	if _, err := c.session.EnsureValid(ctx); err != nil {
		return nil, err
	}

	dest := p.Destination
	if dest == "" {
		dest = c.cfg.Destination
	}
	bucket, err := fileblob.OpenBucket(dest, &fileblob.Options{CreateDir: true})
	if err != nil {
		return nil, fmt.Errorf("%w: open destination %s: %v", downloader.ErrFilesystem, dest, err)
	}
	defer bucket.Close()

	scenes := make([]downloader.Scene, 0, len(p.SceneIDs))
	for _, id := range p.SceneIDs {
		scenes = append(scenes, downloader.Scene{EntityID: id, Dataset: p.Dataset})
	}

	var reporter *progress.Reporter
	if c.cfg.Progress {
		reporter = progress.NewReporter(progress.Options{
			TotalTasks: len(scenes),
			Workers:    c.cfg.MaxConcurrency,
			Label:      p.Dataset,
		})
		reporter.Start()
		defer reporter.Stop()
	}

	return c.download(ctx, scenes, bucket, reporter, p.Force)
}

// DownloadToBucket is Download with a caller-owned destination bucket.
func (c *Client) DownloadToBucket(ctx context.Context, p DownloadParams, bucket *blob.Bucket) (*downloader.Report, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	if _, err := c.session.EnsureValid(ctx); err != nil {
		return nil, err
	}

	scenes := make([]downloader.Scene, 0, len(p.SceneIDs))
	for _, id := range p.SceneIDs {
		scenes = append(scenes, downloader.Scene{EntityID: id, Dataset: p.Dataset})
	}
	return c.download(ctx, scenes, bucket, nil, p.Force)
}

func (c *Client) download(ctx context.Context, scenes []downloader.Scene, bucket *blob.Bucket, reporter *progress.Reporter, force bool) (*downloader.Report, error) {
	return downloader.Download(ctx, &resolver{client: c}, scenes, downloader.Options{
		Bucket:          bucket,
		MaxConcurrency:  c.cfg.MaxConcurrency,
		RetryLimit:      c.cfg.RetryLimit,
		RetryBackoff:    c.cfg.Retry.Backoff,
		RetryMaxBackoff: c.cfg.Retry.MaxBackoff,
		Force:           force,
		Progress:        reporter,
	})
}

// resolver implements downloader.Transport over the API client.
type resolver struct {
	client *Client
}

// Resolve turns a scene into a direct download URL: download-options picks
// the first available product, download-request asks for its URL, and
// download-retrieve is polled while the service reports the product as
// still preparing.
func (r *resolver) Resolve(ctx context.Context, scene downloader.Scene) (*downloader.Resolved, error) {
	c := r.client
	if _, err := c.session.EnsureValid(ctx); err != nil {
		return nil, err
	}

	data, err := c.transport.Post(ctx, "download-options", query.DownloadOptions{
		DatasetName: scene.Dataset,
		EntityIDs:   []string{scene.EntityID},
	})
	if err != nil {
		return nil, err
	}

	var products []productOption
	if err := json.Unmarshal(data, &products); err != nil {
		return nil, fmt.Errorf("%w: decode download-options response: %v", transport.ErrService, err)
	}

	var product *productOption
	for i := range products {
		if products[i].Available && products[i].EntityID == scene.EntityID {
			product = &products[i]
			break
		}
	}
	if product == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoProduct, scene.EntityID)
	}

	label := uuid.NewString()
	data, err = c.transport.Post(ctx, "download-request", query.DownloadRequest{
		Downloads: []query.DownloadProduct{{EntityID: scene.EntityID, ProductID: product.ID}},
		Label:     label,
	})
	if err != nil {
		return nil, err
	}

	var req downloadRequestData
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("%w: decode download-request response: %v", transport.ErrService, err)
	}

	directURL := ""
	if len(req.AvailableDownloads) > 0 {
		directURL = req.AvailableDownloads[0].URL
	} else {
		directURL, err = r.awaitRetrieve(ctx, label)
		if err != nil {
			return nil, err
		}
	}

	return &downloader.Resolved{
		URL:      directURL,
		Filename: urlFilename(directURL),
		Size:     product.Filesize,
	}, nil
}

// awaitRetrieve polls download-retrieve until the service hands out a URL
// for the labeled request or ctx is cancelled.
func (r *resolver) awaitRetrieve(ctx context.Context, label string) (string, error) {
	c := r.client
	for {
		slog.Info("download not ready, waiting", "label", label, "interval", c.retrieveInterval)
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(c.retrieveInterval):
		}

		data, err := c.transport.Post(ctx, "download-retrieve", query.DownloadRetrieve{Label: label})
		if err != nil {
			return "", err
		}

		var ret downloadRetrieveData
		if err := json.Unmarshal(data, &ret); err != nil {
			return "", fmt.Errorf("%w: decode download-retrieve response: %v", transport.ErrService, err)
		}
		for _, d := range ret.Available {
			if d.URL != "" {
				return d.URL, nil
			}
		}
	}
}

// Fetch opens a streaming transfer for a resolved URL.
func (r *resolver) Fetch(ctx context.Context, rawURL string) (*transport.FetchResponse, error) {
	if _, err := r.client.session.EnsureValid(ctx); err != nil {
		return nil, err
	}
	return r.client.transport.Fetch(ctx, rawURL)
}

// urlFilename extracts the product filename from a pre-signed URL path.
func urlFilename(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" {
		return ""
	}
	return name
}
