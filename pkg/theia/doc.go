// Package theia is a Go client for the USGS M2M machine-to-machine API.
//
// A Client owns the session lifecycle (login, token renewal, logout),
// validates and submits catalog searches, and downloads scene archives
// concurrently with retry and per-scene failure reporting.
//
// # Usage
//
//	cfg := config.Default()
//	cfg.Username = os.Getenv("THEIA_USERNAME")
//	cfg.Password = os.Getenv("THEIA_PASSWORD")
//
//	client, err := theia.New(cfg)
//	if err := client.Login(ctx); err != nil { ... }
//	defer client.Logout(ctx)
//
//	result, err := client.SceneSearch(ctx, query.SearchParams{
//	    Dataset:   "landsat_tm_c2_l1",
//	    StartDate: "2012-01-01",
//	    EndDate:   "2012-12-31",
//	})
//
//	report, err := client.Download(ctx, theia.DownloadParams{
//	    Dataset:  "landsat_tm_c2_l1",
//	    SceneIDs: ids,
//	})
//
// The wire protocol is owned by the service; payload field names and error
// codes are treated as a fixed contract.
package theia
