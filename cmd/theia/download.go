package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/nooodle-soup/Theia/internal/downloader"
	"github.com/nooodle-soup/Theia/pkg/theia"
)

func runDownload(args []string) int {
	fs := flag.NewFlagSet("download", flag.ExitOnError)

	configPath := fs.String("config", "", "Path to YAML config file")
	dataset := fs.String("dataset", "", "Dataset alias the scenes belong to (required)")
	scenes := fs.String("scenes", "", "Comma-separated scene entity ids (required)")
	dest := fs.String("dest", "", "Destination directory (default from config)")
	concurrency := fs.Int("concurrency", 0, "Number of parallel transfers")
	retries := fs.Int("retries", 0, "Retry limit for transient failures")
	force := fs.Bool("force", false, "Re-download scenes already present at the destination")
	noProgress := fs.Bool("no-progress", false, "Disable the progress display")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: theia download [options]

Download scene archives concurrently. Already-complete files are skipped,
so an interrupted run can simply be re-run. Exit code 4 means some scenes
failed; the per-scene report on stdout says which.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return ExitInvalidArgs
	}

	if *dataset == "" || *scenes == "" {
		fmt.Fprintln(os.Stderr, "Error: -dataset and -scenes are required")
		fs.Usage()
		return ExitInvalidArgs
	}

	var sceneIDs []string
	for _, id := range strings.Split(*scenes, ",") {
		if id = strings.TrimSpace(id); id != "" {
			sceneIDs = append(sceneIDs, id)
		}
	}
	if len(sceneIDs) == 0 {
		fmt.Fprintln(os.Stderr, "Error: -scenes holds no scene ids")
		return ExitInvalidArgs
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitGeneralError
	}
	if *concurrency > 0 {
		cfg.MaxConcurrency = *concurrency
	}
	if *retries > 0 {
		cfg.RetryLimit = *retries
	}
	if !*noProgress {
		cfg.Progress = true
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

	report, err := client.Download(ctx, theia.DownloadParams{
		Dataset:     *dataset,
		SceneIDs:    sceneIDs,
		Destination: *dest,
		Force:       *force,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitStorageError
	}

	printReport(report)

	if report.AllCompleted() {
		return ExitSuccess
	}
	return ExitPartialFailed
}

// printReport prints one line per scene in request order.
func printReport(report *downloader.Report) {
	for _, id := range report.Order {
		t := report.Tasks[id]
		switch t.State {
		case downloader.StateCompleted:
			note := ""
			if t.Skipped {
				note = " (already present)"
			}
			fmt.Printf("%s  completed  %s  %d bytes%s\n", id, t.Path, t.Bytes, note)
		case downloader.StateFailed:
			fmt.Printf("%s  failed  retries=%d  %v\n", id, t.Retries, t.Err)
		case downloader.StateCancelled:
			fmt.Printf("%s  cancelled\n", id)
		}
	}
	fmt.Printf("completed=%d (skipped=%d) failed=%d cancelled=%d\n",
		report.Completed, report.Skipped, report.Failed, report.Cancelled)
}
