// Package progress provides progress reporting for download runs.
//
// This package outputs human-readable progress information to stderr,
// including scene counts, transfer speed, and totals.
//
// # Usage
//
//	reporter := progress.NewReporter(progress.Options{
//	    TotalTasks: len(scenes),
//	    Workers:    5,
//	    Label:      "landsat_tm_c2_l1",
//	})
//
//	reporter.Start()
//	defer reporter.Stop()
//
// # Output Format
//
//	[theia] Downloading: landsat_tm_c2_l1
//	[theia] Scenes: 10 | Workers: 5
//	[theia] Scenes: 4/10 done | 5 active | 1 pending | 1.13 GB | 42.1 MB/s
package progress
