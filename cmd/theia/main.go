package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nooodle-soup/Theia/internal/config"
)

// Exit codes
const (
	ExitSuccess       = 0
	ExitGeneralError  = 1
	ExitInvalidArgs   = 2
	ExitAuthError     = 3
	ExitPartialFailed = 4
	ExitStorageError  = 5
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return ExitInvalidArgs
	}

	command := args[0]
	cmdArgs := args[1:]

	switch command {
	case "search":
		return runSearch(cmdArgs)
	case "download":
		return runDownload(cmdArgs)
	case "datasets":
		return runDatasets(cmdArgs)
	case "filters":
		return runFilters(cmdArgs)
	case "permissions":
		return runPermissions(cmdArgs)
	case "help", "-h", "--help":
		printUsage()
		return ExitSuccess
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		return ExitInvalidArgs
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `Usage: theia <command> [options]

Commands:
  search       Search scenes in a dataset by area, date range, and cloud cover
  download     Download scene archives concurrently to a local directory
  datasets     List datasets available to the account
  filters      List searchable metadata fields of a dataset
  permissions  Show the permissions of the account

Credentials come from THEIA_USERNAME and THEIA_PASSWORD, a config file
(-config), or command flags.

Run 'theia <command> -h' for command-specific help.`)
}

// loadConfig builds the effective configuration: defaults, then the
// optional YAML file, then environment variables.
func loadConfig(path string) (config.Config, error) {
	cfg := config.Default()
	if path != "" {
		var err error
		cfg, err = config.LoadFromFile(path)
		if err != nil {
			return config.Config{}, err
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\n[theia] Received interrupt, shutting down...")
		cancel()
	}()

	return ctx, cancel
}
