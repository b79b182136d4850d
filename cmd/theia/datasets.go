package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/nooodle-soup/Theia/pkg/theia"
)

func runDatasets(args []string) int {
	fs := flag.NewFlagSet("datasets", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to YAML config file")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: theia datasets [options]

List the datasets available to the account: one line per dataset with
its alias and collection name.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return ExitInvalidArgs
	}

	return withClient(*configPath, func(client *theia.Client) int {
		ctx, cancel := signalContext()
		defer cancel()

		if err := client.Login(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return ExitAuthError
		}
		defer client.Logout(ctx)

		datasets, err := client.DatasetSearch(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return ExitGeneralError
		}

		for _, d := range datasets {
			fmt.Printf("%s  %s\n", d.DatasetAlias, d.CollectionName)
		}
		return ExitSuccess
	})
}

func runFilters(args []string) int {
	fs := flag.NewFlagSet("filters", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to YAML config file")
	dataset := fs.String("dataset", "", "Dataset alias to inspect (required)")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: theia filters -dataset <alias> [options]

List the searchable metadata fields of a dataset.

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

	return withClient(*configPath, func(client *theia.Client) int {
		ctx, cancel := signalContext()
		defer cancel()

		if err := client.Login(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return ExitAuthError
		}
		defer client.Logout(ctx)

		fields, err := client.DatasetFilters(ctx, *dataset)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return ExitGeneralError
		}

		for _, f := range fields {
			fmt.Printf("%s  %s\n", f.ID, f.FieldLabel)
		}
		return ExitSuccess
	})
}

// withClient builds a Client from the effective config and runs fn with it.
func withClient(configPath string, fn func(*theia.Client) int) int {
	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitGeneralError
	}

	client, err := theia.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitGeneralError
	}
	return fn(client)
}
