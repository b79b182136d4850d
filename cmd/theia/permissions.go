package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/nooodle-soup/Theia/pkg/theia"
)

func runPermissions(args []string) int {
	fs := flag.NewFlagSet("permissions", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to YAML config file")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: theia permissions [options]

Show the permissions granted to the account.

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

		perms, err := client.Permissions(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return ExitGeneralError
		}

		if len(perms) == 0 {
			fmt.Println("no special permissions")
			return ExitSuccess
		}
		for _, p := range perms {
			fmt.Println(p)
		}
		return ExitSuccess
	})
}
