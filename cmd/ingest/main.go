package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/JonMunkholm/regingest/internal/cli"
)

func main() {
	err := cli.NewRootCommand().Execute()
	if err == nil {
		return
	}

	// Commands print their own failures. Anything else is a usage error
	// from cobra that the silenced subcommands did not print.
	var exitErr *cli.ExitError
	if !errors.As(err, &exitErr) {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(cli.GetExitCode(err))
}
