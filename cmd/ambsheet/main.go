package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/vogtb/go-spreadsheet/packages/ambsheet/internal/app"
	"github.com/vogtb/go-spreadsheet/packages/ambsheet/internal/cli"
)

// main is the entrypoint for the ambsheet command.
func main() {
	if err := run(os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run parses args, evaluates the sheet and writes the results to outW. Logs
// go to logW.
func run(outW, logW io.Writer, args []string) error {
	appConfig, shouldExit, err := cli.Parse(args, outW)
	if err != nil {
		return err
	}
	if shouldExit {
		return nil
	}

	ambsheetApp, err := app.NewApp(outW, logW, appConfig)
	if err != nil {
		return &cli.ExitError{Code: 2, Message: err.Error()}
	}
	return ambsheetApp.Run(context.Background())
}
