// Package cli is responsible for parsing command-line arguments, validating
// user input, and handling process-level concerns like exit codes. It
// translates CLI flags into the application's configuration.
package cli

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/vogtb/go-spreadsheet/packages/ambsheet/internal/app"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Parse processes command-line arguments. It returns a populated Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	flagSet := flag.NewFlagSet("ambsheet", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
ambsheet - evaluate a spreadsheet where a cell can hold many values at once.

Usage:
  ambsheet [options] [SHEET_PATH]

Arguments:
  SHEET_PATH
    Path to a .hcl, .yaml or .yml sheet file.

Options:
`)
		flagSet.PrintDefaults()
	}

	sheetFlag := flagSet.String("sheet", "", "Path to the sheet file.")
	sFlag := flagSet.String("s", "", "Path to the sheet file (shorthand).")
	outputFlag := flagSet.String("output", "text", "Result format. Options: 'text' or 'json'.")
	logFormatFlag := flagSet.String("log-format", "text", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "warn", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	maxWorldsFlag := flagSet.Int("max-worlds", 0, "Most worlds one cell may produce, 0 for no limit. Overrides the sheet file.")
	seedFlag := flagSet.Uint64("seed", 0, "Seed for normal() sampling. Overrides the sheet file.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	path := ""
	if *sheetFlag != "" {
		path = *sheetFlag
	} else if *sFlag != "" {
		path = *sFlag
	} else if flagSet.NArg() > 0 {
		path = flagSet.Arg(0)
	}

	if path == "" {
		flagSet.Usage()
		return nil, true, nil
	}

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}

	cfg := app.Config{
		SheetPath: path,
		LogFormat: logFormat,
		LogLevel:  logLevel,
		Output:    strings.ToLower(*outputFlag),
	}

	// only explicitly given engine flags override the sheet file
	flagSet.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "max-worlds":
			cfg.MaxWorlds = maxWorldsFlag
		case "seed":
			cfg.Seed = seedFlag
		}
	})

	config, err := app.NewConfig(cfg)
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	return config, false, nil
}
