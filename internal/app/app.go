package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/vogtb/go-spreadsheet/packages/ambsheet"
	"github.com/vogtb/go-spreadsheet/packages/ambsheet/internal/config"
	"github.com/vogtb/go-spreadsheet/packages/ambsheet/internal/ctxlog"
)

// App loads one sheet file, evaluates it and renders the results.
type App struct {
	outW   io.Writer
	logger *slog.Logger
	config *Config
	loader config.Loader
}

// NewApp is the constructor for the main application. Results go to outW,
// logs to logW. The loader is picked from the sheet file extension.
func NewApp(outW, logW io.Writer, appConfig *Config) (*App, error) {
	logger := newLogger(appConfig.LogLevel, appConfig.LogFormat, logW)
	logger.Debug("Logger configured successfully.")

	loader, err := config.LoaderFor(appConfig.SheetPath)
	if err != nil {
		return nil, err
	}

	return &App{
		outW:   outW,
		logger: logger,
		config: appConfig,
		loader: loader,
	}, nil
}

// Run executes the main application logic.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	model, err := a.loader.Load(ctx, a.config.SheetPath)
	if err != nil {
		return fmt.Errorf("failed to load sheet: %w", err)
	}

	evaluator := ambsheet.NewEvaluator(model.Rows, a.engineOptions(model.Engine)...)
	ws := evaluator.Worksheet()
	a.logger.Info("Sheet loaded.",
		"path", a.config.SheetPath,
		"rows", ws.Rows(),
		"cols", ws.Cols(),
		"formulas", ws.GetCellTypeCount(ambsheet.CellTypeFormula),
	)

	results := evaluator.Eval()
	selections, err := selectionsFor(results, model.Filters)
	if err != nil {
		return fmt.Errorf("failed to apply filters: %w", err)
	}
	filtered := ambsheet.Filter(results, selections)
	a.logger.Info("Evaluation finished.", "stuck", len(results.Stuck()), "filters", len(selections))

	switch a.config.Output {
	case "json":
		err = renderJSON(a.outW, filtered)
	default:
		err = renderText(a.outW, filtered)
	}
	if err != nil {
		return fmt.Errorf("failed to write results: %w", err)
	}

	a.logger.Debug("App.Run method finished.")
	return nil
}

// engineOptions merges file settings with command-line overrides
func (a *App) engineOptions(engine config.EngineConfig) []ambsheet.Option {
	opts := []ambsheet.Option{ambsheet.WithLogger(a.logger)}

	maxWorlds := engine.MaxWorlds
	if a.config.MaxWorlds != nil {
		maxWorlds = a.config.MaxWorlds
	}
	if maxWorlds != nil {
		opts = append(opts, ambsheet.WithMaxWorlds(*maxWorlds))
	}

	seed := engine.Seed
	if a.config.Seed != nil {
		seed = a.config.Seed
	}
	if seed != nil {
		opts = append(opts, ambsheet.WithSeed(*seed))
	}
	return opts
}

// selectionsFor turns the file's filters into selections on results
func selectionsFor(results *ambsheet.Results, filters []config.Filter) ([]ambsheet.Selection, error) {
	selections := make([]ambsheet.Selection, 0, len(filters))
	for _, f := range filters {
		pos, err := ambsheet.ParsePosition(f.Cell)
		if err != nil {
			return nil, err
		}
		selection, err := results.Select(pos, f.Worlds...)
		if err != nil {
			return nil, err
		}
		selections = append(selections, selection)
	}
	return selections, nil
}
