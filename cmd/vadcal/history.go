package main

import (
	"cmp"
	"errors"
	"fmt"

	"github.com/MrWong99/vadcal/internal/history"
	"github.com/MrWong99/vadcal/internal/report"
)

// HistoryCmd lists recorded calibration runs.
type HistoryCmd struct {
	Path string `type:"path" help:"Override settings.history_path."`
	Last int    `short:"n" default:"10" help:"Number of most recent runs to show (0 for all)."`
}

// Run implements the kong command.
func (c *HistoryCmd) Run(app *appContext) error {
	path := cmp.Or(c.Path, app.cfg.Settings.HistoryPath)
	if path == "" {
		return errors.New("no history file configured, set settings.history_path or --path")
	}
	recs, err := history.NewFileStore(path).Last(c.Last)
	if err != nil {
		return err
	}
	fmt.Println(report.History(recs))
	return nil
}
