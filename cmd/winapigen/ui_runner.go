package main

import (
	"context"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"winapigen/internal/catalog"
	"winapigen/internal/gen"
	"winapigen/internal/ui"
)

type generateOutcome struct {
	results []*gen.Result
	err     error
}

// runWithUI runs the requests while a progress view follows their events.
func runWithUI(ctx context.Context, title string, cat *catalog.Catalog, reqs []*gen.Request) ([]*gen.Result, error) {
	events := make(chan gen.Event, 256)
	outcomeCh := make(chan generateOutcome, 1)
	units := make([]string, len(reqs))
	for i, req := range reqs {
		units[i] = req.Unit()
		req.Progress = gen.ChannelSink{Ch: events}
	}

	go func() {
		res, err := gen.GenerateAll(ctx, cat, reqs)
		outcomeCh <- generateOutcome{results: res, err: err}
		close(events)
	}()

	model := ui.NewProgressModel(title, units, events)
	program := tea.NewProgram(model, tea.WithOutput(os.Stdout))
	_, uiErr := program.Run()
	outcome := <-outcomeCh
	if uiErr != nil {
		return outcome.results, uiErr
	}
	return outcome.results, outcome.err
}
