package main

import (
	"context"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"cargoscan/internal/buildpipeline"
	"cargoscan/internal/ui"
)

type stepOutcome struct {
	result buildpipeline.Result
	err    error
}

// runStepWithUI runs step while a progress view renders its events on stderr.
func runStepWithUI(ctx context.Context, title string, step buildpipeline.Step, opts buildpipeline.Options) (buildpipeline.Result, error) {
	events := make(chan buildpipeline.Event, 256)
	outcomeCh := make(chan stepOutcome, 1)

	go func() {
		o := opts
		o.Sink = buildpipeline.MultiSink{opts.Sink, buildpipeline.ChannelSink{Ch: events}}
		res, err := buildpipeline.Run(ctx, step, o)
		outcomeCh <- stepOutcome{result: res, err: err}
		close(events)
	}()

	model := ui.NewProgressModel(title, events)
	program := tea.NewProgram(model, tea.WithOutput(os.Stderr))
	_, uiErr := program.Run()
	// The view may quit before the step does; keep the sink from blocking.
	go func() {
		for range events {
		}
	}()
	outcome := <-outcomeCh
	if uiErr != nil {
		return outcome.result, uiErr
	}
	return outcome.result, outcome.err
}
