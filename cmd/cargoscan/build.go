package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"cargoscan/internal/buildpipeline"
	"cargoscan/internal/diag"
	"cargoscan/internal/diagfmt"
	"cargoscan/internal/outparse"
	"cargoscan/internal/project"
	"cargoscan/internal/toolchain"
	"cargoscan/internal/trace"
)

var buildCmd = &cobra.Command{
	Use:   "build [path] [-- cargo args...]",
	Short: "Build a Cargo project and report its diagnostics",
	Long: `Run cargo build for the project, parse compiler output into diagnostics,
and record the run in the build history. Arguments after -- replace the
project's saved extra build arguments for this run.`,
	RunE: runBuildCmd,
}

var cleanCmd = &cobra.Command{
	Use:   "clean [path]",
	Short: "Remove the project's build output with cargo clean",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCleanCmd,
}

func init() {
	buildCmd.Flags().Bool("release", false, "build with --release")
	buildCmd.Flags().String("ui", "", "progress view (auto|on|off)")
	buildCmd.Flags().Bool("save-args", false, "persist the arguments after -- as project settings")
	cleanCmd.Flags().String("ui", "", "progress view (auto|on|off)")
}

func runBuildCmd(cmd *cobra.Command, args []string) error {
	release, _ := cmd.Flags().GetBool("release")
	saveArgs, _ := cmd.Flags().GetBool("save-args")

	before, after := splitArgsAtDash(cmd, args)
	if len(before) > 1 {
		return fmt.Errorf("expected at most one path before --, got %d", len(before))
	}
	manifest, err := project.ResolveManifest(firstArg(before))
	if err != nil {
		return err
	}

	settings := cli.settingsFor(manifest)
	if len(after) > 0 || saveArgs {
		settings.SetArgs(after)
	}
	if saveArgs {
		if err := saveSettings(manifest, settings); err != nil {
			return err
		}
	}

	tc, err := toolchain.Discover(cli.toolchainOptions())
	if err != nil {
		return err
	}
	step := buildpipeline.NewBuildStep(tc.Cargo, settings, release)
	step.TargetDir = cli.targetDir(manifest)
	return runStep(cmd, manifest, step)
}

func runCleanCmd(cmd *cobra.Command, args []string) error {
	manifest, err := project.ResolveManifest(firstArg(args))
	if err != nil {
		return err
	}
	tc, err := toolchain.Discover(cli.toolchainOptions())
	if err != nil {
		return err
	}
	step := buildpipeline.CleanStep{Tool: tc.Cargo, Manifest: manifest, TargetDir: cli.targetDir(manifest)}
	return runStep(cmd, manifest, step)
}

// runStep runs step with either the progress view or plain streaming output,
// prints the collected diagnostics, and records the run.
func runStep(cmd *cobra.Command, manifest string, step buildpipeline.Step) error {
	uiValue, _ := cmd.Flags().GetString("ui")
	if uiValue == "" {
		uiValue = cli.cfg.Output.UI
	}
	uiMode, err := readSwitchMode("ui", uiValue)
	if err != nil {
		return err
	}

	ctx, span := driverSpan(cmd)
	defer span.End("")
	span.WithExtra("step", step.Name())

	opts := buildpipeline.Options{
		MaxDiagnostics: cli.cfg.Build.MaxDiagnostics,
		Dedup:          !cli.cfg.Build.KeepDuplicates,
		Logger:         cli.logger,
		Metrics:        cli.metrics,
	}
	root := filepath.Dir(manifest)
	title := fmt.Sprintf("%s %s", step.Name(), displayName(manifest))

	started := time.Now()
	var res buildpipeline.Result
	var runErr error
	if uiMode.enabled(os.Stderr) {
		res, runErr = runStepWithUI(ctx, title, step, opts)
	} else {
		fmt.Fprintln(cmd.ErrOrStderr(), step.Command().String())
		opts.Sink = &buildpipeline.SerialSink{Next: plainSink(cmd)}
		res, runErr = buildpipeline.Run(ctx, step, opts)
	}

	recordRun(ctx, manifest, started, res)

	bag := diag.NewBag(0)
	for _, d := range res.Diagnostics {
		bag.Add(d)
	}
	if bag.Len() > 0 {
		if err := diagfmt.Pretty(cmd.OutOrStdout(), bag, cli.prettyOpts(root)); err != nil {
			return err
		}
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "%s finished in %s\n", step.Name(), formatDuration(res.Elapsed))
	if timings, _ := cmd.Flags().GetBool("timings"); timings {
		printStageTimings(cmd.ErrOrStderr(), res.Timings)
	}

	switch {
	case runErr == nil:
		return nil
	case errors.Is(runErr, buildpipeline.ErrStepFailed):
		span.Fail(runErr)
		return fmt.Errorf("%s failed with exit code %d", step.Name(), res.ExitCode)
	default:
		span.Fail(runErr)
		return runErr
	}
}

// plainSink echoes cargo's status lines and the program's stdout. Compiler
// diagnostics are printed once the step finishes.
func plainSink(cmd *cobra.Command) buildpipeline.ProgressSink {
	stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()
	return buildpipeline.FuncSink(func(ev buildpipeline.Event) {
		switch {
		case ev.Diagnostic != nil || ev.Line == "":
		case ev.Stage != buildpipeline.StageBuild:
			fmt.Fprintln(stderr, ev.Line)
		case ev.Channel == outparse.Stdout:
			fmt.Fprintln(stdout, ev.Line)
		}
	})
}

func recordRun(ctx context.Context, manifest string, started time.Time, res buildpipeline.Result) {
	st := cli.openHistory()
	if st == nil {
		return
	}
	defer st.Close()

	_, span := trace.StartSpan(ctx, trace.ScopePhase, "history")
	defer span.End("")

	id, err := st.RecordBuild(manifest, started, res)
	if err != nil {
		cli.logger.Warn("history write failed", "error", err)
		return
	}
	if keep := cli.cfg.History.Keep; keep > 0 {
		if _, err := st.Prune(manifest, keep); err != nil {
			cli.logger.Warn("history prune failed", "error", err)
		}
	}
	cli.logger.Debug("recorded build", "id", id, "step", res.Step)
}

func saveSettings(manifest string, s project.Settings) error {
	o, err := cli.openProject(manifest, false)
	if err != nil {
		return err
	}
	defer o.Close()
	if err := o.UpdateSettings(s); err != nil {
		return err
	}
	cli.saveProject(o)
	return nil
}

func displayName(manifest string) string {
	if m, err := project.LoadManifest(manifest); err == nil {
		return m.DisplayName()
	}
	return filepath.Base(filepath.Dir(manifest))
}

// splitArgsAtDash separates positional args from those after "--".
func splitArgsAtDash(cmd *cobra.Command, args []string) ([]string, []string) {
	at := cmd.ArgsLenAtDash()
	if at < 0 {
		return args, nil
	}
	return args[:at], args[at:]
}
