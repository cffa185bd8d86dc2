package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"cargoscan/internal/diag"
	"cargoscan/internal/diagfmt"
	"cargoscan/internal/outparse"
	"cargoscan/internal/version"
)

var parseCmd = &cobra.Command{
	Use:   "parse [file]",
	Short: "Parse saved compiler output into diagnostics",
	Long: `Read captured cargo or rustc output from file (or stdin when file is
omitted or "-") and print the diagnostics it contains.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runParseCmd,
}

func init() {
	parseCmd.Flags().String("format", "pretty", "output format (pretty|json|sarif)")
	parseCmd.Flags().String("workdir", "", "directory relative locations are resolved against (default: the file's directory)")
	parseCmd.Flags().Bool("stdout", false, "treat the input as standard output instead of standard error")
	parseCmd.Flags().Bool("links", false, "list link targets (pretty format)")
	parseCmd.Flags().Bool("dedup", true, "drop repeated diagnostics")
	parseCmd.Flags().Bool("sort", false, "order diagnostics by file and line")
	parseCmd.Flags().Bool("fail-on-error", false, "exit non-zero when the input contains errors")
}

// tidyBag applies the --dedup and --sort flags.
func tidyBag(bag *diag.Bag, dedup, sorted bool) {
	if dedup {
		bag.Dedup()
	}
	if sorted {
		bag.Sort()
	}
}

func runParseCmd(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	workDir, _ := cmd.Flags().GetString("workdir")
	asStdout, _ := cmd.Flags().GetBool("stdout")
	showLinks, _ := cmd.Flags().GetBool("links")
	dedup, _ := cmd.Flags().GetBool("dedup")
	sorted, _ := cmd.Flags().GetBool("sort")
	failOnError, _ := cmd.Flags().GetBool("fail-on-error")

	ctx, span := driverSpan(cmd)
	defer span.End("")

	var in io.Reader = cmd.InOrStdin()
	name := firstArg(args)
	if name != "" && name != "-" {
		f, err := os.Open(name)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
		if workDir == "" {
			workDir = filepath.Dir(name)
		}
	}
	if workDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return err
		}
		workDir = wd
	}
	if abs, err := filepath.Abs(workDir); err == nil {
		workDir = abs
	}

	ch := outparse.Stderr
	if asStdout {
		ch = outparse.Stdout
	}
	collected := diag.NewBagReporter(cli.cfg.Build.MaxDiagnostics)
	p := outparse.New(outparse.Options{WorkDir: workDir, Reporter: collected})
	if err := p.ParseReader(ctx, ch, in, nil); err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	bag := diag.NewBag(0)
	for _, d := range collected.Snapshot() {
		bag.Add(d)
	}
	tidyBag(bag, dedup, sorted)
	for _, d := range bag.Items() {
		cli.metrics.Diagnostic(d.Severity.String())
	}
	span.WithExtra("diagnostics", fmt.Sprint(bag.Len()))

	if err := renderBag(cmd, bag, format, workDir, showLinks); err != nil {
		return err
	}
	if failOnError && bag.HasErrors() {
		return fmt.Errorf("input contains %s", diagfmt.Summary(bag))
	}
	return nil
}

func renderBag(cmd *cobra.Command, bag *diag.Bag, format, workDir string, showLinks bool) error {
	mode, _ := diagfmt.ParsePathMode(cli.cfg.Output.PathMode)
	out := cmd.OutOrStdout()
	switch format {
	case "pretty":
		opts := cli.prettyOpts(workDir)
		opts.ShowLinks = showLinks
		return diagfmt.Pretty(out, bag, opts)
	case "json":
		return diagfmt.JSON(out, bag, diagfmt.JSONOpts{PathMode: mode, BaseDir: workDir, IncludeLinks: true})
	case "sarif":
		return diagfmt.Sarif(out, bag, diagfmt.SarifRunMeta{
			ToolName:    "cargoscan",
			ToolVersion: version.Version,
			BaseDir:     workDir,
		})
	default:
		return fmt.Errorf("invalid --format %q (expected pretty|json|sarif)", format)
	}
}
