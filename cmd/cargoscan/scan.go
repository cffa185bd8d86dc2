package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"cargoscan/internal/buildsystem"
)

var scanCmd = &cobra.Command{
	Use:   "scan [path]",
	Short: "Scan a Cargo project once and print its targets",
	Long: `Run cargo metadata and walk the project tree once, then print the binary
targets and the number of project files. path may be a directory or a Cargo.toml.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runScanCmd,
}

var targetsCmd = &cobra.Command{
	Use:   "targets [path]",
	Short: "List binary targets, from cache when the manifest is unchanged",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runTargetsCmd,
}

func init() {
	scanCmd.Flags().Bool("json", false, "print the scan result as JSON")
	scanCmd.Flags().Bool("files", false, "list project files")
	targetsCmd.Flags().Bool("json", false, "print targets as JSON")
	targetsCmd.Flags().Bool("refresh", false, "ignore cached targets and scan")
}

type scanReport struct {
	Name     string                    `json:"name"`
	Manifest string                    `json:"manifest"`
	ScanID   string                    `json:"scan_id,omitempty"`
	Parse    string                    `json:"parse"`
	Error    string                    `json:"error,omitempty"`
	Duration string                    `json:"duration,omitempty"`
	Targets  []buildsystem.BuildTarget `json:"targets"`
	Tasks    []buildsystem.Task        `json:"tasks"`
	Files    []string                  `json:"files,omitempty"`
	Cached   bool                      `json:"cached,omitempty"`
}

func runScanCmd(cmd *cobra.Command, args []string) error {
	asJSON, _ := cmd.Flags().GetBool("json")
	withFiles, _ := cmd.Flags().GetBool("files")

	ctx, span := driverSpan(cmd)
	defer span.End("")

	o, err := cli.openProject(firstArg(args), false)
	if err != nil {
		return err
	}
	defer o.Close()

	res := o.Scan(ctx)
	if res.Err == nil {
		cli.saveProject(o)
	}

	report := newScanReport(o, res)
	if withFiles || asJSON {
		if tree := o.Tree(); tree != nil {
			report.Files = tree.EnabledPaths()
		}
	}
	if asJSON {
		if err := writeJSON(cmd.OutOrStdout(), report); err != nil {
			return err
		}
	} else {
		printScanReport(cmd.OutOrStdout(), report, withFiles)
	}
	if res.Err != nil {
		span.Fail(res.Err)
		return res.Err
	}
	return nil
}

func runTargetsCmd(cmd *cobra.Command, args []string) error {
	asJSON, _ := cmd.Flags().GetBool("json")
	refresh, _ := cmd.Flags().GetBool("refresh")

	ctx, span := driverSpan(cmd)
	defer span.End("")

	o, err := cli.openProject(firstArg(args), false)
	if err != nil {
		return err
	}
	defer o.Close()

	cached := !refresh && len(o.Targets()) > 0
	var report scanReport
	if cached {
		report = newScanReport(o, buildsystem.ScanResult{})
		report.Cached = true
		report.Parse = "cached"
	} else {
		res := o.Scan(ctx)
		if res.Err != nil {
			return res.Err
		}
		cli.saveProject(o)
		report = newScanReport(o, res)
	}

	if asJSON {
		return writeJSON(cmd.OutOrStdout(), report.Targets)
	}
	printTargets(cmd.OutOrStdout(), report.Targets)
	return nil
}

func newScanReport(o *buildsystem.Orchestrator, res buildsystem.ScanResult) scanReport {
	st := o.State()
	r := scanReport{
		Name:     st.DisplayName,
		Manifest: o.ManifestPath(),
		ScanID:   st.ScanID,
		Parse:    st.Parse.String(),
		Targets:  o.Targets(),
		Tasks:    o.Tasks(),
	}
	if res.Duration > 0 {
		r.Duration = formatDuration(res.Duration)
	}
	if res.Err != nil {
		r.Error = res.Err.Error()
	}
	return r
}

func printScanReport(w io.Writer, r scanReport, withFiles bool) {
	bold := color.New(color.Bold)
	fmt.Fprintf(w, "%s  %s\n", bold.Sprint(r.Name), r.Manifest)
	status := r.Parse
	if r.Duration != "" {
		status += " in " + r.Duration
	}
	if r.Error != "" {
		status += ": " + color.RedString(r.Error)
	}
	fmt.Fprintf(w, "scan %s\n\n", status)
	printTargets(w, r.Targets)
	if withFiles {
		fmt.Fprintln(w)
		for _, f := range r.Files {
			fmt.Fprintln(w, f)
		}
	}
}

func printTargets(w io.Writer, targets []buildsystem.BuildTarget) {
	if len(targets) == 0 {
		fmt.Fprintln(w, "no binary targets")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TARGET\tEXECUTABLE")
	for _, t := range targets {
		fmt.Fprintf(tw, "%s\t%s\n", t.Name, t.ExecutablePath)
	}
	tw.Flush()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func firstArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return ""
}

