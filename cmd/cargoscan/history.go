package main

import (
	"errors"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"cargoscan/internal/diag"
	"cargoscan/internal/diagfmt"
	"cargoscan/internal/project"
)

var historyCmd = &cobra.Command{
	Use:   "history [path]",
	Short: "Show recorded builds and their diagnostics",
	Long: `List recent build and clean runs of the project. With --show ID, print the
diagnostics recorded for that run instead.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistoryCmd,
}

func init() {
	historyCmd.Flags().Int("limit", 20, "number of runs to list")
	historyCmd.Flags().Bool("all", false, "list runs of every project")
	historyCmd.Flags().Int64("show", 0, "print the diagnostics of this run")
	historyCmd.Flags().Bool("json", false, "print as JSON")
}

func runHistoryCmd(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	all, _ := cmd.Flags().GetBool("all")
	show, _ := cmd.Flags().GetInt64("show")
	asJSON, _ := cmd.Flags().GetBool("json")

	st := cli.openHistory()
	if st == nil {
		return errors.New("build history is disabled")
	}
	defer st.Close()

	out := cmd.OutOrStdout()
	if show > 0 {
		ds, err := st.DiagnosticsFor(show)
		if err != nil {
			return err
		}
		bag := diag.NewBag(0)
		for _, d := range ds {
			bag.Add(d)
		}
		if asJSON {
			return diagfmt.JSON(out, bag, diagfmt.JSONOpts{IncludeLinks: true})
		}
		return diagfmt.Pretty(out, bag, cli.prettyOpts(""))
	}

	manifest := ""
	if !all {
		m, err := project.ResolveManifest(firstArg(args))
		if err != nil {
			return err
		}
		manifest = m
	}
	builds, err := st.RecentBuilds(manifest, limit)
	if err != nil {
		return err
	}
	if asJSON {
		return writeJSON(out, builds)
	}
	if len(builds) == 0 {
		fmt.Fprintln(out, "no recorded builds")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tSTEP\tEXIT\tERRORS\tWARNINGS\tDURATION\tCOMMAND")
	for _, b := range builds {
		exit := strconv.Itoa(b.ExitCode)
		if b.Succeeded() {
			exit = color.GreenString(exit)
		} else {
			exit = color.RedString(exit)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
			b.ID, b.StartedAt.Format("2006-01-02 15:04:05"), b.Step, exit,
			b.Errors, b.Warnings, formatDuration(b.Duration), b.Command)
	}
	return tw.Flush()
}
