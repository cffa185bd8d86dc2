package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var excludeCmd = &cobra.Command{
	Use:   "exclude",
	Short: "Manage files left out of the project tree",
	Long: `Exclusions are project settings: paths (or doublestar patterns) relative to
the project root that the tree synchronizer skips. They are kept in the
project cache.`,
}

var excludeListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print the exclusion list",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withExclusions(cmd, func(e exclusionEditor) {})
	},
}

var excludeAddCmd = &cobra.Command{
	Use:   "add <path>...",
	Short: "Exclude paths from the project tree",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withExclusions(cmd, func(e exclusionEditor) { e.RemoveFiles(args) })
	},
}

var excludeRemoveCmd = &cobra.Command{
	Use:   "remove <path>...",
	Short: "Bring excluded paths back into the project tree",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withExclusions(cmd, func(e exclusionEditor) { e.AddFiles(args) })
	},
}

var excludeRenameCmd = &cobra.Command{
	Use:   "rename <old> <new>",
	Short: "Exclude old and include new, as after moving a file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withExclusions(cmd, func(e exclusionEditor) { e.RenameFile(args[0], args[1]) })
	},
}

func init() {
	excludeCmd.PersistentFlags().String("project", "", "project directory or Cargo.toml (default: current directory)")
	excludeCmd.AddCommand(excludeListCmd, excludeAddCmd, excludeRemoveCmd, excludeRenameCmd)
}

type exclusionEditor interface {
	AddFiles(paths []string)
	RemoveFiles(paths []string)
	RenameFile(oldPath, newPath string)
}

func withExclusions(cmd *cobra.Command, edit func(exclusionEditor)) error {
	projectPath, _ := cmd.Flags().GetString("project")
	o, err := cli.openProject(projectPath, false)
	if err != nil {
		return err
	}
	defer o.Close()

	edit(o)
	cli.saveProject(o)

	excluded := subtract(o.Settings().ExcludedFiles, cli.cfg.Scan.Excludes)
	if len(excluded) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no exclusions")
		return nil
	}
	for _, p := range excluded {
		fmt.Fprintln(cmd.OutOrStdout(), p)
	}
	return nil
}
