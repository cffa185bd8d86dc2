package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"cargoscan/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		format, _ := cmd.Flags().GetString("format")
		info := version.Current()
		switch format {
		case "text", "":
			fmt.Fprintln(cmd.OutOrStdout(), info.String())
			return nil
		case "json":
			return writeJSON(cmd.OutOrStdout(), info)
		default:
			return fmt.Errorf("unsupported format %q (expected text|json)", format)
		}
	},
}

func init() {
	versionCmd.Flags().String("format", "text", "output format (text|json)")
}
