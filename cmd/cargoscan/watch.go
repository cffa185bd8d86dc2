package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"cargoscan/internal/buildsystem"
)

var watchCmd = &cobra.Command{
	Use:   "watch [path]",
	Short: "Watch a Cargo project and rescan on changes",
	Long: `Watch the project tree and manifest, rescanning after changes settle.
Every change to the target list or file tree is printed. With --metrics-addr
the scan and build counters are served at /metrics.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatchCmd,
}

func init() {
	watchCmd.Flags().String("metrics-addr", "", "serve prometheus metrics on this address (e.g. :9464)")
}

func runWatchCmd(cmd *cobra.Command, args []string) error {
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

	ctx, span := driverSpan(cmd)
	defer span.End("")

	o, err := cli.openProject(firstArg(args), true)
	if err != nil {
		return err
	}
	defer o.Close()

	out := cmd.OutOrStdout()
	unsubscribe := o.OnChange(func(c buildsystem.Change) {
		stamp := time.Now().Format("15:04:05")
		if c.Err != nil {
			fmt.Fprintf(out, "%s %s scan %s: %s\n", stamp, c.DisplayName, c.Parse, color.RedString(c.Err.Error()))
			return
		}
		fmt.Fprintf(out, "%s %s: %d target(s), %d file(s)\n", stamp, c.DisplayName, len(c.Targets), len(c.Files))
		cli.saveProject(o)
	})
	defer unsubscribe()

	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", cli.metrics.Handler())
		srv := &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				cli.logger.Error("metrics server failed", "addr", metricsAddr, "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		cli.logger.Info("serving metrics", "addr", metricsAddr)
	}

	if res := o.Scan(ctx); res.Err != nil {
		cli.logger.Warn("initial scan failed", "error", res.Err)
	}
	printTargets(out, o.Targets())
	fmt.Fprintf(out, "watching %s (Ctrl-C to stop)\n", o.Root())

	if err := o.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
