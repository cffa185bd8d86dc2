package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"cargoscan/internal/buildsystem"
	"cargoscan/internal/cache"
	"cargoscan/internal/config"
	"cargoscan/internal/diagfmt"
	"cargoscan/internal/metrics"
	"cargoscan/internal/prof"
	"cargoscan/internal/project"
	"cargoscan/internal/scanner"
	"cargoscan/internal/store"
	"cargoscan/internal/toolchain"
	"cargoscan/internal/trace"
)

// app holds what every command shares once flags and config are resolved.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *metrics.Metrics
	color   bool
	cache   *cache.Store
	cleanup []func()
}

var cli app

func (a *app) init(cmd *cobra.Command) error {
	flags := cmd.Root().PersistentFlags()

	logger, err := newLogger(mustString(flags.GetString("log-level")))
	if err != nil {
		return err
	}
	a.logger = logger
	slog.SetDefault(logger)

	loader := config.NewLoader(logger)
	cfg, err := loader.Load()
	if err != nil {
		return err
	}
	if extra := mustString(flags.GetString("config")); extra != "" {
		override, err := config.LoadFromFile(extra)
		if err != nil {
			return err
		}
		cfg.Merge(override)
		cfg.Sources = append(cfg.Sources, extra)
	}
	if flags.Changed("color") {
		cfg.Output.Color = mustString(flags.GetString("color"))
	}
	if flags.Changed("cargo") {
		cfg.Toolchain.Cargo = mustString(flags.GetString("cargo"))
	}
	if noCache, _ := flags.GetBool("no-cache"); noCache {
		cfg.Cache.Disabled = true
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	colorMode, err := readSwitchMode("color", cfg.Output.Color)
	if err != nil {
		return err
	}
	a.color = colorMode.enabled(os.Stdout)
	color.NoColor = !a.color

	tracer, cleanup, err := setupTracing(cmd)
	if err != nil {
		return err
	}
	a.tracer = tracer
	a.cleanup = append(a.cleanup, cleanup)

	profOpts := prof.Options{
		CPU:   mustString(flags.GetString("cpu-profile")),
		Mem:   mustString(flags.GetString("mem-profile")),
		Trace: mustString(flags.GetString("runtime-trace")),
	}
	if profOpts.Enabled() {
		session, err := prof.Start(profOpts)
		if err != nil {
			return err
		}
		a.cleanup = append(a.cleanup, func() {
			if err := session.Stop(); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "profile: %v\n", err)
			}
		})
	}
	a.metrics = metrics.New()

	if !cfg.Cache.Disabled {
		dir := cfg.Cache.Dir
		if dir == "" {
			if dir, err = cache.DefaultDir("cargoscan"); err != nil {
				logger.Warn("cache disabled", "error", err)
			}
		}
		if dir != "" {
			if a.cache, err = cache.Open(dir); err != nil {
				logger.Warn("cache disabled", "path", dir, "error", err)
			}
		}
	}
	logger.Debug("configuration loaded", "sources", cfg.Sources)
	return nil
}

func (a *app) close() {
	for i := len(a.cleanup) - 1; i >= 0; i-- {
		a.cleanup[i]()
	}
	a.cleanup = nil
}

func newLogger(level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q: %w", level, err)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})), nil
}

func mustString(s string, err error) string {
	if err != nil {
		return ""
	}
	return s
}

func (a *app) toolchainOptions() toolchain.Options {
	return toolchain.Options{Cargo: a.cfg.Toolchain.Cargo, Compiler: a.cfg.Toolchain.Rustc}
}

// cachedEntry returns the cache entry for manifest, or nil.
func (a *app) cachedEntry(manifest string) *cache.Entry {
	if a.cache == nil {
		return nil
	}
	e, ok, err := a.cache.Get(manifest)
	if err != nil {
		a.logger.Warn("cache read failed", "path", manifest, "error", err)
		return nil
	}
	if !ok {
		return nil
	}
	return e
}

// settingsFor returns the persisted settings for manifest, or defaults.
func (a *app) settingsFor(manifest string) project.Settings {
	if e := a.cachedEntry(manifest); e != nil {
		s := e.Settings.Clone()
		s.ManifestPath = manifest
		return s
	}
	return project.Settings{ManifestPath: manifest}
}

// openProject creates an orchestrator for the project at pathArg. Cached
// targets seed the target list when the manifest has not changed since.
func (a *app) openProject(pathArg string, watch bool) (*buildsystem.Orchestrator, error) {
	manifest, err := project.ResolveManifest(pathArg)
	if err != nil {
		return nil, err
	}

	settings := project.Settings{ManifestPath: manifest}
	var initial []buildsystem.BuildTarget
	if e := a.cachedEntry(manifest); e != nil {
		settings = e.Settings.Clone()
		settings.ManifestPath = manifest
		if e.Fresh() {
			initial = e.Targets
		}
	}

	var watcher scanner.Watcher
	if watch {
		w, err := scanner.NewFSWatcher()
		if err != nil {
			return nil, fmt.Errorf("start file watcher: %w", err)
		}
		watcher = w
	}

	filter := a.cfg.Filter()
	filter.Excludes = append(filter.Excludes, settings.ExcludedFiles...)
	settings.ExcludedFiles = filter.Excludes

	o, err := buildsystem.New(buildsystem.Config{
		ManifestPath:   manifest,
		Settings:       settings,
		Toolchain:      a.toolchainOptions(),
		Filter:         &filter,
		Watcher:        watcher,
		Debounce:       a.cfg.Scan.Debounce,
		TargetDir:      a.targetDir(manifest),
		InitialTargets: initial,
		Logger:         a.logger,
		Metrics:        a.metrics,
		Tracer:         a.tracer,
	})
	if err != nil {
		if watcher != nil {
			watcher.Close()
		}
		return nil, err
	}
	return o, nil
}

func (a *app) targetDir(manifest string) string {
	dir := a.cfg.Build.TargetDir
	if dir == "" || filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(filepath.Dir(manifest), dir)
}

// saveProject stores the orchestrator's settings and targets. Exclusions
// coming from config files are not persisted as project settings.
func (a *app) saveProject(o *buildsystem.Orchestrator) {
	if a.cache == nil {
		return
	}
	settings := o.Settings()
	settings.ExcludedFiles = subtract(settings.ExcludedFiles, a.cfg.Scan.Excludes)
	e := &cache.Entry{
		Manifest:    o.ManifestPath(),
		DisplayName: o.State().DisplayName,
		Settings:    settings,
		Targets:     o.Targets(),
	}
	if fp, err := cache.Fingerprint(o.ManifestPath()); err == nil {
		e.Fingerprint = fp
	}
	if err := a.cache.Put(e); err != nil {
		a.logger.Warn("cache write failed", "path", e.Manifest, "error", err)
	}
}

func subtract(list, remove []string) []string {
	drop := make(map[string]bool, len(remove))
	for _, r := range remove {
		drop[filepath.ToSlash(r)] = true
	}
	var out []string
	for _, s := range list {
		if !drop[s] {
			out = append(out, s)
		}
	}
	return out
}

// openHistory opens the build history database, or returns nil when
// history is disabled or unavailable.
func (a *app) openHistory() *store.Store {
	if a.cfg.History.Disabled {
		return nil
	}
	path := a.cfg.History.DB
	if path == "" {
		if a.cache == nil {
			return nil
		}
		path = filepath.Join(a.cache.Dir(), "history.db")
	}
	st, err := store.NewStore(path)
	if err != nil {
		a.logger.Warn("history disabled", "path", path, "error", err)
		return nil
	}
	if err := st.Migrate(); err != nil {
		st.Close()
		a.logger.Warn("history disabled", "path", path, "error", err)
		return nil
	}
	return st
}

func (a *app) prettyOpts(baseDir string) diagfmt.PrettyOpts {
	mode, _ := diagfmt.ParsePathMode(a.cfg.Output.PathMode)
	return diagfmt.PrettyOpts{
		Color:    a.color,
		Context:  a.cfg.Output.Context,
		PathMode: mode,
		BaseDir:  baseDir,
		Summary:  true,
	}
}

// driverSpan opens the command-level trace span.
func driverSpan(cmd *cobra.Command) (context.Context, *trace.Span) {
	return trace.StartSpan(cmd.Context(), trace.ScopeDriver, cmd.Name())
}
