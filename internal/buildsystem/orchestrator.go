package buildsystem

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"cargoscan/internal/metadata"
	"cargoscan/internal/metrics"
	"cargoscan/internal/observ"
	"cargoscan/internal/project"
	"cargoscan/internal/scanner"
	"cargoscan/internal/toolchain"
	"cargoscan/internal/trace"
)

// Config configures an Orchestrator.
type Config struct {
	ManifestPath string
	Settings     project.Settings
	Toolchain    toolchain.Options
	// Runner executes the metadata command; nil uses os/exec.
	Runner metadata.Runner
	// Filter defaults to scanner.DefaultFilter. Settings.ExcludedFiles
	// replaces its exclusion list.
	Filter *scanner.Filter
	// Watcher may be nil when the project is scanned once and not watched.
	Watcher  scanner.Watcher
	Debounce time.Duration
	// TargetDir is cargo's output directory; defaults to <root>/target.
	TargetDir string
	// InitialTargets seeds Targets before the first scan, e.g. from cache.
	InitialTargets []BuildTarget
	Logger         *slog.Logger
	Metrics        *metrics.Metrics
	Tracer         trace.Tracer
}

// Orchestrator sequences metadata fetches and tree walks for one project.
// At most one scan runs at a time.
type Orchestrator struct {
	manifest  string
	root      string
	targetDir string
	tool      toolchain.Options
	runner    metadata.Runner
	logger    *slog.Logger
	metrics   *metrics.Metrics

	sync      *scanner.Synchronizer
	debouncer *scanner.Debouncer
	guard     ScanGuard

	// life is cancelled by Close and bounds every scan.
	life   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	settings  project.Settings
	targets   []BuildTarget
	tasks     []Task
	files     []string
	state     State
	listeners map[int]func(Change)
	nextID    int
	closed    bool
}

var _ Project = (*Orchestrator)(nil)

// New prepares an orchestrator. No scan starts until Scan or RequestScan.
func New(cfg Config) (*Orchestrator, error) {
	manifestPath := cfg.ManifestPath
	if manifestPath == "" {
		manifestPath = cfg.Settings.ManifestPath
	}
	if manifestPath == "" {
		return nil, project.ErrManifestNotFound
	}
	manifest, err := filepath.Abs(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("resolve manifest: %w", err)
	}
	root := filepath.Dir(manifest)

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("manifest", manifest)

	filter := scanner.DefaultFilter()
	if cfg.Filter != nil {
		filter = *cfg.Filter
	}
	filter = filter.WithExcludes(cfg.Settings.ExcludedFiles)

	targetDir := cfg.TargetDir
	if targetDir == "" {
		targetDir = filepath.Join(root, "target")
	}

	settings := cfg.Settings.Clone()
	settings.ManifestPath = manifest

	tracer := cfg.Tracer
	if tracer == nil {
		tracer = trace.Nop
	}
	life, cancel := context.WithCancel(trace.WithTracer(context.Background(), tracer))

	o := &Orchestrator{
		manifest:  manifest,
		root:      root,
		targetDir: targetDir,
		tool:      cfg.Toolchain,
		runner:    cfg.Runner,
		logger:    logger,
		metrics:   cfg.Metrics,
		life:      life,
		cancel:    cancel,
		settings:  settings,
		targets:   slices.Clone(cfg.InitialTargets),
		listeners: make(map[int]func(Change)),
	}
	o.state.DisplayName = filepath.Base(root)
	if m, err := project.LoadManifest(manifest); err == nil {
		o.state.DisplayName = m.DisplayName()
	} else {
		logger.Debug("manifest not readable yet", "error", err)
	}

	o.sync, err = scanner.New(scanner.Config{
		Root:         root,
		ManifestPath: manifest,
		Filter:       filter,
		Watcher:      cfg.Watcher,
		Trigger:      o.trigger,
		Logger:       logger,
	})
	if err != nil {
		cancel()
		return nil, err
	}
	o.debouncer = scanner.NewDebouncer(cfg.Debounce, o.debouncedScan)
	return o, nil
}

// Scan runs a scan now and blocks until it finishes. When another scan is
// in flight the request is coalesced into a single rerun and Scan returns
// immediately with Coalesced set.
func (o *Orchestrator) Scan(ctx context.Context) ScanResult {
	if o.isClosed() {
		return ScanResult{Err: context.Canceled}
	}
	if !o.guard.Acquire() {
		o.metrics.ScanCoalesced()
		o.logger.Debug("scan in flight, rerun requested")
		return ScanResult{Coalesced: true}
	}
	for {
		res := o.runScan(ctx)
		rerun := o.guard.Release(res.Err == nil)
		o.setPhase(PhaseIdle)
		if !rerun || o.isClosed() {
			return res
		}
		if ctx.Err() != nil {
			// The caller gave up, but the queued request still has to run.
			go o.debouncedScan()
			return res
		}
		if !o.guard.Acquire() {
			return res
		}
		o.logger.Debug("running requested rerun")
	}
}

// RequestScan schedules a debounced scan.
func (o *Orchestrator) RequestScan() {
	o.debouncer.Trigger()
}

// NotifyManifestSaved is the host's save event for the manifest.
func (o *Orchestrator) NotifyManifestSaved() {
	o.trigger(scanner.ReasonManifest)
}

func (o *Orchestrator) trigger(reason string) {
	o.metrics.Trigger(reason)
	o.debouncer.Trigger()
}

// debouncedScan runs a scan bounded by the orchestrator's lifetime. Close
// waits for it.
func (o *Orchestrator) debouncedScan() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.wg.Add(1)
	o.mu.Unlock()
	defer o.wg.Done()
	o.Scan(o.life)
}

// Watch forwards filesystem changes to debounced scans until ctx is done or
// the orchestrator is closed.
func (o *Orchestrator) Watch(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(o.life, cancel)
	defer stop()
	return o.sync.Run(ctx)
}

func (o *Orchestrator) runScan(parent context.Context) ScanResult {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	stop := context.AfterFunc(o.life, cancel)
	defer stop()
	if trace.FromContext(ctx) == trace.Nop {
		ctx = trace.WithTracer(ctx, trace.FromContext(o.life))
	}

	scanID := uuid.NewString()
	start := time.Now()
	logger := o.logger.With("scan_id", scanID)
	o.mu.Lock()
	o.state.Phase = PhaseScanning
	o.state.ScanID = scanID
	o.mu.Unlock()

	ctx, span := trace.StartSpan(ctx, trace.ScopeScan, "scan")
	span.WithExtra("scan_id", scanID)
	timer := observ.NewTimer()

	tc, err := toolchain.Discover(o.tool)
	if err != nil {
		span.Fail(err).End("toolchain")
		logger.Error("toolchain unavailable", "error", err)
		o.finishFailed(scanID, ParseFailed, err)
		o.metrics.ObserveScan(metrics.OutcomeFailed, time.Since(start))
		return ScanResult{ScanID: scanID, Duration: time.Since(start), Err: err}
	}
	fetcher := &metadata.Fetcher{Tool: tc.Cargo, Runner: o.runner}

	var (
		md    *metadata.PackageMetadata
		mdErr error
		sr    scanner.SyncResult
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		pctx, sp := trace.StartSpan(gctx, trace.ScopePhase, "metadata")
		idx := timer.Begin("metadata")
		md, mdErr = fetcher.Fetch(pctx, o.manifest)
		timer.End(idx, "")
		sp.Fail(mdErr).End("")
		return nil
	})
	g.Go(func() error {
		pctx, sp := trace.StartSpan(gctx, trace.ScopePhase, "walk")
		defer sp.End("")
		return timer.Measure("walk", func() error {
			var err error
			sr, err = o.sync.Scan(pctx)
			sp.Fail(err)
			return err
		})
	})
	walkErr := g.Wait()
	elapsed := time.Since(start)

	if ctx.Err() != nil || o.isClosed() || errors.Is(walkErr, scanner.ErrSuperseded) {
		span.End("cancelled")
		logger.Debug("scan discarded")
		o.metrics.ObserveScan(metrics.OutcomeCancelled, elapsed)
		err := ctx.Err()
		if err == nil {
			err = context.Canceled
		}
		return ScanResult{ScanID: scanID, Duration: elapsed, Err: err}
	}

	scanErr := errors.Join(mdErr, walkErr)
	if scanErr != nil {
		span.Fail(scanErr).End("stale")
		logger.Warn("scan failed, keeping previous targets", "error", scanErr, "timings", timer)
		if walkErr == nil {
			o.mu.Lock()
			o.files = sr.Snapshot.EnabledPaths()
			o.mu.Unlock()
		}
		o.finishFailed(scanID, ParseStale, scanErr)
		o.metrics.ObserveScan(metrics.OutcomeStale, elapsed)
		return ScanResult{ScanID: scanID, Changed: sr.Changed, Duration: elapsed, Err: scanErr}
	}

	targets, tasks := o.derive(md)
	o.mu.Lock()
	changed := sr.Changed ||
		!slices.Equal(targets, o.targets) ||
		!slices.Equal(tasks, o.tasks) ||
		o.state.DisplayName != md.Name ||
		o.state.Parse != ParseOK
	o.targets = targets
	o.tasks = tasks
	o.files = sr.Snapshot.EnabledPaths()
	if md.Name != "" {
		o.state.DisplayName = md.Name
	}
	o.state.Parse = ParseOK
	o.state.Err = nil
	o.state.LastScan = time.Now()
	o.mu.Unlock()

	span.WithExtra("targets", strconv.Itoa(len(targets))).End("ok")
	logger.Info("scan finished",
		"targets", len(targets),
		"files", len(sr.Snapshot.Files),
		"changed", changed,
		"timings", timer)
	o.metrics.ObserveScan(metrics.OutcomeOK, elapsed)
	if changed {
		o.notify(nil)
	}
	return ScanResult{ScanID: scanID, Changed: changed, Duration: elapsed}
}

// derive builds targets and tasks from the binaries cargo reported.
func (o *Orchestrator) derive(md *metadata.PackageMetadata) ([]BuildTarget, []Task) {
	o.mu.Lock()
	profile := "debug"
	if o.settings.DefaultBuildOption == project.BuildOptionRelease {
		profile = "release"
	}
	o.mu.Unlock()
	buildDir := filepath.Join(o.targetDir, profile)

	bins := md.BinaryTargets()
	targets := make([]BuildTarget, 0, len(bins))
	tasks := make([]Task, 0, len(bins))
	for _, bin := range bins {
		targets = append(targets, BuildTarget{
			Name:           bin,
			DisplayName:    bin,
			ExecutablePath: filepath.Join(buildDir, toolchain.WithExecutableSuffix(bin)),
			ProjectFile:    o.manifest,
			WorkingDir:     buildDir,
			BuildKey:       bin,
		})
		tasks = append(tasks, Task{Name: bin, Description: bin})
	}
	return targets, tasks
}

func (o *Orchestrator) finishFailed(scanID string, parse ParseState, err error) {
	o.mu.Lock()
	o.state.Parse = parse
	o.state.Err = err
	o.state.ScanID = scanID
	o.state.LastScan = time.Now()
	o.mu.Unlock()
	o.notify(err)
}

// notify delivers the current view to listeners unless the orchestrator
// has been closed.
func (o *Orchestrator) notify(err error) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	ch := Change{
		ScanID:      o.state.ScanID,
		DisplayName: o.state.DisplayName,
		Targets:     slices.Clone(o.targets),
		Tasks:       slices.Clone(o.tasks),
		Files:       slices.Clone(o.files),
		Parse:       o.state.Parse,
		Err:         err,
	}
	ids := make([]int, 0, len(o.listeners))
	for id := range o.listeners {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	fns := make([]func(Change), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, o.listeners[id])
	}
	o.mu.Unlock()

	for _, fn := range fns {
		fn(ch)
	}
}

func (o *Orchestrator) setPhase(p Phase) {
	o.mu.Lock()
	o.state.Phase = p
	o.mu.Unlock()
}

func (o *Orchestrator) isClosed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

// OnChange registers fn for change notifications. Listeners run on the
// scanning goroutine and must not call Close.
func (o *Orchestrator) OnChange(fn func(Change)) (unsubscribe func()) {
	o.mu.Lock()
	defer o.mu.Unlock()
	id := o.nextID
	o.nextID++
	o.listeners[id] = fn
	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		delete(o.listeners, id)
	}
}

// Targets returns the current build targets.
func (o *Orchestrator) Targets() []BuildTarget {
	o.mu.Lock()
	defer o.mu.Unlock()
	return slices.Clone(o.targets)
}

// Tasks returns the current tasks.
func (o *Orchestrator) Tasks() []Task {
	o.mu.Lock()
	defer o.mu.Unlock()
	return slices.Clone(o.tasks)
}

// State returns a snapshot of the scan state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Tree returns the last synchronized file tree.
func (o *Orchestrator) Tree() *scanner.Snapshot {
	return o.sync.Current()
}

// Root is the project directory.
func (o *Orchestrator) Root() string { return o.root }

// ManifestPath is the absolute manifest path.
func (o *Orchestrator) ManifestPath() string { return o.manifest }

func (o *Orchestrator) AddFiles(paths []string)            { o.sync.AddFiles(paths) }
func (o *Orchestrator) RemoveFiles(paths []string)         { o.sync.RemoveFiles(paths) }
func (o *Orchestrator) RenameFile(oldPath, newPath string) { o.sync.RenameFile(oldPath, newPath) }

// Settings returns the host settings with the current exclusion list.
func (o *Orchestrator) Settings() project.Settings {
	o.mu.Lock()
	s := o.settings.Clone()
	o.mu.Unlock()
	s.ExcludedFiles = o.sync.Exclusions()
	return s
}

// UpdateSettings replaces the settings and requests a rescan.
func (o *Orchestrator) UpdateSettings(s project.Settings) error {
	if err := o.sync.SetExclusions(s.ExcludedFiles); err != nil {
		return err
	}
	o.mu.Lock()
	s = s.Clone()
	s.ManifestPath = o.manifest
	o.settings = s
	o.mu.Unlock()
	o.RequestScan()
	return nil
}

// Close cancels a scan in flight, suppresses its callbacks, and stops
// watching. It waits for debounced scans to return.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	o.mu.Unlock()

	o.cancel()
	o.debouncer.Stop()
	err := o.sync.Close()
	o.wg.Wait()
	return err
}
