package buildpipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"cargoscan/internal/diag"
	"cargoscan/internal/metrics"
	"cargoscan/internal/outparse"
	"cargoscan/internal/trace"
)

// ErrStepFailed means the process ran and exited non-zero.
var ErrStepFailed = errors.New("step failed")

// Result is the outcome of a finished step.
type Result struct {
	Step        string
	Command     Command
	ExitCode    int
	Diagnostics []*diag.Diagnostic
	Elapsed     time.Duration
	Timings     Timings
}

// Errors counts error diagnostics.
func (r Result) Errors() int { return count(r.Diagnostics, diag.SevError) }

// Warnings counts warning diagnostics.
func (r Result) Warnings() int { return count(r.Diagnostics, diag.SevWarning) }

func count(ds []*diag.Diagnostic, sev diag.Severity) int {
	n := 0
	for _, d := range ds {
		if d.Severity == sev {
			n++
		}
	}
	return n
}

// Options configures Run.
type Options struct {
	Sink     ProgressSink
	Reporter diag.Reporter
	// MaxDiagnostics caps the collected diagnostics; 0 keeps all.
	MaxDiagnostics int
	// Dedup drops repeated diagnostics before they are collected.
	Dedup bool
	Env            []string
	Logger         *slog.Logger
	Metrics        *metrics.Metrics
	// CommandContext defaults to exec.CommandContext.
	CommandContext func(ctx context.Context, name string, args ...string) *exec.Cmd
}

// Run executes step, streaming stdout and stderr through one output parser
// with independent channels. The returned error is ErrStepFailed for a
// non-zero exit, ctx.Err() when cancelled, or the spawn failure.
func Run(ctx context.Context, step Step, opts Options) (Result, error) {
	cmdSpec := step.Command()
	res := Result{Step: step.Name(), Command: cmdSpec}

	sink := opts.Sink
	if sink == nil {
		sink = nopSink{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("step", step.Name())
	newCmd := opts.CommandContext
	if newCmd == nil {
		newCmd = exec.CommandContext
	}

	ctx, span := trace.StartSpan(ctx, trace.ScopeScan, step.Name())
	span.WithExtra("cmd", cmdSpec.String())

	bag := diag.NewBagReporter(opts.MaxDiagnostics)
	tracer := trace.FromContext(ctx)
	reporters := diag.MultiReporter{bag, diag.FuncReporter(func(d *diag.Diagnostic) {
		trace.Point(tracer, trace.ScopeProcess, "diagnostic", d.Severity.String()+" "+d.Location(), span.ID())
		opts.Metrics.Diagnostic(d.Severity.String())
		sink.OnEvent(Event{Stage: StageCompile, Status: StatusWorking, Diagnostic: d})
	})}
	if opts.Reporter != nil {
		reporters = append(reporters, opts.Reporter)
	}
	var reporter diag.Reporter = reporters
	if opts.Dedup {
		reporter = diag.NewDedupReporter(reporters)
	}
	parser := outparse.New(outparse.Options{WorkDir: cmdSpec.Dir, Reporter: reporter})

	cmd := newCmd(ctx, cmdSpec.Name, cmdSpec.Args...)
	cmd.Dir = cmdSpec.Dir
	if len(opts.Env) > 0 {
		cmd.Env = append(os.Environ(), opts.Env...)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return res, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return res, fmt.Errorf("stderr pipe: %w", err)
	}

	start := time.Now()
	logger.Info("running", "cmd", cmdSpec.String(), "dir", cmdSpec.Dir)
	sink.OnEvent(Event{Stage: StageBuild, Status: StatusWorking})
	if err := cmd.Start(); err != nil {
		res.ExitCode = -1
		span.Fail(err).End("spawn")
		sink.OnEvent(Event{Stage: StageBuild, Status: StatusError, Err: err})
		opts.Metrics.Build(step.Name(), metrics.OutcomeFailed)
		return res, fmt.Errorf("start %s: %w", cmdSpec.Name, err)
	}

	_, proc := trace.StartSpan(ctx, trace.ScopeProcess, cmdSpec.Name)
	proc.WithExtra("pid", strconv.Itoa(cmd.Process.Pid))

	marks := &stageMarks{start: start}
	onLine := func(ch outparse.Channel, line string, r outparse.Result) {
		if ev, ok := ParseProgress(line); ok && ch == outparse.Stderr && r == outparse.NotHandled {
			marks.see(ev.Stage)
			ev.Channel = ch
			ev.Elapsed = time.Since(start)
			sink.OnEvent(ev)
			return
		}
		sink.OnEvent(Event{Stage: StageBuild, Status: StatusWorking, Channel: ch, Line: line})
	}

	// Pipes must be drained before Wait closes them.
	var g errgroup.Group
	g.Go(func() error { return parser.ParseReader(ctx, outparse.Stdout, stdout, onLine) })
	g.Go(func() error { return parser.ParseReader(ctx, outparse.Stderr, stderr, onLine) })
	readErr := g.Wait()
	waitErr := cmd.Wait()
	proc.Fail(waitErr).End("")

	res.Elapsed = time.Since(start)
	res.Diagnostics = bag.Snapshot()
	marks.fill(&res.Timings, res.Elapsed)
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}

	outcome, status := metrics.OutcomeOK, StatusDone
	var runErr error
	switch {
	case ctx.Err() != nil:
		outcome, status, runErr = metrics.OutcomeCancelled, StatusError, ctx.Err()
	case waitErr != nil:
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			runErr = fmt.Errorf("%w: %s exited with status %d", ErrStepFailed, step.Name(), res.ExitCode)
		} else {
			runErr = fmt.Errorf("wait %s: %w", cmdSpec.Name, waitErr)
		}
		outcome, status = metrics.OutcomeFailed, StatusError
	case readErr != nil:
		outcome, status, runErr = metrics.OutcomeFailed, StatusError, fmt.Errorf("read output: %w", readErr)
	}

	span.WithExtra("exit", strconv.Itoa(res.ExitCode)).
		WithExtra("errors", strconv.Itoa(res.Errors())).
		Fail(runErr).
		End(outcome)
	sink.OnEvent(Event{Stage: StageBuild, Status: status, Err: runErr, Elapsed: res.Elapsed})
	opts.Metrics.Build(step.Name(), outcome)
	logger.Info("finished",
		"exit", res.ExitCode,
		"errors", res.Errors(),
		"warnings", res.Warnings(),
		"elapsed", res.Elapsed)
	return res, runErr
}

// stageMarks remembers when each stage was first and last seen.
type stageMarks struct {
	mu    sync.Mutex
	start time.Time
	first map[Stage]time.Time
	last  map[Stage]time.Time
}

func (m *stageMarks) see(s Stage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	if m.first == nil {
		m.first = make(map[Stage]time.Time)
		m.last = make(map[Stage]time.Time)
	}
	if _, ok := m.first[s]; !ok {
		m.first[s] = now
	}
	m.last[s] = now
}

// fill records resolve as spawn to first compile line, compile as first
// compile line to the Finished line, and build as the whole run.
func (m *stageMarks) fill(t *Timings, total time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t.Set(StageBuild, total)
	compileAt, compiled := m.first[StageCompile]
	if compiled {
		t.Set(StageResolve, compileAt.Sub(m.start))
		end := m.start.Add(total)
		if fin, ok := m.first[StageFinish]; ok {
			end = fin
		}
		t.Set(StageCompile, end.Sub(compileAt))
	}
	if first, ok := m.first[StageClean]; ok {
		t.Set(StageClean, m.last[StageClean].Sub(first))
	}
}
