package buildpipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cargoscan/internal/diag"
	"cargoscan/internal/metrics"
	"cargoscan/internal/outparse"
	"cargoscan/internal/project"
)

// fakeCargo re-executes the test binary as TestHelperProcess with the
// requested scenario.
func fakeCargo(scenario string) func(ctx context.Context, name string, args ...string) *exec.Cmd {
	return func(ctx context.Context, name string, args ...string) *exec.Cmd {
		cs := append([]string{"-test.run=TestHelperProcess", "--", scenario, name}, args...)
		cmd := exec.CommandContext(ctx, os.Args[0], cs...)
		cmd.Env = append(os.Environ(), "CARGOSCAN_HELPER=1")
		return cmd
	}
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("CARGOSCAN_HELPER") != "1" {
		return
	}
	args := os.Args
	for len(args) > 0 && args[0] != "--" {
		args = args[1:]
	}
	if len(args) < 2 {
		os.Exit(2)
	}
	switch args[1] {
	case "build-error":
		fmt.Fprintln(os.Stderr, "   Compiling demo v0.1.0 (/work/demo)")
		fmt.Fprintln(os.Stderr, "warning: unused variable: `x`")
		fmt.Fprintln(os.Stderr, "  --> src/main.rs:2:9")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "error[E0425]: cannot find value `y` in this scope")
		fmt.Fprintln(os.Stderr, "  --> src/main.rs:3:5")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stdout, "plain stdout line")
		fmt.Fprintln(os.Stderr, "error: could not compile `demo` due to previous error")
		os.Exit(101)
	case "build-ok":
		fmt.Fprintln(os.Stderr, "   Compiling demo v0.1.0 (/work/demo)")
		fmt.Fprintln(os.Stderr, "    Finished dev [unoptimized + debuginfo] target(s) in 0.42s")
		os.Exit(0)
	case "echo-args":
		wd, _ := os.Getwd()
		fmt.Fprintln(os.Stdout, "dir="+wd)
		fmt.Fprintln(os.Stdout, "args="+strings.Join(args[2:], " "))
		os.Exit(0)
	case "repeat-warning":
		for range 2 {
			fmt.Fprintln(os.Stderr, "warning: unused variable: `x`")
			fmt.Fprintln(os.Stderr, "  --> src/main.rs:2:9")
			fmt.Fprintln(os.Stderr, "")
		}
		os.Exit(0)
	case "long-line":
		os.Stderr.WriteString(strings.Repeat("x", 5*1024*1024) + "\n")
		os.Stdout.WriteString(strings.Repeat("y", 1024*1024) + "\n")
		fmt.Fprintln(os.Stderr, "warning: unused import")
		fmt.Fprintln(os.Stderr, "  --> src/lib.rs:1:5")
		fmt.Fprintln(os.Stderr, "")
		os.Exit(0)
	case "hang":
		time.Sleep(time.Minute)
		os.Exit(0)
	}
	os.Exit(3)
}

type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *recordingSink) OnEvent(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *recordingSink) snapshot() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

func TestBuildStepCommand(t *testing.T) {
	s := project.Settings{UserArgs: "--features|serde", ManifestPath: "/work/demo/Cargo.toml"}
	cmd := NewBuildStep("cargo", s, true).Command()
	assert.Equal(t, "cargo", cmd.Name)
	assert.Equal(t, []string{"build", "--release", "--features", "serde", "--manifest-path=/work/demo/Cargo.toml"}, cmd.Args)
	assert.Equal(t, "/work/demo", cmd.Dir)

	s.DefaultBuildOption = project.BuildOptionDebug
	debug := NewBuildStep("cargo", s, false)
	debug.TargetDir = "/tmp/out"
	assert.Equal(t, []string{"build", "--features", "serde", "--target-dir=/tmp/out", "--manifest-path=/work/demo/Cargo.toml"}, debug.Command().Args)

	s.DefaultBuildOption = project.BuildOptionRelease
	assert.True(t, NewBuildStep("cargo", s, false).Release)
}

func TestCleanStepCommand(t *testing.T) {
	cmd := CleanStep{Tool: "/usr/bin/cargo", Manifest: "/w/Cargo.toml"}.Command()
	assert.Equal(t, []string{"clean", "--manifest-path=/w/Cargo.toml"}, cmd.Args)
	assert.Equal(t, "/usr/bin/cargo clean --manifest-path=/w/Cargo.toml", cmd.String())
	assert.Equal(t, "cargo build 'my dir'", Command{Name: "cargo", Args: []string{"build", "my dir"}}.String())
}

func TestParseProgress(t *testing.T) {
	ev, ok := ParseProgress("   Compiling serde v1.0.197")
	require.True(t, ok)
	assert.Equal(t, StageCompile, ev.Stage)
	assert.Equal(t, "serde v1.0.197", ev.Unit)

	ev, ok = ParseProgress("   Compiling demo v0.1.0 (/work/demo)")
	require.True(t, ok)
	assert.Equal(t, "demo v0.1.0", ev.Unit)

	ev, ok = ParseProgress("    Finished release [optimized] target(s) in 3.1s")
	require.True(t, ok)
	assert.Equal(t, StageFinish, ev.Stage)
	assert.Equal(t, StatusDone, ev.Status)

	_, ok = ParseProgress("error: aborting due to previous error")
	assert.False(t, ok)
	_, ok = ParseProgress("   Hello world")
	assert.False(t, ok)
}

func TestRunCollectsDiagnostics(t *testing.T) {
	dir := t.TempDir()
	step := BuildStep{Tool: "cargo", Manifest: filepath.Join(dir, "Cargo.toml")}
	sink := &recordingSink{}
	m := metrics.New()

	res, err := Run(context.Background(), step, Options{
		Sink:           sink,
		Metrics:        m,
		CommandContext: fakeCargo("build-error"),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStepFailed))
	assert.Equal(t, 101, res.ExitCode)
	assert.Equal(t, "build", res.Step)

	require.Len(t, res.Diagnostics, 3)
	assert.Equal(t, 2, res.Errors())
	assert.Equal(t, 1, res.Warnings())

	warn := res.Diagnostics[0]
	assert.Equal(t, diag.SevWarning, warn.Severity)
	assert.Equal(t, filepath.Join(dir, "src", "main.rs"), warn.File)
	assert.Equal(t, 2, warn.Line)
	assert.Equal(t, "E0425", res.Diagnostics[1].Code)

	var sawProgress, sawStdout, sawDiag bool
	events := sink.snapshot()
	for _, ev := range events {
		switch {
		case ev.Unit == "demo v0.1.0":
			sawProgress = true
		case ev.Line == "plain stdout line" && ev.Channel == outparse.Stdout:
			sawStdout = true
		case ev.Diagnostic != nil:
			sawDiag = true
		}
	}
	assert.True(t, sawProgress)
	assert.True(t, sawStdout)
	assert.True(t, sawDiag)
	last := events[len(events)-1]
	assert.Equal(t, StageBuild, last.Stage)
	assert.Equal(t, StatusError, last.Status)
	assert.True(t, res.Timings.Has(StageBuild))
	assert.True(t, res.Timings.Has(StageCompile))
}

func TestRunSuccess(t *testing.T) {
	step := BuildStep{Tool: "cargo", Manifest: filepath.Join(t.TempDir(), "Cargo.toml")}
	res, err := Run(context.Background(), step, Options{CommandContext: fakeCargo("build-ok")})
	require.NoError(t, err)
	assert.Zero(t, res.ExitCode)
	assert.Empty(t, res.Diagnostics)
	assert.True(t, res.Timings.Has(StageResolve))
}

func TestRunUsesManifestDirectory(t *testing.T) {
	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	var lines []string
	var mu sync.Mutex
	sink := FuncSink(func(ev Event) {
		if ev.Line != "" {
			mu.Lock()
			lines = append(lines, ev.Line)
			mu.Unlock()
		}
	})
	step := CleanStep{Tool: "cargo", Manifest: filepath.Join(dir, "Cargo.toml")}
	_, err = Run(context.Background(), step, Options{Sink: sink, CommandContext: fakeCargo("echo-args")})
	require.NoError(t, err)
	assert.Contains(t, lines, "dir="+dir)
	assert.Contains(t, lines, "args=cargo clean --manifest-path="+filepath.Join(dir, "Cargo.toml"))
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	step := BuildStep{Tool: "cargo", Manifest: filepath.Join(t.TempDir(), "Cargo.toml")}
	_, err := Run(ctx, step, Options{CommandContext: fakeCargo("hang")})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRunOversizedLine(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	step := BuildStep{Tool: "cargo", Manifest: filepath.Join(t.TempDir(), "Cargo.toml")}
	res, err := Run(ctx, step, Options{CommandContext: fakeCargo("long-line")})
	require.NoError(t, err)
	assert.Zero(t, res.ExitCode)
	require.Len(t, res.Diagnostics, 1)
	assert.Equal(t, 1, res.Diagnostics[0].Line)
}

func TestRunDedup(t *testing.T) {
	step := BuildStep{Tool: "cargo", Manifest: filepath.Join(t.TempDir(), "Cargo.toml")}
	for _, tt := range []struct {
		dedup bool
		want  int
	}{{dedup: true, want: 1}, {dedup: false, want: 2}} {
		var events int
		var mu sync.Mutex
		sink := FuncSink(func(ev Event) {
			if ev.Diagnostic != nil {
				mu.Lock()
				events++
				mu.Unlock()
			}
		})
		res, err := Run(context.Background(), step, Options{
			Dedup:          tt.dedup,
			Sink:           sink,
			CommandContext: fakeCargo("repeat-warning"),
		})
		require.NoError(t, err)
		assert.Len(t, res.Diagnostics, tt.want, "dedup=%v", tt.dedup)
		assert.Equal(t, tt.want, events, "dedup=%v", tt.dedup)
	}
}

func TestRunSpawnFailure(t *testing.T) {
	step := BuildStep{Tool: filepath.Join(t.TempDir(), "missing-cargo"), Manifest: "/w/Cargo.toml"}
	res, err := Run(context.Background(), step, Options{})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrStepFailed))
	assert.Equal(t, -1, res.ExitCode)
}

func TestTimings(t *testing.T) {
	var tm Timings
	tm.Set(StageResolve, time.Second)
	tm.Set(StageCompile, 2*time.Second)
	assert.Equal(t, 3*time.Second, tm.Sum(StageResolve, StageCompile, StageFinish))
	assert.False(t, tm.Has(StageClean))
}
