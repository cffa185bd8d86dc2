package buildpipeline

import (
	"path/filepath"
	"strings"

	"cargoscan/internal/project"
)

// Command is a fully resolved process invocation.
type Command struct {
	Name string
	Args []string
	Dir  string
}

// String renders the command line for display.
func (c Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, quote(c.Name))
	for _, a := range c.Args {
		parts = append(parts, quote(a))
	}
	return strings.Join(parts, " ")
}

func quote(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, " \t\"'\\$") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// Step is a cargo invocation the pipeline can run.
type Step interface {
	// Name labels the step in logs, metrics, and history.
	Name() string
	Command() Command
}

// BuildStep runs `cargo build`.
type BuildStep struct {
	Tool      string
	Manifest  string
	Release   bool
	UserArgs  []string
	TargetDir string
}

// NewBuildStep derives a build step from the host settings. release forces
// --release regardless of the default build option.
func NewBuildStep(tool string, s project.Settings, release bool) BuildStep {
	return BuildStep{
		Tool:     tool,
		Manifest: s.ManifestPath,
		Release:  release || s.DefaultBuildOption == project.BuildOptionRelease,
		UserArgs: s.Args(),
	}
}

func (BuildStep) Name() string { return "build" }

// Command renders `<tool> build [--release] [user args] [--target-dir=<dir>] --manifest-path=<path>`.
func (b BuildStep) Command() Command {
	args := []string{"build"}
	if b.Release {
		args = append(args, "--release")
	}
	args = append(args, b.UserArgs...)
	if b.TargetDir != "" {
		args = append(args, "--target-dir="+b.TargetDir)
	}
	args = append(args, "--manifest-path="+b.Manifest)
	return Command{Name: b.Tool, Args: args, Dir: manifestDir(b.Manifest)}
}

// CleanStep runs `cargo clean`.
type CleanStep struct {
	Tool      string
	Manifest  string
	TargetDir string
}

func (CleanStep) Name() string { return "clean" }

// Command renders `<tool> clean [--target-dir=<dir>] --manifest-path=<path>`.
func (c CleanStep) Command() Command {
	args := []string{"clean"}
	if c.TargetDir != "" {
		args = append(args, "--target-dir="+c.TargetDir)
	}
	args = append(args, "--manifest-path="+c.Manifest)
	return Command{Name: c.Tool, Args: args, Dir: manifestDir(c.Manifest)}
}

func manifestDir(manifest string) string {
	if manifest == "" {
		return ""
	}
	return filepath.Dir(manifest)
}
