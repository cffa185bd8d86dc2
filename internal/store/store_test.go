package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cargoscan/internal/buildpipeline"
	"cargoscan/internal/diag"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "history.db")
	s, err := NewStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate())
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleResult(exit int) buildpipeline.Result {
	return buildpipeline.Result{
		Step:     "build",
		Command:  buildpipeline.Command{Name: "cargo", Args: []string{"build", "--manifest-path=/w/Cargo.toml"}},
		ExitCode: exit,
		Elapsed:  1500 * time.Millisecond,
		Diagnostics: []*diag.Diagnostic{
			{
				Severity: diag.SevError,
				Code:     "E0425",
				Message:  []string{"cannot find value `x` in this scope", " --> src/main.rs:4:13"},
				File:     "/w/src/main.rs",
				Line:     4,
				Links:    []diag.LinkSpan{{Start: 41, Length: 16, Target: "file:///w/src/main.rs#L4:13"}},
			},
			{
				Severity: diag.SevWarning,
				Message:  []string{"unused variable: `y`"},
			},
		},
	}
}

func TestMigrateIdempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Migrate())
}

func TestRecordBuildRoundTrip(t *testing.T) {
	s := newTestStore(t)
	started := time.Now().Truncate(time.Millisecond)
	res := sampleResult(101)

	id, err := s.RecordBuild("/w/Cargo.toml", started, res)
	require.NoError(t, err)
	require.Positive(t, id)

	builds, err := s.RecentBuilds("/w/Cargo.toml", 10)
	require.NoError(t, err)
	require.Len(t, builds, 1)
	b := builds[0]
	assert.Equal(t, id, b.ID)
	assert.Equal(t, "build", b.Step)
	assert.Equal(t, "cargo build --manifest-path=/w/Cargo.toml", b.Command)
	assert.Equal(t, 101, b.ExitCode)
	assert.False(t, b.Succeeded())
	assert.Equal(t, 1, b.Errors)
	assert.Equal(t, 1, b.Warnings)
	assert.True(t, started.Equal(b.StartedAt))
	assert.Equal(t, 1500*time.Millisecond, b.Duration)

	ds, err := s.DiagnosticsFor(id)
	require.NoError(t, err)
	require.Len(t, ds, 2)
	for i := range ds {
		assert.True(t, res.Diagnostics[i].Equal(ds[i]), "diagnostic %d: %+v", i, ds[i])
	}
}

func TestRecentBuildsOrderAndFilter(t *testing.T) {
	s := newTestStore(t)
	base := time.Now()
	for i := range 3 {
		_, err := s.RecordBuild("/a/Cargo.toml", base.Add(time.Duration(i)*time.Second), sampleResult(i))
		require.NoError(t, err)
	}
	_, err := s.RecordBuild("/b/Cargo.toml", base, sampleResult(0))
	require.NoError(t, err)

	builds, err := s.RecentBuilds("/a/Cargo.toml", 2)
	require.NoError(t, err)
	require.Len(t, builds, 2)
	assert.Equal(t, 2, builds[0].ExitCode, "newest first")
	assert.Equal(t, 1, builds[1].ExitCode)

	all, err := s.RecentBuilds("", 0)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestPruneCascadesDiagnostics(t *testing.T) {
	s := newTestStore(t)
	base := time.Now()
	var first int64
	for i := range 3 {
		id, err := s.RecordBuild("/a/Cargo.toml", base.Add(time.Duration(i)*time.Second), sampleResult(0))
		require.NoError(t, err)
		if i == 0 {
			first = id
		}
	}

	n, err := s.Prune("/a/Cargo.toml", 2)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	ds, err := s.DiagnosticsFor(first)
	require.NoError(t, err)
	assert.Empty(t, ds)
}

func TestDiagnosticsForUnknownBuild(t *testing.T) {
	s := newTestStore(t)
	ds, err := s.DiagnosticsFor(42)
	require.NoError(t, err)
	assert.Empty(t, ds)
}
