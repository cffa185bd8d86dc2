package metadata

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadFixture(t *testing.T) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", "metadata.json"))
	require.NoError(t, err)
	return data
}

func TestParsePicksMatchingPackage(t *testing.T) {
	md, err := Parse(loadFixture(t), "/work/demo/Cargo.toml")
	require.NoError(t, err)
	assert.Equal(t, "demo", md.Name)
	assert.Equal(t, "0.1.0", md.Version)
	assert.Len(t, md.Targets, 4)
	assert.Equal(t, []string{"server", "client"}, md.BinaryTargets())
	assert.Equal(t, KindCustomBuild, md.Targets[2].Kind)
}

func TestParseCleansPaths(t *testing.T) {
	md, err := Parse(loadFixture(t), "/work/demo/./Cargo.toml")
	require.NoError(t, err)
	assert.Equal(t, "demo", md.Name)
}

func TestParseNormalizesUnicode(t *testing.T) {
	nfd := "/work/cafe\u0301/Cargo.toml"
	nfc := "/work/caf\u00e9/Cargo.toml"
	doc := []byte(`{"packages":[{"name":"cafe","manifest_path":"` + nfd + `","targets":[]}]}`)
	md, err := Parse(doc, nfc)
	require.NoError(t, err)
	assert.Equal(t, "cafe", md.Name)
}

func TestParseFailures(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"bad json", []byte("{not json")},
		{"no matching package", []byte(`{"packages":[{"name":"x","manifest_path":"/elsewhere/Cargo.toml"}]}`)},
		{"empty packages", []byte(`{"packages":[]}`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.data, "/work/demo/Cargo.toml")
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMetadataUnavailable))
		})
	}
}

func TestFetchInvokesMetadataCommand(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("fixture uses unix paths")
	}
	var got Command
	f := &Fetcher{
		Tool: "/usr/bin/cargo",
		Runner: RunnerFunc(func(_ context.Context, cmd Command) (Output, error) {
			got = cmd
			return Output{Stdout: loadFixture(t)}, nil
		}),
	}
	md, err := f.Fetch(context.Background(), "/work/demo/Cargo.toml")
	require.NoError(t, err)
	assert.Equal(t, "demo", md.Name)
	assert.Equal(t, "/usr/bin/cargo", got.Name)
	assert.Equal(t, "/work/demo", got.Dir)
	assert.Equal(t, []string{
		"metadata", "--no-deps", "--offline",
		"--manifest-path=/work/demo/Cargo.toml", "--format-version=1",
	}, got.Args)
}

func TestFetchProcessFailure(t *testing.T) {
	f := &Fetcher{
		Tool: "cargo",
		Runner: RunnerFunc(func(context.Context, Command) (Output, error) {
			return Output{Stderr: []byte("error: failed to parse manifest\n")}, errors.New("exit status 101")
		}),
	}
	_, err := f.Fetch(context.Background(), "Cargo.toml")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMetadataUnavailable)
	assert.Contains(t, err.Error(), "failed to parse manifest")
}

func TestFetchCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	f := &Fetcher{
		Tool: "cargo",
		Runner: RunnerFunc(func(ctx context.Context, _ Command) (Output, error) {
			cancel()
			<-ctx.Done()
			return Output{}, errors.New("signal: killed")
		}),
	}
	_, err := f.Fetch(ctx, "Cargo.toml")
	assert.ErrorIs(t, err, ErrMetadataUnavailable)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFetchWithoutTool(t *testing.T) {
	var f *Fetcher
	_, err := f.Fetch(context.Background(), "Cargo.toml")
	assert.ErrorIs(t, err, ErrMetadataUnavailable)
}
