package cache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cargoscan/internal/buildsystem"
	"cargoscan/internal/project"
)

func writeManifest(t *testing.T, dir, body string) string {
	t.Helper()
	p := filepath.Join(dir, "Cargo.toml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestPutGet(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)

	manifest := writeManifest(t, t.TempDir(), "[package]\nname = \"demo\"\n")
	fp, err := Fingerprint(manifest)
	require.NoError(t, err)

	in := &Entry{
		Manifest:    manifest,
		DisplayName: "demo",
		Fingerprint: fp,
		Settings:    project.Settings{UserArgs: "--features|x", DefaultBuildOption: project.BuildOptionRelease},
		Targets: []buildsystem.BuildTarget{{
			Name:           "demo",
			ExecutablePath: "/w/target/release/demo",
			BuildKey:       "demo",
		}},
	}
	require.NoError(t, store.Put(in))

	out, ok, err := store.Get(manifest)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "demo", out.DisplayName)
	assert.Equal(t, in.Settings, out.Settings)
	assert.Equal(t, in.Targets, out.Targets)
	assert.False(t, out.SavedAt.IsZero())
	assert.True(t, out.Fresh())
}

func TestGetMissing(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	_, ok, err := store.Get("/nowhere/Cargo.toml")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFreshTracksManifestAndLock(t *testing.T) {
	dir := t.TempDir()
	manifest := writeManifest(t, dir, "[package]\nname = \"demo\"\n")
	fp, err := Fingerprint(manifest)
	require.NoError(t, err)
	e := &Entry{Manifest: manifest, Fingerprint: fp}
	assert.True(t, e.Fresh())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "Cargo.lock"), []byte("version = 3\n"), 0o600))
	assert.False(t, e.Fresh(), "new lock file changes the fingerprint")

	fp, err = Fingerprint(manifest)
	require.NoError(t, err)
	e.Fingerprint = fp
	writeManifest(t, dir, "[package]\nname = \"renamed\"\n")
	assert.False(t, e.Fresh(), "edited manifest changes the fingerprint")
}

func TestSchemaMismatchIsMiss(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	manifest := "/w/Cargo.toml"
	require.NoError(t, store.Put(&Entry{Manifest: manifest}))

	// Rewrite with a foreign schema.
	e, ok, err := store.Get(manifest)
	require.NoError(t, err)
	require.True(t, ok)
	e.Schema = schemaVersion + 1
	f, err := os.Create(store.pathFor(project.KeyFor(manifest)))
	require.NoError(t, err)
	require.NoError(t, encodeRaw(f, e))
	require.NoError(t, f.Close())

	_, ok, err = store.Get(manifest)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeleteAndDropAll(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Put(&Entry{Manifest: "/a/Cargo.toml"}))
	require.NoError(t, store.Put(&Entry{Manifest: "/b/Cargo.toml"}))

	require.NoError(t, store.Delete("/a/Cargo.toml"))
	require.NoError(t, store.Delete("/a/Cargo.toml"))
	_, ok, _ := store.Get("/a/Cargo.toml")
	assert.False(t, ok)

	require.NoError(t, store.DropAll())
	_, ok, _ = store.Get("/b/Cargo.toml")
	assert.False(t, ok)
	require.NoError(t, store.DropAll(), "dropping an empty cache is a no-op")
}

func TestPutRequiresManifest(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	assert.Error(t, store.Put(&Entry{}))
}

func TestDefaultDirHonoursXDG(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", "/tmp/xdg")
	dir, err := DefaultDir("cargoscan")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/xdg/cargoscan", dir)
}
