package scanner

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWatcher struct {
	mu      sync.Mutex
	watched map[string]int
	adds    int
	removes int
	events  chan fsnotify.Event
	errs    chan error
	closed  bool
}

func newFakeWatcher() *fakeWatcher {
	return &fakeWatcher{
		watched: make(map[string]int),
		events:  make(chan fsnotify.Event, 16),
		errs:    make(chan error, 1),
	}
}

func (f *fakeWatcher) Add(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.adds++
	f.watched[path]++
	return nil
}

func (f *fakeWatcher) Remove(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removes++
	delete(f.watched, path)
	return nil
}

func (f *fakeWatcher) Events() <-chan fsnotify.Event { return f.events }
func (f *fakeWatcher) Errors() <-chan error          { return f.errs }

func (f *fakeWatcher) WatchList() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for p := range f.watched {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}

func (f *fakeWatcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.events)
	}
	return nil
}

func (f *fakeWatcher) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.adds, f.removes
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// newProject lays out a small cargo project and returns its root.
func newProject(t *testing.T) string {
	t.Helper()
	root, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	writeFile(t, filepath.Join(root, "Cargo.toml"), "[package]\nname = \"demo\"\n")
	writeFile(t, filepath.Join(root, "src", "main.rs"), "fn main() {}\n")
	writeFile(t, filepath.Join(root, "src", "bin", "tool.rs"), "fn main() {}\n")
	writeFile(t, filepath.Join(root, "README.md"), "# demo\n")
	writeFile(t, filepath.Join(root, "target", "debug", "demo"), "bin")
	writeFile(t, filepath.Join(root, ".git", "HEAD"), "ref: refs/heads/main\n")
	return root
}

func TestWalkFiltersAndDisables(t *testing.T) {
	root := newProject(t)

	snap, err := Walk(context.Background(), root, DefaultFilter())
	require.NoError(t, err)

	assert.Equal(t, []string{
		filepath.Join(root, "Cargo.toml"),
		filepath.Join(root, "README.md"),
		filepath.Join(root, "src", "bin", "tool.rs"),
		filepath.Join(root, "src", "main.rs"),
	}, snap.Paths())
	assert.False(t, snap.Files[filepath.Join(root, "README.md")].Enabled)
	assert.True(t, snap.Files[filepath.Join(root, "src", "main.rs")].Enabled)
	assert.Equal(t, []string{
		root,
		filepath.Join(root, "src"),
		filepath.Join(root, "src", "bin"),
	}, snap.DirList())
}

func TestWalkExclusions(t *testing.T) {
	root := newProject(t)

	tests := []struct {
		name     string
		excludes []string
		missing  string
	}{
		{"glob directory", []string{"src/bin/**"}, filepath.Join(root, "src", "bin", "tool.rs")},
		{"plain relative path", []string{"README.md"}, filepath.Join(root, "README.md")},
		{"absolute path", []string{filepath.Join(root, "src", "main.rs")}, filepath.Join(root, "src", "main.rs")},
		{"extension glob", []string{"**/*.md"}, filepath.Join(root, "README.md")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap, err := Walk(context.Background(), root, DefaultFilter().WithExcludes(tt.excludes))
			require.NoError(t, err)
			assert.NotContains(t, snap.Files, tt.missing)
			assert.Contains(t, snap.Files, filepath.Join(root, "Cargo.toml"))
		})
	}
}

func TestWalkExcludedDirectoryLeavesWatchSet(t *testing.T) {
	root := newProject(t)
	snap, err := Walk(context.Background(), root, DefaultFilter().WithExcludes([]string{"src/bin"}))
	require.NoError(t, err)
	assert.NotContains(t, snap.Dirs, filepath.Join(root, "src", "bin"))
}

func TestWalkCancelled(t *testing.T) {
	root := newProject(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Walk(ctx, root, DefaultFilter())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFilterValidate(t *testing.T) {
	assert.NoError(t, DefaultFilter().WithExcludes([]string{"src/**/*.rs"}).Validate())
	assert.Error(t, DefaultFilter().WithExcludes([]string{"src/[abc"}).Validate())
}

func TestDiff(t *testing.T) {
	prev := &Snapshot{
		Root:  "/p",
		Files: map[string]FileEntry{"/p/a.rs": {Enabled: true}, "/p/old/b.rs": {Enabled: true}, "/p/c.md": {}},
		Dirs:  map[string]struct{}{"/p": {}, "/p/old": {}},
	}
	next := &Snapshot{
		Root:  "/p",
		Files: map[string]FileEntry{"/p/a.rs": {Enabled: true}, "/p/new/d.rs": {Enabled: true}, "/p/c.md": {Enabled: true}},
		Dirs:  map[string]struct{}{"/p": {}, "/p/new": {}},
	}
	d := Diff(prev, next)
	assert.Equal(t, []string{"/p/new"}, d.AddDirs)
	assert.Equal(t, []string{"/p/old"}, d.RemoveDirs)
	assert.Equal(t, []string{"/p/new/d.rs"}, d.AddFiles)
	assert.Equal(t, []string{"/p/old/b.rs"}, d.RemoveFiles)
	assert.Equal(t, []string{"/p/c.md"}, d.Toggled)
	assert.True(t, d.TreeChanged())

	assert.True(t, Diff(next, next).Empty())
	assert.Equal(t, []string{"/p", "/p/new"}, Diff(nil, next).AddDirs)
}

func TestScanIsIdempotent(t *testing.T) {
	root := newProject(t)
	w := newFakeWatcher()
	s, err := New(Config{Root: root, ManifestPath: filepath.Join(root, "Cargo.toml"), Filter: DefaultFilter(), Watcher: w})
	require.NoError(t, err)
	defer s.Close()

	first, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.True(t, first.Changed)
	assert.Len(t, first.Delta.AddDirs, 3)

	adds, removes := w.counts()

	second, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.False(t, second.Changed)
	assert.True(t, second.Delta.Empty())
	adds2, removes2 := w.counts()
	assert.Equal(t, adds, adds2, "no watch commands on an unchanged tree")
	assert.Equal(t, removes, removes2)
}

func TestWatchSetFollowsTree(t *testing.T) {
	root := newProject(t)
	manifest := filepath.Join(root, "Cargo.toml")
	w := newFakeWatcher()
	s, err := New(Config{Root: root, ManifestPath: manifest, Filter: DefaultFilter(), Watcher: w})
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Scan(context.Background())
	require.NoError(t, err)

	writeFile(t, filepath.Join(root, "src", "net", "mod.rs"), "")
	require.NoError(t, os.RemoveAll(filepath.Join(root, "src", "bin")))

	res, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "src", "net")}, res.Delta.AddDirs)
	assert.Equal(t, []string{filepath.Join(root, "src", "bin")}, res.Delta.RemoveDirs)

	want := append(res.Snapshot.DirList(), manifest)
	slices.Sort(want)
	assert.Equal(t, want, w.WatchList())
}

func TestClassify(t *testing.T) {
	root := newProject(t)
	manifest := filepath.Join(root, "Cargo.toml")
	s, err := New(Config{Root: root, ManifestPath: manifest, Filter: DefaultFilter()})
	require.NoError(t, err)
	_, err = s.Scan(context.Background())
	require.NoError(t, err)

	require.NoError(t, os.Mkdir(filepath.Join(root, "examples"), 0o755))

	tests := []struct {
		name string
		ev   fsnotify.Event
		want bool
	}{
		{"manifest write", fsnotify.Event{Name: manifest, Op: fsnotify.Write}, true},
		{"temp file in root", fsnotify.Event{Name: filepath.Join(root, ".cargo-lock-tmp"), Op: fsnotify.Create}, false},
		{"temp file removed from root", fsnotify.Event{Name: filepath.Join(root, ".cargo-lock-tmp"), Op: fsnotify.Remove}, false},
		{"root itself", fsnotify.Event{Name: root, Op: fsnotify.Write}, false},
		{"source write", fsnotify.Event{Name: filepath.Join(root, "src", "main.rs"), Op: fsnotify.Write}, true},
		{"nested create", fsnotify.Event{Name: filepath.Join(root, "src", "bin", "x.rs"), Op: fsnotify.Create}, true},
		{"new directory in root", fsnotify.Event{Name: filepath.Join(root, "examples"), Op: fsnotify.Create}, true},
		{"watched directory removed", fsnotify.Event{Name: filepath.Join(root, "src"), Op: fsnotify.Remove}, true},
		{"build output", fsnotify.Event{Name: filepath.Join(root, "target", "debug", "demo"), Op: fsnotify.Write}, false},
		{"chmod only", fsnotify.Event{Name: filepath.Join(root, "src", "main.rs"), Op: fsnotify.Chmod}, false},
		{"outside root", fsnotify.Event{Name: filepath.Join(filepath.Dir(root), "other.rs"), Op: fsnotify.Write}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, got := s.Classify(tt.ev)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRunIgnoresRootNoise(t *testing.T) {
	root := newProject(t)
	w := newFakeWatcher()
	var triggers atomic.Int32
	s, err := New(Config{
		Root:         root,
		ManifestPath: filepath.Join(root, "Cargo.toml"),
		Filter:       DefaultFilter(),
		Watcher:      w,
		Trigger:      func(string) { triggers.Add(1) },
	})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()

	w.events <- fsnotify.Event{Name: filepath.Join(root, "nimble-tmp"), Op: fsnotify.Create}
	w.events <- fsnotify.Event{Name: filepath.Join(root, "nimble-tmp"), Op: fsnotify.Remove}
	require.NoError(t, s.Close())
	require.NoError(t, <-done)
	assert.Zero(t, triggers.Load())
}

func TestExclusionOperations(t *testing.T) {
	root := newProject(t)
	var reasons []string
	s, err := New(Config{
		Root:    root,
		Filter:  DefaultFilter(),
		Trigger: func(r string) { reasons = append(reasons, r) },
	})
	require.NoError(t, err)

	s.RemoveFiles([]string{filepath.Join(root, "src", "main.rs"), "README.md"})
	assert.Equal(t, []string{"src/main.rs", "README.md"}, s.Exclusions())

	res, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.NotContains(t, res.Snapshot.Files, filepath.Join(root, "src", "main.rs"))

	s.RenameFile(filepath.Join(root, "src", "bin", "tool.rs"), filepath.Join(root, "src", "main.rs"))
	assert.Equal(t, []string{"README.md", "src/bin/tool.rs"}, s.Exclusions())

	s.AddFiles([]string{"README.md"})
	assert.Equal(t, []string{"src/bin/tool.rs"}, s.Exclusions())

	assert.Equal(t, []string{ReasonExclusions, ReasonExclusions, ReasonExclusions}, reasons)
	_, err = os.Stat(filepath.Join(root, "src", "main.rs"))
	assert.NoError(t, err, "exclusion changes never touch the filesystem")

	assert.Error(t, s.SetExclusions([]string{"[bad"}))
	require.NoError(t, s.SetExclusions([]string{"a.rs", "a.rs"}))
	assert.Equal(t, []string{"a.rs"}, s.Exclusions())
}

func TestScanSupersedesWalkInFlight(t *testing.T) {
	root := newProject(t)
	s, err := New(Config{Root: root, Filter: DefaultFilter()})
	require.NoError(t, err)

	started := make(chan struct{})
	var calls atomic.Int32
	s.walk = func(ctx context.Context, root string, f Filter) (*Snapshot, error) {
		if calls.Add(1) == 1 {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return Walk(ctx, root, f)
	}

	firstErr := make(chan error, 1)
	go func() {
		_, err := s.Scan(context.Background())
		firstErr <- err
	}()
	<-started

	res, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, res.Snapshot)
	assert.ErrorIs(t, <-firstErr, ErrSuperseded)
	assert.Same(t, res.Snapshot, s.Current())
}

func TestDebouncerCoalesces(t *testing.T) {
	var calls atomic.Int32
	d := NewDebouncer(20*time.Millisecond, func() { calls.Add(1) })
	for range 10 {
		d.Trigger()
		time.Sleep(time.Millisecond)
	}
	assert.True(t, d.Pending())
	assert.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

func TestDebouncerStop(t *testing.T) {
	var calls atomic.Int32
	d := NewDebouncer(10*time.Millisecond, func() { calls.Add(1) })
	d.Trigger()
	d.Stop()
	d.Trigger()
	time.Sleep(40 * time.Millisecond)
	assert.Zero(t, calls.Load())
	assert.False(t, d.Pending())
}
