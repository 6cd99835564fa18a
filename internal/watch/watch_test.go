package watch

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/shipwright/internal/config"
)

func watchConfig(ws string) *config.Config {
	return &config.Config{
		Workspace: ws,
		Build: config.BuildConfig{
			ServicesDir: "services",
			OutputDir:   "dist",
			Extensions:  []string{".ts", ".tsx", ".js"},
		},
	}
}

func newTestWatcher(t *testing.T, rebuild RebuildFunc) *Watcher {
	t.Helper()
	w, err := New(watchConfig(t.TempDir()), rebuild)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.watcher.Close() })
	return w
}

func TestRelevantFiltersByExtensionAndLocation(t *testing.T) {
	w := newTestWatcher(t, nil)
	ws := w.cfg.Workspace

	cases := []struct {
		name string
		path string
		op   fsnotify.Op
		want bool
	}{
		{"source write", filepath.Join(ws, "services/svc-a/index.ts"), fsnotify.Write, true},
		{"source create", filepath.Join(ws, "services/svc-a/util.tsx"), fsnotify.Create, true},
		{"source remove", filepath.Join(ws, "services/svc-a/old.js"), fsnotify.Remove, true},
		{"non-source file", filepath.Join(ws, "services/svc-a/README.md"), fsnotify.Write, false},
		{"build output", filepath.Join(ws, "dist/svc-a/bundle.js"), fsnotify.Write, false},
		{"chmod only", filepath.Join(ws, "services/svc-a/index.ts"), fsnotify.Chmod, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := w.relevant(fsnotify.Event{Name: tc.path, Op: tc.op})
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestDebounceCoalescesBursts(t *testing.T) {
	var rebuilds atomic.Int32
	done := make(chan struct{}, 4)
	w := newTestWatcher(t, func(context.Context) error {
		rebuilds.Add(1)
		done <- struct{}{}
		return nil
	})
	w.WithDebounce(20 * time.Millisecond)

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	go w.runLoop(ctx)

	// A burst of triggers collapses into a single rebuild.
	for range 5 {
		w.fire()
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("rebuild never ran")
	}
	assert.Equal(t, int32(1), rebuilds.Load())

	// A later change starts a fresh debounce window.
	w.fire()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("second rebuild never ran")
	}
	assert.Equal(t, int32(2), rebuilds.Load())
}
