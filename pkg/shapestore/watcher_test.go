package shapestore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

func TestWatcherRefreshesOnChange(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	path := writePorts(t)
	cfg := DefaultConfig()
	cfg.File = path
	cfg.Watch = WatchConfig{Enabled: true, Debounce: 20 * time.Millisecond}
	m := NewMetrics(prometheus.NewRegistry())

	s, err := New(cfg, WithLogger(zaptest.NewLogger(t)), WithMetrics(m))
	require.NoError(t, err)
	require.NoError(t, s.Init(context.Background()))
	defer s.Destroy()

	snapshots := m.rebuilds.WithLabelValues("ports", "snapshot")
	require.Equal(t, 1.0, testutil.ToFloat64(snapshots))

	// Side files of the index are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(path), "ports.rti.tmp"), []byte("x"), 0o644))

	moved := fiveBoxes()
	moved.Shapes[0], moved.Shapes[1] = moved.Shapes[1], moved.Shapes[0]
	replace(t, path, moved.Bytes(), time.Now().Add(time.Hour))

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(snapshots) == 2
	}, 5*time.Second, 10*time.Millisecond, "watcher reopened the store")
	assert.Equal(t, []string{"PORTS_1", "PORTS_2", "PORTS_3", "PORTS_4"}, ids(t, s, Query{BBox: bbox(0, 0, 10, 10)}))
	assert.Equal(t, 2.0, testutil.ToFloat64(snapshots), "query found the store already fresh")

	s.Destroy()
}

func TestWatcherRelevantEvents(t *testing.T) {
	w := &watcher{base: "ports"}
	tests := []struct {
		name string
		op   fsnotify.Op
		want bool
	}{
		{"/d/ports.shp", fsnotify.Write, true},
		{"/d/PORTS.DBF", fsnotify.Create, true},
		{"/d/ports.prj", fsnotify.Remove, true},
		{"/d/ports.cpg", fsnotify.Rename, true},
		{"/d/ports.shp", fsnotify.Chmod, false},
		{"/d/ports.rti", fsnotify.Write, false},
		{"/d/ports.idx.sqlite", fsnotify.Write, false},
		{"/d/harbours.shp", fsnotify.Write, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, w.relevant(fsnotify.Event{Name: tt.name, Op: tt.op}), "%s %s", tt.op, tt.name)
	}
}
