package safety

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherRequiresPath(t *testing.T) {
	_, err := NewWatcher(testMachine(t), "  ")
	assert.Error(t, err)
}

func TestWatcherTogglesKillSwitch(t *testing.T) {
	m := testMachine(t)
	path := filepath.Join(t.TempDir(), "KILL_SWITCH")

	w, err := NewWatcher(m, path)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()

	require.NoError(t, os.WriteFile(path, []byte("stop"), 0o644))
	waitFor(t, func() bool {
		st, err := m.State(context.Background())
		return err == nil && st.KillSwitchActive
	})

	require.NoError(t, os.Remove(path))
	waitFor(t, func() bool {
		st, err := m.State(context.Background())
		return err == nil && !st.KillSwitchActive
	})

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop after cancel")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}
