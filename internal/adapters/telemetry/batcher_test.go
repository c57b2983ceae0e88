package telemetry_test

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/trellis/internal/adapters/telemetry"
)

type deliveries struct {
	mu     sync.Mutex
	chunks []string
}

func (d *deliveries) add(data []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.chunks = append(d.chunks, string(data))
}

func (d *deliveries) all() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.chunks...)
}

func TestLineBatcher_HoldsPartialLineOnSize(t *testing.T) {
	d := &deliveries{}
	b := telemetry.NewLineBatcher(8, time.Hour, d.add)
	defer func() { _ = b.Close() }()

	_, err := b.Write([]byte("> Task :core:comp"))
	require.NoError(t, err)
	assert.Empty(t, d.all())

	_, err = b.Write([]byte("ile\n> Task :core:te"))
	require.NoError(t, err)
	assert.Equal(t, []string{"> Task :core:compile\n"}, d.all())

	_, err = b.Write([]byte("st\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"> Task :core:compile\n", "> Task :core:test\n"}, d.all())
}

func TestLineBatcher_DeliversCompleteLinesOnTime(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		d := &deliveries{}
		b := telemetry.NewLineBatcher(4096, 50*time.Millisecond, d.add)
		defer func() { _ = b.Close() }()

		_, err := b.Write([]byte("BUILD SUCCESSFUL\nDeploying"))
		require.NoError(t, err)

		time.Sleep(10 * time.Millisecond)
		synctest.Wait()
		assert.Empty(t, d.all())

		time.Sleep(50 * time.Millisecond)
		synctest.Wait()
		assert.Equal(t, []string{"BUILD SUCCESSFUL\n"}, d.all())

		// A partial line alone never arms the timer.
		time.Sleep(time.Second)
		synctest.Wait()
		assert.Len(t, d.all(), 1)
	})
}

func TestLineBatcher_OverlongLine(t *testing.T) {
	d := &deliveries{}
	b := telemetry.NewLineBatcher(0, time.Hour, d.add)
	defer func() { _ = b.Close() }()

	long := strings.Repeat("x", telemetry.MaxLineLength)
	_, err := b.Write([]byte(long))
	require.NoError(t, err)
	require.Len(t, d.all(), 1)
	assert.Len(t, d.all()[0], telemetry.MaxLineLength)
}

func TestLineBatcher_CloseDeliversTailAndRejects(t *testing.T) {
	d := &deliveries{}
	b := telemetry.NewLineBatcher(100, time.Hour, d.add)

	_, err := b.Write([]byte("publishing 0.1.0"))
	require.NoError(t, err)
	require.NoError(t, b.Close())
	assert.Equal(t, []string{"publishing 0.1.0"}, d.all())

	_, err = b.Write([]byte("late"))
	require.Error(t, err)
	require.NoError(t, b.Close())
}

func TestLineBatcher_ConcurrentWritersKeepLinesWhole(t *testing.T) {
	d := &deliveries{}
	b := telemetry.NewLineBatcher(64, time.Hour, d.add)

	var wg sync.WaitGroup
	for range 8 {
		wg.Go(func() {
			for range 50 {
				_, _ = b.Write([]byte("step output line\n"))
			}
		})
	}
	wg.Wait()
	require.NoError(t, b.Close())

	joined := strings.Join(d.all(), "")
	for _, chunk := range d.all() {
		assert.True(t, strings.HasSuffix(chunk, "\n"), "chunk %q ends mid-line", chunk)
	}
	assert.Equal(t, 400, bytes.Count([]byte(joined), []byte("step output line\n")))
}
