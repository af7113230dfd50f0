package bufferpool

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBgWriterRegistry_WakeDeliveredOnNextAcquire(t *testing.T) {
	gp, fs, cleanup := newTestGlobalPool(t, 1)
	defer cleanup()

	const writerID = 3
	wake := gp.BgWriter().Register(writerID)
	defer gp.BgWriter().Unregister(writerID)

	gp.NotifyBgWriter(writerID)

	// The first frame allocation on a fresh pool takes the free-list path,
	// which is reached after AcquireFrame's bgwriter-wake step.
	_, err := gp.GetPage(fs, 0)
	require.NoError(t, err)

	select {
	case <-wake:
	case <-time.After(time.Second):
		t.Fatal("expected a wake signal, got none")
	}
}

func TestBgWriterRegistry_UnregisteredIDDropsSilently(t *testing.T) {
	gp, fs, cleanup := newTestGlobalPool(t, 1)
	defer cleanup()

	gp.NotifyBgWriter(99)
	_, err := gp.GetPage(fs, 0)
	require.NoError(t, err)
}

func TestBgWriterRegistry_NonBlockingWhenChannelFull(t *testing.T) {
	r := NewBgWriterRegistry()
	ch := r.Register(1)

	gp, fs, cleanup := newTestGlobalPool(t, 1)
	defer cleanup()
	r.attach(gp.engine)

	gp.NotifyBgWriter(1)
	_, err := gp.GetPage(fs, 0)
	require.NoError(t, err)

	gp.NotifyBgWriter(1)
	done := make(chan struct{})
	go func() {
		_, _ = gp.GetPage(fs, 1)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second NotifyBgWriter delivery should not block on a full channel")
	}

	require.Len(t, ch, 1)
}
