package watchdog

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	fx "github.com/robotalks/prop.go/pkg/framework"
)

func TestSoftwareFedNeverExpires(t *testing.T) {
	var expired int32
	s := &Software{Expire: func() { atomic.AddInt32(&expired, 1) }}
	require.NoError(t, s.Arm(50*time.Millisecond))
	for i := 0; i < 20; i++ {
		time.Sleep(5 * time.Millisecond)
		require.NoError(t, s.Feed())
	}
	require.Zero(t, atomic.LoadInt32(&expired))
	require.NoError(t, s.Close())
	time.Sleep(80 * time.Millisecond)
	require.Zero(t, atomic.LoadInt32(&expired))
}

func TestSoftwareExpiresWhenStarved(t *testing.T) {
	expiredCh := make(chan struct{})
	s := &Software{Expire: func() { close(expiredCh) }}
	require.NoError(t, s.Arm(20*time.Millisecond))
	select {
	case <-expiredCh:
	case <-time.After(time.Second):
		t.Fatal("watchdog did not expire")
	}
}

func TestSoftwareFeedUnarmed(t *testing.T) {
	require.ErrorIs(t, (&Software{}).Feed(), ErrNotArmed)
}

type fakeTimer struct {
	armed   time.Duration
	feeds   int
	feedErr error
	closed  bool
}

func (f *fakeTimer) Arm(d time.Duration) error { f.armed = d; return nil }
func (f *fakeTimer) Feed() error {
	if f.feedErr != nil {
		return f.feedErr
	}
	f.feeds++
	return nil
}
func (f *fakeTimer) Close() error { f.closed = true; return nil }

func TestLiveness(t *testing.T) {
	timer := &fakeTimer{}
	clock := fx.NewManualClock(time.Unix(100, 0))
	l := &Liveness{Timer: timer, Clock: clock}
	require.NoError(t, l.Arm())
	require.Equal(t, DefaultTimeout, timer.armed)
	require.Equal(t, time.Unix(100, 0), l.LastFed())

	clock.Advance(time.Second)
	l.Feed()
	require.Equal(t, 1, timer.feeds)
	require.Equal(t, time.Unix(101, 0), l.LastFed())

	timer.feedErr = errors.New("ebadf")
	clock.Advance(time.Second)
	l.Feed()
	require.Equal(t, time.Unix(101, 0), l.LastFed(), "failed feed is not recorded")

	require.NoError(t, l.Close())
	require.True(t, timer.closed)
}
