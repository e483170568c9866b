package state

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFlagIdempotent(t *testing.T) {
	var f Flag
	require.False(t, f.Take())
	require.True(t, f.Raise())
	require.False(t, f.Raise(), "second raise while pending is a no-op")
	require.True(t, f.IsSet())
	require.True(t, f.Take())
	require.False(t, f.Take())
	require.False(t, f.IsSet())
}

func TestFlagTakenOnce(t *testing.T) {
	var f Flag
	f.Raise()
	var taken int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if f.Take() {
				atomic.AddInt32(&taken, 1)
			}
		}()
	}
	wg.Wait()
	require.EqualValues(t, 1, taken)
}

func TestStamp(t *testing.T) {
	var s Stamp
	require.True(t, s.Time().IsZero())
	now := time.Unix(1700000000, 42)
	s.Mark(now)
	require.True(t, now.Equal(s.Time()))
}
