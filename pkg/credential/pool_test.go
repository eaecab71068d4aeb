package credential

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestNewPool_Empty(t *testing.T) {
	_, err := NewPool(nil)
	require.ErrorIs(t, err, ErrNoCredentials)
}

func TestAcquire_StickyCursor(t *testing.T) {
	p, err := NewPool([]string{"key-aaaa-1111", "key-bbbb-2222"})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		c, err := p.Acquire()
		require.NoError(t, err)
		require.Equal(t, 0, c.Index)
		p.RecordSuccess(c.Index)
	}

	snap := p.Snapshot()
	require.Equal(t, 5, snap[0].RequestCount)
	require.Equal(t, 0, snap[1].RequestCount)
}

func TestAcquire_SkipsBannedKey(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	p, err := NewPool([]string{"key-aaaa-1111", "key-bbbb-2222"}, withClock(fixedClock(now)))
	require.NoError(t, err)

	c, err := p.Acquire()
	require.NoError(t, err)
	require.Equal(t, 0, c.Index)

	p.RecordRateLimited(0, time.Hour)

	c, err = p.Acquire()
	require.NoError(t, err)
	require.Equal(t, 1, c.Index)
}

func TestAcquire_SingleBannedKeyRecovers(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	p, err := NewPool([]string{"key-aaaa-1111"}, withClock(func() time.Time { return now }))
	require.NoError(t, err)

	p.RecordRateLimited(0, time.Hour)

	// Still inside the ban window: recovery kicks in because the single key
	// is banned, so Acquire succeeds after clearing state.
	now = now.Add(30 * time.Minute)
	c, err := p.Acquire()
	require.NoError(t, err)
	require.Equal(t, 0, c.Index)
	require.False(t, p.Snapshot()[0].Banned(now))
}

func TestAcquire_NaturalExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	p, err := NewPool([]string{"key-aaaa-1111", "key-bbbb-2222"}, withClock(func() time.Time { return now }))
	require.NoError(t, err)

	p.RecordRateLimited(0, time.Hour)

	now = now.Add(61 * time.Minute)
	c, err := p.Acquire()
	require.NoError(t, err)
	require.Equal(t, 0, c.Index)
}

func TestAcquire_QuotaRotation(t *testing.T) {
	p, err := NewPool([]string{"key-aaaa-1111", "key-bbbb-2222"}, WithRequestsPerKey(2))
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		c, err := p.Acquire()
		require.NoError(t, err)
		require.Equal(t, 0, c.Index)
		p.RecordSuccess(c.Index)
	}

	c, err := p.Acquire()
	require.NoError(t, err)
	require.Equal(t, 1, c.Index)
}

func TestAcquire_AllOverQuota_NoBan(t *testing.T) {
	p, err := NewPool([]string{"key-aaaa-1111"}, WithRequestsPerKey(1))
	require.NoError(t, err)

	c, err := p.Acquire()
	require.NoError(t, err)
	p.RecordSuccess(c.Index)

	// Pure quota exhaustion with no banned key does not trigger recovery.
	_, err = p.Acquire()
	require.ErrorIs(t, err, ErrExhausted)
}

func TestAcquire_AllBanned_FullCycleRecovery(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	p, err := NewPool(
		[]string{"key-aaaa-1111", "key-bbbb-2222", "key-cccc-3333"},
		withClock(fixedClock(now)),
		WithRequestsPerKey(2),
	)
	require.NoError(t, err)

	p.RecordSuccess(0)
	p.RecordRateLimited(0, time.Hour)
	p.RecordRateLimited(1, time.Hour)
	p.RecordRateLimited(2, time.Hour)

	c, err := p.Acquire()
	require.NoError(t, err)
	require.Equal(t, 0, c.Index)

	for _, k := range p.Snapshot() {
		require.False(t, k.Banned(now))
		require.Equal(t, 0, k.RequestCount)
	}
}

func TestAcquire_MixedBanAndQuota(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	p, err := NewPool(
		[]string{"key-aaaa-1111", "key-bbbb-2222"},
		withClock(fixedClock(now)),
		WithRequestsPerKey(1),
	)
	require.NoError(t, err)

	// Key 0 over quota, key 1 banned: a ban contributed, so recovery runs.
	p.RecordSuccess(0)
	p.RecordRateLimited(1, time.Hour)

	c, err := p.Acquire()
	require.NoError(t, err)
	require.Equal(t, 0, c.Index)
}

func TestRecordRateLimited_DefaultDuration(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	p, err := NewPool([]string{"key-aaaa-1111"}, withClock(fixedClock(now)))
	require.NoError(t, err)

	p.RecordRateLimited(0, 0)
	require.Equal(t, now.Add(DefaultBanDuration), p.Snapshot()[0].BanUntil)

	p.RecordRateLimited(0, -time.Minute)
	require.Equal(t, now.Add(DefaultBanDuration), p.Snapshot()[0].BanUntil)
}

func TestRecordSuccess_IndexOutOfRange(t *testing.T) {
	p, err := NewPool([]string{"key-aaaa-1111"})
	require.NoError(t, err)

	p.RecordSuccess(-1)
	p.RecordSuccess(5)
	require.Equal(t, 0, p.Snapshot()[0].RequestCount)
}

func TestPool_DuplicateValuesTrackedSeparately(t *testing.T) {
	p, err := NewPool([]string{"same-key-value-x", "same-key-value-x"})
	require.NoError(t, err)

	p.RecordRateLimited(0, time.Hour)
	c, err := p.Acquire()
	require.NoError(t, err)
	require.Equal(t, 1, c.Index)
	require.Equal(t, "same-key-value-x", c.Value)
}

func TestPool_ConcurrentUse(t *testing.T) {
	p, err := NewPool([]string{"key-aaaa-1111", "key-bbbb-2222"}, WithRequestsPerKey(1000))
	require.NoError(t, err)

	done := make(chan struct{})
	for w := 0; w < 8; w++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for i := 0; i < 100; i++ {
				c, err := p.Acquire()
				if err != nil {
					t.Error(err)
					return
				}
				p.RecordSuccess(c.Index)
			}
		}()
	}
	for w := 0; w < 8; w++ {
		<-done
	}

	total := 0
	for _, k := range p.Snapshot() {
		total += k.RequestCount
	}
	require.Equal(t, 800, total)
}
