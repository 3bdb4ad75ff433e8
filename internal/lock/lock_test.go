package lock

import (
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestKeyLockSerializesSameKey(t *testing.T) {
	k := NewKeyLock()
	var active, maxActive int32
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := k.Lock("news")
			if !assert.NoError(t, err) {
				return
			}
			defer unlock()
			n := atomic.AddInt32(&active, 1)
			for {
				m := atomic.LoadInt32(&maxActive)
				if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&active, -1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxActive)
}

func TestKeyLockDifferentKeysIndependent(t *testing.T) {
	k := NewKeyLock()
	unlockA, err := k.Lock("a")
	require.NoError(t, err)
	defer unlockA()

	done := make(chan struct{})
	go func() {
		if unlock, err := k.Lock("b"); err == nil {
			unlock()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on b blocked behind a")
	}
}

func TestKeyLockTimesOut(t *testing.T) {
	origTimeout := lockWaitTimeout
	t.Cleanup(func() { lockWaitTimeout = origTimeout })
	lockWaitTimeout = 20 * time.Millisecond

	k := NewKeyLock()
	unlock, err := k.Lock("news")
	require.NoError(t, err)

	_, err = k.Lock("news")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")

	unlock()
	unlock()
	assert.Equal(t, 0, k.size())

	again, err := k.Lock("news")
	require.NoError(t, err)
	again()
}

func TestKeyLockDropsReleasedKeys(t *testing.T) {
	k := NewKeyLock()
	for _, key := range []string{"news", "blog", "shop"} {
		unlock, err := k.Lock(key)
		require.NoError(t, err)
		assert.Equal(t, 1, k.size())
		unlock()
	}
	assert.Equal(t, 0, k.size())
}

func TestLockerAcquireCreatesLockFile(t *testing.T) {
	dir := t.TempDir()
	l := NewLocker(dir)

	release, err := l.Acquire("my/ext")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "my_ext.lock"))
	require.NoError(t, release())
	assert.Equal(t, 0, l.keys.size())

	release, err = l.Acquire("my/ext")
	require.NoError(t, err)
	require.NoError(t, release())
}

func TestLockFileTimeout(t *testing.T) {
	origFlock, origSleep, origTimeout := flockFn, lockSleep, lockWaitTimeout
	t.Cleanup(func() {
		flockFn, lockSleep, lockWaitTimeout = origFlock, origSleep, origTimeout
	})

	flockFn = func(fd int, how int) error {
		if how&unix.LOCK_UN != 0 {
			return nil
		}
		return unix.EWOULDBLOCK
	}
	lockWaitTimeout = 0
	lockSleep = func(time.Duration) {}

	l := NewLocker(t.TempDir())
	_, err := l.Acquire("news")
	require.Error(t, err)
	assert.Equal(t, 0, l.keys.size())
	assert.Contains(t, err.Error(), "timed out")
}

func TestLockFileUnexpectedError(t *testing.T) {
	origFlock := flockFn
	t.Cleanup(func() { flockFn = origFlock })

	flockFn = func(fd int, how int) error { return unix.EBADF }

	err := WithFileLock(filepath.Join(t.TempDir(), "state.lock"), func() error { return nil })
	assert.ErrorIs(t, err, unix.EBADF)
}
