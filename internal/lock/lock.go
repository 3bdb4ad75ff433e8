// Package lock serializes work on one extension key, within the process and
// across processes sharing a lock directory.
package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/ralt/extmgr/internal/messages"
)

var flockFn = unix.Flock
var lockSleep = time.Sleep

var (
	lockWaitTimeout = 30 * time.Second
	lockPollEvery   = 100 * time.Millisecond
)

// KeyLock hands out one single-slot semaphore per key. Entries are dropped
// once no caller holds or waits for them.
type KeyLock struct {
	mu    sync.Mutex
	locks map[string]*keySlot
}

type keySlot struct {
	sem  chan struct{}
	refs int
}

// NewKeyLock creates an empty KeyLock
func NewKeyLock() *KeyLock {
	return &KeyLock{locks: make(map[string]*keySlot)}
}

// Lock waits up to lockWaitTimeout for key and returns the matching unlock
// function
func (k *KeyLock) Lock(key string) (func(), error) {
	k.mu.Lock()
	slot, ok := k.locks[key]
	if !ok {
		slot = &keySlot{sem: make(chan struct{}, 1)}
		k.locks[key] = slot
	}
	slot.refs++
	k.mu.Unlock()

	select {
	case slot.sem <- struct{}{}:
	default:
		timer := time.NewTimer(lockWaitTimeout)
		defer timer.Stop()
		select {
		case slot.sem <- struct{}{}:
		case <-timer.C:
			k.put(key, slot)
			return nil, fmt.Errorf(messages.LockTimeoutFmt, lockWaitTimeout)
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-slot.sem
			k.put(key, slot)
		})
	}, nil
}

func (k *KeyLock) put(key string, slot *keySlot) {
	k.mu.Lock()
	defer k.mu.Unlock()
	slot.refs--
	if slot.refs == 0 {
		delete(k.locks, key)
	}
}

func (k *KeyLock) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

// Locker combines the in-process KeyLock with flock files in a directory
type Locker struct {
	dir  string
	keys *KeyLock
}

// NewLocker creates a Locker using dir for lock files. An empty dir only
// locks within the process.
func NewLocker(dir string) *Locker {
	return &Locker{dir: dir, keys: NewKeyLock()}
}

var unsafeKeyChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// Acquire takes the lock for key and returns the release function
func (l *Locker) Acquire(key string) (func() error, error) {
	unlock, err := l.keys.Lock(key)
	if err != nil {
		return nil, err
	}
	if l.dir == "" {
		return func() error { unlock(); return nil }, nil
	}

	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		unlock()
		return nil, err
	}

	path := filepath.Join(l.dir, unsafeKeyChars.ReplaceAllString(key, "_")+".lock")
	fl, err := acquireFileLock(path)
	if err != nil {
		unlock()
		return nil, err
	}
	return func() error {
		defer unlock()
		return fl.release()
	}, nil
}

type fileLock struct {
	file *os.File
}

// WithFileLock acquires an exclusive lock on path, runs fn, and releases the lock.
func WithFileLock(path string, fn func() error) error {
	fl, err := acquireFileLock(path)
	if err != nil {
		return err
	}
	defer func() {
		_ = fl.release()
	}()
	return fn()
}

// acquireFileLock opens or creates path and acquires an exclusive lock.
func acquireFileLock(path string) (*fileLock, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf(messages.LockOpenFmt, path, err)
	}
	if err := lockFile(file); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf(messages.LockAcquireFmt, path, err)
	}
	return &fileLock{file: file}, nil
}

// release unlocks and closes the file lock.
func (l *fileLock) release() error {
	if l == nil || l.file == nil {
		return nil
	}
	if err := flockFn(int(l.file.Fd()), unix.LOCK_UN); err != nil {
		_ = l.file.Close()
		return err
	}
	return l.file.Close()
}

// lockFile polls for an exclusive advisory lock until lockWaitTimeout.
func lockFile(file *os.File) error {
	deadline := time.Now().Add(lockWaitTimeout)
	for {
		err := flockFn(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			return nil
		}
		if !errors.Is(err, unix.EWOULDBLOCK) && !errors.Is(err, unix.EAGAIN) {
			return err
		}
		if time.Now().After(deadline) {
			return fmt.Errorf(messages.LockTimeoutFmt, lockWaitTimeout)
		}
		lockSleep(lockPollEvery)
	}
}
