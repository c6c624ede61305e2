package discovery

import "sync"

// MulticastLock is held for the whole discovery window. Platforms that
// gate multicast reception (Android's WifiManager lock, for instance) plug
// their own implementation in; Release is always called once per Acquire
// that succeeded.
type MulticastLock interface {
	Acquire() error
	Release()
}

// NopLock is used where the OS delivers multicast replies unconditionally
type NopLock struct{}

func (NopLock) Acquire() error { return nil }
func (NopLock) Release()       {}

// RefLock is a reference-counted lock shared by callers in one process.
// Held reports whether any discovery window currently owns it.
type RefLock struct {
	mu    sync.Mutex
	count int
}

// Acquire increments the hold count
func (l *RefLock) Acquire() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.count++
	return nil
}

// Release decrements the hold count
func (l *RefLock) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.count > 0 {
		l.count--
	}
}

// Held returns true while at least one window holds the lock
func (l *RefLock) Held() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count > 0
}
