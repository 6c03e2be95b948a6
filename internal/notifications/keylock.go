package notifications

import "sync"

type refLock struct {
	mu   sync.Mutex
	refs int
}

// keyLock hands out one mutex per thread key and forgets keys nobody holds.
type keyLock struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

func newKeyLock() *keyLock {
	return &keyLock{locks: make(map[string]*refLock)}
}

// Lock blocks until key is free and returns its unlock function.
func (l *keyLock) Lock(key string) (unlock func()) {
	l.mu.Lock()
	lk, ok := l.locks[key]
	if !ok {
		lk = &refLock{}
		l.locks[key] = lk
	}
	lk.refs++
	l.mu.Unlock()

	lk.mu.Lock()
	return func() {
		lk.mu.Unlock()
		l.mu.Lock()
		lk.refs--
		if lk.refs == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}
}

func (l *keyLock) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
