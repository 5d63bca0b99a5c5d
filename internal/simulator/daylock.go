package simulator

import (
	"context"
	"sync"
)

// dayLocks serializes work on one (rig, day) inside this process.
// Entries are dropped once nobody holds or waits for them.
type dayLocks struct {
	mu sync.Mutex
	m  map[BackfillKey]*dayLock
}

type dayLock struct {
	ch   chan struct{}
	refs int
}

// BackfillKey identifies the day a backfill rewrites
type BackfillKey struct {
	RigID int64
	Date  string
}

func newDayLocks() *dayLocks {
	return &dayLocks{m: make(map[BackfillKey]*dayLock)}
}

// lock blocks until key is free or ctx is done
func (l *dayLocks) lock(ctx context.Context, key BackfillKey) (func(), error) {
	l.mu.Lock()
	d, ok := l.m[key]
	if !ok {
		d = &dayLock{ch: make(chan struct{}, 1)}
		l.m[key] = d
	}
	d.refs++
	l.mu.Unlock()

	select {
	case d.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-d.ch
				l.release(key, d)
			})
		}, nil
	case <-ctx.Done():
		l.release(key, d)
		return nil, ctx.Err()
	}
}

func (l *dayLocks) release(key BackfillKey, d *dayLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	d.refs--
	if d.refs == 0 {
		delete(l.m, key)
	}
}

func (l *dayLocks) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}
