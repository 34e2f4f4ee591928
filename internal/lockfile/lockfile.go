// Package lockfile is a cross-process writer lock with a TTL and heartbeat.
//
// The lock is a file created with O_EXCL. A lock older than its TTL is
// considered abandoned and taken over; a holder refreshes the file's mtime
// while it runs so long passes keep the lock.
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ErrHeld means another writer holds a fresh lock.
var ErrHeld = errors.New("another writer active")

const DefaultHeartbeat = 60 * time.Second

type Lock struct {
	path string
	stop chan struct{}
	done sync.WaitGroup
	once sync.Once
}

// Acquire takes the lock at path. A lock file older than ttl is removed first.
func Acquire(path string, ttl time.Duration) (*Lock, error) {
	abspath := path
	if ap, err := filepath.Abs(path); err == nil {
		abspath = ap
	}
	for attempt := 0; attempt < 3; attempt++ {
		f, err := os.OpenFile(abspath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			_, _ = fmt.Fprintf(f, `{"pid":%d,"time":%d}`+"\n", os.Getpid(), time.Now().Unix())
			_ = f.Close()
			return &Lock{path: abspath, stop: make(chan struct{})}, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create lock %s: %w", abspath, err)
		}
		fi, err := os.Stat(abspath)
		if err != nil {
			// released between our create and stat
			continue
		}
		if age := time.Since(fi.ModTime()); ttl > 0 && age >= ttl {
			_ = os.Remove(abspath)
			continue
		}
		return nil, fmt.Errorf("%s: %w", abspath, ErrHeld)
	}
	return nil, fmt.Errorf("%s: %w", abspath, ErrHeld)
}

func (l *Lock) Path() string { return l.path }

// Heartbeat touches the lock every interval until Release.
func (l *Lock) Heartbeat(interval time.Duration) {
	if interval <= 0 {
		interval = DefaultHeartbeat
	}
	l.done.Add(1)
	go func() {
		defer l.done.Done()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-l.stop:
				return
			case now := <-t.C:
				_ = os.Chtimes(l.path, now, now)
			}
		}
	}()
}

// Release stops the heartbeat and removes the lock file. It is safe to call
// more than once.
func (l *Lock) Release() error {
	var err error
	l.once.Do(func() {
		close(l.stop)
		l.done.Wait()
		if rmErr := os.Remove(l.path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			err = rmErr
		}
	})
	return err
}
