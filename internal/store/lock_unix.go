//go:build !windows

package store

import (
	"os"

	"golang.org/x/sys/unix"
)

type unixLock struct {
	f *os.File
}

func openLockImpl(path string) (lockImpl, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, err
	}
	return &unixLock{f: f}, nil
}

func (l *unixLock) Lock() error {
	return unix.Flock(int(l.f.Fd()), unix.LOCK_EX)
}

func (l *unixLock) RLock() error {
	return unix.Flock(int(l.f.Fd()), unix.LOCK_SH)
}

func (l *unixLock) Unlock() error {
	return unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
}

func (l *unixLock) Close() error {
	return l.f.Close()
}
