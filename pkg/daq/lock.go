package daq

import (
	"errors"
	"fmt"

	"github.com/gofrs/flock"
	"github.com/itohio/cryotherm/pkg/fault"
)

// Locked wraps a Device with an exclusive file lock held from Open to Close,
// so two sessions never drive the same device.
type Locked struct {
	Device
	path string
	lock *flock.Flock
}

// WithLock guards dev with the lock file at path. An empty path returns dev.
func WithLock(dev Device, path string) Device {
	if path == "" {
		return dev
	}
	return &Locked{Device: dev, path: path, lock: flock.New(path)}
}

// Path returns the lock file path.
func (l *Locked) Path() string {
	return l.path
}

// Open acquires the lock, then opens the device.
func (l *Locked) Open() error {
	ok, err := l.lock.TryLock()
	if err != nil {
		return fault.Device("open", fmt.Errorf("acquire lock %s: %w", l.path, err))
	}
	if !ok {
		return fault.Device("open", fmt.Errorf("device is in use by another session (lock %s)", l.path))
	}

	if err := l.Device.Open(); err != nil {
		_ = l.lock.Unlock()
		return err
	}
	return nil
}

// Close closes the device and releases the lock.
func (l *Locked) Close() error {
	err := l.Device.Close()
	if uerr := l.lock.Unlock(); uerr != nil {
		err = errors.Join(err, fault.Device("close", fmt.Errorf("release lock %s: %w", l.path, uerr)))
	}
	return err
}
