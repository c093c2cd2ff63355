//go:build !unix

package progress

import "errors"

// ErrLocked is returned when another process holds the checkpoint lock.
var ErrLocked = errors.New("checkpoint is locked by another run")

// lockFile is a no-op where flock is unavailable.
func lockFile(string) (func() error, error) {
	return func() error { return nil }, nil
}
