//go:build linux || darwin

package fat32

import (
	"golang.org/x/sys/unix"
)

// LockExclusive takes an advisory, non-blocking exclusive lock on the image
// file backing ih. It is not part of the core engine's contract (the design
// explicitly leaves exclusivity to the caller) but the CLI driver uses it as
// a best-effort guard against a second writer on platforms that support
// flock, rather than silently trusting the operator.
func (ih *ImageHandle) LockExclusive() error {
	return unix.Flock(int(ih.f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
}

// Unlock releases a lock previously taken with LockExclusive.
func (ih *ImageHandle) Unlock() error {
	return unix.Flock(int(ih.f.Fd()), unix.LOCK_UN)
}
