package fat32

import "errors"

// Sentinel errors the CLI driver and tests branch on directly. Everything
// else surfaces as a wrapped, freeform returned error.
var (
	ErrShortRead         = errors.New("short read against image")
	ErrShortWrite        = errors.New("short write against image")
	ErrNoValidPartition  = errors.New("no valid FAT32 partition found")
	ErrVolumeNotBound    = errors.New("volume parameters not bound; call InitializeVolume first")
	ErrFATNotLoaded      = errors.New("FAT not loaded; call LoadFAT first")
	ErrEntryNotDeleted   = errors.New("directory entry is no longer marked deleted")
	ErrCollision         = errors.New("cluster collision detected at restore commit time")
	ErrRecursionCapped   = errors.New("directory recursion depth exceeded")
	ErrClusterOutOfRange = errors.New("cluster index out of range")
)
