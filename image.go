package fat32

import (
	"io"
	"os"

	"github.com/dsoprea/go-logging"
)

// ImageHandle is a bidirectional byte stream over a raw block image with a
// known total length. Reads and writes are always positioned (absolute
// offset); the handle carries no implicit cursor between calls, mirroring
// the teacher's convention of seeking explicitly before every structural
// read rather than relying on sequential state.
type ImageHandle struct {
	f      *os.File
	length int64
}

// OpenImage is the fallible factory the design notes call for: it returns
// either a usable handle or an error, with the file guaranteed closed on
// every failure path out of this call.
func OpenImage(path string) (ih *ImageHandle, err error) {
	defer recoverAsError(&err)

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	log.PanicIf(err)

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		log.PanicIf(err)
	}

	ih = &ImageHandle{
		f:      f,
		length: fi.Size(),
	}

	return ih, nil
}

// Close releases the underlying file. Safe to call once; the owning Volume
// is responsible for calling it exactly once on every exit path.
func (ih *ImageHandle) Close() error {
	return ih.f.Close()
}

// Length is the total byte length of the image as observed at open time.
func (ih *ImageHandle) Length() int64 {
	return ih.length
}

// ReadAt reads exactly len(buf) bytes at the given absolute offset. A read
// that runs past the end of the image, or any short read, is reported as
// ErrShortRead — higher-level callers must treat every short read as a
// failure, per the block-I/O contract.
func (ih *ImageHandle) ReadAt(offset int64, buf []byte) (err error) {
	defer recoverAsError(&err)

	if offset < 0 || offset+int64(len(buf)) > ih.length {
		return ErrShortRead
	}

	n, err := ih.f.ReadAt(buf, offset)
	if err != nil && err != io.EOF {
		log.PanicIf(err)
	}

	if n != len(buf) {
		return ErrShortRead
	}

	return nil
}

// WriteAt writes the byte range at the given absolute offset and flushes.
// Bounds are checked against the image length the same way ReadAt checks
// them; the image never grows as a side effect of a write.
func (ih *ImageHandle) WriteAt(offset int64, buf []byte) (err error) {
	defer recoverAsError(&err)

	if offset < 0 || offset+int64(len(buf)) > ih.length {
		return ErrShortWrite
	}

	n, err := ih.f.WriteAt(buf, offset)
	log.PanicIf(err)

	if n != len(buf) {
		return ErrShortWrite
	}

	return ih.Flush()
}

// Flush is the explicit persistence step: it syncs the image file to stable
// storage. WriteAt already calls it after every write, so each FAT copy (and
// every other structure) is flushed as soon as it is written; Flush is also
// exported for callers that want to sync explicitly.
func (ih *ImageHandle) Flush() error {
	return ih.f.Sync()
}
