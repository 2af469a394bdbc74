package ed2k

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// DefaultBufferSize is the read buffer used by HashReader and HashFile.
const DefaultBufferSize = 64 * 1024

// ErrNotRegularFile is returned, wrapped in an *fs.PathError, for inputs
// that are not regular files.
var ErrNotRegularFile = errors.New("not a regular file")

// HashReader streams r through a new Hasher using a buffer of bufSize bytes
// (DefaultBufferSize if bufSize <= 0). It returns the digest and the number
// of bytes read.
func HashReader(r io.Reader, mode Mode, bufSize int) (Digest, int64, error) {
	if bufSize <= 0 {
		bufSize = DefaultBufferSize
	}
	h := New(mode)
	n, err := io.CopyBuffer(h, onlyReader{r}, make([]byte, bufSize))
	if err != nil {
		return Digest{}, n, err
	}
	return h.Finalize(), n, nil
}

// onlyReader hides WriterTo implementations so CopyBuffer uses our buffer.
type onlyReader struct {
	io.Reader
}

// OpenFile opens path for hashing and reads its metadata once. Failures are
// *fs.PathError values whose Op names the failed step.
func OpenFile(path string) (*os.File, fs.FileInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return nil, nil, &fs.PathError{Op: "stat", Path: path, Err: ErrNotRegularFile}
	}
	return f, info, nil
}

// FileLink builds the link of a file from its metadata and digest.
func FileLink(path string, info fs.FileInfo, d Digest) *Link {
	return &Link{
		Name:   filepath.Base(path),
		Size:   info.Size(),
		Digest: d,
	}
}

// HashFile hashes the file at path. The size comes from the file metadata,
// read once after opening.
func HashFile(path string, mode Mode) (*Link, error) {
	f, info, err := OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	d, _, err := HashReader(f, mode, DefaultBufferSize)
	if err != nil {
		return nil, err
	}
	return FileLink(path, info, d), nil
}
