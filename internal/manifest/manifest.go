// Package manifest writes hashing results as JSON lines, one object per
// input file.
package manifest

import (
	"encoding/json"
	"io"
	"os"

	"github.com/hoangsonww/ed2k/internal/compression"
	apperrors "github.com/hoangsonww/ed2k/internal/errors"
)

// Record is one manifest line. Failed files carry Error and no digest.
type Record struct {
	Path   string `json:"path"`
	Name   string `json:"name,omitempty"`
	Size   int64  `json:"size"`
	Ed2k   string `json:"ed2k,omitempty"`
	Link   string `json:"link,omitempty"`
	Legacy bool   `json:"legacy"`
	Error  string `json:"error,omitempty"`
}

type Writer struct {
	file *os.File
	zw   io.WriteCloser
	enc  *json.Encoder
	n    int
}

// Create opens path for writing. A .gz or .zst suffix compresses the
// output at level.
func Create(path string, level int) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, apperrors.WrapError(apperrors.ErrCodeManifestFailed, "create manifest", err)
	}
	zw, err := compression.NewWriter(f, compression.ForPath(path), level)
	if err != nil {
		f.Close()
		return nil, apperrors.WrapError(apperrors.ErrCodeManifestFailed, "create manifest", err)
	}
	return &Writer{file: f, zw: zw, enc: json.NewEncoder(zw)}, nil
}

// Write appends r to the manifest.
func (w *Writer) Write(r Record) error {
	if err := w.enc.Encode(r); err != nil {
		return apperrors.WrapError(apperrors.ErrCodeManifestFailed, "write manifest", err)
	}
	w.n++
	return nil
}

// Count returns the number of records written.
func (w *Writer) Count() int {
	return w.n
}

// Close flushes the compressed stream and closes the file.
func (w *Writer) Close() error {
	zerr := w.zw.Close()
	ferr := w.file.Close()
	if zerr != nil {
		return apperrors.WrapError(apperrors.ErrCodeManifestFailed, "close manifest", zerr)
	}
	if ferr != nil {
		return apperrors.WrapError(apperrors.ErrCodeManifestFailed, "close manifest", ferr)
	}
	return nil
}

// Read decodes all records of the manifest at path.
func Read(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r, err := compression.NewReader(f, compression.ForPath(path))
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var records []Record
	dec := json.NewDecoder(r)
	for {
		var rec Record
		if err := dec.Decode(&rec); err == io.EOF {
			return records, nil
		} else if err != nil {
			return records, err
		}
		records = append(records, rec)
	}
}
