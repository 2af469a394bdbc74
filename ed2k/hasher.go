// Package ed2k computes eD2k identifiers: the file size plus an MD4-based
// digest computed over 9,728,000 byte blocks.
package ed2k

import (
	"hash"

	"golang.org/x/crypto/md4"
)

const (
	// Size is the size of an eD2k digest in bytes.
	Size = md4.Size

	// BlockSize is the size of an eD2k block in bytes.
	BlockSize = 9728000
)

// Mode selects how a stream that ends exactly on a block boundary is hashed.
type Mode int

const (
	// Current never hashes a trailing empty block.
	Current Mode = iota
	// Legacy appends the digest of an empty block whenever the input length
	// is a non-zero multiple of BlockSize.
	Legacy
)

// String returns the string representation of a mode
func (m Mode) String() string {
	switch m {
	case Current:
		return "current"
	case Legacy:
		return "legacy"
	default:
		return "unknown"
	}
}

// ModeFor maps the legacy flag used by the CLI and config to a Mode.
func ModeFor(legacy bool) Mode {
	if legacy {
		return Legacy
	}
	return Current
}

// Hasher is an incremental eD2k hasher. The digest does not depend on how
// the input is split across Write calls. A Hasher must not be used from
// several goroutines at once.
type Hasher struct {
	mode Mode

	block    hash.Hash // MD4 over the current block
	blockLen int

	super  hash.Hash // MD4 over the concatenated block digests
	blocks int

	sum []byte
}

// New returns a Hasher for the given mode.
func New(mode Mode) *Hasher {
	return &Hasher{
		mode:  mode,
		block: md4.New(),
		super: md4.New(),
		sum:   make([]byte, 0, Size),
	}
}

func (h *Hasher) Mode() Mode     { return h.mode }
func (h *Hasher) Size() int      { return Size }
func (h *Hasher) BlockSize() int { return BlockSize }

// Write feeds p into the hasher. It never returns an error.
func (h *Hasher) Write(p []byte) (int, error) {
	n := len(p)
	for len(p) > 0 {
		if h.blockLen == BlockSize {
			h.foldBlock()
		}

		take := BlockSize - h.blockLen
		if take > len(p) {
			take = len(p)
		}
		h.block.Write(p[:take])
		h.blockLen += take
		p = p[take:]

		// Legacy folds a full block right away, so a stream ending on the
		// boundary leaves an empty block behind for Finalize to fold.
		if h.mode == Legacy && h.blockLen == BlockSize {
			h.foldBlock()
		}
	}
	return n, nil
}

// foldBlock writes the digest of the current block into the superhash and
// starts a new block.
func (h *Hasher) foldBlock() {
	h.sum = h.block.Sum(h.sum[:0])
	h.super.Write(h.sum)
	h.blocks++
	h.block.Reset()
	h.blockLen = 0
}

// Finalize returns the digest of everything written so far and resets the
// hasher to its initial state.
func (h *Hasher) Finalize() Digest {
	var d Digest
	if h.blocks == 0 {
		copy(d[:], h.block.Sum(h.sum[:0]))
	} else {
		h.foldBlock()
		copy(d[:], h.super.Sum(h.sum[:0]))
	}
	h.Reset()
	return d
}

// Reset discards all input. The mode is kept.
func (h *Hasher) Reset() {
	h.block.Reset()
	h.super.Reset()
	h.blockLen = 0
	h.blocks = 0
}
