package ed2k

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Digest is a 16 byte eD2k digest.
type Digest [Size]byte

// String returns the digest as 32 lowercase hex characters.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// ParseDigest decodes a 32 character hex string.
func ParseDigest(s string) (Digest, error) {
	var d Digest
	if len(s) != 2*Size {
		return d, fmt.Errorf("invalid digest length %d, want %d", len(s), 2*Size)
	}
	if _, err := hex.Decode(d[:], []byte(s)); err != nil {
		return d, fmt.Errorf("invalid digest %q: %w", s, err)
	}
	return d, nil
}

// Link identifies a single file: its name, size and digest.
type Link struct {
	Name   string
	Size   int64
	Digest Digest
}

// String renders the link as ed2k://|file|<name>|<size>|<digest>|/
func (l Link) String() string {
	var b strings.Builder
	b.WriteString("ed2k://|file|")
	b.WriteString(EscapeName(l.Name))
	b.WriteByte('|')
	b.WriteString(strconv.FormatInt(l.Size, 10))
	b.WriteByte('|')
	b.WriteString(l.Digest.String())
	b.WriteString("|/")
	return b.String()
}

// EscapeName percent-escapes every byte of non-ASCII characters and of '|'.
// Invalid UTF-8 sequences are escaped as U+FFFD.
func EscapeName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	var buf [utf8.UTFMax]byte
	for _, r := range name {
		if r < utf8.RuneSelf && r != '|' {
			b.WriteByte(byte(r))
			continue
		}
		n := utf8.EncodeRune(buf[:], r)
		for _, c := range buf[:n] {
			fmt.Fprintf(&b, "%%%02x", c)
		}
	}
	return b.String()
}
