package compression

import (
	"bytes"
	"crypto/rand"
	"fmt"
	"io"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	data := bytes.Repeat([]byte(`{"path":"a.txt","ed2k":"547aefd231dcbaac398625718336f143"}`+"\n"), 500)

	for _, typ := range []Type{None, Gzip, Zstd} {
		t.Run(typ.String(), func(t *testing.T) {
			var buf bytes.Buffer
			w, err := NewWriter(&buf, typ, 3)
			if err != nil {
				t.Fatalf("writer: %v", err)
			}
			if _, err := w.Write(data); err != nil {
				t.Fatalf("write: %v", err)
			}
			if err := w.Close(); err != nil {
				t.Fatalf("close: %v", err)
			}
			if typ != None && buf.Len() >= len(data) {
				t.Fatalf("%s did not compress: %d >= %d", typ, buf.Len(), len(data))
			}

			r, err := NewReader(&buf, typ)
			if err != nil {
				t.Fatalf("reader: %v", err)
			}
			defer r.Close()
			got, err := io.ReadAll(r)
			if err != nil {
				t.Fatalf("read: %v", err)
			}
			if !bytes.Equal(got, data) {
				t.Fatalf("round trip mismatch")
			}
		})
	}
}

func TestForPath(t *testing.T) {
	tests := map[string]Type{
		"out.jsonl":     None,
		"out.jsonl.gz":  Gzip,
		"out.jsonl.zst": Zstd,
		"gz":            None,
	}
	for path, want := range tests {
		if got := ForPath(path); got != want {
			t.Errorf("ForPath(%q) = %s, want %s", path, got, want)
		}
	}
}

func TestGzipLevelClamped(t *testing.T) {
	w, err := NewWriter(io.Discard, Gzip, 19)
	if err != nil {
		t.Fatalf("zstd-range level should be accepted for gzip: %v", err)
	}
	w.Close()
}

func BenchmarkZstdWriter(b *testing.B) {
	benchmarkWriter(b, Zstd, 3)
}

func BenchmarkGzipWriter(b *testing.B) {
	benchmarkWriter(b, Gzip, 6)
}

func BenchmarkZstdLevels(b *testing.B) {
	for _, level := range []int{1, 3, 6, 9} {
		b.Run(fmt.Sprintf("Level-%d", level), func(b *testing.B) {
			benchmarkWriter(b, Zstd, level)
		})
	}
}

func benchmarkWriter(b *testing.B, typ Type, level int) {
	data := make([]byte, 1024*1024) // 1MB
	rand.Read(data)

	b.SetBytes(int64(len(data)))
	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		w, err := NewWriter(io.Discard, typ, level)
		if err != nil {
			b.Fatal(err)
		}
		if _, err := w.Write(data); err != nil {
			b.Fatal(err)
		}
		if err := w.Close(); err != nil {
			b.Fatal(err)
		}
	}
}
