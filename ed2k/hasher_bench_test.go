package ed2k

import (
	"crypto/rand"
	"testing"
)

func BenchmarkHasherWrite(b *testing.B) {
	sizes := []struct {
		name string
		size int
	}{
		{"4KB", 4 * 1024},
		{"64KB", 64 * 1024},
		{"1MB", 1024 * 1024},
	}

	for _, tc := range sizes {
		b.Run(tc.name, func(b *testing.B) {
			data := make([]byte, tc.size)
			rand.Read(data)

			h := New(Current)

			b.SetBytes(int64(tc.size))
			b.ResetTimer()
			b.ReportAllocs()

			for i := 0; i < b.N; i++ {
				h.Write(data)
			}
			h.Finalize()
		})
	}
}

func BenchmarkHasherBlockBoundary(b *testing.B) {
	data := make([]byte, BlockSize)

	for _, mode := range []Mode{Current, Legacy} {
		b.Run(mode.String(), func(b *testing.B) {
			b.SetBytes(int64(len(data)))
			b.ReportAllocs()

			for i := 0; i < b.N; i++ {
				h := New(mode)
				h.Write(data)
				h.Finalize()
			}
		})
	}
}
