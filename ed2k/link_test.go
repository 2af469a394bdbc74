package ed2k_test

import (
	"testing"

	"github.com/hoangsonww/ed2k/ed2k"
)

func TestLinkString(t *testing.T) {
	tests := []struct {
		name string
		link ed2k.Link
		want string
	}{
		{
			name: "pipe escaped",
			link: ed2k.Link{Name: "a|b"},
			want: "ed2k://|file|a%7cb|0|00000000000000000000000000000000|/",
		},
		{
			name: "plain ascii",
			link: ed2k.Link{
				Name:   "foo bar.txt",
				Size:   6,
				Digest: mustDigest(t, "547aefd231dcbaac398625718336f143"),
			},
			want: "ed2k://|file|foo bar.txt|6|547aefd231dcbaac398625718336f143|/",
		},
		{
			name: "utf-8 name",
			link: ed2k.Link{Name: "é.txt", Size: 9728000},
			want: "ed2k://|file|%c3%a9.txt|9728000|00000000000000000000000000000000|/",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.link.String(); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestEscapeName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"abc%20", "abc%20"},
		{"||", "%7c%7c"},
		{"日本", "%e6%97%a5%e6%9c%ac"},
		{"x\xffy", "x%ef%bf%bdy"},
	}
	for _, tt := range tests {
		if got := ed2k.EscapeName(tt.in); got != tt.want {
			t.Errorf("EscapeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseDigest(t *testing.T) {
	d := mustDigest(t, "1bee69a46ba811185c194762abaeae90")
	if d.String() != "1bee69a46ba811185c194762abaeae90" {
		t.Fatalf("round trip mismatch: %s", d)
	}

	for _, bad := range []string{"", "1bee", "zzee69a46ba811185c194762abaeae90"} {
		if _, err := ed2k.ParseDigest(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

func mustDigest(t *testing.T, s string) ed2k.Digest {
	t.Helper()
	d, err := ed2k.ParseDigest(s)
	if err != nil {
		t.Fatalf("parse digest: %v", err)
	}
	return d
}
