//go:build windows

package lsock

import "testing"

func TestWindowsPipePathRewriting(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"example.sock", `\\.\pipe\example.sock`},
		{"@example.sock", `\\.\pipe\example.sock`},
		{`\\.\pipe\example.sock`, `\\.\pipe\example.sock`},
	}
	for _, c := range cases {
		n, err := ToFsName(c.in)
		if err != nil {
			t.Fatalf("ToFsName(%q): %v", c.in, err)
		}
		if n.String() != c.want {
			t.Fatalf("ToFsName(%q) = %q, want %q", c.in, n.String(), c.want)
		}

		n2, err := ToNsName(c.in)
		if err != nil {
			t.Fatalf("ToNsName(%q): %v", c.in, err)
		}
		if n2.String() != c.want {
			t.Fatalf("ToNsName(%q) = %q, want %q", c.in, n2.String(), c.want)
		}
	}
}
