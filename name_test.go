package lsock

import (
	"errors"
	"runtime"
	"testing"
)

func TestToFsNameRejectsEmpty(t *testing.T) {
	if _, err := ToFsName(""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestToFsNameRejectsInteriorNUL(t *testing.T) {
	if _, err := ToFsName("foo\x00bar"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestToFsNameRejectsLeadingNUL(t *testing.T) {
	if _, err := ToFsName("\x00foo"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestToNsNameRejectsEmpty(t *testing.T) {
	if _, err := ToNsName(""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestNameTypeSupportQueryMatchesPlatform(t *testing.T) {
	switch runtime.GOOS {
	case "windows":
		if NameTypeSupportQuery() != OnlyNamespaced {
			t.Fatalf("expected OnlyNamespaced on windows, got %v", NameTypeSupportQuery())
		}
	case "linux", "android":
		if NameTypeSupportQuery() != Both {
			t.Fatalf("expected Both on %s, got %v", runtime.GOOS, NameTypeSupportQuery())
		}
	default:
		if NameTypeSupportQuery() != OnlyPaths {
			t.Fatalf("expected OnlyPaths on %s, got %v", runtime.GOOS, NameTypeSupportQuery())
		}
	}
}

func TestToNsNameUnsupportedRejection(t *testing.T) {
	if NameTypeSupportQuery() != Both {
		_, err := ToNsName("x")
		if runtime.GOOS == "windows" {
			if err != nil {
				t.Fatalf("windows should always accept namespaced names, got %v", err)
			}
			return
		}
		if !errors.Is(err, ErrUnsupported) {
			t.Fatalf("expected ErrUnsupported, got %v", err)
		}
	}
}

func TestFsNameRoundTrip(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("windows rewrites fs names onto the pipe namespace; see TestWindowsPipePathRewriting")
	}
	n, err := ToFsName("/tmp/ipc-example.sock")
	if err != nil {
		t.Fatal(err)
	}
	if n.String() != "/tmp/ipc-example.sock" {
		t.Fatalf("round-trip mismatch: got %q", n.String())
	}
	if !n.IsPath() || n.IsNamespaced() {
		t.Fatalf("fs name should be IsPath and not IsNamespaced, got IsPath=%v IsNamespaced=%v", n.IsPath(), n.IsNamespaced())
	}
}

func TestNamespacedNameIsNotAPath(t *testing.T) {
	if NameTypeSupportQuery() == OnlyPaths {
		t.Skip("platform does not support namespaced names")
	}
	n, err := ToNsName("ipc-example.sock")
	if err != nil {
		t.Fatal(err)
	}
	if runtime.GOOS == "windows" {
		if !n.IsPath() || !n.IsNamespaced() {
			t.Fatalf("windows pipe names are both path- and namespace-shaped")
		}
		return
	}
	if n.IsPath() || !n.IsNamespaced() {
		t.Fatalf("namespaced name should be IsNamespaced and not IsPath, got IsPath=%v IsNamespaced=%v", n.IsPath(), n.IsNamespaced())
	}
}

func TestNamespacedNameAcceptsAtSigil(t *testing.T) {
	if NameTypeSupportQuery() == OnlyPaths {
		t.Skip("platform does not support namespaced names")
	}
	withSigil, err := ToNsName("@ipc-example.sock")
	if err != nil {
		t.Fatal(err)
	}
	without, err := ToNsName("ipc-example.sock")
	if err != nil {
		t.Fatal(err)
	}
	if withSigil.String() != without.String() {
		t.Fatalf("leading @ should be stripped: %q != %q", withSigil.String(), without.String())
	}
}
