//go:build windows

package fs

import "testing"

func TestAccessMaskGenericReadWriteAreDistinctBits(t *testing.T) {
	if GENERIC_READ&GENERIC_WRITE != 0 {
		t.Fatal("GENERIC_READ and GENERIC_WRITE must not overlap")
	}
}

func TestFileShareModeValidFlagsIsUnionOfIndividualBits(t *testing.T) {
	if FILE_SHARE_VALID_FLAGS != FILE_SHARE_READ|FILE_SHARE_WRITE|FILE_SHARE_DELETE {
		t.Fatal("FILE_SHARE_VALID_FLAGS must equal the union of its component bits")
	}
}
