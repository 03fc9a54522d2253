package ext4

import (
	"strings"
	"testing"
)

// region returns a zeroed directory block to lay records into.
func region() []byte {
	return make([]byte, testBlockSize)
}

func walkRegion(t *testing.T, region []byte) string {
	t.Helper()
	img := buildDefaultImage()
	fs, buf := newTestWalker(img)
	fs.walkLinearRegion(region)
	return buf.String()
}

func TestLinearDirectoryBasic(t *testing.T) {
	// ".", ".." and one real entry, the classic root block shape
	img := buildDefaultImage()
	img.writeDotDirBlock(16, 2, 2, 12, "readme", 1)

	fs, buf := newTestWalker(img)
	fs.walkLinearRegion(img.b[16*testBlockSize : 17*testBlockSize])
	out := buf.String()

	for _, want := range []string{
		"Name: .",
		"Name: ..",
		"Name: readme",
		"Inode: 12",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}
	if got := strings.Count(out, "Inode: 2\n"); got != 2 {
		t.Errorf("expected two emissions for inode 2, got %d", got)
	}
}

func TestLinearDirectoryZeroRunStops(t *testing.T) {
	// entries followed by a zero tail: the walker must emit what precedes
	// the run and stop
	b := region()
	copy(b, mkDirEntry(12, 16, "file.txt", 1))
	copy(b[16:], mkDirEntry(13, 16, "other.txt", 1))
	// the rest of the block is already zero

	out := walkRegion(t, b)
	if !strings.Contains(out, "Name: file.txt") || !strings.Contains(out, "Name: other.txt") {
		t.Error("entries before the zero run not emitted")
	}
	if strings.Count(out, "Inode:") != 2 {
		t.Errorf("expected exactly 2 entries, output:\n%s", out)
	}
}

func TestLinearDirectoryUTF8AndHexNames(t *testing.T) {
	b := region()
	copy(b, mkDirEntry(12, 16, "héllo", 1))
	bad := mkDirEntry(13, 16, "xxxx", 1)
	bad[8], bad[9], bad[10], bad[11] = 0xff, 0xfe, 0x41, 0x42
	copy(b[16:], bad)

	out := walkRegion(t, b)
	if !strings.Contains(out, "Name: héllo") {
		t.Error("valid UTF-8 name not decoded")
	}
	if !strings.Contains(out, "Name: fffe4142") {
		t.Error("invalid UTF-8 name not hex-dumped")
	}
}

func TestLinearDirectoryAdvanceRules(t *testing.T) {
	// each damaged header shape must advance by its contract amount and the
	// walker must still reach the healthy record behind it
	// The decoded header at a damaged position overlaps whatever follows,
	// so each case lays out its damage bytes in full and the hop sequence is
	// computed against the rule order: +4 hops always land on another
	// damaged header before the healthy record.
	cases := []struct {
		name  string
		setup func(b []byte) int // returns offset of the healthy record
	}{
		{
			// inode 0, huge rec_len, empty name: +4, then the empty-name
			// rule hops the second damaged header
			name: "zero inode huge reclen",
			setup: func(b []byte) int {
				putLE32(b, 0, 0)
				putLE16(b, 4, 300)
				b[6], b[7] = 0, 1
				putLE16(b, 8, 12)
				b[10], b[11] = 0, 1
				return 12
			},
		},
		{
			// out-of-range inode with zero rec_len and name: +4, +8
			name: "out of range inode zero reclen",
			setup: func(b []byte) int {
				putLE32(b, 0, 99999)
				putLE16(b, 4, 0)
				b[6], b[7] = 0, 1
				putLE16(b, 8, 12)
				b[10], b[11] = 0, 1
				return 12
			},
		},
		{
			// inode 0, rec_len 12, empty name: one +12 hop
			name: "deleted entry stub",
			setup: func(b []byte) int {
				putLE32(b, 0, 0)
				putLE16(b, 4, 12)
				b[6], b[7] = 0, 1
				return 12
			},
		},
		{
			// huge rec_len on a reserved inode: +8
			name: "reserved inode huge reclen",
			setup: func(b []byte) int {
				putLE32(b, 0, 5)
				putLE16(b, 4, 300)
				b[6], b[7] = 1, 1
				return 8
			},
		},
		{
			// file_type 0: +8
			name: "zero file type",
			setup: func(b []byte) int {
				putLE32(b, 0, 14)
				putLE16(b, 4, 12)
				b[6], b[7] = 4, 0
				return 8
			},
		},
		{
			// name_len 0 with a live inode: +8
			name: "empty name live inode",
			setup: func(b []byte) int {
				putLE32(b, 0, 14)
				putLE16(b, 4, 12)
				b[6], b[7] = 0, 1
				return 8
			},
		},
		{
			// inode out of range with a plausible header: +4, +8
			name: "inode out of range",
			setup: func(b []byte) int {
				putLE32(b, 0, 99999)
				putLE16(b, 4, 12)
				b[6], b[7] = 1, 1
				putLE16(b, 8, 12)
				b[10], b[11] = 0, 1
				return 12
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := region()
			healthyAt := tc.setup(b)
			healthy := mkDirEntry(12, uint16(testBlockSize-healthyAt), "survivor", 1)
			copy(b[healthyAt:], healthy)

			out := walkRegion(t, b)
			if !strings.Contains(out, "Name: survivor") {
				t.Errorf("healthy record not reached, output:\n%s", out)
			}
		})
	}
}

func TestLinearDirectoryRecLenProgressGuard(t *testing.T) {
	// a well-formed entry with rec_len smaller than its own record must
	// still advance the scan
	b := region()
	e := mkDirEntry(12, 2, "ab", 1)
	copy(b, e)
	copy(b[align4(8+2):], mkDirEntry(13, uint16(testBlockSize-12), "next", 1))

	out := walkRegion(t, b)
	if !strings.Contains(out, "Name: ab") || !strings.Contains(out, "Name: next") {
		t.Errorf("progress guard failed, output:\n%s", out)
	}
}

func TestLinearDirectoryCoverage(t *testing.T) {
	// the emitted rec_len values plus skipped bytes cover the whole block
	b := region()
	off := 0
	for i := 0; i < 4; i++ {
		copy(b[off:], mkDirEntry(uint32(12+i), 24, "entry", 1))
		off += 24
	}
	copy(b[off:], mkDirEntry(20, uint16(testBlockSize-off), "last", 1))

	out := walkRegion(t, b)
	if got := strings.Count(out, "Inode:"); got != 5 {
		t.Errorf("expected 5 entries, got %d", got)
	}
}

func putLE16(b []byte, off int, v uint16) {
	b[off] = byte(v)
	b[off+1] = byte(v >> 8)
}

func putLE32(b []byte, off int, v uint32) {
	b[off] = byte(v)
	b[off+1] = byte(v >> 8)
	b[off+2] = byte(v >> 16)
	b[off+3] = byte(v >> 24)
}
