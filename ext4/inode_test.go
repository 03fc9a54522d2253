package ext4

import (
	"strings"
	"testing"
)

func TestInodeDecode(t *testing.T) {
	img := buildDefaultImage()
	area := extentLeafRoot(extent{fileBlock: 0, length: 1, startLo: 20})
	img.writeInode(11, inodeConfig{
		mode:  0x81a4, // regular file, 0644
		uid:   1000,
		size:  13,
		gid:   1000,
		links: 1,
		flags: uint32(inodeFlagUsesExtents),
		block: area,
	})

	off := testInodeTableBlock*testBlockSize + 11*testInodeSize
	in, err := inodeFromBytes(img.b[off:off+testInodeSize], 12)
	if err != nil {
		t.Fatalf("inodeFromBytes error: %v", err)
	}

	if in.mode.typeName() != "Regular File" {
		t.Errorf("typeName = %q, want Regular File", in.mode.typeName())
	}
	if in.uid != 1000 || in.gid != 1000 {
		t.Errorf("uid/gid = %d/%d, want 1000/1000", in.uid, in.gid)
	}
	if in.sizeLo != 13 {
		t.Errorf("sizeLo = %d, want 13", in.sizeLo)
	}
	if in.isDirectory() {
		t.Error("regular file reported as directory")
	}
	if !in.usesExtents() {
		t.Error("extent root not recognized")
	}
	if in.usesHashTree() {
		t.Error("hash tree flag reported without EXT4_INDEX_FL")
	}
	if formatTime(in.accessTime) != "2023-11-14 22:13:20" {
		t.Errorf("accessTime = %s", formatTime(in.accessTime))
	}
}

func TestInodeGlobalNumbering(t *testing.T) {
	// global inode number of slot (g, i) is g*inodesPerGroup + i + 1: the
	// root directory is always inode 2, group 0 slot 1
	img := buildDefaultImage()
	rootArea := extentLeafRoot(extent{fileBlock: 0, length: 1, startLo: 16})
	img.writeDotDirBlock(16, 2, 2, 12, "readme", 1)
	img.writeInode(1, inodeConfig{
		mode:  0x41ed,
		size:  testBlockSize,
		links: 2,
		flags: uint32(inodeFlagUsesExtents),
		block: rootArea,
	})

	fs, buf := newTestWalker(img)
	if err := fs.Walk(); err != nil {
		t.Fatalf("Walk error: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "Parsing Inode 2:") {
		t.Error("root directory not reported as inode 2")
	}
	if strings.Contains(out, "Parsing Inode 1:") {
		t.Error("empty slot 0 should have been skipped")
	}
}

func TestInodeSkipPolicy(t *testing.T) {
	img := buildDefaultImage()
	// slot 4 (inode 5): zero size, non-empty block head; skipped unless
	// debugging
	var area [60]byte
	area[0] = 0x42
	img.writeInode(4, inodeConfig{mode: 0x8180, uid: 7, size: 0, block: area})
	// slot 5 (inode 6): uid 0 and empty block head, treated as never used
	img.writeInode(5, inodeConfig{mode: 0x8180, uid: 0, size: 9})

	fs, buf := newTestWalker(img)
	if err := fs.Walk(); err != nil {
		t.Fatalf("Walk error: %v", err)
	}
	out := buf.String()
	if strings.Contains(out, "Parsing Inode 5:") {
		t.Error("zero-size inode dumped without debug")
	}
	if strings.Contains(out, "Parsing Inode 6:") {
		t.Error("empty slot dumped")
	}

	fs2 := NewWalker(img.b, WithDebug(true), WithOutput(buf))
	buf.Reset()
	if err := fs2.Walk(); err != nil {
		t.Fatalf("Walk error: %v", err)
	}
	if !strings.Contains(buf.String(), "Parsing Inode 5:") {
		t.Error("debug mode should dump zero-size inodes")
	}
}

func TestInodeDumpFields(t *testing.T) {
	img := buildDefaultImage()
	area := extentLeafRoot(extent{fileBlock: 0, length: 1, startLo: 20})
	img.writeInode(11, inodeConfig{
		mode:  0x81a4,
		uid:   1000,
		size:  13,
		links: 1,
		flags: uint32(inodeFlagUsesExtents | inodeFlagNoAccessTimeUpdate),
		block: area,
	})

	fs, buf := newTestWalker(img)
	off := testInodeTableBlock*testBlockSize + 11*testInodeSize
	in, _ := inodeFromBytes(img.b[off:off+testInodeSize], 12)
	in.dump(fs.out)
	out := buf.String()
	for _, want := range []string{
		"Size: 13",
		"UID: 1000",
		"Links Count: 1",
		"Extents",
		"No ATime",
		"Block Array: [",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("inode dump missing %q", want)
		}
	}
}
