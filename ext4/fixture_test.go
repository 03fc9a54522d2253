package ext4

import (
	"bytes"
	"encoding/binary"
)

// Helpers that synthesize little ext4 images in memory. The geometry most
// tests share: 4096-byte blocks, one block group, the group descriptor table
// in block 1, allocation bitmaps in blocks 4 and 5, the inode table in
// block 8.
const (
	testBlockSize       = 4096
	testInodeSize       = 256
	testInodesPerGroup  = 32
	testBlocksPerGroup  = 64
	testInodeTableBlock = 8
	testBlockBitmapBlk  = 4
	testInodeBitmapBlk  = 5
)

type sbConfig struct {
	inodesCount     uint32
	blocks          uint32
	blocksPerGroup  uint32
	inodesPerGroup  uint32
	inodeSize       uint16
	descSize        uint16
	featureCompat   uint32
	featureIncompat uint32
	featureROCompat uint32
	firstIno        uint32
	volumeName      string
}

func defaultSBConfig() sbConfig {
	return sbConfig{
		inodesCount:     testInodesPerGroup,
		blocks:          testBlocksPerGroup,
		blocksPerGroup:  testBlocksPerGroup,
		inodesPerGroup:  testInodesPerGroup,
		inodeSize:       testInodeSize,
		descSize:        32,
		featureIncompat: uint32(incompatFeatureDirectoryEntriesRecordFileType | incompatFeatureExtents),
		firstIno:        11,
		volumeName:      "testvol",
	}
}

type testImage struct {
	b []byte
}

func newTestImage(blocks int) *testImage {
	return &testImage{b: make([]byte, blocks*testBlockSize)}
}

func (t *testImage) putU16(off int, v uint16) {
	binary.LittleEndian.PutUint16(t.b[off:off+2], v)
}

func (t *testImage) putU32(off int, v uint32) {
	binary.LittleEndian.PutUint32(t.b[off:off+4], v)
}

func (t *testImage) put(off int, data []byte) {
	copy(t.b[off:], data)
}

func (t *testImage) writeSuperblock(cfg sbConfig) {
	off := int(superblockOffset)
	t.putU32(off+0x0, cfg.inodesCount)
	t.putU32(off+0x4, cfg.blocks)
	t.putU32(off+0x14, 0) // first data block
	t.putU32(off+0x18, 2) // log block size -> 4096
	t.putU32(off+0x20, cfg.blocksPerGroup)
	t.putU32(off+0x28, cfg.inodesPerGroup)
	t.putU16(off+0x38, superblockSignature)
	t.putU16(off+0x3a, uint16(fsStateCleanlyUnmounted))
	t.putU16(off+0x3c, uint16(errorsContinue))
	t.putU32(off+0x48, uint32(osLinux))
	t.putU32(off+0x4c, 1) // dynamic rev
	t.putU32(off+0x54, cfg.firstIno)
	t.putU16(off+0x58, cfg.inodeSize)
	t.putU32(off+0x5c, cfg.featureCompat)
	t.putU32(off+0x60, cfg.featureIncompat)
	t.putU32(off+0x64, cfg.featureROCompat)
	for i := 0; i < 16; i++ {
		t.b[off+0x68+i] = byte(i + 1)
	}
	t.put(off+0x78, []byte(cfg.volumeName))
	t.b[off+0xfc] = byte(hashHalfMD4)
	t.putU16(off+0xfe, cfg.descSize)
}

type gdConfig struct {
	blockBitmap   uint32
	inodeBitmap   uint32
	inodeTable    uint32
	freeBlocks    uint16
	freeInodes    uint16
	usedDirs      uint16
	flags         uint16
	inodeTableHi  uint32
	blockBitmapHi uint32
	inodeBitmapHi uint32
}

func defaultGDConfig() gdConfig {
	return gdConfig{
		blockBitmap: testBlockBitmapBlk,
		inodeBitmap: testInodeBitmapBlk,
		inodeTable:  testInodeTableBlock,
		freeBlocks:  40,
		freeInodes:  20,
		usedDirs:    1,
	}
}

// writeGroupDescriptor writes descriptor number at the computed table slot.
func (t *testImage) writeGroupDescriptor(number int, stride int, cfg gdConfig) {
	off := testBlockSize + number*stride
	t.putU32(off+0x0, cfg.blockBitmap)
	t.putU32(off+0x4, cfg.inodeBitmap)
	t.putU32(off+0x8, cfg.inodeTable)
	t.putU16(off+0xc, cfg.freeBlocks)
	t.putU16(off+0xe, cfg.freeInodes)
	t.putU16(off+0x10, cfg.usedDirs)
	t.putU16(off+0x12, cfg.flags)
	if stride == groupDescriptorSize64Bit {
		t.putU32(off+0x20, cfg.blockBitmapHi)
		t.putU32(off+0x24, cfg.inodeBitmapHi)
		t.putU32(off+0x28, cfg.inodeTableHi)
	}
}

type inodeConfig struct {
	mode  uint16
	uid   uint16
	size  uint32
	gid   uint16
	links uint16
	flags uint32
	block [60]byte
}

// writeInode fills the slot in the inode table of the default geometry.
func (t *testImage) writeInode(slot int, cfg inodeConfig) {
	off := testInodeTableBlock*testBlockSize + slot*testInodeSize
	t.putU16(off+0x0, cfg.mode)
	t.putU16(off+0x2, cfg.uid)
	t.putU32(off+0x4, cfg.size)
	t.putU32(off+0x8, 1700000000)  // atime
	t.putU32(off+0xc, 1700000001)  // ctime
	t.putU32(off+0x10, 1700000002) // mtime
	t.putU16(off+0x18, cfg.gid)
	t.putU16(off+0x1a, cfg.links)
	t.putU32(off+0x20, cfg.flags)
	t.put(off+0x28, cfg.block[:])
}

// extentLeafRoot builds a depth-0 extent tree root for the inode block area.
func extentLeafRoot(extents ...extent) [60]byte {
	var area [60]byte
	binary.LittleEndian.PutUint16(area[0x0:], extentHeaderSignature)
	binary.LittleEndian.PutUint16(area[0x2:], uint16(len(extents)))
	binary.LittleEndian.PutUint16(area[0x4:], 4)
	binary.LittleEndian.PutUint16(area[0x6:], 0)
	for i, e := range extents {
		putExtent(area[extentHeaderLength+i*extentEntryLength:], e)
	}
	return area
}

// extentIdxRoot builds an internal root pointing at on-disk child nodes.
func extentIdxRoot(depth uint16, idxs ...extentIdx) [60]byte {
	var area [60]byte
	binary.LittleEndian.PutUint16(area[0x0:], extentHeaderSignature)
	binary.LittleEndian.PutUint16(area[0x2:], uint16(len(idxs)))
	binary.LittleEndian.PutUint16(area[0x4:], 4)
	binary.LittleEndian.PutUint16(area[0x6:], depth)
	for i, ei := range idxs {
		b := area[extentHeaderLength+i*extentEntryLength:]
		binary.LittleEndian.PutUint32(b[0x0:], ei.fileBlock)
		binary.LittleEndian.PutUint32(b[0x4:], ei.leafLo)
		binary.LittleEndian.PutUint16(b[0x8:], ei.leafHi)
	}
	return area
}

func putExtent(b []byte, e extent) {
	binary.LittleEndian.PutUint32(b[0x0:], e.fileBlock)
	binary.LittleEndian.PutUint16(b[0x4:], e.length)
	binary.LittleEndian.PutUint16(b[0x6:], e.startHi)
	binary.LittleEndian.PutUint32(b[0x8:], e.startLo)
}

// writeExtentLeafNode writes an on-disk depth-0 node into the given block.
func (t *testImage) writeExtentLeafNode(block int, extents ...extent) {
	off := block * testBlockSize
	t.putU16(off+0x0, extentHeaderSignature)
	t.putU16(off+0x2, uint16(len(extents)))
	t.putU16(off+0x4, 340)
	t.putU16(off+0x6, 0)
	for i, e := range extents {
		putExtent(t.b[off+extentHeaderLength+i*extentEntryLength:], e)
	}
}

// mkDirEntry encodes one dir_entry_2 record with an explicit rec_len.
func mkDirEntry(inode uint32, recLen uint16, name string, fileType byte) []byte {
	b := make([]byte, align4(dirEntryHeaderLength+len(name)))
	binary.LittleEndian.PutUint32(b[0x0:], inode)
	binary.LittleEndian.PutUint16(b[0x4:], recLen)
	b[0x6] = byte(len(name))
	b[0x7] = fileType
	copy(b[0x8:], name)
	return b
}

// writeDotDirBlock lays out a block holding ".", ".." and one more entry in
// the shape the record walker traverses: the ".." record is stepped over
// header-first, so its name and an 8-byte gap of zeroes sit between it and
// the final entry, which runs to the end of the block.
func (t *testImage) writeDotDirBlock(block int, selfIno, parentIno, childIno uint32, childName string, childType byte) {
	off := block * testBlockSize
	t.put(off, mkDirEntry(selfIno, 12, ".", 2))
	t.put(off+12, mkDirEntry(parentIno, 12, "..", 2))
	// bytes 24..31 left zero
	child := mkDirEntry(childIno, uint16(testBlockSize-32), childName, childType)
	t.put(off+32, child)
}

// buildDefaultImage assembles the shared single-group fixture with no inodes
// populated yet.
func buildDefaultImage() *testImage {
	img := newTestImage(testBlocksPerGroup)
	img.writeSuperblock(defaultSBConfig())
	img.writeGroupDescriptor(0, groupDescriptorSize, defaultGDConfig())
	return img
}

// newTestWalker wraps an image with its dump going to the returned buffer.
func newTestWalker(img *testImage) (*Walker, *bytes.Buffer) {
	var buf bytes.Buffer
	fs := NewWalker(img.b, WithOutput(&buf))
	sb, err := superblockFromBytes(img.b[superblockOffset : superblockOffset+superblockSize])
	if err == nil {
		fs.sb = sb
	}
	return fs, &buf
}
