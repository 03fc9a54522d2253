package ext4

import (
	"encoding/binary"
	"fmt"
	"io"

	bitset "github.com/bits-and-blooms/bitset"
)

type blockGroupFlag uint16

const (
	groupDescriptorSize      = 32
	groupDescriptorSize64Bit = 64

	blockGroupFlagInodesUninitialized      blockGroupFlag = 0x1
	blockGroupFlagBlockBitmapUninitialized blockGroupFlag = 0x2
	blockGroupFlagInodeTableZeroed         blockGroupFlag = 0x4
)

// groupDescriptor is the decoded record for a single block group. The high
// halves are populated only when the 64BIT feature is set and the descriptor
// stride is 64 bytes.
type groupDescriptor struct {
	number           uint32
	is64bit          bool
	blockBitmapLo    uint32
	inodeBitmapLo    uint32
	inodeTableLo     uint32
	freeBlocksLo     uint16
	freeInodesLo     uint16
	usedDirsLo       uint16
	flags            blockGroupFlag
	excludeBitmapLo  uint32
	bitmapChecksums  uint32
	itableUnusedLo   uint16
	checksum         uint16
	blockBitmapHi    uint32
	inodeBitmapHi    uint32
	inodeTableHi     uint32
	freeBlocksHi     uint16
	freeInodesHi     uint16
	usedDirsHi       uint16
	itableUnusedHi   uint16
	excludeBitmapHi  uint32
	reservedTrailing [8]byte
}

// groupDescriptorFromBytes decodes one descriptor. b must hold at least the
// stride the superblock declares.
func groupDescriptorFromBytes(b []byte, number uint32, is64bit bool) (*groupDescriptor, error) {
	if len(b) < groupDescriptorSize {
		return nil, fmt.Errorf("cannot read group descriptor from %d bytes instead of expected %d", len(b), groupDescriptorSize)
	}

	gd := groupDescriptor{
		number:          number,
		is64bit:         is64bit,
		blockBitmapLo:   binary.LittleEndian.Uint32(b[0x0:0x4]),
		inodeBitmapLo:   binary.LittleEndian.Uint32(b[0x4:0x8]),
		inodeTableLo:    binary.LittleEndian.Uint32(b[0x8:0xc]),
		freeBlocksLo:    binary.LittleEndian.Uint16(b[0xc:0xe]),
		freeInodesLo:    binary.LittleEndian.Uint16(b[0xe:0x10]),
		usedDirsLo:      binary.LittleEndian.Uint16(b[0x10:0x12]),
		flags:           blockGroupFlag(binary.LittleEndian.Uint16(b[0x12:0x14])),
		excludeBitmapLo: binary.LittleEndian.Uint32(b[0x14:0x18]),
		bitmapChecksums: binary.LittleEndian.Uint32(b[0x18:0x1c]),
		itableUnusedLo:  binary.LittleEndian.Uint16(b[0x1c:0x1e]),
		checksum:        binary.LittleEndian.Uint16(b[0x1e:0x20]),
	}

	if is64bit && len(b) >= groupDescriptorSize64Bit {
		gd.blockBitmapHi = binary.LittleEndian.Uint32(b[0x20:0x24])
		gd.inodeBitmapHi = binary.LittleEndian.Uint32(b[0x24:0x28])
		gd.inodeTableHi = binary.LittleEndian.Uint32(b[0x28:0x2c])
		gd.freeBlocksHi = binary.LittleEndian.Uint16(b[0x2c:0x2e])
		gd.freeInodesHi = binary.LittleEndian.Uint16(b[0x2e:0x30])
		gd.usedDirsHi = binary.LittleEndian.Uint16(b[0x30:0x32])
		gd.itableUnusedHi = binary.LittleEndian.Uint16(b[0x32:0x34])
		gd.excludeBitmapHi = binary.LittleEndian.Uint32(b[0x34:0x38])
		copy(gd.reservedTrailing[:], b[0x38:0x40])
	}

	return &gd, nil
}

// inodeTable is the combined block number of the group's inode table.
func (gd *groupDescriptor) inodeTable() uint64 {
	return uint64(gd.inodeTableHi)<<32 | uint64(gd.inodeTableLo)
}

func (gd *groupDescriptor) blockBitmap() uint64 {
	return uint64(gd.blockBitmapHi)<<32 | uint64(gd.blockBitmapLo)
}

func (gd *groupDescriptor) inodeBitmap() uint64 {
	return uint64(gd.inodeBitmapHi)<<32 | uint64(gd.inodeBitmapLo)
}

func (gd *groupDescriptor) dump(w io.Writer) {
	fmt.Fprintf(w, "Block Bitmap: %d\n", gd.blockBitmapLo)
	fmt.Fprintf(w, "Inode Bitmap: %d\n", gd.inodeBitmapLo)
	fmt.Fprintf(w, "Inode Table: %d\n", gd.inodeTableLo)
	fmt.Fprintf(w, "Free Blocks: %d\n", gd.freeBlocksLo)
	fmt.Fprintf(w, "Free Inodes: %d\n", gd.freeInodesLo)
	fmt.Fprintf(w, "Used Directories: %d\n", gd.usedDirsLo)
	fmt.Fprintf(w, "Flags:%s\n", featureNames(uint32(gd.flags), blockGroupFlagNames))
	fmt.Fprintf(w, "Exclude Bitmap: %d\n", gd.excludeBitmapLo)
	fmt.Fprintf(w, "Bitmap Checksums: %d\n", gd.bitmapChecksums)
	fmt.Fprintf(w, "Unused Inode Table: %d\n", gd.itableUnusedLo)
	fmt.Fprintf(w, "Checksum: %d\n", gd.checksum)
	if gd.is64bit {
		fmt.Fprintf(w, "Block Bitmap Hi: %d\n", gd.blockBitmapHi)
		fmt.Fprintf(w, "Inode Bitmap Hi: %d\n", gd.inodeBitmapHi)
		fmt.Fprintf(w, "Inode Table Hi: %d\n", gd.inodeTableHi)
		fmt.Fprintf(w, "Free Blocks Hi: %d\n", gd.freeBlocksHi)
		fmt.Fprintf(w, "Free Inodes Hi: %d\n", gd.freeInodesHi)
		fmt.Fprintf(w, "Used Directories Hi: %d\n", gd.usedDirsHi)
		fmt.Fprintf(w, "Unused Inode Table Hi: %d\n", gd.itableUnusedHi)
		fmt.Fprintf(w, "Exclude Bitmap Hi: %d\n", gd.excludeBitmapHi)
	}
}

var blockGroupFlagNames = []featureName{
	{feature(blockGroupFlagInodesUninitialized), "Inode Uninit"},
	{feature(blockGroupFlagBlockBitmapUninitialized), "Block Uninit"},
	{feature(blockGroupFlagInodeTableZeroed), "Inode Table Zeroed"},
}

// bitmapInUse counts the allocated entries in an on-disk allocation bitmap,
// considering only the first nbits bits; an nbits of 0 counts every bit.
func bitmapInUse(b []byte, nbits uint) uint {
	words := make([]uint64, (len(b)+7)/8)
	for i := range words {
		var chunk [8]byte
		copy(chunk[:], b[i*8:])
		words[i] = binary.LittleEndian.Uint64(chunk[:])
	}
	bs := bitset.From(words)
	if nbits > 0 && nbits < bs.Len() {
		count := uint(0)
		for i := uint(0); i < nbits; i++ {
			if bs.Test(i) {
				count++
			}
		}
		return count
	}
	return bs.Count()
}
