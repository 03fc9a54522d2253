package ext4

import (
	"encoding/binary"
	"fmt"
	"io"
	"time"
)

type inodeFlag uint32
type fileMode uint16

const (
	// the fixed portion of an inode record; inodeSize in the superblock may
	// declare 128 or more
	inodeCoreSize = 128

	fileModeFifo            fileMode = 0x1000
	fileModeCharacterDevice fileMode = 0x2000
	fileModeDirectory       fileMode = 0x4000
	fileModeBlockDevice     fileMode = 0x6000
	fileModeRegularFile     fileMode = 0x8000
	fileModeSymbolicLink    fileMode = 0xA000
	fileModeSocket          fileMode = 0xC000
	fileModeTypeMask        fileMode = 0xF000

	inodeFlagSecureDeletion         inodeFlag = 0x1
	inodeFlagPreserveForUndeletion  inodeFlag = 0x2
	inodeFlagCompressed             inodeFlag = 0x4
	inodeFlagSynchronous            inodeFlag = 0x8
	inodeFlagImmutable              inodeFlag = 0x10
	inodeFlagAppendOnly             inodeFlag = 0x20
	inodeFlagNoDump                 inodeFlag = 0x40
	inodeFlagNoAccessTimeUpdate     inodeFlag = 0x80
	inodeFlagDirtyCompressed        inodeFlag = 0x100
	inodeFlagCompressedClusters     inodeFlag = 0x200
	inodeFlagNoCompress             inodeFlag = 0x400
	inodeFlagEncryptedInode         inodeFlag = 0x800
	inodeFlagHashedDirectoryIndexes inodeFlag = 0x1000
	inodeFlagAFSMagicDirectory      inodeFlag = 0x2000
	inodeFlagAlwaysJournal          inodeFlag = 0x4000
	inodeFlagNoMergeTail            inodeFlag = 0x8000
	inodeFlagSyncDirectoryData      inodeFlag = 0x10000
	inodeFlagTopDirectory           inodeFlag = 0x20000
	inodeFlagHugeFile               inodeFlag = 0x40000
	inodeFlagUsesExtents            inodeFlag = 0x80000
	inodeFlagExtendedAttributes     inodeFlag = 0x200000
	inodeFlagBlocksPastEOF          inodeFlag = 0x400000
	inodeFlagInlineData             inodeFlag = 0x10000000
)

// inode is a decoded inode record. The 60-byte block area is kept raw: it is
// reinterpreted downstream as an extent tree root or a legacy block map.
type inode struct {
	number        uint64
	mode          fileMode
	uid           uint16
	sizeLo        uint32
	accessTime    time.Time
	changeTime    time.Time
	modifyTime    time.Time
	deletionTime  time.Time
	gid           uint16
	linksCount    uint16
	blocksLo      uint32
	flags         inodeFlag
	osd1          [4]byte
	block         [60]byte
	generation    uint32
	fileACLLo     uint32
	sizeHigh      uint32
	obsoleteFaddr uint32
	blocksHigh    uint16
	fileACLHigh   uint16
	uidHigh       uint16
	gidHigh       uint16
	checksumLo    uint16
	extraSize     uint16
	checksumHi    uint16
	changeTimeX   uint32
	modifyTimeX   uint32
	accessTimeX   uint32
	creationTime  time.Time
	creationTimeX uint32
	versionHi     uint32
	projectID     uint32
	recordSize    uint16
}

// inodeFromBytes decodes one inode record. b must be at least the core 128
// bytes; extra-isize fields are read only when the record is large enough.
func inodeFromBytes(b []byte, number uint64) (*inode, error) {
	if len(b) < inodeCoreSize {
		return nil, fmt.Errorf("cannot read inode from %d bytes instead of minimum %d", len(b), inodeCoreSize)
	}

	in := inode{
		number:        number,
		mode:          fileMode(binary.LittleEndian.Uint16(b[0x0:0x2])),
		uid:           binary.LittleEndian.Uint16(b[0x2:0x4]),
		sizeLo:        binary.LittleEndian.Uint32(b[0x4:0x8]),
		accessTime:    time.Unix(int64(binary.LittleEndian.Uint32(b[0x8:0xc])), 0).UTC(),
		changeTime:    time.Unix(int64(binary.LittleEndian.Uint32(b[0xc:0x10])), 0).UTC(),
		modifyTime:    time.Unix(int64(binary.LittleEndian.Uint32(b[0x10:0x14])), 0).UTC(),
		deletionTime:  time.Unix(int64(binary.LittleEndian.Uint32(b[0x14:0x18])), 0).UTC(),
		gid:           binary.LittleEndian.Uint16(b[0x18:0x1a]),
		linksCount:    binary.LittleEndian.Uint16(b[0x1a:0x1c]),
		blocksLo:      binary.LittleEndian.Uint32(b[0x1c:0x20]),
		flags:         inodeFlag(binary.LittleEndian.Uint32(b[0x20:0x24])),
		generation:    binary.LittleEndian.Uint32(b[0x64:0x68]),
		fileACLLo:     binary.LittleEndian.Uint32(b[0x68:0x6c]),
		sizeHigh:      binary.LittleEndian.Uint32(b[0x6c:0x70]),
		obsoleteFaddr: binary.LittleEndian.Uint32(b[0x70:0x74]),
		blocksHigh:    binary.LittleEndian.Uint16(b[0x74:0x76]),
		fileACLHigh:   binary.LittleEndian.Uint16(b[0x76:0x78]),
		uidHigh:       binary.LittleEndian.Uint16(b[0x78:0x7a]),
		gidHigh:       binary.LittleEndian.Uint16(b[0x7a:0x7c]),
		checksumLo:    binary.LittleEndian.Uint16(b[0x7c:0x7e]),
		recordSize:    uint16(len(b)),
	}
	copy(in.osd1[:], b[0x24:0x28])
	copy(in.block[:], b[0x28:0x64])

	if len(b) >= 0xa0 {
		in.extraSize = binary.LittleEndian.Uint16(b[0x80:0x82])
		in.checksumHi = binary.LittleEndian.Uint16(b[0x82:0x84])
		in.changeTimeX = binary.LittleEndian.Uint32(b[0x84:0x88])
		in.modifyTimeX = binary.LittleEndian.Uint32(b[0x88:0x8c])
		in.accessTimeX = binary.LittleEndian.Uint32(b[0x8c:0x90])
		in.creationTime = time.Unix(int64(binary.LittleEndian.Uint32(b[0x90:0x94])), 0).UTC()
		in.creationTimeX = binary.LittleEndian.Uint32(b[0x94:0x98])
		in.versionHi = binary.LittleEndian.Uint32(b[0x98:0x9c])
		in.projectID = binary.LittleEndian.Uint32(b[0x9c:0xa0])
	}

	return &in, nil
}

// isDirectory reports whether the mode type bits mark a directory.
func (in *inode) isDirectory() bool {
	return in.mode&fileModeTypeMask == fileModeDirectory
}

// usesExtents reports whether the block area holds an extent tree root. The
// flag and the magic normally agree; the magic wins when they disagree
// because it is what the walker is about to parse.
func (in *inode) usesExtents() bool {
	return binary.LittleEndian.Uint16(in.block[0:2]) == extentHeaderSignature
}

// usesHashTree reports whether the directory content is HTREE-indexed.
func (in *inode) usesHashTree() bool {
	return in.flags&inodeFlagHashedDirectoryIndexes == inodeFlagHashedDirectoryIndexes
}

func (in *inode) size() uint64 {
	return uint64(in.sizeHigh)<<32 | uint64(in.sizeLo)
}

func (in *inode) dump(w io.Writer) {
	fmt.Fprintf(w, "Mode: %#o (%s)\n", uint16(in.mode), in.mode.typeName())
	fmt.Fprintf(w, "UID: %d\n", in.uid)
	fmt.Fprintf(w, "Size: %d\n", in.sizeLo)
	fmt.Fprintf(w, "Access Time: %s\n", formatTime(in.accessTime))
	fmt.Fprintf(w, "Change Time: %s\n", formatTime(in.changeTime))
	fmt.Fprintf(w, "Modification Time: %s\n", formatTime(in.modifyTime))
	fmt.Fprintf(w, "Deletion Time: %s\n", formatTime(in.deletionTime))
	fmt.Fprintf(w, "GID: %d\n", in.gid)
	fmt.Fprintf(w, "Links Count: %d\n", in.linksCount)
	fmt.Fprintf(w, "Blocks: %d\n", in.blocksLo)
	fmt.Fprintf(w, "Flags:%s\n", featureNames(uint32(in.flags), inodeFlagNames))
	fmt.Fprintf(w, "OSD1: %s\n", hexPairs(in.osd1[:]))
	blocks := make([]uint32, 15)
	for i := range blocks {
		blocks[i] = binary.LittleEndian.Uint32(in.block[4*i : 4*i+4])
	}
	fmt.Fprintf(w, "Block Array: %v\n", blocks)
	fmt.Fprintf(w, "Generation: %d\n", in.generation)
	fmt.Fprintf(w, "File ACL: %d\n", in.fileACLLo)
	fmt.Fprintf(w, "Size High: %d\n", in.sizeHigh)
	fmt.Fprintf(w, "Obsolete Fragment Address: %d\n", in.obsoleteFaddr)
	fmt.Fprintf(w, "Blocks High: %d\n", in.blocksHigh)
	fmt.Fprintf(w, "File ACL High: %d\n", in.fileACLHigh)
	fmt.Fprintf(w, "UID High: %d\n", in.uidHigh)
	fmt.Fprintf(w, "GID High: %d\n", in.gidHigh)
	fmt.Fprintf(w, "Checksum: %d\n", in.checksumLo)
	if in.recordSize > inodeCoreSize {
		fmt.Fprintf(w, "Extra ISize: %d\n", in.extraSize)
		fmt.Fprintf(w, "Checksum High: %d\n", in.checksumHi)
		fmt.Fprintf(w, "CTime Extra: %d\n", in.changeTimeX)
		fmt.Fprintf(w, "MTime Extra: %d\n", in.modifyTimeX)
		fmt.Fprintf(w, "ATime Extra: %d\n", in.accessTimeX)
		fmt.Fprintf(w, "CRTime: %s\n", formatTime(in.creationTime))
		fmt.Fprintf(w, "CRTime Extra: %d\n", in.creationTimeX)
		fmt.Fprintf(w, "Version High: %d\n", in.versionHi)
		fmt.Fprintf(w, "Project ID: %d\n", in.projectID)
	}
}

func (m fileMode) typeName() string {
	switch m & fileModeTypeMask {
	case fileModeFifo:
		return "FIFO"
	case fileModeCharacterDevice:
		return "Character Device"
	case fileModeDirectory:
		return "Directory"
	case fileModeBlockDevice:
		return "Block Device"
	case fileModeRegularFile:
		return "Regular File"
	case fileModeSymbolicLink:
		return "Symbolic Link"
	case fileModeSocket:
		return "Socket"
	}
	return "Unknown"
}

var inodeFlagNames = []featureName{
	{feature(inodeFlagSecureDeletion), "Secure Deletion"},
	{feature(inodeFlagPreserveForUndeletion), "Undelete"},
	{feature(inodeFlagCompressed), "Compressed"},
	{feature(inodeFlagSynchronous), "Synchronous"},
	{feature(inodeFlagImmutable), "Immutable"},
	{feature(inodeFlagAppendOnly), "Append Only"},
	{feature(inodeFlagNoDump), "No Dump"},
	{feature(inodeFlagNoAccessTimeUpdate), "No ATime"},
	{feature(inodeFlagDirtyCompressed), "Dirty"},
	{feature(inodeFlagCompressedClusters), "Compressed Clusters"},
	{feature(inodeFlagNoCompress), "No Compress"},
	{feature(inodeFlagEncryptedInode), "Encrypted"},
	{feature(inodeFlagHashedDirectoryIndexes), "Hash Indexed Directory"},
	{feature(inodeFlagAFSMagicDirectory), "AFS Magic Directory"},
	{feature(inodeFlagAlwaysJournal), "Journal Data"},
	{feature(inodeFlagNoMergeTail), "No Tail Merge"},
	{feature(inodeFlagSyncDirectoryData), "Sync Directory Data"},
	{feature(inodeFlagTopDirectory), "Top Directory"},
	{feature(inodeFlagHugeFile), "Huge File"},
	{feature(inodeFlagUsesExtents), "Extents"},
	{feature(inodeFlagExtendedAttributes), "EA Inode"},
	{feature(inodeFlagBlocksPastEOF), "Blocks Past EOF"},
	{feature(inodeFlagInlineData), "Inline Data"},
}

// fileTypeName maps the dir_entry_2 file_type byte to its symbolic name.
func fileTypeName(t byte) string {
	switch t {
	case 0:
		return "Unknown"
	case 1:
		return "Regular File"
	case 2:
		return "Directory"
	case 3:
		return "Character Device"
	case 4:
		return "Block Device"
	case 5:
		return "FIFO"
	case 6:
		return "Socket"
	case 7:
		return "Symbolic Link"
	}
	return "Invalid"
}
