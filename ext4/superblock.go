package ext4

import (
	"encoding/binary"
	"fmt"
	"io"
	"strings"
	"time"

	uuid "github.com/satori/go.uuid"
)

type filesystemState uint16
type errorBehaviour uint16
type osFlag uint32
type hashAlgorithm byte

const (
	// superblockOffset is where the superblock lives on every ext4 volume
	superblockOffset int64 = 1024
	// superblockSize is the on-disk size of the superblock structure
	superblockSize int64 = 1024
	// superblockSignature is the signature for every superblock
	superblockSignature uint16 = 0xef53
	// optional states for the filesystem
	fsStateCleanlyUnmounted filesystemState = 0x0001
	fsStateErrors           filesystemState = 0x0002
	fsStateOrphansRecovered filesystemState = 0x0004
	// how to handle errors
	errorsContinue        errorBehaviour = 1
	errorsRemountReadOnly errorBehaviour = 2
	errorsPanic           errorBehaviour = 3
	// oses
	osLinux   osFlag = 0
	osHurd    osFlag = 1
	osMasix   osFlag = 2
	osFreeBSD osFlag = 3
	osLites   osFlag = 4
	// hash algorithms for htree directory entries
	hashLegacy          hashAlgorithm = 0x0
	hashHalfMD4         hashAlgorithm = 0x1
	hashTea             hashAlgorithm = 0x2
	hashLegacyUnsigned  hashAlgorithm = 0x3
	hashHalfMD4Unsigned hashAlgorithm = 0x4
	hashTeaUnsigned     hashAlgorithm = 0x5
	hashSiphash         hashAlgorithm = 0x6
)

// superblock is the decoded filesystem-wide metadata record at byte 1024.
// Every later stage of the walk derives its geometry from here.
type superblock struct {
	inodeCount           uint32
	blockCount           uint32
	blockCountHi         uint32
	reservedBlocks       uint32
	freeBlocks           uint32
	freeInodes           uint32
	firstDataBlock       uint32
	logBlockSize         uint32
	blockSize            uint64
	obsoleteLogFragSize  uint32
	blocksPerGroup       uint32
	obsoleteFragsPerGrp  uint32
	inodesPerGroup       uint32
	mountTime            time.Time
	writeTime            time.Time
	mountCount           uint16
	mountsToFsck         uint16
	magic                uint16
	filesystemState      filesystemState
	errorBehaviour       errorBehaviour
	minorRevision        uint16
	lastCheck            time.Time
	checkInterval        uint32
	creatorOS            osFlag
	revisionLevel        uint32
	reservedBlocksUID    uint16
	reservedBlocksGID    uint16
	firstNonReservedIno  uint32
	inodeSize            uint16
	blockGroupNumber     uint16
	featureCompat        uint32
	featureIncompat      uint32
	featureROCompat      uint32
	uuid                 [16]byte
	volumeLabel          string
	lastMountedDirectory string
	algorithmUsageBitmap uint32
	preallocBlocks       byte
	preallocDirBlocks    byte
	reservedGDTBlocks    uint16
	journalUUID          [16]byte
	journalInode         uint32
	journalDevice        uint32
	orphanedInodesStart  uint32
	hashTreeSeed         [4]uint32
	hashVersion          hashAlgorithm
	journalBackupType    byte
	groupDescriptorSize  uint16
	defaultMountOptions  uint32
	firstMetablockGroup  uint32
	mkfsTime             time.Time
	minExtraInodeSize    uint16
	wantExtraInodeSize   uint16
	miscFlags            uint32
	raidStride           uint16
	mmpInterval          uint16
	mmpBlock             uint64
	raidStripeWidth      uint32
	logGroupsPerFlex     byte
	totalKBWritten       uint64
}

// superblockFromBytes decodes a superblock from its 1024 on-disk bytes.
// A wrong signature does not stop the decode: the walk is best-effort and the
// validity decision belongs to whoever reads the dump.
func superblockFromBytes(b []byte) (*superblock, error) {
	if len(b) < int(superblockSize) {
		return nil, fmt.Errorf("cannot read superblock from %d bytes instead of expected %d", len(b), superblockSize)
	}

	sb := superblock{}

	sb.inodeCount = binary.LittleEndian.Uint32(b[0x0:0x4])
	sb.blockCount = binary.LittleEndian.Uint32(b[0x4:0x8])
	sb.reservedBlocks = binary.LittleEndian.Uint32(b[0x8:0xc])
	sb.freeBlocks = binary.LittleEndian.Uint32(b[0xc:0x10])
	sb.freeInodes = binary.LittleEndian.Uint32(b[0x10:0x14])
	sb.firstDataBlock = binary.LittleEndian.Uint32(b[0x14:0x18])
	sb.logBlockSize = binary.LittleEndian.Uint32(b[0x18:0x1c])
	sb.blockSize = 1024 << sb.logBlockSize
	sb.obsoleteLogFragSize = binary.LittleEndian.Uint32(b[0x1c:0x20])
	sb.blocksPerGroup = binary.LittleEndian.Uint32(b[0x20:0x24])
	sb.obsoleteFragsPerGrp = binary.LittleEndian.Uint32(b[0x24:0x28])
	sb.inodesPerGroup = binary.LittleEndian.Uint32(b[0x28:0x2c])
	sb.mountTime = time.Unix(int64(binary.LittleEndian.Uint32(b[0x2c:0x30])), 0).UTC()
	sb.writeTime = time.Unix(int64(binary.LittleEndian.Uint32(b[0x30:0x34])), 0).UTC()
	sb.mountCount = binary.LittleEndian.Uint16(b[0x34:0x36])
	sb.mountsToFsck = binary.LittleEndian.Uint16(b[0x36:0x38])
	sb.magic = binary.LittleEndian.Uint16(b[0x38:0x3a])
	sb.filesystemState = filesystemState(binary.LittleEndian.Uint16(b[0x3a:0x3c]))
	sb.errorBehaviour = errorBehaviour(binary.LittleEndian.Uint16(b[0x3c:0x3e]))
	sb.minorRevision = binary.LittleEndian.Uint16(b[0x3e:0x40])
	sb.lastCheck = time.Unix(int64(binary.LittleEndian.Uint32(b[0x40:0x44])), 0).UTC()
	sb.checkInterval = binary.LittleEndian.Uint32(b[0x44:0x48])
	sb.creatorOS = osFlag(binary.LittleEndian.Uint32(b[0x48:0x4c]))
	sb.revisionLevel = binary.LittleEndian.Uint32(b[0x4c:0x50])
	sb.reservedBlocksUID = binary.LittleEndian.Uint16(b[0x50:0x52])
	sb.reservedBlocksGID = binary.LittleEndian.Uint16(b[0x52:0x54])

	sb.firstNonReservedIno = binary.LittleEndian.Uint32(b[0x54:0x58])
	sb.inodeSize = binary.LittleEndian.Uint16(b[0x58:0x5a])
	sb.blockGroupNumber = binary.LittleEndian.Uint16(b[0x5a:0x5c])
	sb.featureCompat = binary.LittleEndian.Uint32(b[0x5c:0x60])
	sb.featureIncompat = binary.LittleEndian.Uint32(b[0x60:0x64])
	sb.featureROCompat = binary.LittleEndian.Uint32(b[0x64:0x68])

	copy(sb.uuid[:], b[0x68:0x78])
	sb.volumeLabel = trimNulls(b[0x78:0x88])
	sb.lastMountedDirectory = trimNulls(b[0x88:0xc8])
	sb.algorithmUsageBitmap = binary.LittleEndian.Uint32(b[0xc8:0xcc])

	sb.preallocBlocks = b[0xcc]
	sb.preallocDirBlocks = b[0xcd]
	sb.reservedGDTBlocks = binary.LittleEndian.Uint16(b[0xce:0xd0])

	copy(sb.journalUUID[:], b[0xd0:0xe0])
	sb.journalInode = binary.LittleEndian.Uint32(b[0xe0:0xe4])
	sb.journalDevice = binary.LittleEndian.Uint32(b[0xe4:0xe8])
	sb.orphanedInodesStart = binary.LittleEndian.Uint32(b[0xe8:0xec])

	for i := 0; i < 4; i++ {
		sb.hashTreeSeed[i] = binary.LittleEndian.Uint32(b[0xec+4*i : 0xf0+4*i])
	}
	sb.hashVersion = hashAlgorithm(b[0xfc])
	sb.journalBackupType = b[0xfd]
	sb.groupDescriptorSize = binary.LittleEndian.Uint16(b[0xfe:0x100])

	sb.defaultMountOptions = binary.LittleEndian.Uint32(b[0x100:0x104])
	sb.firstMetablockGroup = binary.LittleEndian.Uint32(b[0x104:0x108])
	sb.mkfsTime = time.Unix(int64(binary.LittleEndian.Uint32(b[0x108:0x10c])), 0).UTC()

	sb.blockCountHi = binary.LittleEndian.Uint32(b[0x150:0x154])
	sb.minExtraInodeSize = binary.LittleEndian.Uint16(b[0x15c:0x15e])
	sb.wantExtraInodeSize = binary.LittleEndian.Uint16(b[0x15e:0x160])
	sb.miscFlags = binary.LittleEndian.Uint32(b[0x160:0x164])
	sb.raidStride = binary.LittleEndian.Uint16(b[0x164:0x166])
	sb.mmpInterval = binary.LittleEndian.Uint16(b[0x166:0x168])
	sb.mmpBlock = binary.LittleEndian.Uint64(b[0x168:0x170])
	sb.raidStripeWidth = binary.LittleEndian.Uint32(b[0x170:0x174])
	sb.logGroupsPerFlex = b[0x174]
	sb.totalKBWritten = binary.LittleEndian.Uint64(b[0x178:0x180])

	return &sb, nil
}

// is64Bit reports whether group descriptors carry the wide high halves.
func (sb *superblock) is64Bit() bool {
	return sb.featureIncompat&incompatFeature64Bit == incompatFeature64Bit
}

// descriptorStride is the group descriptor table stride in bytes.
func (sb *superblock) descriptorStride() uint32 {
	if sb.is64Bit() && sb.groupDescriptorSize > 32 {
		return 64
	}
	return 32
}

// groupCount is how many block groups the volume declares.
func (sb *superblock) groupCount() uint32 {
	if sb.blocksPerGroup == 0 {
		return 0
	}
	return (sb.blockCount + sb.blocksPerGroup - 1) / sb.blocksPerGroup
}

func (sb *superblock) dump(w io.Writer) {
	fmt.Fprintf(w, "Total Inodes: %d\n", sb.inodeCount)
	fmt.Fprintf(w, "Total Blocks: %d\n", sb.blockCount)
	fmt.Fprintf(w, "Reserved Blocks: %d\n", sb.reservedBlocks)
	fmt.Fprintf(w, "Free Blocks: %d\n", sb.freeBlocks)
	fmt.Fprintf(w, "Free Inodes: %d\n", sb.freeInodes)
	fmt.Fprintf(w, "First Data Block: %d\n", sb.firstDataBlock)
	fmt.Fprintf(w, "Log Block Size: %d\n", sb.logBlockSize)
	fmt.Fprintf(w, "Block Size: %d\n", sb.blockSize)
	fmt.Fprintf(w, "Obsolete Log Fragment Size: %d\n", sb.obsoleteLogFragSize)
	fmt.Fprintf(w, "Blocks per Group: %d\n", sb.blocksPerGroup)
	fmt.Fprintf(w, "Obsolete Fragments per Group: %d\n", sb.obsoleteFragsPerGrp)
	fmt.Fprintf(w, "Inodes per Group: %d\n", sb.inodesPerGroup)
	fmt.Fprintf(w, "Mount Time: %s\n", formatTime(sb.mountTime))
	fmt.Fprintf(w, "Write Time: %s\n", formatTime(sb.writeTime))
	fmt.Fprintf(w, "Mount Count: %d\n", sb.mountCount)
	fmt.Fprintf(w, "Max Mount Count: %d\n", sb.mountsToFsck)
	fmt.Fprintf(w, "Magic Number: %#x\n", sb.magic)
	fmt.Fprintf(w, "State: %s\n", sb.filesystemState.name())
	fmt.Fprintf(w, "Errors: %s\n", sb.errorBehaviour.name())
	fmt.Fprintf(w, "Minor Revision Level: %d\n", sb.minorRevision)
	fmt.Fprintf(w, "Last Check: %s\n", formatTime(sb.lastCheck))
	fmt.Fprintf(w, "Check Interval: %d\n", sb.checkInterval)
	fmt.Fprintf(w, "Creator OS: %s\n", sb.creatorOS.name())
	fmt.Fprintf(w, "Revision Level: %s\n", revisionName(sb.revisionLevel))
	fmt.Fprintf(w, "Default Reserved UID: %d\n", sb.reservedBlocksUID)
	fmt.Fprintf(w, "Default Reserved GID: %d\n", sb.reservedBlocksGID)
	fmt.Fprintf(w, "First Inode: %d\n", sb.firstNonReservedIno)
	fmt.Fprintf(w, "Inode Size: %d\n", sb.inodeSize)
	fmt.Fprintf(w, "Block Group Number: %d\n", sb.blockGroupNumber)
	fmt.Fprintf(w, "Compatible Features:%s\n", featureNames(sb.featureCompat, compatFeatureNames))
	fmt.Fprintf(w, "Incompatible Features:%s\n", featureNames(sb.featureIncompat, incompatFeatureNames))
	fmt.Fprintf(w, "Read-Only Compatible Features:%s\n", featureNames(sb.featureROCompat, roCompatFeatureNames))
	fmt.Fprintf(w, "UUID: %s\n", hexPairs(sb.uuid[:]))
	if u, err := uuid.FromBytes(sb.uuid[:]); err == nil {
		fmt.Fprintf(w, "UUID (canonical): %s\n", u.String())
	}
	fmt.Fprintf(w, "Volume Name: %s\n", sb.volumeLabel)
	fmt.Fprintf(w, "Last Mounted: %s\n", sb.lastMountedDirectory)
	fmt.Fprintf(w, "Algorithm Usage Bitmap: %d\n", sb.algorithmUsageBitmap)
	fmt.Fprintf(w, "Preallocated Blocks: %d\n", sb.preallocBlocks)
	fmt.Fprintf(w, "Preallocated Directory Blocks: %d\n", sb.preallocDirBlocks)
	fmt.Fprintf(w, "Reserved GDT Blocks: %d\n", sb.reservedGDTBlocks)
	fmt.Fprintf(w, "Journal UUID: %s\n", hexPairs(sb.journalUUID[:]))
	fmt.Fprintf(w, "Journal Inode: %d\n", sb.journalInode)
	fmt.Fprintf(w, "Journal Device: %d\n", sb.journalDevice)
	fmt.Fprintf(w, "Last Orphan: %d\n", sb.orphanedInodesStart)
	fmt.Fprintf(w, "HTREE Hash Seed: %08x %08x %08x %08x\n", sb.hashTreeSeed[0], sb.hashTreeSeed[1], sb.hashTreeSeed[2], sb.hashTreeSeed[3])
	fmt.Fprintf(w, "Default Hash Version: %s\n", sb.hashVersion.name())
	fmt.Fprintf(w, "Journal Backup Type: %d\n", sb.journalBackupType)
	fmt.Fprintf(w, "Descriptor Size: %d\n", sb.groupDescriptorSize)
	fmt.Fprintf(w, "Default Mount Options:%s\n", featureNames(sb.defaultMountOptions, mountOptionNames))
	fmt.Fprintf(w, "First Meta Block Group: %d\n", sb.firstMetablockGroup)
	fmt.Fprintf(w, "MKFS Time: %s\n", formatTime(sb.mkfsTime))
	fmt.Fprintf(w, "Blocks Count Hi: %d\n", sb.blockCountHi)
	fmt.Fprintf(w, "Min Extra Inode Size: %d\n", sb.minExtraInodeSize)
	fmt.Fprintf(w, "Want Extra Inode Size: %d\n", sb.wantExtraInodeSize)
	fmt.Fprintf(w, "Flags:%s\n", featureNames(sb.miscFlags, miscFlagNames))
	fmt.Fprintf(w, "RAID Stride: %d\n", sb.raidStride)
	fmt.Fprintf(w, "MMP Interval: %d\n", sb.mmpInterval)
	fmt.Fprintf(w, "MMP Block: %d\n", sb.mmpBlock)
	fmt.Fprintf(w, "RAID Stripe Width: %d\n", sb.raidStripeWidth)
	fmt.Fprintf(w, "Log Groups per Flex: %d\n", sb.logGroupsPerFlex)
	fmt.Fprintf(w, "KBytes Written: %d\n", sb.totalKBWritten)
}

func (s filesystemState) name() string {
	switch s {
	case fsStateCleanlyUnmounted:
		return "Valid FS"
	case fsStateErrors:
		return "Error FS"
	case fsStateOrphansRecovered:
		return "Orphan FS"
	}
	return fmt.Sprintf("Unknown (%d)", uint16(s))
}

func (e errorBehaviour) name() string {
	switch e {
	case errorsContinue:
		return "Continue"
	case errorsRemountReadOnly:
		return "Read-Only"
	case errorsPanic:
		return "Panic"
	}
	return fmt.Sprintf("Unknown (%d)", uint16(e))
}

func (o osFlag) name() string {
	switch o {
	case osLinux:
		return "Linux"
	case osHurd:
		return "Hurd"
	case osMasix:
		return "Masix"
	case osFreeBSD:
		return "FreeBSD"
	case osLites:
		return "Lites"
	}
	return fmt.Sprintf("Unknown (%d)", uint32(o))
}

func (h hashAlgorithm) name() string {
	switch h {
	case hashLegacy:
		return "Legacy"
	case hashHalfMD4:
		return "Half MD4"
	case hashTea:
		return "Tea"
	case hashLegacyUnsigned:
		return "Legacy Unsigned"
	case hashHalfMD4Unsigned:
		return "Unsigned,Half MD4"
	case hashTeaUnsigned:
		return "Unsigned,Tea"
	case hashSiphash:
		return "Splash"
	}
	return fmt.Sprintf("Unknown (%d)", byte(h))
}

func revisionName(rev uint32) string {
	switch rev {
	case 0:
		return "Good Old Rev"
	case 1:
		return "Dynamic Rev"
	}
	return fmt.Sprintf("Unknown (%d)", rev)
}

func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05")
}

// hexPairs renders raw bytes as space-separated hex byte pairs.
func hexPairs(b []byte) string {
	parts := make([]string, len(b))
	for i, c := range b {
		parts[i] = fmt.Sprintf("%02x", c)
	}
	return strings.Join(parts, " ")
}

// trimNulls decodes a fixed-width on-disk string, dropping trailing NULs.
func trimNulls(b []byte) string {
	return strings.TrimRight(string(b), "\x00")
}
