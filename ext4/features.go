package ext4

import (
	"fmt"
	"strings"
)

type feature uint32

// compatible, incompatible, and read-only compatible feature flags
const (
	compatFeatureDirectoryPreAllocate          feature = 0x1
	compatFeatureImagicInodes                  feature = 0x2
	compatFeatureHasJournal                    feature = 0x4
	compatFeatureExtendedAttributes            feature = 0x8
	compatFeatureReservedGDTBlocksForExpansion feature = 0x10
	compatFeatureDirectoryIndices              feature = 0x20

	incompatFeatureCompression                    feature = 0x1
	incompatFeatureDirectoryEntriesRecordFileType feature = 0x2
	incompatFeatureRecoveryNeeded                 feature = 0x4
	incompatFeatureSeparateJournalDevice          feature = 0x8
	incompatFeatureMetaBlockGroups                feature = 0x10
	incompatFeatureExtents                        feature = 0x40
	incompatFeature64Bit                          feature = 0x80
	incompatFeatureMultipleMountProtection        feature = 0x100
	incompatFeatureFlexBlockGroups                feature = 0x200
	incompatFeatureExtendedAttributeInodes        feature = 0x400
	incompatFeatureDataInDirectoryEntries         feature = 0x1000
	incompatFeatureMetadataChecksumSeed           feature = 0x2000
	incompatFeatureLargeDirectory                 feature = 0x4000
	incompatFeatureDataInInode                    feature = 0x8000
	incompatFeatureEncryptInodes                  feature = 0x10000
	incompatFeatureCasefold                       feature = 0x20000

	roCompatFeatureSparseSuperblock       feature = 0x1
	roCompatFeatureLargeFile              feature = 0x2
	roCompatFeatureBtreeDirectory         feature = 0x4
	roCompatFeatureHugeFile               feature = 0x8
	roCompatFeatureGDTChecksum            feature = 0x10
	roCompatFeatureLargeSubdirectoryCount feature = 0x20
	roCompatFeatureLargeInodes            feature = 0x40

	mountOptionDebug                    feature = 0x1
	mountOptionBSDGroups                feature = 0x2
	mountOptionUserXattr                feature = 0x4
	mountOptionACL                      feature = 0x8
	mountOptionUID16                    feature = 0x10
	mountOptionJournalData              feature = 0x20
	mountOptionJournalOrdered           feature = 0x40
	mountOptionNoBarrier                feature = 0x100
	mountOptionBlockValidity            feature = 0x200
	mountOptionDiscard                  feature = 0x400
	mountOptionDisableDelayedAllocation feature = 0x800

	miscFlagSignedDirectoryHash   feature = 0x1
	miscFlagUnsignedDirectoryHash feature = 0x2
	miscFlagTestFilesystem        feature = 0x4
	miscFlagIsSnapshot            feature = 0x10
	miscFlagFixSnapshot           feature = 0x20
	miscFlagFixExclude            feature = 0x40
)

// featureName binds one feature bit to the label used in the dump.
type featureName struct {
	bit  feature
	name string
}

var compatFeatureNames = []featureName{
	{compatFeatureDirectoryPreAllocate, "Directory Preallocation"},
	{compatFeatureImagicInodes, "Imagic Inodes"},
	{compatFeatureHasJournal, "Has Journal"},
	{compatFeatureExtendedAttributes, "Extended Attributes"},
	{compatFeatureReservedGDTBlocksForExpansion, "Resize Inode"},
	{compatFeatureDirectoryIndices, "Directory Index"},
}

var incompatFeatureNames = []featureName{
	{incompatFeatureCompression, "Compression"},
	{incompatFeatureDirectoryEntriesRecordFileType, "Filetype"},
	{incompatFeatureRecoveryNeeded, "Recover"},
	{incompatFeatureSeparateJournalDevice, "Journal Device"},
	{incompatFeatureMetaBlockGroups, "Meta Block Group"},
	{incompatFeatureExtents, "Extents"},
	{incompatFeature64Bit, "64-bit"},
	{incompatFeatureMultipleMountProtection, "MMP"},
	{incompatFeatureFlexBlockGroups, "Flex Block Group"},
	{incompatFeatureExtendedAttributeInodes, "EA Inode"},
	{incompatFeatureDataInDirectoryEntries, "Directory Data"},
	{incompatFeatureMetadataChecksumSeed, "Checksum Seed"},
	{incompatFeatureLargeDirectory, "Large Directory"},
	{incompatFeatureDataInInode, "Inline Data"},
	{incompatFeatureEncryptInodes, "Encrypted"},
	{incompatFeatureCasefold, "Casefold"},
}

var roCompatFeatureNames = []featureName{
	{roCompatFeatureSparseSuperblock, "Sparse Super"},
	{roCompatFeatureLargeFile, "Large File"},
	{roCompatFeatureBtreeDirectory, "Btree Directory"},
	{roCompatFeatureHugeFile, "Huge File"},
	{roCompatFeatureGDTChecksum, "GDT Checksum"},
	{roCompatFeatureLargeSubdirectoryCount, "Directory NLink"},
	{roCompatFeatureLargeInodes, "Extra ISize"},
}

var mountOptionNames = []featureName{
	{mountOptionDebug, "Debug"},
	{mountOptionBSDGroups, "BSD Groups"},
	{mountOptionUserXattr, "XATTR User"},
	{mountOptionACL, "ACL"},
	{mountOptionUID16, "UID16"},
	{mountOptionJournalData, "JMODE Data"},
	{mountOptionJournalOrdered, "JMODE Ordered"},
	{mountOptionNoBarrier, "No Barrier"},
	{mountOptionBlockValidity, "Block Validity"},
	{mountOptionDiscard, "Discard"},
	{mountOptionDisableDelayedAllocation, "No Delayed Allocation"},
}

var miscFlagNames = []featureName{
	{miscFlagSignedDirectoryHash, "Signed Directory Hash"},
	{miscFlagUnsignedDirectoryHash, "Unsigned Directory Hash"},
	{miscFlagTestFilesystem, "Test Filesystem"},
	{miscFlagIsSnapshot, "Snapshot"},
	{miscFlagFixSnapshot, "Fix Snapshot"},
	{miscFlagFixExclude, "Fix Exclude"},
}

// featureNames expands a bitfield into the concatenated names of its set
// bits. Bits with no known name are kept as a hex remainder so nothing is
// silently dropped from the dump.
func featureNames(flags uint32, table []featureName) string {
	var names []string
	known := uint32(0)
	for _, f := range table {
		known |= uint32(f.bit)
		if flags&uint32(f.bit) == uint32(f.bit) {
			names = append(names, f.name)
		}
	}
	if rest := flags &^ known; rest != 0 {
		names = append(names, fmt.Sprintf("Unknown(%#x)", rest))
	}
	if len(names) == 0 {
		return " (none)"
	}
	return " " + strings.Join(names, " | ")
}
