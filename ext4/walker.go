package ext4

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Walker drives the top-down traversal of an ext4 image held in memory:
// superblock, group descriptor table, per-group inode tables, and for each
// surviving inode the xattr area, the extent tree and any directory content.
// The buffer is never written to; decoded records are transient.
type Walker struct {
	data         []byte
	out          io.Writer
	log          logrus.FieldLogger
	debug        bool
	verifyHashes bool

	sb        *superblock
	groups    []*groupDescriptor
	hashCheck *hashChecker
}

// Option configures a Walker.
type Option func(*Walker)

// WithOutput directs the dump somewhere other than standard output.
func WithOutput(w io.Writer) Option {
	return func(fs *Walker) { fs.out = w }
}

// WithLogger replaces the default logrus standard logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(fs *Walker) { fs.log = l }
}

// WithDebug also dumps inode slots whose size is zero.
func WithDebug(v bool) Option {
	return func(fs *Walker) { fs.debug = v }
}

// WithVerifyHashes recomputes HTREE directory hashes for every name found
// under a hash bucket and flags names below their bucket's lower bound.
func WithVerifyHashes(v bool) Option {
	return func(fs *Walker) { fs.verifyHashes = v }
}

// NewWalker wraps a raw partition image.
func NewWalker(data []byte, opts ...Option) *Walker {
	fs := &Walker{
		data: data,
		out:  os.Stdout,
		log:  logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(fs)
	}
	return fs
}

func (fs *Walker) linef(format string, args ...interface{}) {
	fmt.Fprintf(fs.out, format+"\n", args...)
}

func (fs *Walker) section(title string) {
	fmt.Fprintf(fs.out, "\n-----%s-----\n", title)
}

func (fs *Walker) header(title string) {
	fmt.Fprintf(fs.out, "\n\n%s\n\n", title)
}

// at returns n bytes at absolute offset off, clipped to the end of the
// image. nil means the offset itself is out of range.
func (fs *Walker) at(off, n uint64) []byte {
	size := uint64(len(fs.data))
	if off >= size || n == 0 {
		return nil
	}
	end := off + n
	if end > size || end < off {
		end = size
	}
	return fs.data[off:end]
}

// block returns the bytes of one filesystem block.
func (fs *Walker) block(n uint64) []byte {
	return fs.at(n*fs.sb.blockSize, fs.sb.blockSize)
}

// Walk runs the full dump. Structural anomalies inside the image are
// reported in the dump and skipped over; only an image too small to hold a
// superblock is an error.
func (fs *Walker) Walk() error {
	sbBytes := fs.at(uint64(superblockOffset), uint64(superblockSize))
	if int64(len(sbBytes)) < superblockSize {
		return fmt.Errorf("image of %d bytes cannot hold a superblock", len(fs.data))
	}
	sb, err := superblockFromBytes(sbBytes)
	if err != nil {
		return err
	}
	fs.sb = sb
	if sb.magic != superblockSignature {
		fs.log.Warnf("superblock magic is %#x, expected %#x; continuing anyway", sb.magic, superblockSignature)
	}
	if sb.blockSize == 0 || sb.blockSize > 65536 {
		fs.log.Warnf("implausible block size %d, assuming 4096", sb.blockSize)
		sb.blockSize = 4096
	}
	sb.dump(fs.out)
	fs.header("End of Superblock Parsing")

	groupCount := sb.groupCount()
	fs.linef("Total Block Groups: %d", groupCount)

	// the descriptor table occupies the block after the one holding the
	// superblock
	gdtBase := uint64(sb.firstDataBlock+1) * sb.blockSize
	stride := uint64(sb.descriptorStride())

	for i := uint32(0); i < groupCount; i++ {
		fs.header(fmt.Sprintf("Parsing Block Group %d:", i))
		b := fs.at(gdtBase+uint64(i)*stride, stride)
		if len(b) < groupDescriptorSize {
			fs.linef("Group descriptor %d is beyond the end of the image", i)
			break
		}
		gd, err := groupDescriptorFromBytes(b, i, stride == groupDescriptorSize64Bit)
		if err != nil {
			fs.linef("%v", err)
			break
		}
		gd.dump(fs.out)
		fs.dumpGroupBitmaps(gd)
		fs.groups = append(fs.groups, gd)
	}

	for g, gd := range fs.groups {
		fs.header(fmt.Sprintf("Parsing Inode Table for Block Group %d:", g))
		fs.log.Debugf("inode table for group %d at block %d", g, gd.inodeTable())
		fs.walkInodeTable(uint64(g), gd)
	}

	return nil
}

// dumpGroupBitmaps summarizes the group's on-disk allocation bitmaps next to
// the descriptor's own free counters.
func (fs *Walker) dumpGroupBitmaps(gd *groupDescriptor) {
	if bb := fs.block(gd.blockBitmap()); bb != nil {
		fs.linef("Block Bitmap In Use: %d of %d", bitmapInUse(bb, uint(fs.sb.blocksPerGroup)), fs.sb.blocksPerGroup)
	}
	if ib := fs.block(gd.inodeBitmap()); ib != nil {
		fs.linef("Inode Bitmap In Use: %d of %d", bitmapInUse(ib, uint(fs.sb.inodesPerGroup)), fs.sb.inodesPerGroup)
	}
}

// walkInodeTable iterates the fixed-size inode records of one group and
// dispatches the per-inode stages for every slot that survives the skip
// policy.
func (fs *Walker) walkInodeTable(group uint64, gd *groupDescriptor) {
	sb := fs.sb
	inodeSize := uint64(sb.inodeSize)
	if inodeSize == 0 {
		fs.linef("Inode size 0 in superblock, cannot walk inode table")
		return
	}
	tableOffset := gd.inodeTable() * sb.blockSize

	for i := uint64(0); i < uint64(sb.inodesPerGroup); i++ {
		record := fs.at(tableOffset+i*inodeSize, inodeSize)
		if uint64(len(record)) < inodeSize || len(record) < inodeCoreSize {
			fs.linef("Inode table slot %d is beyond the end of the image", i)
			return
		}

		// skip policy: an empty size is noise unless debugging, and a
		// slot with no owner and an empty block array was never used
		sizeLo := binary.LittleEndian.Uint32(record[0x4:0x8])
		uid := binary.LittleEndian.Uint16(record[0x2:0x4])
		blockHead := binary.LittleEndian.Uint32(record[0x28:0x2c])
		if sizeLo == 0 && !fs.debug {
			continue
		}
		if uid == 0 && blockHead == 0 {
			continue
		}

		number := group*uint64(sb.inodesPerGroup) + i + 1
		fs.header(fmt.Sprintf("Parsing Inode %d:", number))
		in, err := inodeFromBytes(record, number)
		if err != nil {
			fs.linef("%v", err)
			continue
		}
		in.dump(fs.out)

		fs.section("Parsing Extended Attributes")
		fs.dumpXattrs(record)
		fs.section("End of Extended Attributes")

		fs.section("Parsing Extent Tree")
		if in.usesExtents() {
			fs.dumpExtentTree(in.block[:], func(extent) {})
		} else {
			fs.dumpBlockMap(in)
		}
		fs.section("End of Extent Tree")

		if in.isDirectory() {
			if in.usesHashTree() {
				fs.section("Parsing Hash Tree Directory")
				fs.walkHashTree(in)
				fs.section("End of Hash Tree Directory")
			} else {
				fs.section("Parsing Directory Entries")
				fs.walkLinearDirectory(in)
				fs.section("End of Directory Entries")
			}
		}
	}
}

// dumpBlockMap reports a legacy block-map inode's resolved data blocks.
func (fs *Walker) dumpBlockMap(in *inode) {
	maxBlocks := (in.size() + fs.sb.blockSize - 1) / fs.sb.blockSize
	blocks := fs.collectMappedBlocks(in.block[:], maxBlocks)
	fs.linef("Legacy block map, %d mapped blocks: %v", len(blocks), blocks)
}

// walkLinearDirectory feeds each run of directory data blocks to the linear
// record walker. Extent directories walk each leaf extent as one region;
// legacy-map directories walk block by block.
func (fs *Walker) walkLinearDirectory(in *inode) {
	if in.usesExtents() {
		for _, e := range fs.collectExtents(in.block[:]) {
			region := fs.at(e.start()*fs.sb.blockSize, uint64(e.length)*fs.sb.blockSize)
			if region == nil {
				fs.linef("Directory extent at block %d is out of range", e.start())
				continue
			}
			fs.walkLinearRegion(region)
		}
		return
	}
	maxBlocks := (in.size() + fs.sb.blockSize - 1) / fs.sb.blockSize
	for _, blk := range fs.collectMappedBlocks(in.block[:], maxBlocks) {
		region := fs.block(blk)
		if region == nil {
			fs.linef("Directory block %d is out of range", blk)
			continue
		}
		fs.walkLinearRegion(region)
	}
}
