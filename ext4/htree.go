package ext4

import (
	"encoding/binary"
	"fmt"
	"io"
)

const (
	// dxNodeHeaderLength covers the two pseudo-entries, the info area and
	// the limit/count/block fields every HTREE node begins with
	dxNodeHeaderLength = 0x28
	dxEntryLength      = 8
	htreeMaxLevels     = 3
)

// dxFakeEntry is one of the pseudo directory entries ("." and "..") kept at
// the front of HTREE nodes for compatibility with linear readers.
type dxFakeEntry struct {
	inode    uint32
	recLen   uint16
	nameLen  uint8
	fileType uint8
	name     [4]byte
}

// dxNode is the decoded header of a dx_root or interior HTREE node.
type dxNode struct {
	dot            dxFakeEntry
	dotDot         dxFakeEntry
	reservedZero   uint32
	hashVersion    hashAlgorithm
	infoLength     uint8
	indirectLevels uint8
	unusedFlags    uint8
	limit          uint16
	count          uint16
	block          uint32
}

// dxEntry is one hash bucket pointer.
type dxEntry struct {
	hash  uint32
	block uint32
}

func dxFakeEntryFromBytes(b []byte) dxFakeEntry {
	e := dxFakeEntry{
		inode:    binary.LittleEndian.Uint32(b[0x0:0x4]),
		recLen:   binary.LittleEndian.Uint16(b[0x4:0x6]),
		nameLen:  b[0x6],
		fileType: b[0x7],
	}
	copy(e.name[:], b[0x8:0xc])
	return e
}

func dxNodeFromBytes(b []byte) (*dxNode, error) {
	if len(b) < dxNodeHeaderLength {
		return nil, fmt.Errorf("cannot read HTREE node from %d bytes instead of expected %d", len(b), dxNodeHeaderLength)
	}
	n := dxNode{
		dot:            dxFakeEntryFromBytes(b[0x0:0xc]),
		dotDot:         dxFakeEntryFromBytes(b[0xc:0x18]),
		reservedZero:   binary.LittleEndian.Uint32(b[0x18:0x1c]),
		hashVersion:    hashAlgorithm(b[0x1c]),
		infoLength:     b[0x1d],
		indirectLevels: b[0x1e],
		unusedFlags:    b[0x1f],
		limit:          binary.LittleEndian.Uint16(b[0x20:0x22]),
		count:          binary.LittleEndian.Uint16(b[0x22:0x24]),
		block:          binary.LittleEndian.Uint32(b[0x24:0x28]),
	}
	return &n, nil
}

func (e dxFakeEntry) dump(w io.Writer) {
	fmt.Fprintf(w, "Inode: %d\n", e.inode)
	fmt.Fprintf(w, "Record Length: %d\n", e.recLen)
	fmt.Fprintf(w, "Name Length: %d\n", e.nameLen)
	fmt.Fprintf(w, "File Type: %d\n", e.fileType)
	fmt.Fprintf(w, "Name: %s\n", hexPairs(e.name[:]))
}

func (n *dxNode) dump(w io.Writer) {
	n.dot.dump(w)
	n.dotDot.dump(w)
	fmt.Fprintf(w, "Reserved Zero: %d\n", n.reservedZero)
	fmt.Fprintf(w, "Hash Version: %s\n", n.hashVersion.name())
	fmt.Fprintf(w, "Info Length: %d\n", n.infoLength)
	fmt.Fprintf(w, "Indirect Levels: %d\n", n.indirectLevels)
	fmt.Fprintf(w, "Unused Flags: %d\n", n.unusedFlags)
	fmt.Fprintf(w, "Limit: %d\n", n.limit)
	fmt.Fprintf(w, "Count: %d\n", n.count)
	fmt.Fprintf(w, "Block: %d\n", n.block)
}

// walkHashTree handles a directory whose content is HTREE-indexed. The
// dx_entry block numbers are logical block indices within the directory
// file, so the extent tree is first flattened into a logical-to-physical
// table, then the tree is descended bucket by bucket.
func (fs *Walker) walkHashTree(in *inode) {
	logical := fs.logicalBlocks(in)
	rootPhys, ok := logical[0]
	if !ok {
		fs.linef("HTREE root block is not mapped by the extent tree")
		return
	}
	b := fs.block(rootPhys)
	if b == nil {
		fs.linef("HTREE root block %d is out of range", rootPhys)
		return
	}
	root, err := dxNodeFromBytes(b)
	if err != nil {
		fs.linef("%v", err)
		return
	}
	root.dump(fs.out)

	levels := int(root.indirectLevels)
	if levels > htreeMaxLevels {
		fs.linef("Indirect level %d exceeds maximum %d, clamping", levels, htreeMaxLevels)
		levels = htreeMaxLevels
	}
	fs.walkDxEntries(b, root, levels, logical)
}

// walkDxEntries iterates the count dx_entries of one node and descends:
// interior levels decode another HTREE node, level zero runs the linear
// walker over the target data block.
func (fs *Walker) walkDxEntries(nodeBytes []byte, node *dxNode, level int, logical map[uint32]uint64) {
	count := int(node.count)
	if room := (len(nodeBytes) - dxNodeHeaderLength) / dxEntryLength; count > room {
		fs.linef("Entry count %d exceeds node capacity %d, clamping", count, room)
		count = room
	}

	for i := 0; i < count; i++ {
		off := dxNodeHeaderLength + i*dxEntryLength
		entry := dxEntry{
			hash:  binary.LittleEndian.Uint32(nodeBytes[off : off+4]),
			block: binary.LittleEndian.Uint32(nodeBytes[off+4 : off+8]),
		}
		fs.linef("Entry: %d", i)
		fs.linef("Hash: %d", entry.hash)
		fs.linef("Block: %d", entry.block)

		phys, ok := logical[entry.block]
		if !ok {
			fs.linef("Logical block %d is not mapped by the extent tree", entry.block)
			continue
		}
		target := fs.block(phys)
		if target == nil {
			fs.linef("Block %d is out of range", phys)
			continue
		}

		if level == 0 {
			if fs.verifyHashes {
				fs.hashCheck = &hashChecker{
					version:    node.hashVersion,
					seed:       fs.sb.hashTreeSeed,
					lowerBound: entry.hash,
				}
			}
			fs.walkLinearRegion(target)
			fs.hashCheck = nil
			continue
		}

		child, err := dxNodeFromBytes(target)
		if err != nil {
			fs.linef("%v", err)
			continue
		}
		child.dump(fs.out)
		fs.walkDxEntries(target, child, level-1, logical)
	}
}

// logicalBlocks flattens the extent tree of a directory inode into a
// logical-to-physical block table.
func (fs *Walker) logicalBlocks(in *inode) map[uint32]uint64 {
	m := make(map[uint32]uint64)
	for _, e := range fs.collectExtents(in.block[:]) {
		for k := uint16(0); k < e.length; k++ {
			m[e.fileBlock+uint32(k)] = e.start() + uint64(k)
		}
	}
	return m
}
