package ext4

import "encoding/binary"

// The classic pre-extent block map: 12 direct slots, then one single, one
// double and one triple indirect slot. Indirect blocks are arrays of
// little-endian u32 block numbers; a zero entry ends the run.
const (
	directBlocks       = 12
	singleIndirectSlot = 12
	doubleIndirectSlot = 13
	tripleIndirectSlot = 14
)

// collectMappedBlocks resolves the legacy block map in an inode's block area
// to the ordered list of data block numbers. maxBlocks bounds the walk to the
// file's declared size so a corrupt chain cannot run away.
func (fs *Walker) collectMappedBlocks(area []byte, maxBlocks uint64) []uint64 {
	var out []uint64
	if maxBlocks == 0 {
		return out
	}

	slots := make([]uint32, 15)
	for i := range slots {
		slots[i] = binary.LittleEndian.Uint32(area[4*i : 4*i+4])
	}

	// a zero direct slot is a hole, not a terminator
	for i := 0; i < directBlocks && uint64(len(out)) < maxBlocks; i++ {
		if slots[i] != 0 {
			out = append(out, uint64(slots[i]))
		}
	}
	out = fs.collectIndirect(uint64(slots[singleIndirectSlot]), 1, out, maxBlocks)
	out = fs.collectIndirect(uint64(slots[doubleIndirectSlot]), 2, out, maxBlocks)
	out = fs.collectIndirect(uint64(slots[tripleIndirectSlot]), 3, out, maxBlocks)
	return out
}

// collectIndirect walks one indirect chain of the given level, appending data
// block numbers until a zero entry or the size bound is reached.
func (fs *Walker) collectIndirect(block uint64, level int, out []uint64, maxBlocks uint64) []uint64 {
	if block == 0 || uint64(len(out)) >= maxBlocks {
		return out
	}
	b := fs.block(block)
	if b == nil {
		return out
	}
	for i := 0; i+4 <= len(b) && uint64(len(out)) < maxBlocks; i += 4 {
		entry := binary.LittleEndian.Uint32(b[i : i+4])
		if entry == 0 {
			return out
		}
		if level == 1 {
			out = append(out, uint64(entry))
			continue
		}
		out = fs.collectIndirect(uint64(entry), level-1, out, maxBlocks)
	}
	return out
}
