package ext4

import (
	"encoding/binary"
	"encoding/hex"
	"unicode/utf8"
)

const (
	// dirEntryHeaderLength is the fixed prefix of every dir_entry_2 record
	dirEntryHeaderLength = 8
	// maxDirEntryLength is header plus the 255-byte name ceiling; anything
	// larger on disk is treated as damage
	maxDirEntryLength = 263
	// zeroRunLength is how many leading zero bytes mark the end of a
	// directory's usable records
	zeroRunLength = 19
)

// dirEntry is one variable-length dir_entry_2 record.
type dirEntry struct {
	inode    uint32
	recLen   uint16
	nameLen  uint8
	fileType uint8
	name     []byte
}

// dirEntryAt decodes the record starting at off inside region. The name is
// clipped to the region; a record whose header crosses the end decodes as all
// zeroes so the corruption rules can classify it.
func dirEntryAt(region []byte, off int) dirEntry {
	var de dirEntry
	if off < 0 || off+dirEntryHeaderLength > len(region) {
		return de
	}
	b := region[off:]
	de.inode = binary.LittleEndian.Uint32(b[0x0:0x4])
	de.recLen = binary.LittleEndian.Uint16(b[0x4:0x6])
	de.nameLen = b[0x6]
	de.fileType = b[0x7]
	end := dirEntryHeaderLength + int(de.nameLen)
	if end > len(b) {
		end = len(b)
	}
	de.name = b[dirEntryHeaderLength:end]
	return de
}

// decodeName renders a directory-entry or xattr name: UTF-8 when valid,
// otherwise plain hex.
func decodeName(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	return hex.EncodeToString(b)
}

// align4 rounds a record length up to the 4-byte grid directory records
// live on.
func align4(n int) int {
	if r := n % 4; r != 0 {
		n += 4 - r
	}
	return n
}

// isZeroRun reports whether the zeroRunLength bytes at off are all zero,
// the end-of-directory marker. A shorter tail counts when fully zero.
func isZeroRun(region []byte, off int) bool {
	end := off + zeroRunLength
	if end > len(region) {
		end = len(region)
	}
	if off >= end {
		return true
	}
	for _, c := range region[off:end] {
		if c != 0 {
			return false
		}
	}
	return true
}

func (fs *Walker) emitDirEntry(de dirEntry) {
	fs.linef("Inode: %d", de.inode)
	fs.linef("Record Length: %d", de.recLen)
	fs.linef("Name Length: %d", de.nameLen)
	fs.linef("File Type: %d (%s)", de.fileType, fileTypeName(de.fileType))
	fs.linef("Name: %s", decodeName(de.name))

	if c := fs.hashCheck; c != nil && de.nameLen > 0 {
		name := string(de.name)
		if name != "." && name != ".." {
			hash, minor := dirhash(de.name, c.version, c.seed)
			fs.linef("Computed Hash: %#08x (minor %#08x)", hash, minor)
			if hash < c.lowerBound {
				fs.linef("Hash below bucket lower bound %#08x", c.lowerBound)
			}
		}
	}
}

// walkLinearRegion iterates the dir_entry_2 records of a directory data
// region. The advancement rules below are the contract for traversing
// partially damaged directories without stalling: each clause either emits a
// record and steps over it, or classifies a damaged header and steps past it
// by a conservative amount.
func (fs *Walker) walkLinearRegion(region []byte) {
	maxInode := fs.sb.inodeCount
	firstIno := fs.sb.firstNonReservedIno

	for off := 0; off < len(region); {
		if isZeroRun(region, off) {
			return
		}
		de := dirEntryAt(region, off)

		switch {
		case de.nameLen == 2 && string(de.name) == "..":
			fs.emitDirEntry(de)
			off += 8
		case de.inode == 0 && de.recLen > maxDirEntryLength && de.nameLen == 0:
			off += 4
		case de.inode > maxInode && de.recLen == 0 && de.nameLen == 0:
			off += 4
		case de.inode == 0 && de.recLen == 12 && de.nameLen == 0:
			off += 12
		case de.recLen > maxDirEntryLength && de.inode > 0 && de.inode < firstIno:
			off += 8
		case de.fileType == 0:
			off += 8
		case de.nameLen == 0 && de.inode != 0:
			off += 8
		case de.recLen > maxDirEntryLength && de.nameLen == 0:
			off += 8
		case de.inode > maxInode:
			off += 4
		default:
			fs.emitDirEntry(de)
			// a rec_len too small to cover its own record cannot be
			// trusted to advance the scan
			step := int(de.recLen)
			if min := align4(dirEntryHeaderLength + int(de.nameLen)); step < min {
				step = min
			}
			off += step
		}
	}
}
