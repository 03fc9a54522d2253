package ext4

import (
	"encoding/binary"
	"fmt"
	"io"
)

const (
	// xattrSignature marks an extended attribute region
	xattrSignature uint32 = 0xEA020000
	// xattrAreaOffset is where the attribute area starts inside the inode
	// record
	xattrAreaOffset = 160
	// xattrHeaderLength covers magic, refcount, blocks, hash and the four
	// reserved words
	xattrHeaderLength = 32
	// xattrEntrySkip is the gap between the header and the first entry in
	// the in-inode layout this walker reads
	xattrEntrySkip = 16
	// xattrEntryFixedLength is the fixed prefix of one entry before its name
	xattrEntryFixedLength = 16
)

// xattrHeader introduces the extended attribute area.
type xattrHeader struct {
	magic    uint32
	refcount uint32
	blocks   uint32
	hash     uint32
	reserved [4]uint32
}

// xattrEntry is one attribute: a name plus the location and size of its
// value.
type xattrEntry struct {
	nameLen    uint8
	nameIndex  uint8
	valueOffs  uint16
	valueBlock uint32
	valueSize  uint32
	hash       uint32
	name       []byte
}

func xattrHeaderFromBytes(b []byte) (*xattrHeader, error) {
	if len(b) < xattrHeaderLength {
		return nil, fmt.Errorf("cannot read xattr header from %d bytes instead of expected %d", len(b), xattrHeaderLength)
	}
	h := xattrHeader{
		magic:    binary.LittleEndian.Uint32(b[0x0:0x4]),
		refcount: binary.LittleEndian.Uint32(b[0x4:0x8]),
		blocks:   binary.LittleEndian.Uint32(b[0x8:0xc]),
		hash:     binary.LittleEndian.Uint32(b[0xc:0x10]),
	}
	for i := 0; i < 4; i++ {
		h.reserved[i] = binary.LittleEndian.Uint32(b[0x10+4*i : 0x14+4*i])
	}
	return &h, nil
}

func xattrEntryFromBytes(b []byte) (xattrEntry, bool) {
	if len(b) < xattrEntryFixedLength {
		return xattrEntry{}, false
	}
	e := xattrEntry{
		nameLen:    b[0x0],
		nameIndex:  b[0x1],
		valueOffs:  binary.LittleEndian.Uint16(b[0x2:0x4]),
		valueBlock: binary.LittleEndian.Uint32(b[0x4:0x8]),
		valueSize:  binary.LittleEndian.Uint32(b[0x8:0xc]),
		hash:       binary.LittleEndian.Uint32(b[0xc:0x10]),
	}
	end := xattrEntryFixedLength + int(e.nameLen)
	if end > len(b) {
		end = len(b)
	}
	e.name = b[xattrEntryFixedLength:end]
	return e, true
}

// isTerminator reports the all-zero entry header that ends the list.
func (e xattrEntry) isTerminator() bool {
	return e.nameLen == 0 && e.nameIndex == 0 && e.valueOffs == 0 && e.valueBlock == 0
}

func (h *xattrHeader) dump(w io.Writer) {
	fmt.Fprintf(w, "Magic: %#x\n", h.magic)
	fmt.Fprintf(w, "Refcount: %d\n", h.refcount)
	fmt.Fprintf(w, "Blocks: %d\n", h.blocks)
	fmt.Fprintf(w, "Hash: %d\n", h.hash)
	fmt.Fprintf(w, "Reserved: %v\n", h.reserved)
}

func (e xattrEntry) dump(w io.Writer) {
	fmt.Fprintf(w, "Name Length: %d\n", e.nameLen)
	fmt.Fprintf(w, "Name Index: %d\n", e.nameIndex)
	fmt.Fprintf(w, "Value Offset: %d\n", e.valueOffs)
	fmt.Fprintf(w, "Value Block: %d\n", e.valueBlock)
	fmt.Fprintf(w, "Value Size: %d\n", e.valueSize)
	fmt.Fprintf(w, "Hash: %d\n", e.hash)
	fmt.Fprintf(w, "Name: %s\n", decodeName(e.name))
}

// dumpXattrs walks the extended attribute area of one inode record. The
// header is dumped even when the magic does not match, as a diagnostic; the
// entry list is walked until the zero terminator or the end of the record.
func (fs *Walker) dumpXattrs(record []byte) {
	if len(record) < xattrAreaOffset+xattrHeaderLength {
		fs.linef("No room for extended attributes in %d-byte inode record", len(record))
		return
	}
	area := record[xattrAreaOffset:]
	hdr, err := xattrHeaderFromBytes(area)
	if err != nil {
		fs.linef("%v", err)
		return
	}
	hdr.dump(fs.out)
	if hdr.magic != xattrSignature {
		fs.linef("Invalid xattr magic %#x, entries may be garbage", hdr.magic)
	}

	off := xattrHeaderLength + xattrEntrySkip
	for off+xattrEntryFixedLength <= len(area) {
		e, ok := xattrEntryFromBytes(area[off:])
		if !ok || e.isTerminator() {
			return
		}
		e.dump(fs.out)
		off += align4(xattrEntryFixedLength + int(e.nameLen))
	}
}
