package ext4

// The ext4 directory hash family: the legacy rolling hash, a cut-down MD4
// transform and a TEA variant, each in signed and unsigned character
// flavours. These are the transforms the kernel keys HTREE buckets with;
// they are not interchangeable with any standard digest.

const (
	teaDelta uint32 = 0x9E3779B9
	mdfK1    uint32 = 0
	mdfK2    uint32 = 0o13240474631
	mdfK3    uint32 = 0o15666365641

	htreeEOF32 uint32 = (1 << 31) - 1
)

// hashChecker carries the declared hash parameters of the HTREE bucket the
// linear walker is currently inside, so emitted names can be checked against
// the bucket's lower bound.
type hashChecker struct {
	version    hashAlgorithm
	seed       [4]uint32
	lowerBound uint32
}

func teaTransform(buf [4]uint32, in []uint32) [4]uint32 {
	var sum uint32
	b0, b1 := buf[0], buf[1]
	a, b, c, d := in[0], in[1], in[2], in[3]

	for n := 16; n > 0; n-- {
		sum += teaDelta
		b0 += ((b1 << 4) + a) ^ (b1 + sum) ^ ((b1 >> 5) + b)
		b1 += ((b0 << 4) + c) ^ (b0 + sum) ^ ((b0 >> 5) + d)
	}

	buf[0] += b0
	buf[1] += b1
	return buf
}

// rol32 rotates a 32-bit value left.
func rol32(word uint32, shift uint) uint32 {
	return (word << (shift & 31)) | (word >> ((-shift) & 31))
}

// mdfF, mdfG and mdfH are the basic MD4 functions: selection, majority,
// parity.
func mdfF(x, y, z uint32) uint32 { return z ^ (x & (y ^ z)) }
func mdfG(x, y, z uint32) uint32 { return (x & y) + ((x ^ y) & z) }
func mdfH(x, y, z uint32) uint32 { return x ^ y ^ z }

func mdfRound(f func(uint32, uint32, uint32) uint32, a, b, c, d, x uint32, s uint) uint32 {
	return rol32(a+f(b, c, d)+x, s)
}

// halfMD4Transform is the cut-down MD4 transform ext4 uses; only 32 bits of
// the state end up in the hash.
func halfMD4Transform(buf [4]uint32, in []uint32) [4]uint32 {
	a, b, c, d := buf[0], buf[1], buf[2], buf[3]

	/* Round 1 */
	a = mdfRound(mdfF, a, b, c, d, in[0]+mdfK1, 3)
	d = mdfRound(mdfF, d, a, b, c, in[1]+mdfK1, 7)
	c = mdfRound(mdfF, c, d, a, b, in[2]+mdfK1, 11)
	b = mdfRound(mdfF, b, c, d, a, in[3]+mdfK1, 19)
	a = mdfRound(mdfF, a, b, c, d, in[4]+mdfK1, 3)
	d = mdfRound(mdfF, d, a, b, c, in[5]+mdfK1, 7)
	c = mdfRound(mdfF, c, d, a, b, in[6]+mdfK1, 11)
	b = mdfRound(mdfF, b, c, d, a, in[7]+mdfK1, 19)

	/* Round 2 */
	a = mdfRound(mdfG, a, b, c, d, in[1]+mdfK2, 3)
	d = mdfRound(mdfG, d, a, b, c, in[3]+mdfK2, 5)
	c = mdfRound(mdfG, c, d, a, b, in[5]+mdfK2, 9)
	b = mdfRound(mdfG, b, c, d, a, in[7]+mdfK2, 13)
	a = mdfRound(mdfG, a, b, c, d, in[0]+mdfK2, 3)
	d = mdfRound(mdfG, d, a, b, c, in[2]+mdfK2, 5)
	c = mdfRound(mdfG, c, d, a, b, in[4]+mdfK2, 9)
	b = mdfRound(mdfG, b, c, d, a, in[6]+mdfK2, 13)

	/* Round 3 */
	a = mdfRound(mdfH, a, b, c, d, in[3]+mdfK3, 3)
	d = mdfRound(mdfH, d, a, b, c, in[7]+mdfK3, 9)
	c = mdfRound(mdfH, c, d, a, b, in[2]+mdfK3, 11)
	b = mdfRound(mdfH, b, c, d, a, in[6]+mdfK3, 15)
	a = mdfRound(mdfH, a, b, c, d, in[1]+mdfK3, 3)
	d = mdfRound(mdfH, d, a, b, c, in[5]+mdfK3, 9)
	c = mdfRound(mdfH, c, d, a, b, in[0]+mdfK3, 11)
	b = mdfRound(mdfH, b, c, d, a, in[4]+mdfK3, 15)

	buf[0] += a
	buf[1] += b
	buf[2] += c
	buf[3] += d

	return buf
}

// dxHackHash is the old legacy hash.
func dxHackHash(name []byte, signed bool) uint32 {
	var hash uint32
	hash0, hash1 := uint32(0x12a3fe2d), uint32(0x37abe8f9)

	for i := len(name); i > 0; i-- {
		var c int
		if signed {
			c = int(int8(name[i-1]))
		} else {
			c = int(name[i-1])
		}
		hash = hash1 + (hash0 ^ uint32(c*7152373))

		if hash&0x80000000 != 0 {
			hash -= 0x7fffffff
		}
		hash1 = hash0
		hash0 = hash
	}
	return hash0 << 1
}

// str2hashbuf packs up to num words of the name into the transform input,
// padded with a length-derived constant.
func str2hashbuf(msg []byte, num int, signed bool) []uint32 {
	var buf [8]uint32
	size := len(msg)

	pad := uint32(size) | (uint32(size) << 8)
	pad |= pad << 16

	val := pad
	if size > num*4 {
		size = num * 4
	}
	var j int
	for i := 0; i < size; i++ {
		var c int
		if signed {
			c = int(int8(msg[i]))
		} else {
			c = int(msg[i])
		}
		val = uint32(c) + (val << 8)
		if (i % 4) == 3 {
			buf[j] = val
			val = pad
			num--
			j++
		}
	}
	num--
	if num >= 0 {
		buf[j] = val
		j++
	}
	for num--; num >= 0; num-- {
		buf[j] = pad
		j++
	}
	return buf[:]
}

// dirhash computes the major and minor hash of a directory entry name under
// the given declared hash version and superblock seed.
func dirhash(name []byte, version hashAlgorithm, seed [4]uint32) (uint32, uint32) {
	var hash, minorHash uint32
	buf := [4]uint32{0x67452301, 0xefcdab89, 0x98badcfe, 0x10325476}

	// an all-zero seed means the default initialisation vector
	for i, val := range seed {
		if val != 0 {
			buf[i] = val
		}
	}

	switch version {
	case hashLegacyUnsigned:
		hash = dxHackHash(name, false)
	case hashLegacy:
		hash = dxHackHash(name, true)
	case hashHalfMD4Unsigned:
		for i := 0; i < len(name); i += 32 {
			in := str2hashbuf(name[i:], 8, false)
			buf = halfMD4Transform(buf, in)
		}
		minorHash = buf[2]
		hash = buf[1]
	case hashHalfMD4:
		for i := 0; i < len(name); i += 32 {
			in := str2hashbuf(name[i:], 8, true)
			buf = halfMD4Transform(buf, in)
		}
		minorHash = buf[2]
		hash = buf[1]
	case hashTeaUnsigned:
		for i := 0; i < len(name); i += 16 {
			in := str2hashbuf(name[i:], 4, false)
			buf = teaTransform(buf, in)
		}
		hash = buf[0]
		minorHash = buf[1]
	case hashTea:
		for i := 0; i < len(name); i += 16 {
			in := str2hashbuf(name[i:], 4, true)
			buf = teaTransform(buf, in)
		}
		hash = buf[0]
		minorHash = buf[1]
	default:
		return 0, 0
	}
	hash &= ^uint32(1)
	if hash == (htreeEOF32 << 1) {
		hash = (htreeEOF32 - 1) << 1
	}
	return hash, minorHash
}
