package grid

// Encode interleaves the low 21 bits of x, y and z into a 63-bit Morton code
// with x in the most significant position of every triple.
func Encode(x, y, z uint32) uint64 {
	return spread(x)<<2 | spread(y)<<1 | spread(z)
}

// Decode inverts Encode.
func Decode(code uint64) (x, y, z uint32) {
	return compact(code >> 2), compact(code >> 1), compact(code)
}

func spread(v uint32) uint64 {
	x := uint64(v) & 0x1fffff
	x = (x | x<<32) & 0x1f00000000ffff
	x = (x | x<<16) & 0x1f0000ff0000ff
	x = (x | x<<8) & 0x100f00f00f00f00f
	x = (x | x<<4) & 0x10c30c30c30c30c3
	x = (x | x<<2) & 0x1249249249249249
	return x
}

func compact(v uint64) uint32 {
	x := v & 0x1249249249249249
	x = (x | x>>2) & 0x10c30c30c30c30c3
	x = (x | x>>4) & 0x100f00f00f00f00f
	x = (x | x>>8) & 0x1f0000ff0000ff
	x = (x | x>>16) & 0x1f00000000ffff
	x = (x | x>>32) & 0x1fffff
	return uint32(x)
}
