// Package dataset reads and writes point sets and search results.
//
// Binary point files start with a 16-byte little-endian header:
//
//	magic   [4]byte  "RTNN"
//	version uint16
//	codec   uint16   none, lz4 or zstd
//	count   uint64
//
// followed by count x, y, z float32 triples, compressed as a single block
// when the codec is not none. Result files use the magic "RTNR" and append a
// uint32 row width to the header; the payload is count*width uint32 ids.
//
// Files ending in .txt, .xyz or .csv are read as text with one point per
// line.
package dataset
