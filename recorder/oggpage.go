package recorder

import "encoding/binary"

const (
	pageHeaderTypeEndOfStream = 0x04

	pageHeaderTypeOffset = 5
	pageChecksumOffset   = 22
)

var oggChecksumTable = func() *[256]uint32 {
	var table [256]uint32
	const poly = 0x04c11db7

	for i := range table {
		r := uint32(i) << 24
		for j := 0; j < 8; j++ {
			if r&0x80000000 != 0 {
				r = (r << 1) ^ poly
			} else {
				r <<= 1
			}
		}
		table[i] = r
	}
	return &table
}()

// pageBuffer collects the pages an OggWriter emits. The writer hands over
// each page in a single Write call.
type pageBuffer [][]byte

func (b *pageBuffer) Write(p []byte) (int, error) {
	*b = append(*b, append([]byte(nil), p...))
	return len(p), nil
}

func (b pageBuffer) bytes() []byte {
	n := 0
	for _, page := range b {
		n += len(page)
	}
	out := make([]byte, 0, n)
	for _, page := range b {
		out = append(out, page...)
	}
	return out
}

// markEndOfStream sets the EOS flag on a complete page and rewrites its CRC.
func markEndOfStream(page []byte) {
	if len(page) <= pageChecksumOffset+4 {
		return
	}
	page[pageHeaderTypeOffset] |= pageHeaderTypeEndOfStream
	binary.LittleEndian.PutUint32(page[pageChecksumOffset:], 0)
	binary.LittleEndian.PutUint32(page[pageChecksumOffset:], oggChecksum(page))
}

func oggChecksum(page []byte) uint32 {
	var crc uint32
	for _, b := range page {
		crc = (crc << 8) ^ oggChecksumTable[byte(crc>>24)^b]
	}
	return crc
}
