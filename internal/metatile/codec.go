// Package metatile reads and writes packed metatile buffers.
//
// A buffer is laid out as
//
//	"META" | count | x | y | z | count × (offset, size) | tile data
//
// with every integer a little-endian uint32. Offsets are absolute from the
// start of the buffer and the index is ordered lx*Size + ly.
package metatile

import (
	"encoding/binary"

	"tilecache/internal/tile"
)

const Size = tile.MetatileSize

const (
	magic       = "META"
	headerSize  = 20
	entrySize   = 8
	entryCount  = Size * Size
	indexOffset = headerSize
	dataOffset  = headerSize + entryCount*entrySize
)

type entry struct {
	offset uint32
	size   uint32
}

// View addresses the subtiles of a decoded buffer without copying it.
// A corrupt view reports every subtile as missing.
type View struct {
	buf     []byte
	format  tile.Format
	x, y, z uint32
	entries []entry
	corrupt bool
}

// Decode validates buf and indexes its subtiles. It never fails: malformed
// input yields a corrupt View.
func Decode(buf []byte, format tile.Format) *View {
	v := &View{buf: buf, format: format}
	if len(buf) < dataOffset || string(buf[:4]) != magic {
		v.corrupt = true
		return v
	}
	if binary.LittleEndian.Uint32(buf[4:8]) != entryCount {
		v.corrupt = true
		return v
	}
	v.x = binary.LittleEndian.Uint32(buf[8:12])
	v.y = binary.LittleEndian.Uint32(buf[12:16])
	v.z = binary.LittleEndian.Uint32(buf[16:20])

	v.entries = make([]entry, entryCount)
	for i := range v.entries {
		p := indexOffset + i*entrySize
		e := entry{
			offset: binary.LittleEndian.Uint32(buf[p : p+4]),
			size:   binary.LittleEndian.Uint32(buf[p+4 : p+8]),
		}
		end := uint64(e.offset) + uint64(e.size)
		if e.offset < dataOffset || end > uint64(len(buf)) {
			v.corrupt = true
			v.entries = nil
			return v
		}
		v.entries[i] = e
	}
	return v
}

func (v *View) Corrupt() bool {
	return v.corrupt
}

func (v *View) Format() tile.Format {
	return v.format
}

// Origin returns the batch origin recorded in the buffer header.
func (v *View) Origin() (x, y, z uint) {
	return uint(v.x), uint(v.y), uint(v.z)
}

// Lookup returns the bytes of the subtile at local offset (lx, ly). ok is
// false when the offset is out of range or the buffer is corrupt.
func (v *View) Lookup(lx, ly uint) (data []byte, ok bool) {
	if v.corrupt || lx >= Size || ly >= Size {
		return nil, false
	}
	e := v.entries[lx*Size+ly]
	return v.buf[e.offset : e.offset+e.size : e.offset+e.size], true
}

// Get is Lookup without the presence flag.
func (v *View) Get(lx, ly uint) []byte {
	data, _ := v.Lookup(lx, ly)
	return data
}

// Encode packs tiles[lx][ly] into a buffer whose header records origin.
func Encode(origin tile.Coordinate, tiles [Size][Size][]byte) []byte {
	total := dataOffset
	for lx := range tiles {
		for ly := range tiles[lx] {
			total += len(tiles[lx][ly])
		}
	}

	buf := make([]byte, dataOffset, total)
	copy(buf, magic)
	binary.LittleEndian.PutUint32(buf[4:8], entryCount)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(origin.X))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(origin.Y))
	binary.LittleEndian.PutUint32(buf[16:20], uint32(origin.Z))

	for lx := 0; lx < Size; lx++ {
		for ly := 0; ly < Size; ly++ {
			p := indexOffset + (lx*Size+ly)*entrySize
			binary.LittleEndian.PutUint32(buf[p:p+4], uint32(len(buf)))
			binary.LittleEndian.PutUint32(buf[p+4:p+8], uint32(len(tiles[lx][ly])))
			buf = append(buf, tiles[lx][ly]...)
		}
	}
	return buf
}
