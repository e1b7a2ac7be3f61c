package hashring

import (
	"crypto/md5"
	"fmt"
	"hash/crc32"
	"hash/fnv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Algorithm selects the function used to hash keys onto the ring.
type Algorithm int

const (
	HashDefault Algorithm = iota
	HashMD5
	HashCRC
	HashFNV1_64
	HashFNV1A_64
	HashFNV1_32
	HashFNV1A_32
	HashXXHash
)

var algorithmNames = map[Algorithm]string{
	HashDefault:  "default",
	HashMD5:      "md5",
	HashCRC:      "crc",
	HashFNV1_64:  "fnv1_64",
	HashFNV1A_64: "fnv1a_64",
	HashFNV1_32:  "fnv1_32",
	HashFNV1A_32: "fnv1a_32",
	HashXXHash:   "xxhash",
}

func (a Algorithm) String() string {
	if name, ok := algorithmNames[a]; ok {
		return name
	}
	return fmt.Sprintf("Algorithm(%d)", int(a))
}

// ParseAlgorithm maps a case-insensitive name to an Algorithm.
func ParseAlgorithm(name string) (Algorithm, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for a, n := range algorithmNames {
		if n == name {
			return a, nil
		}
	}
	return HashDefault, fmt.Errorf("%w: unknown hash algorithm %q", ErrInvalidOptions, name)
}

func (a Algorithm) sum(key string) uint32 {
	switch a {
	case HashMD5:
		return md5Point(md5.Sum([]byte(key)), 0)
	case HashCRC:
		return (crc32.ChecksumIEEE([]byte(key)) >> 16) & 0x7fff
	case HashFNV1_64:
		h := fnv.New64()
		h.Write([]byte(key))
		return uint32(h.Sum64())
	case HashFNV1A_64:
		h := fnv.New64a()
		h.Write([]byte(key))
		return uint32(h.Sum64())
	case HashFNV1_32:
		h := fnv.New32()
		h.Write([]byte(key))
		return h.Sum32()
	case HashFNV1A_32:
		h := fnv.New32a()
		h.Write([]byte(key))
		return h.Sum32()
	case HashXXHash:
		return uint32(xxhash.Sum64String(key))
	default:
		return oneAtATime(key)
	}
}

// ringPosition scales a key hash onto the full 32-bit ring. crc only yields
// 15 bits, which would otherwise all fall before the first ring point.
func (a Algorithm) ringPosition(h uint32) uint32 {
	if a == HashCRC {
		return h << 17
	}
	return h
}

// oneAtATime is Bob Jenkins' one-at-a-time hash.
func oneAtATime(key string) uint32 {
	var h uint32
	for i := 0; i < len(key); i++ {
		h += uint32(key[i])
		h += h << 10
		h ^= h >> 6
	}
	h += h << 3
	h ^= h >> 11
	h += h << 15
	return h
}

// md5Point reads the n-th little-endian uint32 out of an md5 digest.
func md5Point(digest [md5.Size]byte, n int) uint32 {
	return uint32(digest[3+n*4])<<24 |
		uint32(digest[2+n*4])<<16 |
		uint32(digest[1+n*4])<<8 |
		uint32(digest[n*4])
}
