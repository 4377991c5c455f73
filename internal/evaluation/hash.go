package evaluation

import (
	"github.com/spaolacci/murmur3"
)

// Hash32 returns the murmur3 x86 32-bit hash (seed 0) of the UTF-8 bytes of s.
//
// The algorithm is frozen: already bucketed users depend on every bit of it,
// across every SDK that evaluates the same flags.
func Hash32(s string) uint32 {
	return murmur3.Sum32([]byte(s))
}
