package hashroute

import (
	"encoding/binary"
	"hash/fnv"
	"strings"
)

// PartitionCount is the number of worker partitions keys are spread over.
const PartitionCount = 25

// CanonicalizeKey normalizes incoming keys before hashing.
func CanonicalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

func PartitionForKey(key string) int {
	return int(Sum64([]byte(CanonicalizeKey(key))) % PartitionCount)
}

// Sum64 is the stable 64-bit hash every route is derived from.
func Sum64(b []byte) uint64 {
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}

// Shard maps an entity id onto one of shards buckets. shards <= 1 always
// yields 0.
func Shard(id uint64, shards int) int {
	if shards <= 1 {
		return 0
	}
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], id)
	return int(Sum64(b[:]) % uint64(shards))
}
