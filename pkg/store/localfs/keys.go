package localfs

import "github.com/oneconcern/vkv/pkg/model"

var (
	branchPref   = [7]byte{'b', 'r', 'a', 'n', 'c', 'h', ':'}
	tagPref      = [4]byte{'t', 'a', 'g', ':'}
	snapshotPref = [9]byte{'s', 'n', 'a', 'p', 's', 'h', 'o', 't', ':'}
)

func prefixed(prefix []byte, key string) []byte {
	k := make([]byte, 0, len(prefix)+len(key))
	return append(append(k, prefix...), key...)
}

func branchKey(name string) []byte {
	return prefixed(branchPref[:], name)
}

func tagKey(name string) []byte {
	return prefixed(tagPref[:], name)
}

func snapshotKey(id model.SnapshotID) []byte {
	return prefixed(snapshotPref[:], string(id))
}
