package coordination

import (
	"fmt"
	"hash/fnv"
	"slices"
	"sort"
)

// ConstructGroupID 拼接分区组ID：<prefix>-<id>。id 为空时返回空组（不分区）
func ConstructGroupID(prefix, id string) string {
	if id == "" {
		return ""
	}
	if prefix == "" {
		return id
	}
	return prefix + "-" + id
}

// HashOfSet 与顺序和重复无关的集合哈希
func HashOfSet(items []string) string {
	s := slices.Clone(items)
	sort.Strings(s)
	s = slices.Compact(s)

	h := fnv.New64a()
	for _, it := range s {
		_, _ = h.Write([]byte(it))
		_, _ = h.Write([]byte{0})
	}
	return fmt.Sprintf("%016x", h.Sum64())
}
