package coordination

import (
	"hash/fnv"
	"slices"
	"sort"
)

// HashRing 最高随机权重（rendezvous）哈希：item 归属于 hash(member, item) 最大的成员。
// 成员变化时只有离开/加入成员相关的元素会迁移
type HashRing struct {
	members []string
}

// NewHashRing 成员列表排序去重后构建
func NewHashRing(members []string) *HashRing {
	m := slices.Clone(members)
	sort.Strings(m)
	return &HashRing{members: slices.Compact(m)}
}

func (r *HashRing) Len() int { return len(r.members) }

// Owner 返回 item 的所有者，没有成员时返回空串
func (r *HashRing) Owner(item string) string {
	var (
		owner string
		best  uint64
	)
	for i, m := range r.members {
		if s := weight(m, item); i == 0 || s > best {
			owner, best = m, s
		}
	}
	return owner
}

func weight(member, item string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(member))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(item))
	return h.Sum64()
}
