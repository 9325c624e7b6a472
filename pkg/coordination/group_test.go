package coordination

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConstructGroupID(t *testing.T) {
	tests := []struct {
		prefix, id, want string
	}{
		{"central", "nova", "central-nova"},
		{"central-east", "nova", "central-east-nova"},
		{"central", "", ""},
		{"", "nova", "nova"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ConstructGroupID(tt.prefix, tt.id))
	}
}

func TestHashOfSetIsOrderIndependent(t *testing.T) {
	a := HashOfSet([]string{"vm-1", "vm-2", "vm-3"})
	assert.Equal(t, a, HashOfSet([]string{"vm-3", "vm-1", "vm-2"}))
	assert.Equal(t, a, HashOfSet([]string{"vm-3", "vm-1", "vm-2", "vm-1"}))
	assert.NotEqual(t, a, HashOfSet([]string{"vm-1", "vm-2"}))
	assert.NotEqual(t, HashOfSet([]string{"ab", "c"}), HashOfSet([]string{"a", "bc"}))
	assert.Len(t, a, 16)
}

func TestHashRingOwner(t *testing.T) {
	assert.Equal(t, "", NewHashRing(nil).Owner("x"))

	ring := NewHashRing([]string{"b", "a", "b"})
	assert.Equal(t, 2, ring.Len())
	owner := ring.Owner("x")
	assert.Contains(t, []string{"a", "b"}, owner)
	assert.Equal(t, owner, NewHashRing([]string{"a", "b"}).Owner("x"))

	// 新增成员只会抢走元素，不会在原成员之间迁移
	bigger := NewHashRing([]string{"a", "b", "c"})
	for _, it := range universe(100) {
		if o := bigger.Owner(it); o != "c" {
			assert.Equal(t, ring.Owner(it), o)
		}
	}
}
