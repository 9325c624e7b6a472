package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMeterMatcher(t *testing.T) {
	tests := []struct {
		name     string
		patterns []string
		match    []string
		reject   []string
	}{
		{name: "wildcard", patterns: []string{"*"}, match: []string{"a", "host.cpu"}},
		{name: "exact", patterns: []string{"a"}, match: []string{"a"}, reject: []string{"b", "a.b"}},
		{name: "prefix glob", patterns: []string{"host.*"}, match: []string{"host.cpu", "host.load"}, reject: []string{"hostcpu", "vm.cpu"}},
		{name: "exclusion only", patterns: []string{"!host.load"}, match: []string{"host.cpu", "a"}, reject: []string{"host.load"}},
		{name: "exclusion wins", patterns: []string{"host.*", "!host.load"}, match: []string{"host.cpu"}, reject: []string{"host.load"}},
		{name: "excluded glob", patterns: []string{"*", "!disk.*"}, match: []string{"cpu"}, reject: []string{"disk.read"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := newMeterMatcher(tt.patterns)
			require.NoError(t, err)
			for _, n := range tt.match {
				assert.True(t, m.match(n), n)
			}
			for _, n := range tt.reject {
				assert.False(t, m.match(n), n)
			}
		})
	}

	for _, bad := range [][]string{nil, {""}, {"!"}, {"[x"}} {
		_, err := newMeterMatcher(bad)
		assert.Error(t, err, "%v", bad)
	}
}
