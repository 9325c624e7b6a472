package pipeline

import (
	"fmt"
	"path"
	"strings"
)

// meterMatcher meter 过滤规则：`*` 全部、`!x` 排除、`prefix.*` 通配。排除优先；
// 只有排除规则时其余 meter 全部包含
type meterMatcher struct {
	included []string
	excluded []string
}

func newMeterMatcher(patterns []string) (*meterMatcher, error) {
	if len(patterns) == 0 {
		return nil, fmt.Errorf("no meters")
	}
	m := &meterMatcher{}
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		neg := strings.HasPrefix(p, "!")
		p = strings.TrimPrefix(p, "!")
		if p == "" {
			return nil, fmt.Errorf("empty meter pattern")
		}
		if _, err := path.Match(p, ""); err != nil {
			return nil, fmt.Errorf("bad meter pattern %q: %w", p, err)
		}
		if neg {
			m.excluded = append(m.excluded, p)
		} else {
			m.included = append(m.included, p)
		}
	}
	return m, nil
}

func (m *meterMatcher) match(name string) bool {
	for _, p := range m.excluded {
		if ok, _ := path.Match(p, name); ok {
			return false
		}
	}
	if len(m.included) == 0 {
		return true
	}
	for _, p := range m.included {
		if ok, _ := path.Match(p, name); ok {
			return true
		}
	}
	return false
}
