package plugin

import (
	"errors"
	"sync"
)

var errComputeAborted = errors.New("cache compute aborted")

// entry 单个键的值。done 关闭后 v/err 只读
type entry struct {
	done chan struct{}
	v    any
	err  error
}

// Cache 单个采集周期内 pollster 共享的缓存，周期结束即丢弃。
// 全局锁只保护 map，计算在锁外按键进行，一个键卡住不影响其他键
type Cache struct {
	mu   sync.Mutex
	data map[string]*entry
}

func NewCache() *Cache {
	return &Cache{data: make(map[string]*entry)}
}

// Get 返回已计算完成的值；正在计算中的键视为不存在
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	e, ok := c.data[key]
	c.mu.Unlock()
	if !ok {
		return nil, false
	}
	select {
	case <-e.done:
		if e.err != nil {
			return nil, false
		}
		return e.v, true
	default:
		return nil, false
	}
}

func (c *Cache) Set(key string, v any) {
	e := &entry{done: make(chan struct{}), v: v}
	close(e.done)
	c.mu.Lock()
	c.data[key] = e
	c.mu.Unlock()
}

// GetOrCompute 取缓存值，不存在时调用 fn 计算并写入。
// 同一键的并发调用者等待同一次计算；fn 出错不写入，下次调用重新计算
func (c *Cache) GetOrCompute(key string, fn func() (any, error)) (any, error) {
	c.mu.Lock()
	e, ok := c.data[key]
	if ok {
		c.mu.Unlock()
		<-e.done
		return e.v, e.err
	}
	e = &entry{done: make(chan struct{})}
	c.data[key] = e
	c.mu.Unlock()

	c.compute(key, e, fn)
	return e.v, e.err
}

func (c *Cache) compute(key string, e *entry, fn func() (any, error)) {
	defer func() {
		if e.err != nil {
			e.v = nil
			c.mu.Lock()
			if c.data[key] == e {
				delete(c.data, key)
			}
			c.mu.Unlock()
		}
		close(e.done)
	}()
	// fn panic 时保持该错误，等待者不会永久阻塞
	e.err = errComputeAborted
	e.v, e.err = fn()
}
