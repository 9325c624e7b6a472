package polling

import (
	"context"
	"fmt"
	"time"
)

// callWithTimeout 在独立 goroutine 中调用插件，超时或 panic 都转为普通错误。
// 超时后插件 goroutine 仍会跑完，其结果被丢弃
func callWithTimeout[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	type result struct {
		val T
		err error
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	done := make(chan result, 1)
	go func() {
		var res result
		defer func() {
			if r := recover(); r != nil {
				res.err = fmt.Errorf("panic: %v", r)
			}
			done <- res
		}()
		res.val, res.err = fn(ctx)
	}()

	select {
	case res := <-done:
		return res.val, res.err
	case <-ctx.Done():
		var zero T
		return zero, fmt.Errorf("timed out after %s: %w", timeout, ctx.Err())
	}
}
