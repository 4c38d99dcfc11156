package port

import "context"

// IdempotencyStore 记录已经处理完成的事件。
// 只有处理成功后才写入完成标记，处理中断的事件重投时会被重新处理，
// 所以下游操作本身必须可以安全重放。
type IdempotencyStore interface {
	// Seen 返回 key 是否已经标记为处理完成。
	Seen(ctx context.Context, key string) (bool, error)
	// MarkDone 写入完成标记。
	MarkDone(ctx context.Context, key string) error
}
