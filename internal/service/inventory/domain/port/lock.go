package port

// Locker 是分布式锁的出站端口，用于保证同一时刻只有一个实例执行清理任务。
type Locker interface {
	Lock() error
	Unlock() error
}

// NoopLocker 在单实例部署或未配置 ZooKeeper 时使用。
type NoopLocker struct{}

func (NoopLocker) Lock() error   { return nil }
func (NoopLocker) Unlock() error { return nil }
