// internal/service/offer/infrastructure/locker.go
package infrastructure

import "context"

// LocalLocker 在没有配置 ZooKeeper 的单实例部署中使用，
// 同一实例内的并发已经由 singleflight 合并，这里不需要再加锁。
type LocalLocker struct{}

func (LocalLocker) Lock(context.Context, string) (func() error, error) {
	return func() error { return nil }, nil
}
