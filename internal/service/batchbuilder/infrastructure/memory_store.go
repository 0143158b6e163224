// internal/service/batchbuilder/infrastructure/memory_store.go
package infrastructure

import (
	"context"
	"sync"
	"time"

	"flashpromo/internal/pkg/logger"
	"flashpromo/internal/service/batchbuilder/domain"
)

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// MemoryStore 是进程内的工作存储，用于本地开发和测试。
// 与 RedisStore 使用同一套编码，所以损坏文档的处理方式一致。
type MemoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryStore ttl <= 0 表示不过期
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{ttl: ttl, entries: make(map[string]memoryEntry), now: time.Now}
}

func (m *MemoryStore) Load(ctx context.Context, sessionID string) (*domain.BatchBuildSelection, error) {
	m.mu.Lock()
	entry, ok := m.entries[sessionID]
	if ok && !entry.expiresAt.IsZero() && m.now().After(entry.expiresAt) {
		delete(m.entries, sessionID)
		ok = false
	}
	m.mu.Unlock()
	if !ok {
		return nil, nil
	}

	sel, err := decodeSelection(entry.data)
	if err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("session_id", sessionID).Msg("Discarding unreadable working selection")
		return nil, nil
	}
	return sel, nil
}

func (m *MemoryStore) Save(_ context.Context, sessionID string, sel *domain.BatchBuildSelection) error {
	data, err := encodeSelection(sel)
	if err != nil {
		return err
	}
	m.PutRaw(sessionID, data)
	return nil
}

func (m *MemoryStore) Clear(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, sessionID)
	return nil
}

// PutRaw 直接写入原始字节，用于导入或模拟损坏的文档
func (m *MemoryStore) PutRaw(sessionID string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry := memoryEntry{data: append([]byte(nil), data...)}
	if m.ttl > 0 {
		entry.expiresAt = m.now().Add(m.ttl)
	}
	m.entries[sessionID] = entry
}

// Raw 返回保存的原始字节
func (m *MemoryStore) Raw(sessionID string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[sessionID]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), entry.data...), true
}
