package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/halofn/halo/internal/domain"
)

// MemoryStore 是函数定义、审计日志与文档集合的内存实现。
// 用于单元测试和无数据库的本地模式；语义与 PostgresStore 对齐，
// 特别是按名查找的"首个匹配（按创建顺序）"行为。
type MemoryStore struct {
	mu        sync.RWMutex
	functions []*domain.Function            // 保持插入顺序，使按名查找的首匹配可预期
	logs      []*domain.FunctionLog
	documents map[string][]map[string]interface{} // collection -> docs
}

// NewMemoryStore 创建一个空的内存存储。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		documents: make(map[string][]map[string]interface{}),
	}
}

// ========== domain.FunctionRepository ==========

// Create 创建一个新的函数记录。
func (m *MemoryStore) Create(fn *domain.Function) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *fn
	m.functions = append(m.functions, &cp)
	return nil
}

// GetByID 根据 ID 获取函数。
func (m *MemoryStore) GetByID(id string) (*domain.Function, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, fn := range m.functions {
		if fn.ID == id {
			cp := *fn
			return &cp, nil
		}
	}
	return nil, domain.ErrFunctionNotFound
}

// GetByName 根据名称获取函数。
// 多个同名函数时返回最先创建的那个（首个匹配，与 PostgresStore 的
// ORDER BY created_at ASC LIMIT 1 行为一致）。
func (m *MemoryStore) GetByName(name string) (*domain.Function, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, fn := range m.functions {
		if fn.Name == name {
			cp := *fn
			return &cp, nil
		}
	}
	return nil, domain.ErrFunctionNotFound
}

// List 分页获取函数列表。
func (m *MemoryStore) List(offset, limit int) ([]*domain.Function, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	total := len(m.functions)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	out := make([]*domain.Function, 0, end-offset)
	for _, fn := range m.functions[offset:end] {
		cp := *fn
		out = append(out, &cp)
	}
	return out, total, nil
}

// Update 更新函数信息。
func (m *MemoryStore) Update(fn *domain.Function) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.functions {
		if existing.ID == fn.ID {
			cp := *fn
			m.functions[i] = &cp
			return nil
		}
	}
	return domain.ErrFunctionNotFound
}

// Delete 根据 ID 删除函数。
func (m *MemoryStore) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, fn := range m.functions {
		if fn.ID == id {
			m.functions = append(m.functions[:i], m.functions[i+1:]...)
			return nil
		}
	}
	return domain.ErrFunctionNotFound
}

// ========== domain.FunctionLogRepository ==========

// Insert 写入一条审计记录。
func (m *MemoryStore) Insert(entry *domain.FunctionLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *entry
	cp.Logs = append([]string(nil), entry.Logs...)
	m.logs = append(m.logs, &cp)
	return nil
}

// ListByFunction 根据函数 ID 分页获取审计记录。
func (m *MemoryStore) ListByFunction(funcID string, offset, limit int) ([]*domain.FunctionLog, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var matched []*domain.FunctionLog
	for _, l := range m.logs {
		if l.FuncID == funcID {
			matched = append(matched, l)
		}
	}
	total := len(matched)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	out := make([]*domain.FunctionLog, 0, end-offset)
	for _, l := range matched[offset:end] {
		cp := *l
		out = append(out, &cp)
	}
	return out, total, nil
}

// ListRecent 获取最近的审计记录（按创建时间降序）。
func (m *MemoryStore) ListRecent(limit int) ([]*domain.FunctionLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := len(m.logs)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]*domain.FunctionLog, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		cp := *m.logs[i]
		out = append(out, &cp)
	}
	return out, nil
}

// CountLogs 返回审计记录总数，便于测试断言"恰好一条"。
func (m *MemoryStore) CountLogs() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.logs)
}

// ========== DocumentDB ==========

// Collection 返回指定名称的集合句柄。
func (m *MemoryStore) Collection(name string) Collection {
	return &memoryCollection{store: m, name: name}
}

// memoryCollection 是内存文档集合句柄。
type memoryCollection struct {
	store *MemoryStore
	name  string
}

// Add 插入一个文档并返回生成的 ID。
func (c *memoryCollection) Add(ctx context.Context, doc map[string]interface{}) (string, error) {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	id := newDocumentID()
	cp := make(map[string]interface{}, len(doc)+1)
	for k, v := range doc {
		cp[k] = v
	}
	cp["_id"] = id
	c.store.documents[c.name] = append(c.store.documents[c.name], cp)
	return id, nil
}

// Where 构造查询。
func (c *memoryCollection) Where(filter map[string]interface{}) Query {
	return &memoryQuery{col: c, filter: filter}
}

// memoryQuery 是内存集合上的查询。
type memoryQuery struct {
	col    *memoryCollection
	filter map[string]interface{}
}

// GetOne 返回首个匹配的文档。
func (q *memoryQuery) GetOne(ctx context.Context) (map[string]interface{}, error) {
	q.col.store.mu.RLock()
	defer q.col.store.mu.RUnlock()
	for _, doc := range q.col.store.documents[q.col.name] {
		if matchDoc(doc, q.filter) {
			return doc, nil
		}
	}
	return nil, fmt.Errorf("%w: collection %s", domain.ErrDocumentNotFound, q.col.name)
}

// Get 返回所有匹配的文档。
func (q *memoryQuery) Get(ctx context.Context) ([]map[string]interface{}, error) {
	q.col.store.mu.RLock()
	defer q.col.store.mu.RUnlock()
	var out []map[string]interface{}
	for _, doc := range q.col.store.documents[q.col.name] {
		if matchDoc(doc, q.filter) {
			out = append(out, doc)
		}
	}
	return out, nil
}

// Ping 模拟连接检查，始终可用。
func (m *MemoryStore) Ping() error {
	return nil
}
