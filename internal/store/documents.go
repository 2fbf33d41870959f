// Package store 提供函数定义、审计日志与文档集合的存储实现。
// 包含 PostgreSQL 持久化实现、用于测试和本地模式的内存实现，
// 以及基于 Redis 的函数定义读缓存。
package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/halofn/halo/internal/domain"
)

// DocumentDB 是暴露给沙箱代码的文档型数据库能力。
// 语义为 collection(name).where(filter).getOne()/add()：
// 按集合组织的 JSON 文档，过滤条件是字段的相等匹配。
type DocumentDB interface {
	// Collection 返回指定名称的集合句柄；集合在首次写入时隐式创建
	Collection(name string) Collection
}

// Collection 是文档集合句柄。
type Collection interface {
	// Add 插入一个文档，返回生成的文档 ID
	Add(ctx context.Context, doc map[string]interface{}) (string, error)
	// Where 以字段相等匹配构造查询
	Where(filter map[string]interface{}) Query
}

// Query 是已绑定过滤条件的查询。
type Query interface {
	// GetOne 返回首个匹配的文档；无匹配时返回 ErrDocumentNotFound
	GetOne(ctx context.Context) (map[string]interface{}, error)
	// Get 返回所有匹配的文档
	Get(ctx context.Context) ([]map[string]interface{}, error)
}

// matchDoc 判断文档是否满足过滤条件（所有字段相等匹配）。
// 内存实现与测试共用。
func matchDoc(doc, filter map[string]interface{}) bool {
	for k, want := range filter {
		if got, ok := doc[k]; !ok || got != want {
			return false
		}
	}
	return true
}

// newDocumentID 生成文档主键。
func newDocumentID() string {
	return uuid.New().String()
}

// 编译期断言：两种实现都满足仓库接口。
var (
	_ domain.FunctionRepository    = (*MemoryStore)(nil)
	_ domain.FunctionLogRepository = (*MemoryStore)(nil)
	_ DocumentDB                   = (*MemoryStore)(nil)

	_ domain.FunctionRepository    = (*PostgresStore)(nil)
	_ domain.FunctionLogRepository = (*PostgresStore)(nil)
	_ DocumentDB                   = (*PostgresStore)(nil)
)
