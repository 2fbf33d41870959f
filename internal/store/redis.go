package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/halofn/halo/internal/config"
	"github.com/halofn/halo/internal/domain"
)

// CachedStore 在函数仓库前加一层 Redis 读缓存。
// 定义变更不频繁而按名解析在每次调用（含嵌套调用）的热路径上，
// 缓存命中可以省掉一次数据库往返。写操作直接透传并使相关键失效。
type CachedStore struct {
	inner  domain.FunctionRepository
	client *redis.Client
	ttl    time.Duration
	logger *logrus.Logger
}

// NewCachedStore 创建带 Redis 读缓存的函数仓库。
func NewCachedStore(inner domain.FunctionRepository, cfg config.RedisConfig, logger *logrus.Logger) (*CachedStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: redis: %v", domain.ErrStorageConnection, err)
	}

	logger.WithField("address", cfg.Address).Info("Connected to Redis")
	return &CachedStore{
		inner:  inner,
		client: client,
		ttl:    cfg.CacheTTL,
		logger: logger,
	}, nil
}

// Close 关闭 Redis 连接。
func (s *CachedStore) Close() error {
	return s.client.Close()
}

func keyByID(id string) string     { return "halo:fn:id:" + id }
func keyByName(name string) string { return "halo:fn:name:" + name }

// Create 透传创建。不预热缓存，读取时再填充。
func (s *CachedStore) Create(fn *domain.Function) error {
	if err := s.inner.Create(fn); err != nil {
		return err
	}
	// 同名的名称键可能缓存着"首个匹配"的旧结果，保守起见一并失效
	s.invalidate(fn.ID, fn.Name)
	return nil
}

// GetByID 读穿透：先查缓存，未命中则回源并写回。
func (s *CachedStore) GetByID(id string) (*domain.Function, error) {
	if fn := s.lookup(keyByID(id)); fn != nil {
		return fn, nil
	}
	fn, err := s.inner.GetByID(id)
	if err != nil {
		return nil, err
	}
	s.fill(keyByID(id), fn)
	return fn, nil
}

// GetByName 读穿透：先查缓存，未命中则回源并写回。
func (s *CachedStore) GetByName(name string) (*domain.Function, error) {
	if fn := s.lookup(keyByName(name)); fn != nil {
		return fn, nil
	}
	fn, err := s.inner.GetByName(name)
	if err != nil {
		return nil, err
	}
	s.fill(keyByName(name), fn)
	return fn, nil
}

// List 不缓存，直接透传。
func (s *CachedStore) List(offset, limit int) ([]*domain.Function, int, error) {
	return s.inner.List(offset, limit)
}

// Update 透传更新并失效缓存键。
func (s *CachedStore) Update(fn *domain.Function) error {
	if err := s.inner.Update(fn); err != nil {
		return err
	}
	s.invalidate(fn.ID, fn.Name)
	return nil
}

// Delete 透传删除并失效 ID 键。
// 名称未知，名称键留给 TTL 过期兜底。
func (s *CachedStore) Delete(id string) error {
	fn, err := s.inner.GetByID(id)
	if err == nil {
		s.invalidate(fn.ID, fn.Name)
	}
	return s.inner.Delete(id)
}

// lookup 查询缓存。缓存故障按未命中处理，不影响主路径。
func (s *CachedStore) lookup(key string) *domain.Function {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	raw, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			s.logger.WithError(err).WithField("key", key).Warn("Definition cache read failed")
		}
		return nil
	}
	var fn domain.Function
	if err := json.Unmarshal(raw, &fn); err != nil {
		s.logger.WithError(err).WithField("key", key).Warn("Definition cache entry corrupt")
		return nil
	}
	return &fn
}

// fill 将函数定义写入缓存，失败只记录不报错。
func (s *CachedStore) fill(key string, fn *domain.Function) {
	raw, err := json.Marshal(fn)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.client.Set(ctx, key, raw, s.ttl).Err(); err != nil {
		s.logger.WithError(err).WithField("key", key).Warn("Definition cache write failed")
	}
}

func (s *CachedStore) invalidate(id, name string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.client.Del(ctx, keyByID(id), keyByName(name)).Err(); err != nil {
		s.logger.WithError(err).WithField("id", id).Warn("Definition cache invalidation failed")
	}
}

var _ domain.FunctionRepository = (*CachedStore)(nil)
