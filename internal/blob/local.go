// Package blob 提供按命名空间隔离的对象存储。
// 每次调用的存储能力被限定在调用方指定的命名空间内，
// 仅凭该能力无法访问其他命名空间的对象。
package blob

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/halofn/halo/internal/domain"
)

// Store 定义对象存储的接口：命名空间内按字符串键存取二进制对象。
type Store interface {
	// Get 读取对象内容；对象不存在时返回 ErrBlobNotFound
	Get(ctx context.Context, key string) ([]byte, error)
	// Put 写入对象，覆盖已有内容
	Put(ctx context.Context, key string, data []byte) error
	// List 列出指定前缀下的所有键
	List(ctx context.Context, prefix string) ([]string, error)
	// Delete 删除对象；对象不存在时返回 ErrBlobNotFound
	Delete(ctx context.Context, key string) error
}

// LocalStore 是基于本地文件系统的对象存储实现。
// 对象以 {root}/{namespace}/{key} 的路径落盘；键经过净化，
// 不允许越出命名空间目录。
type LocalStore struct {
	root      string
	namespace string
}

// NewLocalStore 创建一个限定在 namespace 内的本地对象存储。
// 构造是廉价的（仅拼接路径），目录在首次写入时创建。
func NewLocalStore(root, namespace string) *LocalStore {
	return &LocalStore{root: root, namespace: namespace}
}

// Namespace 返回该存储句柄所限定的命名空间。
func (s *LocalStore) Namespace() string {
	return s.namespace
}

// resolve 将键净化为命名空间内的绝对路径。
// 拒绝空键和任何试图通过 ".." 或绝对路径越出命名空间的键。
func (s *LocalStore) resolve(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidBlobKey, key)
	}
	cleaned := filepath.Clean(key)
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidBlobKey, key)
	}
	return filepath.Join(s.root, s.namespace, cleaned), nil
}

// Get 读取对象内容。
func (s *LocalStore) Get(ctx context.Context, key string) ([]byte, error) {
	path, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", domain.ErrBlobNotFound, key)
	}
	return data, err
}

// Put 写入对象，必要时创建父目录。
func (s *LocalStore) Put(ctx context.Context, key string, data []byte) error {
	path, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// List 列出指定前缀下的所有键（相对命名空间根的路径）。
// 命名空间目录尚不存在时返回空列表。
func (s *LocalStore) List(ctx context.Context, prefix string) ([]string, error) {
	base := filepath.Join(s.root, s.namespace)
	if _, err := os.Stat(base); os.IsNotExist(err) {
		return nil, nil
	}

	var keys []string
	err := filepath.Walk(base, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		rel, err := filepath.Rel(base, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	return keys, err
}

// Delete 删除对象。
func (s *LocalStore) Delete(ctx context.Context, key string) error {
	path, err := s.resolve(key)
	if err != nil {
		return err
	}
	err = os.Remove(path)
	if os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", domain.ErrBlobNotFound, key)
	}
	return err
}
