// Package blob 提供按命名空间隔离的对象存储。
package blob

import (
	"context"
	"errors"
	"testing"

	"github.com/halofn/halo/internal/domain"
)

// TestLocalStore_PutGetDelete 测试对象的写入、读取和删除。
func TestLocalStore_PutGetDelete(t *testing.T) {
	ctx := context.Background()
	s := NewLocalStore(t.TempDir(), "app1")

	if _, err := s.Get(ctx, "a.txt"); !errors.Is(err, domain.ErrBlobNotFound) {
		t.Errorf("Get() on missing key error = %v, want ErrBlobNotFound", err)
	}

	if err := s.Put(ctx, "dir/a.txt", []byte("hello")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	data, err := s.Get(ctx, "dir/a.txt")
	if err != nil || string(data) != "hello" {
		t.Errorf("Get() = %q, %v; want hello", data, err)
	}

	if err := s.Delete(ctx, "dir/a.txt"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := s.Delete(ctx, "dir/a.txt"); !errors.Is(err, domain.ErrBlobNotFound) {
		t.Errorf("Delete() twice error = %v, want ErrBlobNotFound", err)
	}
}

// TestLocalStore_List 测试按前缀列出键。
func TestLocalStore_List(t *testing.T) {
	ctx := context.Background()
	s := NewLocalStore(t.TempDir(), "app1")

	// 空命名空间
	keys, err := s.List(ctx, "")
	if err != nil || len(keys) != 0 {
		t.Errorf("List() on empty namespace = %v, %v", keys, err)
	}

	for _, k := range []string{"img/a.png", "img/b.png", "doc/c.txt"} {
		if err := s.Put(ctx, k, []byte("x")); err != nil {
			t.Fatalf("Put(%s) error = %v", k, err)
		}
	}

	keys, err = s.List(ctx, "img/")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(keys) != 2 {
		t.Errorf("List(img/) returned %d keys, want 2: %v", len(keys), keys)
	}
}

// TestLocalStore_NamespaceIsolation 验证不同命名空间互不可见。
// 这是存储能力的核心不变式：一次调用的存储句柄无法读到其他命名空间的对象。
func TestLocalStore_NamespaceIsolation(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	a := NewLocalStore(root, "tenant-a")
	b := NewLocalStore(root, "tenant-b")

	if err := a.Put(ctx, "secret.txt", []byte("a-only")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if _, err := b.Get(ctx, "secret.txt"); !errors.Is(err, domain.ErrBlobNotFound) {
		t.Errorf("cross-namespace Get() error = %v, want ErrBlobNotFound", err)
	}
}

// TestLocalStore_RejectsEscapingKeys 验证键净化：
// 空键、绝对路径和 ".." 前缀都不能越出命名空间目录。
func TestLocalStore_RejectsEscapingKeys(t *testing.T) {
	ctx := context.Background()
	s := NewLocalStore(t.TempDir(), "app1")

	for _, key := range []string{"", "/etc/passwd", "../other/file", "a/../../b"} {
		if err := s.Put(ctx, key, []byte("x")); !errors.Is(err, domain.ErrInvalidBlobKey) {
			t.Errorf("Put(%q) error = %v, want ErrInvalidBlobKey", key, err)
		}
	}
}
