// Package shared 提供跨调用共享的进程级偏好存储。
package shared

import (
	"fmt"
	"sync"
	"testing"
)

// TestPreferences_SetGet 测试基本的读写与删除操作。
func TestPreferences_SetGet(t *testing.T) {
	p := NewPreferences()

	if _, ok := p.Get("missing"); ok {
		t.Error("Get() on empty store should report missing")
	}

	p.Set("k", "v1")
	v, ok := p.Get("k")
	if !ok || v != "v1" {
		t.Errorf("Get(k) = %v, %v; want v1, true", v, ok)
	}

	// 覆盖写（last-write-wins）
	p.Set("k", 42)
	v, _ = p.Get("k")
	if v != 42 {
		t.Errorf("Get(k) after overwrite = %v, want 42", v)
	}

	p.Delete("k")
	if p.Has("k") {
		t.Error("Has(k) after Delete should be false")
	}
}

// TestPreferences_Len 测试键数量统计。
func TestPreferences_Len(t *testing.T) {
	p := NewPreferences()
	for i := 0; i < 5; i++ {
		p.Set(fmt.Sprintf("k%d", i), i)
	}
	if got := p.Len(); got != 5 {
		t.Errorf("Len() = %d, want 5", got)
	}
	if got := len(p.Keys()); got != 5 {
		t.Errorf("len(Keys()) = %d, want 5", got)
	}
}

// TestPreferences_Concurrent 测试并发读写不会引发竞态。
// 单次 Get/Set 是原子的；本测试在 -race 下验证这一点。
func TestPreferences_Concurrent(t *testing.T) {
	p := NewPreferences()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				p.Set("shared", n)
				p.Get("shared")
			}
		}(i)
	}
	wg.Wait()

	if !p.Has("shared") {
		t.Error("key should exist after concurrent writes")
	}
}
