package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/halofn/halo/internal/domain"
)

func newTestFunction(id, name string) *domain.Function {
	now := time.Now()
	return &domain.Function{
		ID:        id,
		Name:      name,
		Source:    "export function main() {}",
		Status:    domain.FunctionStatusActive,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestMemoryStore_CreateAndGet(t *testing.T) {
	s := NewMemoryStore()
	fn := newTestFunction("fn-1", "hello")

	if err := s.Create(fn); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := s.GetByID("fn-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Name != "hello" {
		t.Errorf("GetByID() name = %q, want %q", got.Name, "hello")
	}

	got, err = s.GetByName("hello")
	if err != nil {
		t.Fatalf("GetByName() error = %v", err)
	}
	if got.ID != "fn-1" {
		t.Errorf("GetByName() id = %q, want %q", got.ID, "fn-1")
	}
}

func TestMemoryStore_GetNotFound(t *testing.T) {
	s := NewMemoryStore()

	if _, err := s.GetByID("missing"); !errors.Is(err, domain.ErrFunctionNotFound) {
		t.Errorf("GetByID() error = %v, want ErrFunctionNotFound", err)
	}
	if _, err := s.GetByName("missing"); !errors.Is(err, domain.ErrFunctionNotFound) {
		t.Errorf("GetByName() error = %v, want ErrFunctionNotFound", err)
	}
}

// 多个同名函数时，按名查找必须确定性地返回最先创建的那个。
func TestMemoryStore_GetByName_FirstMatch(t *testing.T) {
	s := NewMemoryStore()

	first := newTestFunction("fn-1", "dup")
	second := newTestFunction("fn-2", "dup")
	if err := s.Create(first); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := s.Create(second); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	for i := 0; i < 5; i++ {
		got, err := s.GetByName("dup")
		if err != nil {
			t.Fatalf("GetByName() error = %v", err)
		}
		if got.ID != "fn-1" {
			t.Fatalf("GetByName() id = %q, want first created %q", got.ID, "fn-1")
		}
	}
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	if err := s.Create(newTestFunction("fn-1", "hello")); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, _ := s.GetByID("fn-1")
	got.Name = "mutated"

	again, _ := s.GetByID("fn-1")
	if again.Name != "hello" {
		t.Errorf("store entry was mutated through returned pointer")
	}
}

func TestMemoryStore_List(t *testing.T) {
	s := NewMemoryStore()
	for i, name := range []string{"a", "b", "c"} {
		fn := newTestFunction(name, name)
		fn.CreatedAt = time.Now().Add(time.Duration(i) * time.Second)
		if err := s.Create(fn); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	fns, total, err := s.List(0, 2)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if total != 3 {
		t.Errorf("List() total = %d, want 3", total)
	}
	if len(fns) != 2 {
		t.Errorf("List() len = %d, want 2", len(fns))
	}

	fns, total, err = s.List(10, 2)
	if err != nil {
		t.Fatalf("List() offset beyond end error = %v", err)
	}
	if total != 3 || len(fns) != 0 {
		t.Errorf("List() beyond end = (%d items, total %d), want (0, 3)", len(fns), total)
	}
}

func TestMemoryStore_UpdateDelete(t *testing.T) {
	s := NewMemoryStore()
	fn := newTestFunction("fn-1", "hello")
	if err := s.Create(fn); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	fn.Description = "updated"
	fn.Version = 2
	if err := s.Update(fn); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	got, _ := s.GetByID("fn-1")
	if got.Version != 2 || got.Description != "updated" {
		t.Errorf("Update() not applied: %+v", got)
	}

	if err := s.Update(newTestFunction("ghost", "ghost")); !errors.Is(err, domain.ErrFunctionNotFound) {
		t.Errorf("Update() missing error = %v, want ErrFunctionNotFound", err)
	}

	if err := s.Delete("fn-1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := s.GetByID("fn-1"); !errors.Is(err, domain.ErrFunctionNotFound) {
		t.Errorf("GetByID() after delete error = %v, want ErrFunctionNotFound", err)
	}
	if err := s.Delete("fn-1"); !errors.Is(err, domain.ErrFunctionNotFound) {
		t.Errorf("Delete() twice error = %v, want ErrFunctionNotFound", err)
	}
}

func TestMemoryStore_Logs(t *testing.T) {
	s := NewMemoryStore()

	for i := 0; i < 3; i++ {
		entry := &domain.FunctionLog{
			ID:        string(rune('a' + i)),
			RequestID: "func_fn-1",
			FuncID:    "fn-1",
			FuncName:  "hello",
			Logs:      []string{"line one"},
			CreatedAt: time.Now(),
		}
		if err := s.Insert(entry); err != nil {
			t.Fatalf("Insert() error = %v", err)
		}
	}
	if err := s.Insert(&domain.FunctionLog{ID: "x", FuncID: "fn-2"}); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	logs, total, err := s.ListByFunction("fn-1", 0, 10)
	if err != nil {
		t.Fatalf("ListByFunction() error = %v", err)
	}
	if total != 3 || len(logs) != 3 {
		t.Errorf("ListByFunction() = (%d items, total %d), want (3, 3)", len(logs), total)
	}

	recent, err := s.ListRecent(2)
	if err != nil {
		t.Fatalf("ListRecent() error = %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("ListRecent() len = %d, want 2", len(recent))
	}
	if recent[0].ID != "x" {
		t.Errorf("ListRecent() first = %q, want most recent %q", recent[0].ID, "x")
	}
}

func TestMemoryStore_Documents(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	col := s.Collection("users")

	id, err := col.Add(ctx, map[string]interface{}{"name": "alice", "role": "admin"})
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if id == "" {
		t.Fatal("Add() returned empty id")
	}
	if _, err := col.Add(ctx, map[string]interface{}{"name": "bob", "role": "user"}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	doc, err := col.Where(map[string]interface{}{"name": "alice"}).GetOne(ctx)
	if err != nil {
		t.Fatalf("GetOne() error = %v", err)
	}
	if doc["role"] != "admin" {
		t.Errorf("GetOne() role = %v, want admin", doc["role"])
	}
	if doc["_id"] != id {
		t.Errorf("GetOne() _id = %v, want %v", doc["_id"], id)
	}

	if _, err := col.Where(map[string]interface{}{"name": "carol"}).GetOne(ctx); !errors.Is(err, domain.ErrDocumentNotFound) {
		t.Errorf("GetOne() missing error = %v, want ErrDocumentNotFound", err)
	}

	docs, err := col.Where(map[string]interface{}{}).Get(ctx)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(docs) != 2 {
		t.Errorf("Get() len = %d, want 2", len(docs))
	}

	// 集合之间相互隔离
	other, err := s.Collection("orders").Where(map[string]interface{}{}).Get(ctx)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(other) != 0 {
		t.Errorf("collections not isolated: got %d docs", len(other))
	}
}
