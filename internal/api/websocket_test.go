package api

import (
	"testing"
	"time"

	"github.com/halofn/halo/internal/domain"
)

// descending 按 ListRecent 的约定（时间降序）排列条目。
func descending(entries ...*domain.FunctionLog) []*domain.FunctionLog {
	out := make([]*domain.FunctionLog, len(entries))
	for i, entry := range entries {
		out[len(entries)-1-i] = entry
	}
	return out
}

func logEntryAt(id string, ts time.Time) *domain.FunctionLog {
	return &domain.FunctionLog{ID: id, FuncID: "fn-1", CreatedAt: ts}
}

func TestStreamCursor_SameInstantEntriesNotSkipped(t *testing.T) {
	start := time.Now()
	tick := start.Add(time.Second)
	cursor := newStreamCursor(start)

	first := logEntryAt("log-a", tick)
	fresh := cursor.advance(descending(first))
	if len(fresh) != 1 || fresh[0].ID != "log-a" {
		t.Fatalf("first poll delivered %v, want [log-a]", ids(fresh))
	}

	// 第二条与第一条同一时刻落库，下一轮轮询必须仍被推送
	second := logEntryAt("log-b", tick)
	fresh = cursor.advance(descending(first, second))
	if len(fresh) != 1 || fresh[0].ID != "log-b" {
		t.Fatalf("second poll delivered %v, want [log-b]", ids(fresh))
	}

	// 两条都推送过之后不再重复
	if fresh = cursor.advance(descending(first, second)); len(fresh) != 0 {
		t.Fatalf("third poll delivered %v, want none", ids(fresh))
	}
}

func TestStreamCursor_OrderAndAdvance(t *testing.T) {
	start := time.Now()
	cursor := newStreamCursor(start)

	old := logEntryAt("log-old", start.Add(-time.Minute))
	a := logEntryAt("log-a", start.Add(time.Second))
	b := logEntryAt("log-b", start.Add(2*time.Second))

	fresh := cursor.advance(descending(old, a, b))
	if len(fresh) != 2 || fresh[0].ID != "log-a" || fresh[1].ID != "log-b" {
		t.Fatalf("advance() = %v, want [log-a log-b] in time order", ids(fresh))
	}

	// 游标推进后更早的时间戳不再进入结果
	c := logEntryAt("log-c", start.Add(3*time.Second))
	fresh = cursor.advance(descending(a, b, c))
	if len(fresh) != 1 || fresh[0].ID != "log-c" {
		t.Fatalf("advance() = %v, want [log-c]", ids(fresh))
	}
}

func ids(entries []*domain.FunctionLog) []string {
	out := make([]string, len(entries))
	for i, entry := range entries {
		out[i] = entry.ID
	}
	return out
}
