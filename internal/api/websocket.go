package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/halofn/halo/internal/domain"
)

var logStreamUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // 开发环境允许所有来源
	},
}

// streamCursor 跟踪日志流推送到的位置。
// 时间戳单独不够：同一时刻落库的多条记录会让严格时间比较漏掉后来者，
// 因此在时间戳之上再按 ID 去重。
type streamCursor struct {
	ts   time.Time
	seen map[string]struct{}
}

func newStreamCursor(start time.Time) *streamCursor {
	return &streamCursor{ts: start, seen: make(map[string]struct{})}
}

// advance 从按时间降序的条目里挑出游标之后的新条目（按时间升序返回），
// 并推进游标。与游标同一时刻的条目靠 ID 去重。
func (c *streamCursor) advance(entries []*domain.FunctionLog) []*domain.FunctionLog {
	var fresh []*domain.FunctionLog
	for i := len(entries) - 1; i >= 0; i-- {
		entry := entries[i]
		if entry.CreatedAt.Before(c.ts) {
			continue
		}
		if _, ok := c.seen[entry.ID]; ok {
			continue
		}
		if entry.CreatedAt.After(c.ts) {
			c.ts = entry.CreatedAt
			c.seen = map[string]struct{}{entry.ID: {}}
		} else {
			c.seen[entry.ID] = struct{}{}
		}
		fresh = append(fresh, entry)
	}
	return fresh
}

// StreamLogs 通过 WebSocket 实时推送调用审计日志。
// HTTP 端点: GET /api/v1/logs/stream?function_id=xxx
// 按固定间隔轮询日志仓库，把游标之后的新条目推送给客户端；
// 可通过 function_id 参数只订阅某个函数的日志。
func (h *Handler) StreamLogs(w http.ResponseWriter, r *http.Request) {
	filterFunctionID := r.URL.Query().Get("function_id")

	conn, err := logStreamUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Error("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	// 监听客户端关闭
	done := make(chan struct{})
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				close(done)
				return
			}
		}
	}()

	cursor := newStreamCursor(time.Now())
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
			entries, err := h.logs.ListRecent(100)
			if err != nil {
				h.logger.WithError(err).Warn("Failed to poll logs for stream")
				continue
			}
			for _, entry := range cursor.advance(entries) {
				if filterFunctionID != "" && entry.FuncID != filterFunctionID {
					continue
				}
				if err := conn.WriteJSON(entry); err != nil {
					return
				}
			}
		}
	}
}
