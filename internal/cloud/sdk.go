// Package cloud 构建注入沙箱的能力包。
// 每次调用构建一个独立的能力包，函数代码只能通过包内能力触达外部世界：
// 文档数据库、命名空间对象存储、HTTP 访问、嵌套调用、事件发布、
// 令牌签发/解析，以及进程级共享偏好存储。
package cloud

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"

	"github.com/sirupsen/logrus"

	"github.com/halofn/halo/internal/auth"
	"github.com/halofn/halo/internal/blob"
	"github.com/halofn/halo/internal/domain"
	"github.com/halofn/halo/internal/events"
	"github.com/halofn/halo/internal/shared"
	"github.com/halofn/halo/internal/store"
)

// InvokeFunc 是嵌套调用能力的签名。
// 由调用编排层在启动时绑定，能力包自身不依赖编排层。
type InvokeFunc func(ctx context.Context, name string, fnCtx domain.FunctionContext) (*domain.ExecutionResult, error)

// SDK 是一次调用的能力包。
// 包内所有能力都已绑定到本次调用的上下文（命名空间、调用深度），
// 函数代码无法通过能力包越出这些边界。
type SDK struct {
	// Database 是文档数据库能力
	Database store.DocumentDB
	// Storage 返回限定在指定命名空间内的对象存储；
	// 命名空间嵌套在调用方自身的命名空间之下
	Storage func(namespace string) blob.Store
	// Fetch 发起一次出站 HTTP 请求
	Fetch func(ctx context.Context, url string, opts map[string]interface{}) (map[string]interface{}, error)
	// Invoke 按名调用另一个函数，返回其完整执行结果
	// （value、logs、time_usage；logs 首行为追踪行）
	Invoke func(ctx context.Context, name string, param map[string]interface{}) (interface{}, error)
	// Emit 发布一个自定义事件（尽力而为，失败不抛出）
	Emit func(ctx context.Context, subject string, data interface{})
	// GetToken 以给定声明签发一个令牌
	GetToken func(payload map[string]interface{}) (string, error)
	// ParseToken 解析并验证令牌，返回其中的声明
	ParseToken func(token string) (map[string]interface{}, error)
	// Shared 是进程级共享偏好存储（所有调用共享同一实例）
	Shared *shared.Preferences
	// RawDB 是底层数据库连接（内存模式下为 nil）
	RawDB *sql.DB
}

// Factory 持有能力包的长生命周期依赖，按调用构建 SDK。
// 整个进程只构造一个 Factory。
type Factory struct {
	db            store.DocumentDB
	blobRoot      string
	baseNamespace string
	bus           events.Bus
	jwt           *auth.JWTManager
	shared        *shared.Preferences
	httpClient    *http.Client
	logger        *logrus.Logger
	invoke        InvokeFunc
	rawDB         *sql.DB
}

// NewFactory 创建能力包工厂。
// 嵌套调用能力需随后通过 BindInvoke 绑定，避免与调用编排层形成环。
func NewFactory(db store.DocumentDB, blobRoot, baseNamespace string, bus events.Bus,
	jwt *auth.JWTManager, prefs *shared.Preferences, httpClient *http.Client, logger *logrus.Logger) *Factory {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Factory{
		db:            db,
		blobRoot:      blobRoot,
		baseNamespace: baseNamespace,
		bus:           bus,
		jwt:           jwt,
		shared:        prefs,
		httpClient:    httpClient,
		logger:        logger,
	}
}

// BindInvoke 绑定嵌套调用能力。必须在第一次 Build 之前调用一次。
func (f *Factory) BindInvoke(fn InvokeFunc) {
	f.invoke = fn
}

// BindRawDB 绑定底层数据库连接（仅 PostgreSQL 部署形态）。
func (f *Factory) BindRawDB(db *sql.DB) {
	f.rawDB = db
}

// Build 为一次调用构建能力包。
// parent 是本次调用自身的上下文；嵌套调用能力会在其深度之上递增。
func (f *Factory) Build(parent domain.FunctionContext) *SDK {
	return &SDK{
		Database: f.db,
		Storage: func(namespace string) blob.Store {
			// 函数指定的命名空间嵌套在基础命名空间之下，无法向上逃逸
			return blob.NewLocalStore(f.blobRoot, path.Join(f.baseNamespace, path.Clean("/"+namespace)[1:]))
		},
		Fetch: f.buildFetch(),
		Invoke: func(ctx context.Context, name string, param map[string]interface{}) (interface{}, error) {
			if f.invoke == nil {
				return nil, errors.New("invoke capability not bound")
			}
			child := contextFromParam(param)
			child.Depth = parent.Depth + 1
			res, err := f.invoke(ctx, name, child)
			if err != nil {
				return nil, err
			}
			return map[string]interface{}{
				"value":      res.Value,
				"logs":       res.Logs,
				"time_usage": res.TimeUsage,
			}, nil
		},
		Emit: func(ctx context.Context, subject string, data interface{}) {
			if f.bus == nil {
				return
			}
			if err := f.bus.Emit(ctx, subject, data); err != nil {
				f.logger.WithError(err).WithField("subject", subject).Warn("Event emit failed")
			}
		},
		GetToken: func(payload map[string]interface{}) (string, error) {
			return f.jwt.Sign(payload)
		},
		ParseToken: func(token string) (map[string]interface{}, error) {
			return f.jwt.Parse(token)
		},
		Shared: f.shared,
		RawDB:  f.rawDB,
	}
}

// contextFromParam 将函数代码传入的调用参数转换为调用上下文。
// 只接受已知字段，其余内容忽略。
func contextFromParam(param map[string]interface{}) domain.FunctionContext {
	var fnCtx domain.FunctionContext
	if param == nil {
		return fnCtx
	}
	if q, ok := param["query"].(map[string]interface{}); ok {
		fnCtx.Query = make(map[string]string, len(q))
		for k, v := range q {
			fnCtx.Query[k] = fmt.Sprint(v)
		}
	}
	if b, ok := param["body"].(map[string]interface{}); ok {
		fnCtx.Body = b
	}
	if a, ok := param["auth"].(map[string]interface{}); ok {
		fnCtx.Auth = a
	}
	if m, ok := param["method"].(string); ok {
		fnCtx.Method = m
	}
	return fnCtx
}

// buildFetch 构建出站 HTTP 能力。
// opts 支持 method、headers、body 三个字段；响应体优先按 JSON 解析。
func (f *Factory) buildFetch() func(ctx context.Context, url string, opts map[string]interface{}) (map[string]interface{}, error) {
	return func(ctx context.Context, url string, opts map[string]interface{}) (map[string]interface{}, error) {
		method := http.MethodGet
		var body io.Reader
		headers := map[string]string{}

		if opts != nil {
			if m, ok := opts["method"].(string); ok && m != "" {
				method = m
			}
			if h, ok := opts["headers"].(map[string]interface{}); ok {
				for k, v := range h {
					headers[k] = fmt.Sprint(v)
				}
			}
			if b, ok := opts["body"]; ok && b != nil {
				raw, err := json.Marshal(b)
				if err != nil {
					return nil, fmt.Errorf("marshal fetch body: %w", err)
				}
				body = bytes.NewReader(raw)
				if _, has := headers["Content-Type"]; !has {
					headers["Content-Type"] = "application/json"
				}
			}
		}

		req, err := http.NewRequestWithContext(ctx, method, url, body)
		if err != nil {
			return nil, err
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := f.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}

		respHeaders := make(map[string]string, len(resp.Header))
		for k := range resp.Header {
			respHeaders[k] = resp.Header.Get(k)
		}

		var parsed interface{}
		if err := json.Unmarshal(raw, &parsed); err != nil {
			parsed = string(raw)
		}

		return map[string]interface{}{
			"status":  resp.StatusCode,
			"headers": respHeaders,
			"body":    parsed,
		}, nil
	}
}
